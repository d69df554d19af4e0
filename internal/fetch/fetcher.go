package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"toonbot/internal/domain"
	"toonbot/internal/infra"
)

// Options configures the asset fetcher.
type Options struct {
	MaxAttempts    int
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Fetcher downloads binary assets over HTTP. The hosts it talks to, the
// chat platform's file servers and the transformation service's result
// store, both drop connections and serve empty bodies under load, so Fetch
// retries until it has a non-empty payload or the attempt budget runs out.
type Fetcher struct {
	maxAttempts int
	httpClient  *http.Client
	logger      *infra.Logger
}

// New constructs a fetcher with sane defaults and injected dependencies.
func New(opts Options) *Fetcher {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 100
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Fetcher{
		maxAttempts: maxAttempts,
		httpClient:  httpClient,
		logger:      logger,
	}
}

// Fetch downloads rawURL and returns its body. Failed requests, error
// statuses and empty bodies all consume one attempt; exhausting the budget
// fails with domain.ErrDownloadFailed.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("fetch: invalid url %q", rawURL)
	}

	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := f.get(ctx, parsed.String())
		if err != nil {
			lastErr = err
			f.logger.Debug().Err(err).Int("attempt", attempt).Str("url", parsed.String()).Msg("fetch: retrying")
			continue
		}
		return data, nil
	}

	return nil, fmt.Errorf("fetch: %w for %s after %d attempts: %v",
		domain.ErrDownloadFailed, parsed.Redacted(), f.maxAttempts, lastErr)
}

func (f *Fetcher) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("fetch: empty body")
	}
	return data, nil
}
