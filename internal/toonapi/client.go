package toonapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"toonbot/internal/domain"
	"toonbot/internal/infra"
)

const (
	defaultEndpoint = "https://ai.tu.qq.com/trpc.shadow_cv.ai_processor_cgi.AIProcessorCgi/Process"
	busiID          = "different_dimension_me_img_entry"

	// Marker strings and codes the service uses in its response envelope.
	msgIllegal   = "IMG_ILLEGAL"
	msgRateLimit = "VOLUMN_LIMIT"
	codeNoFace   = 1001
)

// Options configures the transformation service client.
type Options struct {
	Endpoint       string
	MaxAttempts    int
	Backoff        time.Duration
	RatePerSec     float64
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client submits portrait images to the remote transformation service and
// classifies its responses. The service fails transiently and without
// documentation, so Submit retries until it can classify an outcome or the
// attempt budget runs out.
type Client struct {
	endpoint    string
	maxAttempts int
	backoff     time.Duration
	limiter     *rate.Limiter
	httpClient  *http.Client
	logger      *infra.Logger
}

// Result locates the artifacts produced for one accepted submission. The
// URLs are short-lived and must be downloaded promptly.
type Result struct {
	VideoURL string
	ImageURL string
}

type processRequest struct {
	BusiID string   `json:"busiId"`
	Extra  string   `json:"extra"`
	Images []string `json:"images"`
}

type requestExtra struct {
	FaceRects  []any      `json:"face_rects"`
	Version    int        `json:"version"`
	Platform   string     `json:"platform"`
	DataReport dataReport `json:"data_report"`
}

type dataReport struct {
	ParentTraceID string `json:"parent_trace_id"`
	RootChannel   string `json:"root_channel"`
	Level         int    `json:"level"`
}

type processResponse struct {
	Code  int    `json:"code"`
	Msg   string `json:"msg"`
	Extra string `json:"extra"`
}

type resultExtra struct {
	Videos  []string `json:"videos"`
	ImgURLs []string `json:"img_urls"`
}

// New constructs a client with sane defaults and injected dependencies.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 100
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 3 * time.Second
	}
	var limiter *rate.Limiter
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		endpoint:    endpoint,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		limiter:     limiter,
		httpClient:  httpClient,
		logger:      logger,
	}
}

// Submit sends the base64 encoded image until the service classifies it.
// Terminal rejections surface as domain.ErrContentRejected or
// domain.ErrNoFace. Rate limited responses wait the configured backoff and
// do not consume the attempt budget; every other failure consumes one
// attempt. When the budget is spent, Submit fails with
// domain.ErrUnavailable carrying the last raw payload for diagnostics.
func (c *Client) Submit(ctx context.Context, imageBase64 string) (*Result, error) {
	if strings.TrimSpace(imageBase64) == "" {
		return nil, errors.New("toonapi: image payload is required")
	}

	var lastRaw []byte
	attempts := 0
	for attempts < c.maxAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		raw, err := c.post(ctx, imageBase64)
		if err != nil {
			attempts++
			c.logger.Debug().Err(err).Int("attempt", attempts).Msg("toonapi: request failed")
			continue
		}
		lastRaw = raw

		var envelope processResponse
		if err := json.Unmarshal(raw, &envelope); err != nil {
			attempts++
			c.logger.Debug().Int("attempt", attempts).Msg("toonapi: undecodable response")
			continue
		}

		switch {
		case envelope.Msg == msgIllegal:
			return nil, fmt.Errorf("toonapi: %w", domain.ErrContentRejected)
		case envelope.Msg == msgRateLimit:
			// Rate limiting does not count against the attempt budget.
			c.logger.Debug().Dur("backoff", c.backoff).Msg("toonapi: rate limited")
			if err := sleep(ctx, c.backoff); err != nil {
				return nil, err
			}
			continue
		case envelope.Code == codeNoFace:
			return nil, fmt.Errorf("toonapi: %w", domain.ErrNoFace)
		}

		if result := parseResult(envelope.Extra); result != nil {
			c.logger.Debug().
				Str("video_url", result.VideoURL).
				Str("image_url", result.ImageURL).
				Int("attempts_spent", attempts).
				Msg("toonapi: submission accepted")
			return result, nil
		}

		attempts++
		c.logger.Debug().Int("attempt", attempts).Int("code", envelope.Code).Msg("toonapi: unrecognized response")
	}

	return nil, fmt.Errorf("toonapi: %w after %d attempts: last response %q",
		domain.ErrUnavailable, c.maxAttempts, truncate(lastRaw))
}

func (c *Client) post(ctx context.Context, imageBase64 string) ([]byte, error) {
	extra, err := json.Marshal(requestExtra{
		FaceRects:  []any{},
		Version:    2,
		DataReport: dataReport{ParentTraceID: uuid.NewString()},
	})
	if err != nil {
		return nil, fmt.Errorf("toonapi: encode extra: %w", err)
	}
	body, err := json.Marshal(processRequest{
		BusiID: busiID,
		Extra:  string(extra),
		Images: []string{imageBase64},
	})
	if err != nil {
		return nil, fmt.Errorf("toonapi: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("toonapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://h5.tu.qq.com")
	req.Header.Set("Referer", "https://h5.tu.qq.com/")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("toonapi: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("toonapi: read response: %w", err)
	}
	return raw, nil
}

// parseResult decodes the inner extra document of an accepted submission.
// The service orders its lists asymmetrically: the video is videos[0] while
// the image is img_urls[1].
func parseResult(extra string) *Result {
	if strings.TrimSpace(extra) == "" {
		return nil
	}
	var decoded resultExtra
	if err := json.Unmarshal([]byte(extra), &decoded); err != nil {
		return nil
	}
	if len(decoded.Videos) < 1 || len(decoded.ImgURLs) < 2 {
		return nil
	}
	return &Result{VideoURL: decoded.Videos[0], ImageURL: decoded.ImgURLs[1]}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(raw []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(raw))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
