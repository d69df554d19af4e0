package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"toonbot/internal/domain"
)

func TestFetchReturnsFirstNonEmptyBody(t *testing.T) {
	transport := newScriptTransport(
		bodyStep(""),
		bodyStep(""),
		bodyStep(""),
		bodyStep("artifact-bytes"),
	)
	fetcher := newTestFetcher(transport, 10)

	data, err := fetcher.Fetch(context.Background(), "https://cdn.example.com/toon.jpg")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.Equal(data, []byte("artifact-bytes")) {
		t.Fatalf("data mismatch: %q", data)
	}
	if got := transport.count(); got != 4 {
		t.Fatalf("request count = %d, want 4", got)
	}
}

func TestFetchSucceedsJustBelowCeiling(t *testing.T) {
	transport := newScriptTransport(
		bodyStep(""),
		bodyStep(""),
		bodyStep("artifact-bytes"),
	)
	fetcher := newTestFetcher(transport, 3)

	if _, err := fetcher.Fetch(context.Background(), "https://cdn.example.com/toon.jpg"); err != nil {
		t.Fatalf("fetch should succeed on the final attempt: %v", err)
	}
}

func TestFetchFailsAtCeiling(t *testing.T) {
	transport := newScriptTransport(bodyStep(""))
	fetcher := newTestFetcher(transport, 3)

	_, err := fetcher.Fetch(context.Background(), "https://cdn.example.com/toon.jpg")
	if !errors.Is(err, domain.ErrDownloadFailed) {
		t.Fatalf("err = %v, want ErrDownloadFailed", err)
	}
	if got := transport.count(); got != 3 {
		t.Fatalf("request count = %d, want 3", got)
	}
}

func TestFetchRetriesErrorStatusAndNetworkFailure(t *testing.T) {
	transport := newScriptTransport(
		scriptStep{status: http.StatusBadGateway, body: "bad gateway"},
		scriptStep{err: fmt.Errorf("connection reset")},
		bodyStep("artifact-bytes"),
	)
	fetcher := newTestFetcher(transport, 5)

	data, err := fetcher.Fetch(context.Background(), "https://cdn.example.com/clip.mp4")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "artifact-bytes" {
		t.Fatalf("data mismatch: %q", data)
	}
	if got := transport.count(); got != 3 {
		t.Fatalf("request count = %d, want 3", got)
	}
}

func TestFetchRejectsInvalidURL(t *testing.T) {
	transport := newScriptTransport()
	fetcher := newTestFetcher(transport, 3)

	if _, err := fetcher.Fetch(context.Background(), "not a url"); err == nil {
		t.Fatalf("expected error for invalid url")
	}
	if got := transport.count(); got != 0 {
		t.Fatalf("invalid url should not hit the network, got %d requests", got)
	}
}

func TestFetchHonorsCancelledContext(t *testing.T) {
	transport := newScriptTransport(bodyStep(""))
	fetcher := newTestFetcher(transport, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fetcher.Fetch(ctx, "https://cdn.example.com/toon.jpg")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func newTestFetcher(transport *scriptTransport, attempts int) *Fetcher {
	return New(Options{
		MaxAttempts: attempts,
		HTTPClient:  &http.Client{Transport: transport},
	})
}

type scriptStep struct {
	status int
	body   string
	err    error
}

func bodyStep(body string) scriptStep {
	return scriptStep{status: http.StatusOK, body: body}
}

// scriptTransport replays a fixed response script, repeating the final step
// once the script runs out.
type scriptTransport struct {
	mu       sync.Mutex
	script   []scriptStep
	requests int
}

func newScriptTransport(script ...scriptStep) *scriptTransport {
	return &scriptTransport{script: script}
}

func (s *scriptTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if len(s.script) == 0 {
		return nil, fmt.Errorf("no scripted response for request %d", s.requests)
	}
	step := s.script[0]
	if len(s.script) > 1 {
		s.script = s.script[1:]
	}
	if step.err != nil {
		return nil, step.err
	}
	return &http.Response{
		StatusCode: step.status,
		Header:     http.Header{"Content-Type": []string{"application/octet-stream"}},
		Body:       io.NopCloser(strings.NewReader(step.body)),
	}, nil
}

func (s *scriptTransport) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}
