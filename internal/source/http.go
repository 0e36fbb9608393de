// Package source fetches the current display image.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// maxImageBytes caps a single capture download.
const maxImageBytes = 32 << 20

// Options tunes an HTTP source. Zero values take defaults.
type Options struct {
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before a probe.
	OpenTimeout time.Duration
	Client      *http.Client
	Logger      *slog.Logger
}

// HTTP is an image source backed by a URL.
type HTTP struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewHTTP returns a source fetching url through a circuit breaker.
func NewHTTP(url string, opts Options) *HTTP {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	failures := opts.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	openTimeout := opts.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = time.Minute
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:        "source.fetch",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about the upstream.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	}

	return &HTTP{
		url:     url,
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

// URL is the fetched address.
func (h *HTTP) URL() string { return h.url }

// Fetch downloads the image bytes. An open breaker fails fast with an error
// for which IsCircuitOpen reports true.
func (h *HTTP) Fetch(ctx context.Context) ([]byte, error) {
	return h.breaker.Execute(func() ([]byte, error) {
		return h.fetch(ctx)
	})
}

func (h *HTTP) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build source request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", h.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", h.url, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read source body: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("source body exceeds %d bytes", maxImageBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("source returned an empty body")
	}
	return data, nil
}

// IsCircuitOpen reports whether err came from an open breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
