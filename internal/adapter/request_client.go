package adapter

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ledger-reconciler/internal/errors"
	"github.com/ledger-reconciler/internal/logging"
	"github.com/ledger-reconciler/internal/ratelimit"
)

// RequestClient issues outbound HTTP calls through a shared adaptive
// throttle. Every external call in the process goes through one instance,
// so source backpressure slows all callers together.
type RequestClient struct {
	client     *http.Client
	throttle   *ratelimit.AdaptiveThrottle
	maxRetries int
	retryStep  time.Duration
}

// RequestClientConfig holds request client tuning
type RequestClientConfig struct {
	Timeout    time.Duration
	MaxRetries int
	RetryStep  time.Duration
}

// NewRequestClient creates a request client around a shared throttle
func NewRequestClient(throttle *ratelimit.AdaptiveThrottle, cfg RequestClientConfig) *RequestClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryStep <= 0 {
		cfg.RetryStep = 500 * time.Millisecond
	}
	return &RequestClient{
		client:     &http.Client{Timeout: cfg.Timeout},
		throttle:   throttle,
		maxRetries: cfg.MaxRetries,
		retryStep:  cfg.RetryStep,
	}
}

// Throttle exposes the shared throttle for callers that report outcomes
// on non-HTTP paths
func (c *RequestClient) Throttle() *ratelimit.AdaptiveThrottle {
	return c.throttle
}

// Post sends a JSON body and returns the response bytes
func (c *RequestClient) Post(ctx context.Context, label, url string, body []byte) ([]byte, error) {
	return c.send(ctx, label, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
}

// Get fetches a URL and returns the response bytes
func (c *RequestClient) Get(ctx context.Context, label, url string) ([]byte, error) {
	return c.send(ctx, label, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
}

// send runs the throttled retry loop. Rate limits and timeouts are
// transient: they grow the shared delay and are retried with a linearly
// increasing extra wait. Any other failure is permanent and returned
// immediately.
func (c *RequestClient) send(ctx context.Context, label string, build func() (*http.Request, error)) ([]byte, error) {
	logger := logging.FromContext(ctx)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			extra := time.Duration(attempt) * c.retryStep
			logger.WithField("label", label).
				WithField("attempt", attempt).
				WithField("extra_wait", extra.String()).
				Debug("retrying source call")
			select {
			case <-time.After(extra):
			case <-ctx.Done():
				return nil, errors.NewTimeoutError(label, ctx.Err())
			}
		}

		if err := c.throttle.Wait(ctx); err != nil {
			return nil, errors.NewTimeoutError(label, err)
		}

		body, err := c.attempt(build)
		if err == nil {
			c.throttle.RecordSuccess()
			return body, nil
		}
		if !errors.IsTransient(err) {
			return nil, err
		}

		c.throttle.RecordFailure()
		lastErr = err
		logger.WithField("label", label).
			WithField("delay", c.throttle.CurrentDelay().String()).
			WithError(err).
			Warn("transient source failure")
	}

	return nil, errors.NewRetriesExhaustedError(label, c.maxRetries, lastErr)
}

func (c *RequestClient) attempt(build func() (*http.Request, error)) ([]byte, error) {
	req, err := build()
	if err != nil {
		return nil, errors.NewPermanentSourceError("build request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, errors.NewTimeoutError(req.URL.Host, err)
		}
		return nil, errors.NewPermanentSourceError(req.URL.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewPermanentSourceError(req.URL.Host, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.NewRateLimitedError(req.URL.Host)
	case resp.StatusCode >= 400:
		return nil, errors.NewPermanentSourceError(req.URL.Host,
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(body, 200)))
	}
	return body, nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return stderrors.Is(err, context.DeadlineExceeded)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
