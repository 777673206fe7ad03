package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/canopy-network/payoutx/pkg/utils"
)

// ErrNoEndpoints is returned when every endpoint is missing or has an open breaker.
var ErrNoEndpoints = errors.New("no rpc endpoint available")

// StatusError is a non-2xx sidecar response.
type StatusError struct {
	Code int
	Path string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rpc %s: http %d", e.Path, e.Code)
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// HTTPClient is a wrapper around an http.Client that implements a circuit-breaker per endpoint
// and a shared rate limiter.
type HTTPClient struct {
	endpoints []string
	client    *http.Client
	limiter   *rate.Limiter

	// circuit-breaker
	mu       sync.Mutex
	failures map[string]int
	opened   map[string]time.Time

	breakerThreshold int
	breakerCooldown  time.Duration
}

var _ Client = (*HTTPClient)(nil)

// Opts is the set of options for a new HTTPClient.
type Opts struct {
	Endpoints       []string
	Timeout         time.Duration
	RPS             int
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
}

// NewHTTPWithOpts creates a new HTTPClient with the given options.
func NewHTTPWithOpts(o Opts) *HTTPClient {
	if o.RPS <= 0 {
		o.RPS = 20
	}
	if o.Burst <= 0 {
		o.Burst = 40
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 5 * time.Second
	}

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	} else if client.Timeout == 0 {
		client.Timeout = o.Timeout
	}

	return &HTTPClient{
		endpoints:        utils.Dedup(o.Endpoints),
		client:           client,
		limiter:          rate.NewLimiter(rate.Limit(o.RPS), o.Burst),
		failures:         map[string]int{},
		opened:           map[string]time.Time{},
		breakerThreshold: o.BreakerFailures,
		breakerCooldown:  o.BreakerCooldown,
	}
}

// Endpoints returns the deduplicated endpoint list.
func (c *HTTPClient) Endpoints() []string {
	return append([]string(nil), c.endpoints...)
}

// isOpen returns true if the endpoint breaker is OPEN. An expired breaker is closed again.
func (c *HTTPClient) isOpen(ep string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.opened[ep]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.opened, ep)
		c.failures[ep] = 0
		return false
	}
	return true
}

// noteFailure marks an endpoint as failed and opens the circuit-breaker if the failure count exceeds the threshold.
func (c *HTTPClient) noteFailure(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep]++
	if c.failures[ep] >= c.breakerThreshold {
		c.opened[ep] = time.Now().Add(c.breakerCooldown)
	}
}

func (c *HTTPClient) noteSuccess(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep] = 0
}

// doJSON sends an HTTP request to a configured endpoint with the given method, path, and JSON payload and processes the response.
// It moves on to the next endpoint on transport errors, 5xx responses and undecodable bodies.
// 4xx responses are returned immediately as *StatusError since every replica would answer the same.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	if len(c.endpoints) == 0 {
		return ErrNoEndpoints
	}

	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = b
	}

	lastErr := ErrNoEndpoints
	for _, ep := range c.endpoints {
		if c.isOpen(ep) {
			continue
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, method, ep+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			c.noteFailure(ep)
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = &StatusError{Code: resp.StatusCode, Path: path}
			c.noteFailure(ep)
			_ = utils.DrainAndClose(resp.Body)
			continue
		}
		if resp.StatusCode >= 300 {
			_ = utils.DrainAndClose(resp.Body)
			c.noteSuccess(ep)
			return &StatusError{Code: resp.StatusCode, Path: path}
		}

		raw, err := utils.ReadAllLimited(resp.Body, utils.MaxResponseBytes)
		_ = utils.DrainAndClose(resp.Body)
		if err != nil {
			lastErr = err
			c.noteFailure(ep)
			continue
		}
		if out != nil {
			if err := json.Unmarshal(raw, out); err != nil {
				lastErr = fmt.Errorf("decode %s: %w", path, err)
				continue
			}
		}
		c.noteSuccess(ep)
		return nil
	}

	return lastErr
}
