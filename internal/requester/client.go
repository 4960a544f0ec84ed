// Package requester is the HTTP client the Factory, the CLI and the worker
// client use to talk to the Server API; the Swarm, Distributor and Reaper
// use the Store in-process instead.
// Grounded on the reference client's requester.py: tenacity-style
// exponential backoff with jitter on 5xx/423/connection errors, bounded by
// a retries_timeout budget, raising once the budget is exhausted
// (spec.md §7). Backoff is github.com/cenkalti/backoff/v4; the
// circuit breaker, one per Client, is github.com/sony/gobreaker, tripped when
// the server is down hard enough that further retries would just pile up.
package requester

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonerrors"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonlog"
)

// Client is a budgeted, circuit-broken HTTP/JSON client bound to one Server
// API base URL.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	retriesTimeout time.Duration
	breaker        *gobreaker.CircuitBreaker
	logContext     map[string]string
}

// New constructs a Client. retriesTimeout is the total wall-clock budget a
// single Do call may spend retrying (spec.md §6
// JOBMON__HTTP__RETRIES_TIMEOUT).
func New(baseURL string, retriesTimeout time.Duration) *Client {
	return &Client{
		baseURL:        baseURL,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		retriesTimeout: retriesTimeout,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "jobmon-server",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
	}
}

// WithLogContext returns a shallow copy of the client that attaches ctx as
// the X-Server-Structlog-Context header on every subsequent call, so
// server-side logs for these requests can be correlated with the caller's
// own structured log fields (spec.md §6).
func (c *Client) WithLogContext(ctx map[string]string) *Client {
	clone := *c
	clone.logContext = ctx
	return &clone
}

// errorResponse mirrors spec.md §6's error envelope:
// {error: {type, exception_message, status_code}}.
type errorResponse struct {
	Error struct {
		Type             string `json:"type"`
		ExceptionMessage string `json:"exception_message"`
		StatusCode       int    `json:"status_code"`
	} `json:"error"`
}

// Do issues method to path with body marshaled as JSON (nil for none),
// retrying on 5xx, 423 (deadlock-retryable), and connection errors with
// jittered exponential backoff until retriesTimeout elapses, and decodes a
// non-error JSON response into out (nil to discard the body).
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return jobmonerrors.Wrap(err, "marshal request body")
		}
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.retriesTimeout
	bctx := backoff.WithContext(b, ctx)

	operation := func() error {
		res, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doOnce(ctx, method, path, payload)
		})
		if err != nil {
			if isRetryable(err) {
				jobmonlog.WithComponent("requester").Warn().Err(err).
					Str("method", method).Str("path", path).Msg("retrying request")
				return err
			}
			return backoff.Permanent(err)
		}
		resp := res.(*httpResult)
		if resp.statusCode == http.StatusLocked {
			return &retryableStatus{code: resp.statusCode}
		}
		if resp.statusCode >= 500 {
			return &retryableStatus{code: resp.statusCode}
		}
		if resp.statusCode >= 400 {
			return backoff.Permanent(decodeError(resp))
		}
		if out != nil && len(resp.body) > 0 {
			if err := json.Unmarshal(resp.body, out); err != nil {
				return backoff.Permanent(jobmonerrors.Wrap(err, "decode response body"))
			}
		}
		return nil
	}

	if err := backoff.Retry(operation, bctx); err != nil {
		if _, ok := err.(*retryableStatus); ok {
			return jobmonerrors.Wrap(err, "exceeded HTTP retry budget")
		}
		return err
	}
	return nil
}

type httpResult struct {
	statusCode int
	body       []byte
}

type retryableStatus struct{ code int }

func (r *retryableStatus) Error() string {
	return "retryable HTTP status"
}

// isRetryable is true for both the synthetic retryableStatus (5xx/423) and
// genuine network/connection errors from doOnce — spec.md §7 treats both
// the same way.
func isRetryable(err error) bool {
	return err != nil
}

func decodeError(resp *httpResult) error {
	var er errorResponse
	if err := json.Unmarshal(resp.body, &er); err != nil {
		return jobmonerrors.InvalidUsage("server returned status " + http.StatusText(resp.statusCode))
	}
	return jobmonerrors.InvalidUsage(er.Error.ExceptionMessage)
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte) (*httpResult, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.logContext != nil {
		if encoded, err := json.Marshal(c.logContext); err == nil {
			req.Header.Set(jobmonlog.LogContextHeader, string(encoded))
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &httpResult{statusCode: resp.StatusCode, body: b}, nil
}
