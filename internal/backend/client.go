package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/kasir-gateway/internal/resilience"
)

var (
	// ErrUnavailable is returned when the upstream cannot be reached or the
	// circuit breaker refuses the call.
	ErrUnavailable = errors.New("backend: upstream unavailable")
	// ErrNotFound is returned for upstream 404 responses.
	ErrNotFound = errors.New("backend: resource not found")
	// ErrDuplicateEmail is returned when the upstream rejects a write because
	// the email address is already registered.
	ErrDuplicateEmail = errors.New("backend: email already in use")
	// ErrUnauthorized is returned for upstream 401 responses.
	ErrUnauthorized = errors.New("backend: unauthorized")
)

// APIError carries an upstream error response verbatim so the gateway can
// relay status and body to the cashier UI.
type APIError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *APIError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("backend: upstream error: %s", e.Status)
	}
	return fmt.Sprintf("backend: upstream error: %s: %s", e.Status, e.Body)
}

// Client talks to the store backend REST API. All calls pass through a
// circuit breaker so a dead upstream fails fast instead of stalling the
// cashier UI.
type Client struct {
	http    *resty.Client
	breaker *resilience.Breaker
	log     zerolog.Logger
}

// NewClient builds a client for the given upstream base URL.
func NewClient(baseURL string, timeout time.Duration, breaker *resilience.Breaker, log zerolog.Logger) *Client {
	if breaker == nil {
		breaker = resilience.NewBreaker(5, 0.6, 15*time.Second).WithTarget("backend")
	}
	c := &Client{breaker: breaker, log: log}
	c.http = resty.New().
		SetTransport(otelhttp.NewTransport(http.DefaultTransport)).
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryMaxWaitTime(time.Second).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			attempt := 1
			if resp != nil && resp.Request != nil && resp.Request.Attempt > 0 {
				attempt = resp.Request.Attempt
			}
			return resilience.Backoff(200*time.Millisecond, attempt, 0.2), nil
		}).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode() >= http.StatusInternalServerError
		})
	c.http.OnBeforeRequest(func(_ *resty.Client, _ *resty.Request) error {
		if !c.breaker.Allow() {
			return fmt.Errorf("%w: %w", ErrUnavailable, resilience.ErrOpenCircuit)
		}
		return nil
	})
	c.http.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		c.breaker.Report(resp.StatusCode() < http.StatusInternalServerError)
		return nil
	})
	c.http.OnError(func(_ *resty.Request, err error) {
		if !errors.Is(err, ErrUnavailable) {
			c.breaker.Report(false)
		}
	})
	return c
}

// Healthy reports whether the breaker currently admits upstream calls.
func (c *Client) Healthy() bool {
	return c.breaker.CurrentState() != resilience.Open
}

// Get performs a GET request and returns the raw response body.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, path, nil, body)
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, path, nil, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return nil, errorFromResponse(resp)
	}
	return json.RawMessage(append([]byte(nil), resp.Body()...)), nil
}

func errorFromResponse(resp *resty.Response) error {
	body := resp.Body()
	switch resp.StatusCode() {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusConflict:
		if strings.Contains(strings.ToLower(string(body)), "email") {
			return ErrDuplicateEmail
		}
	}
	return &APIError{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		Body:       append([]byte(nil), body...),
	}
}
