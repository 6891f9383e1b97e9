// Package transport provides the HTTP client used by the session manager and
// the domain stores. Outgoing requests pass through an ordered interceptor
// chain; the bearer interceptor injects the Authorization header from the
// current session.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/crowdcheck/newsclient/internal/errs"
)

// Interceptor mutates an outgoing request before it is sent. Returning an
// error aborts the request.
type Interceptor func(*http.Request) error

// TokenSource yields the current bearer token, already normalized.
// An empty string means no token is available from this source.
type TokenSource interface {
	BearerToken() string
}

// BearerInterceptor injects "Authorization: Bearer <token>" using the first
// source that yields a token. Callers typically pass the session manager
// first and a raw-storage fallback second, so a request can still be
// authorized when the in-memory session is not hydrated.
func BearerInterceptor(sources ...TokenSource) Interceptor {
	return func(req *http.Request) error {
		for _, src := range sources {
			if src == nil {
				continue
			}
			if tok := src.BearerToken(); tok != "" {
				req.Header.Set("Authorization", "Bearer "+tok)
				return nil
			}
		}
		return nil
	}
}

// Response is a settled HTTP exchange. Data holds the raw body; Decode
// unmarshals it on demand.
type Response struct {
	StatusCode int
	Data       []byte
}

// HasBody reports whether the server returned a non-empty payload.
func (r *Response) HasBody() bool {
	return r != nil && len(bytes.TrimSpace(r.Data)) > 0
}

// Decode unmarshals the body into v. ErrNoBody is returned for an empty
// payload so callers can distinguish absence from malformed JSON.
func (r *Response) Decode(v any) error {
	if !r.HasBody() {
		return errs.ErrNoBody
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is a non-2xx server answer. Message carries the server's
// "message" field when one was present; the status class is otherwise not
// interpreted beyond the unauthorized/not-found sentinels.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// Unwrap maps well-known status codes to sentinels for errors.Is checks.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errs.ErrUnauthorized
	case http.StatusNotFound:
		return errs.ErrNotFound
	}
	return nil
}

// ServerMessage extracts the server-provided message from err, or "" when
// none is attached.
func ServerMessage(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	return ""
}

// Client executes JSON requests against a single base URL.
type Client struct {
	base         string
	hc           *http.Client
	log          *zap.Logger
	interceptors []Interceptor
}

// New constructs a Client. A nil logger disables request logging; a zero
// timeout defaults to 30s.
func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		hc:   &http.Client{Timeout: timeout},
		log:  log,
	}
}

// Use appends an interceptor to the chain. Interceptors run in registration
// order on every outgoing request. Not safe to call concurrently with
// in-flight requests; register everything during wiring.
func (c *Client) Use(i Interceptor) {
	c.interceptors = append(c.interceptors, i)
}

// Get issues a GET with optional query parameters.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Post issues a POST with a JSON body (nil for an empty body).
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

// Put issues a PUT with a JSON body (nil for an empty body).
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPut, path, nil, body)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*Response, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	reqID := ""
	if id, err := uuid.NewV4(); err == nil {
		reqID = id.String()
		req.Header.Set("X-Request-Id", reqID)
	}

	for _, i := range c.interceptors {
		if err := i(req); err != nil {
			return nil, fmt.Errorf("request interceptor: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.log.Warn("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", reqID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	c.log.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("dur", time.Since(start)),
		zap.String("request_id", reqID),
	)

	out := &Response{StatusCode: resp.StatusCode, Data: data}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &StatusError{StatusCode: resp.StatusCode, Message: messageField(data)}
	}
	return out, nil
}

// messageField pulls the conventional {"message": "..."} field out of an
// error body, tolerating any other shape.
func messageField(data []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	return payload.Message
}
