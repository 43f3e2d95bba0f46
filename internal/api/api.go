// Package api is the JSON-over-HTTP client shared by the broker and OCR
// clients. Responses with status >= 400 come back as *HTTPError with the
// body retained so the broker's own explanation can be surfaced.
package api

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

	"seller-market/internal/logger"
)

// DefaultTimeout bounds every request unless WithTimeout overrides it.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error body is kept in HTTPError.
const maxErrorBody = 4096

type Client struct {
	hc      *http.Client
	headers http.Header
}

type ClientOption func(*Client)

// WithTimeout sets the per-request timeout. Non-positive values are ignored.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.hc.Timeout = timeout
		}
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) { c.headers.Set(key, value) }
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		hc:      &http.Client{Timeout: DefaultTimeout},
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// Request is built fluently and executed with Client.Do. A non-nil Body is
// sent as JSON.
type Request struct {
	Method  string
	URL     string
	Body    any
	Headers http.Header
	ctx     context.Context
}

func NewRequest(method, url string) *Request {
	return &Request{Method: method, URL: url, Headers: make(http.Header), ctx: context.Background()}
}

func (r *Request) WithContext(ctx context.Context) *Request {
	r.ctx = ctx
	return r
}

func (r *Request) WithBody(body any) *Request {
	r.Body = body
	return r
}

func (r *Request) WithHeader(key, value string) *Request {
	r.Headers.Set(key, value)
	return r
}

func (r *Request) WithBearer(token string) *Request {
	return r.WithHeader("Authorization", "Bearer "+token)
}

type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

func (r *Response) ParseJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("parsing JSON response: %w", err)
	}
	return nil
}

func (r *Response) String() string { return string(r.Body) }

func (c *Client) Do(req *Request) (*Response, error) {
	ctx := req.ctx
	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range c.headers {
		hreq.Header[k] = v
	}
	for k, v := range req.Headers {
		hreq.Header[k] = v
	}
	if req.Body != nil && hreq.Header.Get("Content-Type") == "" {
		hreq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	hresp, err := c.hc.Do(hreq)
	if err != nil {
		logger.Debug(ctx, "HTTP request failed", "method", req.Method, "endpoint", endpoint(req.URL), "error", err)
		return nil, fmt.Errorf("%s %s: %w", req.Method, endpoint(req.URL), err)
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(hresp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	logger.Debug(ctx, "HTTP response",
		"method", req.Method,
		"endpoint", endpoint(req.URL),
		"status", hresp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds(),
		"bytes", len(data),
	)

	if hresp.StatusCode >= 400 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, &HTTPError{Method: req.Method, URL: req.URL, StatusCode: hresp.StatusCode, Body: data}
	}
	return &Response{StatusCode: hresp.StatusCode, Body: data, Headers: hresp.Header}, nil
}

func (c *Client) GET(ctx context.Context, url string) (*Response, error) {
	return c.Do(NewRequest(http.MethodGet, url).WithContext(ctx))
}

func (c *Client) POST(ctx context.Context, url string, body any) (*Response, error) {
	return c.Do(NewRequest(http.MethodPost, url).WithContext(ctx).WithBody(body))
}

// endpoint strips the query so tokens and ids never reach the log.
func endpoint(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Host + u.Path
}

// BrowserHeaders are sent by the broker client; the identity hosts reject
// requests without a browser user agent.
func BrowserHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "en-US,en;q=0.9,fa;q=0.8",
	}
}
