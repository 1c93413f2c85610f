// Package transport defines the HTTP boundary the session core talks
// through. Paths are relative to a configured base URL; the real
// implementation carries ambient cookie credentials for the refresh
// endpoint, while tests substitute in-memory fakes.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// Request describes one outbound call. Header and Body may be nil.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Response is the raw result of a call. Body is fully read and the
// underlying connection released before Send returns.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Transport performs a network request. Implementations must be safe for
// concurrent use.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport is the production Transport backed by net/http. It owns a
// cookie jar so HTTP-only session cookies set by the identity provider ride
// along on refresh calls.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient substitutes the underlying http.Client. The transport
// installs a cookie jar on it if it has none.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		if client != nil {
			t.client = client
		}
	}
}

// WithTimeout bounds every request made through this transport.
// Default: 30s.
func WithTimeout(d time.Duration) HTTPOption {
	return func(t *HTTPTransport) {
		if d > 0 {
			t.client.Timeout = d
		}
	}
}

// NewHTTP creates a Transport rooted at baseURL.
func NewHTTP(baseURL string, opts ...HTTPOption) (*HTTPTransport, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("transport: invalid base URL %q: %w", baseURL, err)
	}

	t := &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.client.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("transport: cookie jar: %w", err)
		}
		t.client.Jar = jar
	}
	return t, nil
}

// Send performs the request and drains the response body.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, t.baseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	httpRes, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpRes.Body.Close()

	data, err := io.ReadAll(httpRes.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: read body: %w", err)
	}

	return &Response{
		Status: httpRes.StatusCode,
		Header: httpRes.Header,
		Body:   data,
	}, nil
}
