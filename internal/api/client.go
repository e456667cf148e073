// Package api talks to the autobot scheduler over its HTTP JSON API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// SessionCookieName is the cookie the autobot server issues on login.
const SessionCookieName = "autobot_session"

// ErrUnauthorized is returned for a 401 on an /api/ path. The session is no longer valid.
var ErrUnauthorized = errors.New("未登录或登录已过期")

// HTTPError is a non-2xx response with the best message the body offered.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// Options describes one request.
type Options struct {
	Method  string
	Query   url.Values
	Headers map[string]string
	// Body is sent as-is when it is a string or []byte and JSON-encoded otherwise.
	Body any
}

// Client is safe for concurrent use. Copies made by WithSession share the transport.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	session        string
	onUnauthorized func()
}

// New builds a client with a traced transport.
func New(baseURL string, timeout time.Duration) *Client {
	return NewWithHTTPClient(baseURL, &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
}

func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// WithSession returns a copy that sends the given session cookie. onUnauthorized
// runs whenever the server rejects that session.
func (c *Client) WithSession(session string, onUnauthorized func()) *Client {
	cp := *c
	cp.session = session
	cp.onUnauthorized = onUnauthorized
	return &cp
}

// Request performs the call and decodes a JSON response into out. Non-JSON
// bodies are stored when out is a *string.
func (c *Client) Request(ctx context.Context, path string, opts Options, out any) error {
	_, err := c.do(ctx, path, opts, out)
	return err
}

func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	return c.Request(ctx, path, Options{Method: http.MethodGet, Query: params}, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Request(ctx, path, Options{Method: http.MethodPost, Body: body}, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Request(ctx, path, Options{Method: http.MethodPut, Body: body}, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Request(ctx, path, Options{Method: http.MethodDelete}, out)
}

func (c *Client) do(ctx context.Context, path string, opts Options, out any) (*http.Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	body, err := encodeBody(opts.Body)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
	}

	target := c.baseURL + path
	if len(opts.Query) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		target += sep + opts.Query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if c.session != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: c.session})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && strings.HasPrefix(path, "/api/") {
		log.Printf("[info] session rejected on %s %s", method, path)
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return resp, ErrUnauthorized
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, fmt.Errorf("read %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, &HTTPError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, data)}
	}

	if out == nil {
		return resp, nil
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if len(bytes.TrimSpace(data)) == 0 {
			return resp, nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return resp, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return resp, nil
	}

	if text, ok := out.(*string); ok {
		*text = string(data)
		return resp, nil
	}
	return resp, fmt.Errorf("%s %s: unexpected content type %q", method, path, resp.Header.Get("Content-Type"))
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.NewReader(b), nil
	case []byte:
		return bytes.NewReader(b), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	}
}

// errorMessage prefers a JSON "error" field, then the raw body, then "HTTP <status>".
func errorMessage(status int, data []byte) string {
	fallback := fmt.Sprintf("HTTP %d", status)

	var payload struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if msg, ok := payload.Error.(string); ok && msg != "" {
			return msg
		}
		return fallback
	}

	if text := strings.TrimSpace(string(data)); text != "" {
		return text
	}
	return fallback
}

func idPath(format string, id uint) string {
	return fmt.Sprintf(format, id)
}
