package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"botvac-bridge/internal/utils"
)

const DefaultTimeout = 10 * time.Second

// Response is a fully read HTTP reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// StatusError reports a reply outside the 2xx range.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed with status %d: %s", e.Method, e.URL, e.StatusCode, string(e.Body))
}

type HTTPTransport struct {
	client  *http.Client
	headers map[string]string
}

// NewHTTPTransport creates a transport with a bounded timeout. A nil tlsConfig
// keeps the default system trust store.
func NewHTTPTransport(timeout time.Duration, tlsConfig *tls.Config) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := &http.Client{Timeout: timeout}
	if tlsConfig != nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = tlsConfig
		client.Transport = tr
	}
	return &HTTPTransport{
		client: client,
		headers: map[string]string{
			"User-Agent": "botvac-bridge/1.0",
		},
	}
}

// NewWithClient wraps an existing client, used by tests against httptest servers.
func NewWithClient(client *http.Client) *HTTPTransport {
	return &HTTPTransport{client: client, headers: map[string]string{}}
}

// Post sends a JSON body.
func (ht *HTTPTransport) Post(ctx context.Context, url string, header http.Header, payload []byte) (*Response, error) {
	return ht.Do(ctx, http.MethodPost, url, header, payload)
}

// Get sends a body-less request.
func (ht *HTTPTransport) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	return ht.Do(ctx, http.MethodGet, url, header, nil)
}

// Do performs one round trip and reads the whole body. Replies outside 2xx
// are returned as *StatusError.
func (ht *HTTPTransport) Do(ctx context.Context, method, url string, header http.Header, payload []byte) (*Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	for key, value := range ht.headers {
		req.Header.Set(key, value)
	}
	for key, values := range header {
		for i, value := range values {
			if i == 0 {
				req.Header.Set(key, value)
			} else {
				req.Header.Add(key, value)
			}
		}
	}
	if payload != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	utils.Logger.Debugf("[HTTP Transport] %s %s (%d bytes)", method, url, len(payload))

	resp, err := ht.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read HTTP response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Method: method, URL: url, StatusCode: resp.StatusCode, Body: respBody}
	}

	utils.Logger.Debugf("[HTTP Transport] %s %s -> %d", method, url, resp.StatusCode)
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

func (ht *HTTPTransport) SetHeader(key, value string) {
	ht.headers[key] = value
}

func (ht *HTTPTransport) Close() error {
	ht.client.CloseIdleConnections()
	return nil
}
