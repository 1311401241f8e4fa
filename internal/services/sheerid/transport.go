package sheerid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Response is one decoded remote exchange.
type Response struct {
	StatusCode int
	Fields     map[string]any
}

// Transport performs authenticated HTTP exchanges with the verification
// service. How the session was obtained (cookies, headers, proxy) is opaque
// to the client; network failures surface as raw errors and are classified
// by the caller.
type Transport interface {
	// Do sends a JSON request and decodes the JSON response.
	Do(ctx context.Context, method, url string, body any) (*Response, error)
	// Upload sends raw bytes to a presigned URL.
	Upload(ctx context.Context, url, contentType string, payload []byte) error
}

// HTTPTransport is the default Transport over net/http. Header entries are
// copied onto every request, which is how session cookies or bearer tokens
// ride along.
type HTTPTransport struct {
	Client *http.Client
	Header http.Header
}

func (t *HTTPTransport) Do(ctx context.Context, method, url string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for key, values := range t.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := t.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		fields = map[string]any{"raw": strings.TrimSpace(string(raw))}
	}
	return &Response{StatusCode: resp.StatusCode, Fields: fields}, nil
}

func (t *HTTPTransport) Upload(ctx context.Context, url, contentType string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &uploadStatusError{status: resp.StatusCode}
	}
	return nil
}

func (t *HTTPTransport) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return http.DefaultClient
}

type uploadStatusError struct {
	status int
}

func (e *uploadStatusError) Error() string {
	return fmt.Sprintf("upload returned status %d", e.status)
}
