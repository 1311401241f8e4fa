// Package docgen renders verification documents through an external render
// service. The workflow runner calls it synchronously before an upload step;
// any failure here is a protocol error, never retried, because regenerating
// the same document cannot fix a broken template or request.
package docgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"veriflow/internal/config"
	"veriflow/internal/services"
	"veriflow/internal/workflow"
)

const userAgent = "Veriflow-Go/0.1.0"

// Client implements the runner's DocumentProvider against an HTTP render
// service: POST /render with the template key and flattened subject fields,
// PNG bytes back.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient builds a render client from configuration.
func NewClient(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.DocGen.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.DocGen.BaseURL, "/"),
		apiKey:  cfg.DocGen.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Generate renders the named template with the given field values.
func (c *Client) Generate(ctx context.Context, templateKey string, fields map[string]string) (*workflow.Document, error) {
	payload, err := json.Marshal(map[string]any{
		"template": templateKey,
		"fields":   fields,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrProtocol, "", "render", "encode render request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(payload))
	if err != nil {
		return nil, services.Wrap(services.ErrProtocol, "", "render", "build render request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrProtocol, "", "render", "render service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, services.Wrap(services.ErrProtocol, "", "render",
			fmt.Sprintf("render service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrProtocol, "", "render", "read rendered document", err)
	}
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrProtocol, "", "render", "render service returned an empty document", nil)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	return &workflow.Document{
		FileName:    fileNameFor(templateKey, contentType),
		ContentType: contentType,
		Bytes:       data,
	}, nil
}

func fileNameFor(templateKey, contentType string) string {
	ext := ".png"
	switch {
	case strings.Contains(contentType, "pdf"):
		ext = ".pdf"
	case strings.Contains(contentType, "jpeg"):
		ext = ".jpg"
	}
	key := strings.TrimSpace(templateKey)
	if key == "" {
		key = "document"
	}
	return key + ext
}
