// Package provider implements the classifier port over a generic HTTP
// classification endpoint. The adapter only translates the wire protocol;
// timeouts, retries, and circuit breaking live in the resilience layer.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/virtualsteve-star/stinger-sub004/internal/port/outbound"
	"github.com/virtualsteve-star/stinger-sub004/internal/resilience"
)

// maxResponseBytes bounds how much of an upstream reply is read.
const maxResponseBytes = 1 << 20

// Config holds the provider connection settings. The API key arrives from
// the secrets accessor; it is never logged.
type Config struct {
	// BaseURL is the provider endpoint, e.g. "https://api.example.com".
	BaseURL string
	// APIKey authenticates requests. Empty is a configuration error
	// surfaced by the loader, never a runtime detector error.
	APIKey string
	// HTTPTimeout bounds the transport; per-attempt deadlines from the
	// resilience layer are usually shorter.
	HTTPTimeout time.Duration
}

// Client calls the provider's /v1/classify endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a provider client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider: base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider: missing API key")
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// classifyRequest is the provider wire request.
type classifyRequest struct {
	Task    string `json:"task"`
	Content string `json:"content"`
}

// classifyResponse is the provider wire response.
type classifyResponse struct {
	Flagged    bool           `json:"flagged"`
	Confidence float64        `json:"confidence"`
	Categories []string       `json:"categories,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// Classify implements outbound.Classifier.
func (c *Client) Classify(ctx context.Context, task, content string) (*outbound.Classification, error) {
	body, err := json.Marshal(classifyRequest{Task: task, Content: content})
	if err != nil {
		return nil, fmt.Errorf("provider: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/classify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("provider: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("provider: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("provider: read response: %w", err)
	}

	if err := classifyStatus(resp.StatusCode, data); err != nil {
		return nil, err
	}

	var out classifyResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", resilience.ErrMalformedResponse, err)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v out of range", resilience.ErrMalformedResponse, out.Confidence)
	}

	return &outbound.Classification{
		Flagged:    out.Flagged,
		Confidence: out.Confidence,
		Categories: out.Categories,
		Detail:     out.Detail,
	}, nil
}

// Ping implements outbound.Classifier.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("provider: build ping: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return classifyStatus(resp.StatusCode, nil)
	}
	return nil
}

// classifyStatus maps an HTTP status to the resilience failure classes:
// 5xx and 429 are upstream failures (trip the breaker), any other 4xx is
// a configuration error (surfaced, never trips).
func classifyStatus(status int, body []byte) error {
	switch {
	case status < 400:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return &resilience.UpstreamError{Status: status, Msg: truncate(body, 200)}
	default:
		return &resilience.ConfigError{Status: status, Msg: truncate(body, 200)}
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

// Compile-time interface verification.
var _ outbound.Classifier = (*Client)(nil)
