// Package genai is the thin client for the generative text/image service the
// agents call. One request, one reply, no retries; failures surface to the
// caller as tagged agent results.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generateCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "architect_generate_calls_total",
			Help: "Total number of generative service calls",
		},
		[]string{"model", "status"},
	)

	generateDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "architect_generate_duration_seconds",
			Help:    "Generative service call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model"},
	)
)

// Config configures the client.
type Config struct {
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// Client calls the generative service over HTTP.
type Client struct {
	endpoint string
	model    string
	apiKey   string
	http     *http.Client
}

// Generator is the text-generation surface capabilities depend on.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// New creates a client. Timeout defaults to 60s.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Generate sends a prompt and returns the reply text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	generateDurationSeconds.WithLabelValues(c.model).Observe(time.Since(start).Seconds())
	if err != nil {
		generateCallsTotal.WithLabelValues(c.model, "error").Inc()
		return "", fmt.Errorf("call generative service: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		generateCallsTotal.WithLabelValues(c.model, "error").Inc()
		return "", fmt.Errorf("read generate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		generateCallsTotal.WithLabelValues(c.model, "error").Inc()
		return "", fmt.Errorf("generative service returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		generateCallsTotal.WithLabelValues(c.model, "error").Inc()
		return "", fmt.Errorf("parse generate response: %w", err)
	}
	if out.Error != "" {
		generateCallsTotal.WithLabelValues(c.model, "error").Inc()
		return "", fmt.Errorf("generative service error: %s", out.Error)
	}

	generateCallsTotal.WithLabelValues(c.model, "success").Inc()
	return out.Text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
