// Package inference holds HTTP clients for the model serving endpoints
// the pipeline stages invoke.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scanpipe/scanpipe/internal/faults"
)

// Config holds the model serving endpoints.
type Config struct {
	SegmenterURL string        `yaml:"segmenter_url"`
	VLMURL       string        `yaml:"vlm_url"`
	LLMURL       string        `yaml:"llm_url"`
	KnowledgeURL string        `yaml:"knowledge_url"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Client is a JSON-over-HTTP client shared by the capability wrappers.
type Client struct {
	httpClient *http.Client
}

// NewClient creates an inference client with the given per-call timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 300 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// errorBody is the envelope model servers return on failure.
type errorBody struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// postJSON invokes an endpoint and decodes the response into out.
// Failures come back classified so the retry executor can decide.
func (c *Client) postJSON(ctx context.Context, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return faults.Permanentf("marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return faults.Permanentf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return faults.Wrap("", 0, fmt.Errorf("model call: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return faults.Wrap("", 0, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		msg := eb.Message
		if msg == "" {
			msg = string(body)
		}
		return faults.Wrap(eb.ErrorCode, resp.StatusCode,
			fmt.Errorf("http %d: %s", resp.StatusCode, msg))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return faults.Permanentf("parse response: %v", err)
	}
	return nil
}

// Close cleans up idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
