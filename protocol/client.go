package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Health is the one-shot status summary the ai-server exposes on /health.
type Health struct {
	LLMEndpoint  string `json:"llm_endpoint"`
	LLMModel     string `json:"llm_model"`
	WhisperModel string `json:"whisper_model"`
	PiperBin     string `json:"piper_bin"`
	LLMOK        bool   `json:"llm_ok"`
	Device       string `json:"device"`
}

// Client talks to the ai-server's plain HTTP endpoints: the health fetch
// and the outbound event drop-box. The live event stream is consumed
// separately by the SSE source.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the ai-server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Health fetches the server's current status summary.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health fetch failed: %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var h Health
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// clientEvent is the body of the POST /event drop-box the server exposes
// for UI-originated notices.
type clientEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Announce posts a "UI opened" notice so the event feed shows when a
// console came online. Failures are reported to the caller and nothing
// else; the console works fine without the notice landing.
func (c *Client) Announce(ctx context.Context, text string) error {
	body, err := json.Marshal(clientEvent{Type: "client", Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/event", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("announce failed: %s", resp.Status)
	}
	return nil
}

// BaseURL returns the server address the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}
