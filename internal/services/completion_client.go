package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPCompletionClient is an HTTP implementation of the CompletionClient
// interface, talking to a text-completion sidecar.
type HTTPCompletionClient struct {
	url    string
	client *http.Client
}

// NewHTTPCompletionClient creates a new HTTPCompletionClient.
func NewHTTPCompletionClient(url string, timeout time.Duration) *HTTPCompletionClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPCompletionClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type completionRequest struct {
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Text string `json:"text"`
}

// Complete posts the prompt to the sidecar and returns its text output.
func (c *HTTPCompletionClient) Complete(ctx context.Context, prompt string) (string, error) {
	requestBody, err := json.Marshal(completionRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/completion", bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get completion: status code %d", resp.StatusCode)
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	return out.Text, nil
}
