package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// OAuthOpts configures a client-credentials token source for the endpoint.
type OAuthOpts struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// HTTPOpts holds parameters for creating an HTTPClient.
type HTTPOpts struct {
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
	OAuth    *OAuthOpts
}

// HTTPClient is a Generator backed by an OpenAI-compatible chat completions
// endpoint.
type HTTPClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ Generator = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient. With OAuth set, requests carry a
// bearer token fetched through the client-credentials flow instead of APIKey.
func NewHTTPClient(opts HTTPOpts) (*HTTPClient, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("generate: endpoint is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("generate: model is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	hc := &http.Client{Timeout: timeout}
	if opts.OAuth != nil {
		if opts.OAuth.TokenURL == "" || opts.OAuth.ClientID == "" {
			return nil, fmt.Errorf("generate: oauth token_url and client_id are required")
		}
		cc := &clientcredentials.Config{
			ClientID:     opts.OAuth.ClientID,
			ClientSecret: opts.OAuth.ClientSecret,
			TokenURL:     opts.OAuth.TokenURL,
			Scopes:       opts.OAuth.Scopes,
		}
		hc = cc.Client(context.Background())
		hc.Timeout = timeout
	} else if opts.APIKey == "" {
		return nil, fmt.Errorf("generate: api key or oauth is required")
	}

	return &HTTPClient{
		endpoint:   opts.Endpoint,
		model:      opts.Model,
		apiKey:     opts.APIKey,
		httpClient: hc,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate posts the rendered prompt and returns the first choice's content.
func (c *HTTPClient) Generate(ctx context.Context, gc Context) (string, error) {
	temperature := 0.4
	if gc.Purpose == PurposeContinuation || gc.Purpose == PurposeFieldDetection {
		temperature = 0
	}
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt(gc.Purpose)},
			{Role: "user", Content: UserPrompt(gc)},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("generate: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("generate: new request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("generate: endpoint error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("generate: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("generate: response has no choices")
	}
	return out.Choices[0].Message.Content, nil
}
