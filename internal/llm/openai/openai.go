package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"antbot/internal/domain"
)

const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"

	defaultBaseURL    = "https://api.openai.com/v1"
	defaultAPIVersion = "2024-02-15-preview"
)

// Client is a chat completions client for Azure OpenAI deployments and OpenAI-compatible APIs.
type Client struct {
	provider   string
	baseURL    string
	apiKey     string
	apiVersion string
	client     *http.Client
}

// Config configures the chat completions client.
type Config struct {
	Provider   string
	BaseURL    string
	APIKey     string
	APIVersion string
	Timeout    time.Duration
}

// NewClient creates a client. Azure requires an endpoint; OpenAI defaults to the public API.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing API key")
	}
	switch cfg.Provider {
	case ProviderAzure, "":
		cfg.Provider = ProviderAzure
		if cfg.BaseURL == "" {
			return nil, errors.New("missing azure endpoint")
		}
		if cfg.APIVersion == "" {
			cfg.APIVersion = defaultAPIVersion
		}
	case ProviderOpenAI:
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultBaseURL
		}
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	// Timeout bounds the whole exchange, body read included; callers may also bound it through ctx.
	hc := &http.Client{}
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	}
	return &Client{
		provider:   cfg.Provider,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		apiVersion: cfg.APIVersion,
		client:     hc,
	}, nil
}

type chatRequest struct {
	Model       string           `json:"model,omitempty"`
	Messages    []domain.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Code    any    `json:"code"`
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one chat completion request and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	body := chatRequest{
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if c.provider == ProviderOpenAI {
		body.Model = req.Model
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(req.Model), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.provider == ProviderAzure {
		httpReq.Header.Set("api-key", c.apiKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(payload, &errResp) == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("api error %d (%v): %s", resp.StatusCode, errCode(errResp), errResp.Error.Message)
		}
		return "", fmt.Errorf("api error: %s", resp.Status)
	}

	var out chatResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == nil {
		return "", errors.New("no completion returned")
	}
	return *out.Choices[0].Message.Content, nil
}

func (c *Client) endpoint(model string) string {
	if c.provider == ProviderAzure {
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			c.baseURL, url.PathEscape(model), url.QueryEscape(c.apiVersion))
	}
	return c.baseURL + "/chat/completions"
}

func errCode(e errorResponse) any {
	if e.Error.Code != nil {
		return e.Error.Code
	}
	return e.Error.Type
}
