// internal/common/genai/client.go
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"biolens-workers/internal/common/errors"
	"biolens-workers/internal/common/logger"
)

// Generator is the capability the orchestrator depends on. A test double can
// be substituted without any global state.
type Generator interface {
	Generate(ctx context.Context, prompt, systemInstruction string) (*Result, error)
}

// Result is the minimal response contract the orchestrator interprets.
type Result struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Metadata carries provider-reported processing details.
type Metadata struct {
	ModelUsed        string `json:"model_used"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	TokensUsed       int    `json:"tokens_used,omitempty"`
}

// Config holds the GenAI provider settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// Client calls the external generative-AI service over HTTP.
type Client struct {
	config *Config
	client *http.Client
	logger logger.Logger
}

func NewClient(config *Config, log logger.Logger) *Client {
	return &Client{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		logger: log.WithFields(map[string]interface{}{
			"component": "genai-client",
		}),
	}
}

type generateRequest struct {
	Model             string  `json:"model"`
	Prompt            string  `json:"prompt"`
	SystemInstruction string  `json:"system_instruction,omitempty"`
	MaxTokens         int     `json:"max_tokens"`
	Temperature       float64 `json:"temperature"`
}

type generateResponse struct {
	Success  bool     `json:"success"`
	Content  string   `json:"content"`
	Error    string   `json:"error,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// Generate performs one attempt against the provider. A success:false body
// and a transport failure are surfaced identically, as categorized errors;
// the retry policy lives with the caller.
func (c *Client) Generate(ctx context.Context, prompt, systemInstruction string) (*Result, error) {
	body, err := json.Marshal(generateRequest{
		Model:             c.config.Model,
		Prompt:            prompt,
		SystemInstruction: systemInstruction,
		MaxTokens:         c.config.MaxTokens,
		Temperature:       c.config.Temperature,
	})
	if err != nil {
		return nil, errors.NewUnknownError(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/ai/generate", bytes.NewBuffer(body))
	if err != nil {
		return nil, errors.NewUnknownError(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.NewNetworkError(err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	var apiResp generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&apiResp); err != nil {
		return nil, errors.NewUnknownError(fmt.Errorf("decode response: %w", err))
	}

	if !apiResp.Success {
		return nil, c.categorizeInBand(apiResp.Error)
	}

	if apiResp.Metadata.ProcessingTimeMs == 0 {
		apiResp.Metadata.ProcessingTimeMs = time.Since(start).Milliseconds()
	}
	if apiResp.Metadata.ModelUsed == "" {
		apiResp.Metadata.ModelUsed = c.config.Model
	}

	c.logger.Debug("generation completed", map[string]interface{}{
		"modelUsed":        apiResp.Metadata.ModelUsed,
		"processingTimeMs": apiResp.Metadata.ProcessingTimeMs,
		"tokensUsed":       apiResp.Metadata.TokensUsed,
	})

	return &Result{Content: apiResp.Content, Metadata: apiResp.Metadata}, nil
}

func (c *Client) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.NewAuthenticationError(fmt.Sprintf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.NewRateLimitError(fmt.Sprintf("status %d", resp.StatusCode), parseRetryAfter(resp))
	case resp.StatusCode >= 500:
		return errors.NewServiceUnavailableError(fmt.Sprintf("status %d", resp.StatusCode))
	default:
		return errors.NewUnknownError(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
}

// categorizeInBand maps a provider-reported error string onto the same
// taxonomy used for transport failures.
func (c *Client) categorizeInBand(message string) error {
	if message == "" {
		message = "provider reported failure without detail"
	}
	inBand := fmt.Errorf("provider error: %s", message)
	switch errors.Categorize(inBand) {
	case errors.CategoryAuthentication:
		return errors.NewAuthenticationError(message)
	case errors.CategoryRateLimit:
		return errors.NewRateLimitError(message, 0)
	case errors.CategoryServiceUnavailable:
		return errors.NewServiceUnavailableError(message)
	case errors.CategoryNetwork:
		return errors.NewNetworkError(inBand)
	default:
		return errors.NewUnknownError(inBand)
	}
}

func parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
