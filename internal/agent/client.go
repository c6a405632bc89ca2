package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"novelforge/internal/core"
)

// ProviderConfig selects a wire format and endpoint for one model.
type ProviderConfig struct {
	Provider string // "openai", "anthropic", or "custom"
	BaseURL  string
	Model    string
	APIKey   string
}

// Client is the HTTP transport to the model provider. It carries an
// optional second configuration for the planning model; when that is absent
// planning requests fall back to the main model.
type Client struct {
	main       ProviderConfig
	planning   *ProviderConfig
	httpClient *http.Client
	maxRetries int
	limiter    *rate.Limiter
	logger     *slog.Logger
}

type Option func(*Client)

func WithRetry(maxRetries int) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		transport := c.httpClient.Transport
		c.httpClient = &http.Client{
			Timeout:   timeout,
			Transport: transport,
		}
	}
}

func WithRateLimit(requestsPerMinute, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
	}
}

func WithPlanningModel(cfg ProviderConfig) Option {
	return func(c *Client) {
		c.planning = &cfg
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(cfg ProviderConfig, opts ...Option) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	c := &Client{
		main: cfg,
		httpClient: &http.Client{
			Timeout:   120 * time.Second,
			Transport: transport,
		},
		maxRetries: 3,
		limiter:    rate.NewLimiter(rate.Limit(1), 1),
		logger:     slog.Default().With("component", "llm_client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger.Debug("LLM client initialized",
		"provider", c.main.Provider,
		"base_url", c.main.BaseURL,
		"model", c.main.Model,
		"has_planning_model", c.planning != nil,
		"max_retries", c.maxRetries)

	return c
}

// ChatComplete sends the conversation and returns the raw completion text.
// Transport-level failures are retried with linear backoff; the returned
// error is always a *core.TransportError once retries are exhausted.
func (c *Client) ChatComplete(ctx context.Context, messages []Message, maxTokens int, temperature float64, usePlanningModel bool) (*Result, error) {
	cfg := c.main
	if usePlanningModel && c.planning != nil {
		cfg = *c.planning
		if cfg.APIKey == "" {
			cfg.APIKey = c.main.APIKey
		}
	}

	requestID := uuid.NewString()
	startTime := time.Now()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &core.TransportError{Provider: cfg.Provider, Err: fmt.Errorf("rate limit wait: %w", err)}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, &core.TransportError{Provider: cfg.Provider, Err: ctx.Err()}
			}
		}

		attemptStart := time.Now()
		c.logger.Debug("sending completion request",
			"request_id", requestID,
			"attempt", attempt,
			"provider", cfg.Provider,
			"model", cfg.Model,
			"message_count", len(messages),
			"max_tokens", maxTokens,
			"planning", usePlanningModel)

		result, err := c.doRequest(ctx, cfg, messages, maxTokens, temperature)
		if err == nil {
			c.logger.Info("completion request successful",
				"request_id", requestID,
				"attempt", attempt,
				"duration_ms", time.Since(attemptStart).Milliseconds(),
				"response_length", len(result.Content),
				"total_tokens", result.Usage.TotalTokens)
			return result, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("completion request failed, will retry",
			"request_id", requestID,
			"attempt", attempt,
			"duration_ms", time.Since(attemptStart).Milliseconds(),
			"error", err)
	}

	c.logger.Error("completion request failed after max retries",
		"request_id", requestID,
		"max_retries", c.maxRetries,
		"total_duration_ms", time.Since(startTime).Milliseconds(),
		"last_error", lastErr)

	if te, ok := lastErr.(*core.TransportError); ok {
		return nil, te
	}
	return nil, &core.TransportError{Provider: cfg.Provider, Err: lastErr}
}

func (c *Client) doRequest(ctx context.Context, cfg ProviderConfig, messages []Message, maxTokens int, temperature float64) (*Result, error) {
	if cfg.Provider == "anthropic" {
		return c.doAnthropicRequest(ctx, cfg, messages, maxTokens, temperature)
	}
	// "custom" providers speak the OpenAI wire format.
	return c.doOpenAIRequest(ctx, cfg, messages, maxTokens, temperature)
}

func (c *Client) doOpenAIRequest(ctx context.Context, cfg ProviderConfig, messages []Message, maxTokens int, temperature float64) (*Result, error) {
	requestBody := map[string]any{
		"model":       cfg.Model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}

	body, err := json.Marshal(requestBody)
	if err != nil {
		return nil, &core.TransportError{Provider: cfg.Provider, Err: fmt.Errorf("marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &core.TransportError{Provider: cfg.Provider, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &core.TransportError{Provider: cfg.Provider, Err: fmt.Errorf("making request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.TransportError{Provider: cfg.Provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &core.TransportError{
			Provider:   cfg.Provider,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("API error: %s", truncate(string(respBody), 500)),
		}
	}

	var response struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage Usage `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, &core.TransportError{Provider: cfg.Provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("parsing response envelope: %w", err)}
	}
	if len(response.Choices) == 0 {
		return nil, &core.TransportError{Provider: cfg.Provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("no choices in response")}
	}

	return &Result{
		Content: response.Choices[0].Message.Content,
		Usage:   response.Usage,
		Model:   response.Model,
	}, nil
}

func (c *Client) doAnthropicRequest(ctx context.Context, cfg ProviderConfig, messages []Message, maxTokens int, temperature float64) (*Result, error) {
	// Anthropic takes the system prompt as a top-level field, not a message.
	var system string
	rest := messages
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		system = messages[0].Content
		rest = messages[1:]
	}

	requestBody := map[string]any{
		"model":       cfg.Model,
		"messages":    rest,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}
	if system != "" {
		requestBody["system"] = system
	}

	body, err := json.Marshal(requestBody)
	if err != nil {
		return nil, &core.TransportError{Provider: cfg.Provider, Err: fmt.Errorf("marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &core.TransportError{Provider: cfg.Provider, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &core.TransportError{Provider: cfg.Provider, Err: fmt.Errorf("making request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.TransportError{Provider: cfg.Provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &core.TransportError{
			Provider:   cfg.Provider,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("API error: %s", truncate(string(respBody), 500)),
		}
	}

	var response struct {
		Model   string `json:"model"`
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, &core.TransportError{Provider: cfg.Provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("parsing response envelope: %w", err)}
	}
	if len(response.Content) == 0 {
		return nil, &core.TransportError{Provider: cfg.Provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("no content in response")}
	}

	return &Result{
		Content: response.Content[0].Text,
		Usage: Usage{
			PromptTokens:     response.Usage.InputTokens,
			CompletionTokens: response.Usage.OutputTokens,
			TotalTokens:      response.Usage.InputTokens + response.Usage.OutputTokens,
		},
		Model: response.Model,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
