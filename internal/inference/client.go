package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds the inference client configuration
type Config struct {
	OllamaURL   string        `yaml:"ollama_url"`   // Default: http://localhost:11434
	Model       string        `yaml:"model"`        // Default: qwen2.5-coder:7b
	ContextSize int           `yaml:"context_size"` // Default: 8192
	Temperature float64       `yaml:"temperature"`  // Default: 0.7, used when a call passes none
	Timeout     time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		OllamaURL:   "http://localhost:11434",
		Model:       "qwen2.5-coder:7b",
		ContextSize: 8192,
		Temperature: 0.7,
		Timeout:     5 * time.Minute, // Local models can be slow to load
	}
}

// Client is a minimal Ollama client
type Client struct {
	config     *Config
	httpClient *http.Client
}

// NewClient creates a new inference client
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Model returns the configured model name
func (c *Client) Model() string { return c.config.Model }

// GenerateRequest represents a request to Ollama
type GenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// GenerateResponse represents a response from Ollama
type GenerateResponse struct {
	Model              string    `json:"model"`
	CreatedAt          time.Time `json:"created_at"`
	Response           string    `json:"response"`
	Done               bool      `json:"done"`
	TotalDuration      int64     `json:"total_duration,omitempty"`
	LoadDuration       int64     `json:"load_duration,omitempty"`
	PromptEvalCount    int       `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64     `json:"prompt_eval_duration,omitempty"`
	EvalCount          int       `json:"eval_count,omitempty"`
	EvalDuration       int64     `json:"eval_duration,omitempty"`
}

// InferenceResult holds the final result of an inference call
type InferenceResult struct {
	Response     string
	TokensPerSec float64
	Latency      time.Duration
}

// Prompt is one non-streaming generation call
type Prompt struct {
	System string
	Text   string
	// Temperature is the sampling temperature; zero or less uses the
	// configured default
	Temperature float64
}

// GenerateSync performs a synchronous (non-streaming) generation
func (c *Client) GenerateSync(ctx context.Context, prompt Prompt) (*InferenceResult, error) {
	startTime := time.Now()

	temperature := prompt.Temperature
	if temperature <= 0 {
		temperature = c.config.Temperature
	}

	req := GenerateRequest{
		Model:  c.config.Model,
		Prompt: prompt.Text,
		System: prompt.System,
		Stream: false,
		Options: map[string]interface{}{
			"num_ctx":     c.config.ContextSize,
			"temperature": temperature,
		},
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/generate", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var genResp GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	latency := time.Since(startTime)
	tokensPerSec := 0.0
	if genResp.EvalDuration > 0 && genResp.EvalCount > 0 {
		tokensPerSec = float64(genResp.EvalCount) / (float64(genResp.EvalDuration) / 1e9)
	}

	return &InferenceResult{
		Response:     genResp.Response,
		TokensPerSec: tokensPerSec,
		Latency:      latency,
	}, nil
}

// ListModels lists available models
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	models := make([]string, len(result.Models))
	for i, m := range result.Models {
		models[i] = m.Name
	}

	return models, nil
}

// PullProgress is one status line of a model pull
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}

// PullModel pulls a model from the Ollama registry. progress, if non-nil, is
// called for each status line.
func (c *Client) PullModel(ctx context.Context, modelName string, progress func(PullProgress)) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/pull", map[string]string{"name": modelName})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var p PullProgress
		if err := json.Unmarshal(scanner.Bytes(), &p); err != nil {
			continue
		}
		if progress != nil {
			progress(p)
		}
	}

	return scanner.Err()
}

// do sends payload (JSON encoded, if non-nil) to path. Any status other than
// 200 is returned as an error carrying the response body.
func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.config.OllamaURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return resp, nil
}
