// Package openai implements the speech-to-text, chat and speech synthesis
// ports on top of the OpenAI REST API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL            = "https://api.openai.com/v1"
	defaultChatModel          = "gpt-4o"
	defaultTranscriptionModel = "whisper-1"
	defaultSpeechModel        = "tts-1"
	defaultVoice              = "nova"
	defaultLanguage           = "en"
	defaultTimeoutSeconds     = 60
)

// Config holds OpenAI client configuration
type Config struct {
	APIKey             string
	BaseURL            string // e.g. a proxy; defaults to the public API
	ChatModel          string // e.g., "gpt-4o" (default)
	TranscriptionModel string // e.g., "whisper-1" (default)
	SpeechModel        string // e.g., "tts-1" (default)
	Voice              string // e.g., "nova" (default)
	Language           string // transcription language hint, "en" by default
	TimeoutSeconds     int
}

// Client is an OpenAI API client shared by the adapters in this package
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// ValidateConfig validates the Config
func ValidateConfig(config Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required")
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	return nil
}

// NewClient creates a new OpenAI client
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.ChatModel == "" {
		config.ChatModel = defaultChatModel
	}
	if config.TranscriptionModel == "" {
		config.TranscriptionModel = defaultTranscriptionModel
	}
	if config.SpeechModel == "" {
		config.SpeechModel = defaultSpeechModel
	}
	if config.Voice == "" {
		config.Voice = defaultVoice
	}
	if config.Language == "" {
		config.Language = defaultLanguage
	}
	if config.TimeoutSeconds == 0 {
		config.TimeoutSeconds = defaultTimeoutSeconds
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		logger: logger,
	}, nil
}

// apiError is the error envelope returned by the API
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// post sends body to path and returns the raw response body of a 200
func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// postJSON marshals payload and posts it as JSON
func (c *Client) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.post(ctx, path, "application/json", bytes.NewReader(jsonBody))
}
