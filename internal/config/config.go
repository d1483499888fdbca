package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider sets select which adapters back the pipeline
const (
	ProviderGoogle = "google" // Google Speech + Gemini + ElevenLabs
	ProviderOpenAI = "openai" // Whisper + GPT + OpenAI speech
	ProviderMock   = "mock"   // offline mocks for development
)

// Config represents the complete service configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Provider     string             `yaml:"provider"`
	Gemini       GeminiConfig       `yaml:"gemini"`
	GoogleSpeech GoogleSpeechConfig `yaml:"google_speech"`
	ElevenLabs   ElevenLabsConfig   `yaml:"eleven_labs"`
	OpenAI       OpenAIConfig       `yaml:"openai"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Address         string `yaml:"address"`
	Port            int    `yaml:"port"`
	MaxUploadBytes  int64  `yaml:"max_upload_bytes"`
	PipelineTimeout int    `yaml:"pipeline_timeout"` // seconds
	HistoryLimit    int    `yaml:"history_limit"`
}

// GeminiConfig contains Gemini language model configuration
type GeminiConfig struct {
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	Timeout         int     `yaml:"timeout"` // seconds
}

// GoogleSpeechConfig contains Google Cloud Speech-to-Text configuration
type GoogleSpeechConfig struct {
	LanguageCode    string `yaml:"language_code"`
	SampleRate      int    `yaml:"sample_rate"`
	CredentialsFile string `yaml:"credentials_file"`
}

// ElevenLabsConfig contains ElevenLabs speech synthesis configuration
type ElevenLabsConfig struct {
	APIKey       string `yaml:"api_key"`
	APIBaseURL   string `yaml:"api_base_url"`
	VoiceID      string `yaml:"voice_id"`
	ModelID      string `yaml:"model_id"`
	OutputFormat string `yaml:"output_format"`
	Timeout      int    `yaml:"timeout"` // seconds
}

// OpenAIConfig contains OpenAI configuration
type OpenAIConfig struct {
	APIKey             string `yaml:"api_key"`
	BaseURL            string `yaml:"base_url"`
	ChatModel          string `yaml:"chat_model"`
	TranscriptionModel string `yaml:"transcription_model"`
	SpeechModel        string `yaml:"speech_model"`
	Voice              string `yaml:"voice"`
	Timeout            int    `yaml:"timeout"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         "0.0.0.0",
			Port:            8080,
			MaxUploadBytes:  25 << 20,
			PipelineTimeout: 90,
			HistoryLimit:    10,
		},
		Provider: ProviderGoogle,
		GoogleSpeech: GoogleSpeechConfig{
			LanguageCode: "en-US",
			SampleRate:   48000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, a .env file in the working directory and the process environment,
// in that order of increasing precedence.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := config.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyEnv overrides fields from environment variables
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	stringVars := map[string]*string{
		"PROVIDER":                       &c.Provider,
		"SERVER_ADDRESS":                 &c.Server.Address,
		"GEMINI_API_KEY":                 &c.Gemini.APIKey,
		"GEMINI_MODEL":                   &c.Gemini.Model,
		"GOOGLE_SPEECH_LANGUAGE_CODE":    &c.GoogleSpeech.LanguageCode,
		"GOOGLE_APPLICATION_CREDENTIALS": &c.GoogleSpeech.CredentialsFile,
		"ELEVEN_LABS_API_KEY":            &c.ElevenLabs.APIKey,
		"ELEVEN_LABS_API_BASE_URL":       &c.ElevenLabs.APIBaseURL,
		"ELEVEN_LABS_VOICE_ID":           &c.ElevenLabs.VoiceID,
		"ELEVEN_LABS_MODEL_ID":           &c.ElevenLabs.ModelID,
		"ELEVEN_LABS_OUTPUT_FORMAT":      &c.ElevenLabs.OutputFormat,
		"OPENAI_API_KEY":                 &c.OpenAI.APIKey,
		"OPENAI_BASE_URL":                &c.OpenAI.BaseURL,
		"OPENAI_CHAT_MODEL":              &c.OpenAI.ChatModel,
		"OPENAI_VOICE":                   &c.OpenAI.Voice,
		"LOG_LEVEL":                      &c.Logging.Level,
	}
	for key, target := range stringVars {
		if value, ok := lookup(key); ok && value != "" {
			*target = value
		}
	}

	intVars := map[string]*int{
		"PORT":             &c.Server.Port,
		"PIPELINE_TIMEOUT": &c.Server.PipelineTimeout,
		"HISTORY_LIMIT":    &c.Server.HistoryLimit,
	}
	for key, target := range intVars {
		value, ok := lookup(key)
		if !ok || value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*target = parsed
	}

	if value, ok := lookup("MAX_UPLOAD_BYTES"); ok && value != "" {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_UPLOAD_BYTES: %w", err)
		}
		c.Server.MaxUploadBytes = parsed
	}

	if value, ok := lookup("LOG_DEVELOPMENT"); ok && value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid LOG_DEVELOPMENT: %w", err)
		}
		c.Logging.Development = parsed
	}

	return nil
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	switch c.Provider {
	case ProviderGoogle:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("gemini config: api_key is required for provider %q", c.Provider)
		}
		if c.ElevenLabs.APIKey == "" {
			return fmt.Errorf("eleven_labs config: api_key is required for provider %q", c.Provider)
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("openai config: api_key is required for provider %q", c.Provider)
		}
	case ProviderMock:
	default:
		return fmt.Errorf("provider must be one of %q, %q or %q, got %q", ProviderGoogle, ProviderOpenAI, ProviderMock, c.Provider)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.MaxUploadBytes < 1024 {
		return fmt.Errorf("max_upload_bytes must be at least 1024 bytes, got %d", s.MaxUploadBytes)
	}

	if s.PipelineTimeout < 1 {
		return fmt.Errorf("pipeline_timeout must be at least 1 second, got %d", s.PipelineTimeout)
	}

	if s.HistoryLimit < 0 {
		return fmt.Errorf("history_limit cannot be negative, got %d", s.HistoryLimit)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("level must be one of debug, info, warn, error, got %q", l.Level)
	}
}

// ListenAddress is the host:port the HTTP server binds to
func (s ServerConfig) ListenAddress() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}
