package repositories

import "context"

// TextToSpeech abstracts speech synthesis services
type TextToSpeech interface {
	// ConvertTextToSpeech synthesizes the full reply audio
	ConvertTextToSpeech(ctx context.Context, text string, voice VoiceConfig) ([]byte, error)
}

// VoiceConfig tunes a single synthesis request
type VoiceConfig struct {
	// Speed is a multiplier where 1.0 is the provider's normal rate
	Speed float64 `json:"speed"`
}
