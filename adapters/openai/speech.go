package openai

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/speakcoach/domain/repositories"
)

const (
	minSpeechSpeed = 0.25
	maxSpeechSpeed = 4.0
)

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
}

// SpeechTTS implements TextToSpeech with the audio speech endpoint
type SpeechTTS struct {
	client *Client
}

var _ repositories.TextToSpeech = (*SpeechTTS)(nil)

// NewSpeechTTS creates a speech synthesis adapter
func NewSpeechTTS(client *Client) *SpeechTTS {
	return &SpeechTTS{client: client}
}

// ConvertTextToSpeech synthesizes MP3 audio at the requested speed
func (s *SpeechTTS) ConvertTextToSpeech(ctx context.Context, text string, voice repositories.VoiceConfig) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	speed := voice.Speed
	switch {
	case speed == 0:
		speed = 1.0
	case speed < minSpeechSpeed:
		speed = minSpeechSpeed
	case speed > maxSpeechSpeed:
		speed = maxSpeechSpeed
	}

	audio, err := s.client.postJSON(ctx, "/audio/speech", speechRequest{
		Model:          s.client.config.SpeechModel,
		Input:          text,
		Voice:          s.client.config.Voice,
		ResponseFormat: "mp3",
		Speed:          speed,
	})
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio returned")
	}

	s.client.logger.Info("Synthesized speech",
		zap.String("voice", s.client.config.Voice),
		zap.Float64("speed", speed),
		zap.Int("totalBytes", len(audio)))

	return audio, nil
}
