package tts

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/speakcoach/domain/repositories"
)

// MockTextToSpeech is a placeholder implementation for text-to-speech
type MockTextToSpeech struct {
	logger *zap.Logger
}

// NewMockTextToSpeech creates a new mock text-to-speech service
func NewMockTextToSpeech(logger *zap.Logger) repositories.TextToSpeech {
	return &MockTextToSpeech{
		logger: logger,
	}
}

// ConvertTextToSpeech implements repositories.TextToSpeech
func (t *MockTextToSpeech) ConvertTextToSpeech(ctx context.Context, text string, voice repositories.VoiceConfig) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	t.logger.Info("Processing text-to-speech",
		zap.Int("textLength", len(text)),
		zap.Float64("speed", voice.Speed))

	// Mock audio data - generate based on text length
	audioSize := len(text) * 100 // Simulate audio size
	mockAudio := make([]byte, audioSize)

	// Fill with some pattern to simulate audio data
	for i := range mockAudio {
		mockAudio[i] = byte(i % 256)
	}

	return mockAudio, nil
}
