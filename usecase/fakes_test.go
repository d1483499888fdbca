package usecase

import (
	"context"
	"errors"

	"github.com/satriahrh/speakcoach/domain/repositories"
)

type fakeSTT struct {
	text   string
	err    error
	calls  int
	config repositories.AudioConfig
}

func (f *fakeSTT) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	f.calls++
	f.config = config
	return f.text, f.err
}

type fakeLLM struct {
	jsonOut      string
	jsonErr      error
	jsonCalls    int
	systemPrompt string
	prompt       string

	reply     string
	chatErr   error
	chatCalls int
	history   []repositories.ChatMessage
	sent      repositories.ChatMessage
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, systemPrompt, prompt string) (string, error) {
	f.jsonCalls++
	f.systemPrompt = systemPrompt
	f.prompt = prompt
	return f.jsonOut, f.jsonErr
}

func (f *fakeLLM) GenerateChat(ctx context.Context, systemPrompt string, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	f.chatCalls++
	f.systemPrompt = systemPrompt
	f.history = history
	return &fakeSession{llm: f}, nil
}

type fakeSession struct {
	llm *fakeLLM
}

func (s *fakeSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	s.llm.sent = message
	if s.llm.chatErr != nil {
		return repositories.ChatMessage{}, s.llm.chatErr
	}
	return repositories.ChatMessage{Role: repositories.AssistantRole, Content: s.llm.reply}, nil
}

func (s *fakeSession) History() ([]repositories.ChatMessage, error) {
	return s.llm.history, nil
}

type fakeTTS struct {
	audio []byte
	err   error
	calls int
	voice repositories.VoiceConfig
	text  string
}

func (f *fakeTTS) ConvertTextToSpeech(ctx context.Context, text string, voice repositories.VoiceConfig) ([]byte, error) {
	f.calls++
	f.text = text
	f.voice = voice
	return f.audio, f.err
}

var errProvider = errors.New("provider unavailable")
