package usecase

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/speakcoach/domain"
	"github.com/satriahrh/speakcoach/domain/entities"
	"github.com/satriahrh/speakcoach/domain/repositories"
	"github.com/satriahrh/speakcoach/internal/pipeline"
)

const (
	PipelineConverse = "converse"

	StepReply      pipeline.StepID = "reply"
	StepSynthesize pipeline.StepID = "synthesize"
)

// ConverseRequest is one conversation-mode submission
type ConverseRequest struct {
	Audio   entities.AudioObject
	Level   entities.Level
	History []entities.HistoryEntry
}

// ConverseResult is a complete conversation turn. It is only produced when
// every stage succeeded.
type ConverseResult struct {
	Transcription string
	Response      string
	Audio         []byte
}

// ConversationService orchestrates the conversation flow
type ConversationService struct {
	speechToText repositories.SpeechToText
	llm          repositories.LargeLanguageModel
	textToSpeech repositories.TextToSpeech
	runner       *pipeline.Runner
	settings     Settings
	logger       *zap.Logger
}

// NewConversationService creates a new conversation service
func NewConversationService(
	stt repositories.SpeechToText,
	llm repositories.LargeLanguageModel,
	tts repositories.TextToSpeech,
	runner *pipeline.Runner,
	settings Settings,
	logger *zap.Logger,
) *ConversationService {
	return &ConversationService{
		speechToText: stt,
		llm:          llm,
		textToSpeech: tts,
		runner:       runner,
		settings:     settings.withDefaults(),
		logger:       logger,
	}
}

// Converse transcribes the learner, generates a reply with the trailing
// history and synthesizes it at the level's speech rate.
func (s *ConversationService) Converse(ctx context.Context, req ConverseRequest) (*ConverseResult, error) {
	if req.Audio.IsEmpty() {
		return nil, domain.ErrNoAudio
	}
	if !req.Level.Valid() {
		return nil, domain.ErrInvalidLevel
	}

	history := entities.TrailingHistory(req.History, s.settings.HistoryLimit)

	var result ConverseResult

	_, err := s.runner.Run(ctx, pipeline.Definition{
		Name:    PipelineConverse,
		Timeout: s.settings.PipelineTimeout,
		Steps: []pipeline.Step{
			{ID: StepTranscribe, Execute: func(ctx context.Context) error {
				text, err := transcribe(ctx, s.speechToText, req.Audio, s.settings.Language)
				result.Transcription = text
				return err
			}},
			{ID: StepReply, Execute: func(ctx context.Context) error {
				reply, err := s.reply(ctx, req.Level, history, result.Transcription)
				result.Response = reply
				return err
			}},
			{ID: StepSynthesize, Execute: func(ctx context.Context) error {
				audio, err := s.textToSpeech.ConvertTextToSpeech(ctx, result.Response, repositories.VoiceConfig{
					Speed: req.Level.SpeechRate(),
				})
				if err != nil {
					return domain.UpstreamError(string(StepSynthesize), err)
				}
				if len(audio) == 0 {
					return domain.UpstreamError(string(StepSynthesize), errEmptyAudio)
				}
				result.Audio = audio
				return nil
			}},
		},
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Conversation turn completed",
		zap.String("level", req.Level.String()),
		zap.Int("historyLength", len(history)),
		zap.Int("responseLength", len(result.Response)),
		zap.Int("audioSize", len(result.Audio)))

	return &result, nil
}

func (s *ConversationService) reply(ctx context.Context, level entities.Level, history []entities.HistoryEntry, transcription string) (string, error) {
	messages := make([]repositories.ChatMessage, 0, len(history))
	for _, entry := range history {
		role := repositories.UserRole
		if entry.Role == entities.MessageRoleAssistant {
			role = repositories.AssistantRole
		}
		messages = append(messages, repositories.ChatMessage{Role: role, Content: entry.Content})
	}

	session, err := s.llm.GenerateChat(ctx, ConversationSystemPrompt(level), messages)
	if err != nil {
		return "", domain.UpstreamError(string(StepReply), err)
	}

	reply, err := session.SendMessage(ctx, repositories.ChatMessage{
		Role:    repositories.UserRole,
		Content: ConversationUserMessage(transcription),
	})
	if err != nil {
		return "", domain.UpstreamError(string(StepReply), err)
	}

	text := strings.TrimSpace(reply.Content)
	if text == "" {
		return "", domain.UpstreamError(string(StepReply), errEmptyReply)
	}
	return text, nil
}
