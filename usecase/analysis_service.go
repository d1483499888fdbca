package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/speakcoach/domain"
	"github.com/satriahrh/speakcoach/domain/entities"
	"github.com/satriahrh/speakcoach/domain/repositories"
	"github.com/satriahrh/speakcoach/internal/pipeline"
)

const (
	PipelineAnalyze = "analyze"

	StepTranscribe pipeline.StepID = "transcribe"
	StepAnalyze    pipeline.StepID = "analyze"
	StepParse      pipeline.StepID = "parse"
)

// AnalyzeRequest is one practice-mode submission
type AnalyzeRequest struct {
	Audio entities.AudioObject
	Level entities.Level
}

// AnalysisService runs the practice pipeline: transcribe, then grade
type AnalysisService struct {
	speechToText repositories.SpeechToText
	llm          repositories.LargeLanguageModel
	runner       *pipeline.Runner
	settings     Settings
	logger       *zap.Logger
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(
	stt repositories.SpeechToText,
	llm repositories.LargeLanguageModel,
	runner *pipeline.Runner,
	settings Settings,
	logger *zap.Logger,
) *AnalysisService {
	return &AnalysisService{
		speechToText: stt,
		llm:          llm,
		runner:       runner,
		settings:     settings.withDefaults(),
		logger:       logger,
	}
}

// Analyze transcribes the recording and returns graded feedback. An empty
// transcript fails with domain.ErrNoSpeechDetected before the model is asked.
func (s *AnalysisService) Analyze(ctx context.Context, req AnalyzeRequest) (*entities.FeedbackReport, error) {
	if req.Audio.IsEmpty() {
		return nil, domain.ErrNoAudio
	}
	if !req.Level.Valid() {
		return nil, domain.ErrInvalidLevel
	}

	var (
		transcription string
		raw           string
		report        entities.FeedbackReport
	)

	_, err := s.runner.Run(ctx, pipeline.Definition{
		Name:    PipelineAnalyze,
		Timeout: s.settings.PipelineTimeout,
		Steps: []pipeline.Step{
			{ID: StepTranscribe, Execute: func(ctx context.Context) error {
				text, err := transcribe(ctx, s.speechToText, req.Audio, s.settings.Language)
				transcription = text
				return err
			}},
			{ID: StepAnalyze, Execute: func(ctx context.Context) error {
				out, err := s.llm.GenerateJSON(ctx, AnalysisSystemPrompt(req.Level), AnalysisPrompt(req.Level, transcription))
				if err != nil {
					return domain.UpstreamError(string(StepAnalyze), err)
				}
				raw = out
				return nil
			}},
			{ID: StepParse, Execute: func(ctx context.Context) error {
				parsed, err := parseFeedbackReport(raw)
				if err != nil {
					return err
				}
				report = parsed
				return nil
			}},
		},
	})
	if err != nil {
		return nil, err
	}

	report.Transcription = transcription
	if report.Normalize() {
		s.logger.Warn("Provider returned scores out of range, clamped",
			zap.Int("overallScore", report.OverallScore))
	}

	s.logger.Info("Analysis completed",
		zap.String("level", req.Level.String()),
		zap.Int("audioSize", req.Audio.Size()),
		zap.Int("overallScore", report.OverallScore))

	return &report, nil
}

// parseFeedbackReport decodes the model output, tolerating a markdown fence
func parseFeedbackReport(raw string) (entities.FeedbackReport, error) {
	var report entities.FeedbackReport

	content := strings.TrimSpace(raw)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	if content == "" {
		return report, domain.MalformedError(string(StepParse), nil)
	}

	if err := json.Unmarshal([]byte(content), &report); err != nil {
		return report, domain.MalformedError(string(StepParse), err)
	}
	return report, nil
}

// transcribe runs speech recognition and rejects silent recordings
func transcribe(ctx context.Context, stt repositories.SpeechToText, audio entities.AudioObject, language string) (string, error) {
	text, err := stt.TranscribeAudio(ctx, audio.Data, repositories.AudioConfig{
		MimeType: audio.MimeType,
		Language: language,
	})
	if errors.Is(err, domain.ErrUnsupportedAudio) {
		return "", fmt.Errorf("%s: %w", StepTranscribe, err)
	}
	if err != nil {
		return "", domain.UpstreamError(string(StepTranscribe), err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.ErrNoSpeechDetected
	}
	return text, nil
}
