package api

import (
	"context"

	"github.com/satriahrh/speakcoach/domain"
	"github.com/satriahrh/speakcoach/domain/entities"
	"github.com/satriahrh/speakcoach/usecase"
)

// Analyzer grades a practice recording
type Analyzer interface {
	Analyze(ctx context.Context, req usecase.AnalyzeRequest) (*entities.FeedbackReport, error)
}

// Converser produces one conversation turn
type Converser interface {
	Converse(ctx context.Context, req usecase.ConverseRequest) (*usecase.ConverseResult, error)
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

const (
	messageAnalyzeFailed  = "Failed to analyze speech"
	messageConverseFailed = "Failed to process conversation"
)

func errorResponse(err error, fallback string) domain.ErrorResponse {
	return domain.ErrorResponse{Error: domain.UserMessage(err, fallback), Code: domain.ErrorCode(err)}
}
