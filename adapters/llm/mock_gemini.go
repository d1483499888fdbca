package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/satriahrh/speakcoach/domain/entities"
	"github.com/satriahrh/speakcoach/domain/repositories"
)

// MockGeminiClient is an offline implementation for development
type MockGeminiClient struct{}

// NewMockGeminiClient creates a new mock Gemini client
func NewMockGeminiClient() repositories.LargeLanguageModel {
	return &MockGeminiClient{}
}

// GenerateJSON implements repositories.LargeLanguageModel
func (g *MockGeminiClient) GenerateJSON(ctx context.Context, systemPrompt, prompt string) (string, error) {
	report := entities.FeedbackReport{
		OverallScore:  75,
		Pronunciation: entities.ScoredFeedback{Score: 70, Feedback: "Watch the TH sound in \"think\"."},
		Grammar: entities.GrammarFeedback{
			Score:       80,
			Corrections: []entities.Correction{},
		},
		Vocabulary: entities.VocabularyFeedback{
			Score:       72,
			Feedback:    "Good everyday vocabulary.",
			Suggestions: []string{"fascinating", "remarkable"},
		},
		Fluency:        entities.ScoredFeedback{Score: 78, Feedback: "Nice steady pace."},
		Encouragement:  "Great effort, keep practicing!",
		PracticeTopics: []string{"TH sounds", "past tense verbs"},
	}

	raw, err := json.Marshal(report)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// GenerateChat implements repositories.LargeLanguageModel
func (g *MockGeminiClient) GenerateChat(ctx context.Context, systemPrompt string, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	return &MockGeminiChatSession{
		history: history,
	}, nil
}

// MockGeminiChatSession implements repositories.ChatSession
type MockGeminiChatSession struct {
	history []repositories.ChatMessage
}

// SendMessage implements repositories.ChatSession
func (g *MockGeminiChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	g.history = append(g.history, message)

	var response string
	switch {
	case len(message.Content) > 0:
		response = fmt.Sprintf("Thanks for sharing! You said: %s. What else would you like to talk about?", message.Content)
	default:
		response = "Hello! What would you like to talk about today?"
	}

	responseMessage := repositories.ChatMessage{
		Role:    repositories.AssistantRole,
		Content: response,
	}

	g.history = append(g.history, responseMessage)

	return responseMessage, nil
}

// History implements repositories.ChatSession
func (g *MockGeminiChatSession) History() ([]repositories.ChatMessage, error) {
	return g.history, nil
}
