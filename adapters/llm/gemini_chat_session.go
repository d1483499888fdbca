package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/speakcoach/domain/repositories"
)

type geminiSessionSettings struct {
	model           string
	temperature     float32
	maxOutputTokens int
	timeout         time.Duration
	systemPrompt    string
}

// GeminiChatSession implements the ChatSession interface
type GeminiChatSession struct {
	client   *genai.Client
	logger   *zap.Logger
	settings geminiSessionSettings
	history  []*genai.Content
}

// NewGeminiChatSession creates a new chat session seeded with history
func NewGeminiChatSession(client *genai.Client, logger *zap.Logger, settings geminiSessionSettings, history []repositories.ChatMessage) *GeminiChatSession {
	return &GeminiChatSession{
		client:   client,
		logger:   logger,
		settings: settings,
		history:  convertRepositoryToGeminiFormat(history),
	}
}

// SendMessage sends a message and gets a response, updating the history.
// A failed call leaves the history untouched.
func (s *GeminiChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	contents := make([]*genai.Content, 0, len(s.history)+1)
	contents = append(contents, s.history...)

	userContent := genai.NewContentFromText(message.Content, genai.RoleUser)
	contents = append(contents, userContent)

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(s.settings.temperature),
		MaxOutputTokens: int32(s.settings.maxOutputTokens),
	}
	if s.settings.systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(s.settings.systemPrompt, genai.RoleUser)
	}

	ctx, cancel := context.WithTimeout(ctx, s.settings.timeout)
	defer cancel()

	response, err := s.client.Models.GenerateContent(ctx, s.settings.model, contents, config)
	if err != nil {
		s.logger.Error("Failed to send message in chat session", zap.Error(err))
		return repositories.ChatMessage{}, fmt.Errorf("failed to generate content: %w", err)
	}

	responseText := responseText(response)
	if strings.TrimSpace(responseText) == "" {
		s.logger.Warn("Empty response in chat session")
		return repositories.ChatMessage{}, fmt.Errorf("empty response from model")
	}

	s.history = append(s.history, userContent, genai.NewContentFromText(responseText, genai.RoleModel))

	s.logger.Info("Chat session message processed",
		zap.String("userMessage", preview(message.Content, previewRunes)),
		zap.String("responsePreview", preview(responseText, previewRunes)),
		zap.Int("historyLength", len(s.history)))

	return repositories.ChatMessage{
		Role:    repositories.AssistantRole,
		Content: responseText,
	}, nil
}

// History returns the current conversation history
func (s *GeminiChatSession) History() ([]repositories.ChatMessage, error) {
	return convertGeminiToRepositoryFormat(s.history), nil
}

// convertRepositoryToGeminiFormat converts repository messages to Gemini format
func convertRepositoryToGeminiFormat(messages []repositories.ChatMessage) []*genai.Content {
	var contents []*genai.Content

	for _, msg := range messages {
		var role genai.Role
		switch msg.Role {
		case repositories.AssistantRole:
			role = genai.RoleModel
		default:
			role = genai.RoleUser // Gemini has no system role inside contents
		}

		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	return contents
}

// convertGeminiToRepositoryFormat converts Gemini content to repository messages
func convertGeminiToRepositoryFormat(contents []*genai.Content) []repositories.ChatMessage {
	var messages []repositories.ChatMessage

	for _, content := range contents {
		role := repositories.UserRole
		if content.Role == genai.RoleModel {
			role = repositories.AssistantRole
		}

		var text string
		for _, part := range content.Parts {
			if part != nil && part.Text != "" {
				text += part.Text
			}
		}

		if text != "" {
			messages = append(messages, repositories.ChatMessage{
				Role:    role,
				Content: text,
			})
		}
	}

	return messages
}

const previewRunes = 50

// preview truncates s to at most n runes
func preview(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}
