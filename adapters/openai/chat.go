package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/speakcoach/domain/repositories"
)

const (
	jsonTemperature  = 0.7
	chatTemperature  = 0.8
	chatMaxTokens    = 500
	analysisMaxToken = 1500
)

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatRequest is the request body for chat completions
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// ChatLLM implements LargeLanguageModel with chat completions
type ChatLLM struct {
	client *Client
}

var _ repositories.LargeLanguageModel = (*ChatLLM)(nil)

// NewChatLLM creates a chat completions adapter
func NewChatLLM(client *Client) *ChatLLM {
	return &ChatLLM{client: client}
}

// GenerateJSON asks for a single JSON object using JSON mode
func (c *ChatLLM) GenerateJSON(ctx context.Context, systemPrompt, prompt string) (string, error) {
	content, err := c.complete(ctx, chatRequest{
		Model: c.client.config.ChatModel,
		Messages: []Message{
			{Role: string(repositories.SystemRole), Content: systemPrompt},
			{Role: string(repositories.UserRole), Content: prompt},
		},
		Temperature:    jsonTemperature,
		MaxTokens:      analysisMaxToken,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", err
	}

	c.client.logger.Info("Generated JSON analysis",
		zap.String("model", c.client.config.ChatModel),
		zap.Int("length", len(content)))

	return content, nil
}

// GenerateChat creates a chat session seeded with history
func (c *ChatLLM) GenerateChat(ctx context.Context, systemPrompt string, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	messages := make([]Message, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: string(repositories.SystemRole), Content: systemPrompt})
	}
	for _, msg := range history {
		messages = append(messages, Message{Role: string(msg.Role), Content: msg.Content})
	}

	return &ChatSession{llm: c, messages: messages}, nil
}

func (c *ChatLLM) complete(ctx context.Context, request chatRequest) (string, error) {
	respBody, err := c.client.postJSON(ctx, "/chat/completions", request)
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("no content generated")
	}

	return resp.Choices[0].Message.Content, nil
}

// ChatSession implements repositories.ChatSession
type ChatSession struct {
	llm      *ChatLLM
	messages []Message
}

// SendMessage sends a message and gets a response, updating the history
func (s *ChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	userMessage := Message{Role: string(repositories.UserRole), Content: message.Content}

	messages := make([]Message, 0, len(s.messages)+1)
	messages = append(messages, s.messages...)
	messages = append(messages, userMessage)

	content, err := s.llm.complete(ctx, chatRequest{
		Model:       s.llm.client.config.ChatModel,
		Messages:    messages,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		return repositories.ChatMessage{}, err
	}

	reply := Message{Role: string(repositories.AssistantRole), Content: content}
	s.messages = append(messages, reply)

	return repositories.ChatMessage{Role: repositories.AssistantRole, Content: content}, nil
}

// History returns the conversation without the system prompt
func (s *ChatSession) History() ([]repositories.ChatMessage, error) {
	history := make([]repositories.ChatMessage, 0, len(s.messages))
	for _, msg := range s.messages {
		if msg.Role == string(repositories.SystemRole) {
			continue
		}
		history = append(history, repositories.ChatMessage{Role: repositories.Role(msg.Role), Content: msg.Content})
	}
	return history, nil
}
