package llm

import (
	"strings"
	"testing"
	"unicode/utf8"

	"google.golang.org/genai"

	"github.com/satriahrh/speakcoach/domain/repositories"
)

func TestValidateGeminiConfig(t *testing.T) {
	if err := ValidateGeminiConfig(GeminiConfig{}); err == nil {
		t.Error("Expected error when API key is missing")
	}

	if err := ValidateGeminiConfig(GeminiConfig{APIKey: "key", Temperature: 3}); err == nil {
		t.Error("Expected error for temperature out of range")
	}

	if err := ValidateGeminiConfig(GeminiConfig{APIKey: "key", TimeoutSeconds: -1}); err == nil {
		t.Error("Expected error for negative timeout")
	}

	if err := ValidateGeminiConfig(GeminiConfig{APIKey: "key", Temperature: 0.8}); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestHistoryConversionRoundTrip(t *testing.T) {
	history := []repositories.ChatMessage{
		{Role: repositories.UserRole, Content: "I sink so"},
		{Role: repositories.AssistantRole, Content: "I think so too!"},
	}

	contents := convertRepositoryToGeminiFormat(history)
	if len(contents) != 2 {
		t.Fatalf("Expected 2 contents, got %d", len(contents))
	}
	if contents[1].Role != genai.RoleModel {
		t.Errorf("Expected assistant to map to model role, got %s", contents[1].Role)
	}

	back := convertGeminiToRepositoryFormat(contents)
	if len(back) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(back))
	}
	if back[0].Role != repositories.UserRole || back[1].Role != repositories.AssistantRole {
		t.Errorf("Unexpected roles after round trip: %s, %s", back[0].Role, back[1].Role)
	}
	if back[1].Content != "I think so too!" {
		t.Errorf("Unexpected content after round trip: %q", back[1].Content)
	}
}

func TestResponseText(t *testing.T) {
	if responseText(nil) != "" {
		t.Error("Expected empty text for nil response")
	}

	response := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "Hello "}, {Text: "there"}}},
		}},
	}
	if got := responseText(response); got != "Hello there" {
		t.Errorf("Expected concatenated text, got %q", got)
	}
}

func TestPreviewKeepsRunesWhole(t *testing.T) {
	tests := []struct {
		input    string
		n        int
		expected string
	}{
		{"hello", 50, "hello"},
		{"hello", 3, "hel"},
		{"¿Qué tal?", 4, "¿Qué"},
		{"", 5, ""},
	}
	for _, tt := range tests {
		if got := preview(tt.input, tt.n); got != tt.expected {
			t.Errorf("Expected %q for %q, got %q", tt.expected, tt.input, got)
		}
	}

	long := strings.Repeat("é", 60)
	got := preview(long, previewRunes)
	if !utf8.ValidString(got) || utf8.RuneCountInString(got) != previewRunes {
		t.Errorf("Expected %d valid runes, got %q", previewRunes, got)
	}
}
