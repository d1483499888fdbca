package entities

import (
	"testing"
	"time"
)

func TestFeedbackReportNormalize(t *testing.T) {
	report := FeedbackReport{
		OverallScore:  0,
		Pronunciation: ScoredFeedback{Score: 150},
		Grammar:       GrammarFeedback{Score: 70},
		Vocabulary:    VocabularyFeedback{Score: -3},
		Fluency:       ScoredFeedback{Score: 100},
	}

	if !report.Normalize() {
		t.Error("Expected Normalize to report clamping")
	}

	if report.OverallScore != 1 {
		t.Errorf("Expected overall score 1, got %d", report.OverallScore)
	}
	if report.Pronunciation.Score != 100 {
		t.Errorf("Expected pronunciation score 100, got %d", report.Pronunciation.Score)
	}
	if report.Grammar.Score != 70 {
		t.Errorf("Expected grammar score 70, got %d", report.Grammar.Score)
	}
	if report.Vocabulary.Score != 1 {
		t.Errorf("Expected vocabulary score 1, got %d", report.Vocabulary.Score)
	}

	if report.Grammar.Corrections == nil || report.Vocabulary.Suggestions == nil || report.PracticeTopics == nil {
		t.Error("Expected nil lists to be replaced with empty ones")
	}

	if report.Normalize() {
		t.Error("Expected second Normalize to be a no-op")
	}
}

func TestConversationTurnValidate(t *testing.T) {
	now := time.Now()

	valid := ConversationTurn{ID: "1", Role: MessageRoleAssistant, Content: "hi", Audio: []byte{1}, Timestamp: now}
	if err := valid.Validate(); err != nil {
		t.Errorf("Valid turn should not have validation errors, got: %v", err)
	}

	userWithAudio := ConversationTurn{ID: "2", Role: MessageRoleUser, Content: "hi", Audio: []byte{1}, Timestamp: now}
	if err := userWithAudio.Validate(); err == nil {
		t.Error("User turn with audio should have validation error")
	}

	badRole := ConversationTurn{ID: "3", Role: "system", Timestamp: now}
	if err := badRole.Validate(); err == nil {
		t.Error("Turn with unknown role should have validation error")
	}

	noID := ConversationTurn{Role: MessageRoleUser, Timestamp: now}
	if err := noID.Validate(); err == nil {
		t.Error("Turn without id should have validation error")
	}
}

func TestTrailingHistory(t *testing.T) {
	var entries []HistoryEntry
	for i := 0; i < 15; i++ {
		entries = append(entries, HistoryEntry{ID: string(rune('a' + i))})
	}

	trimmed := TrailingHistory(entries, 10)
	if len(trimmed) != 10 {
		t.Fatalf("Expected 10 entries, got %d", len(trimmed))
	}
	if trimmed[0].ID != "f" || trimmed[9].ID != "o" {
		t.Errorf("Expected trailing window f..o, got %s..%s", trimmed[0].ID, trimmed[9].ID)
	}

	if got := TrailingHistory(nil, 10); got == nil || len(got) != 0 {
		t.Errorf("Expected empty non-nil history, got %v", got)
	}
}
