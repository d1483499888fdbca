package entities

import (
	"errors"
	"time"
)

// MessageRole represents the role of a conversation turn author
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// ConversationTurn is one utterance in a conversation log. Turns are never
// mutated after creation.
type ConversationTurn struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Audio     []byte      `json:"-"`
	Timestamp time.Time   `json:"timestamp"`
}

// HistoryEntry is a turn as sent to the server, without synthesized audio
type HistoryEntry struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// HasAudio reports whether the turn carries synthesized reply audio
func (t ConversationTurn) HasAudio() bool {
	return len(t.Audio) > 0
}

// HistoryEntry strips the audio reference from the turn
func (t ConversationTurn) HistoryEntry() HistoryEntry {
	return HistoryEntry{
		ID:        t.ID,
		Role:      t.Role,
		Content:   t.Content,
		Timestamp: t.Timestamp,
	}
}

// Validate validates the turn data
func (t ConversationTurn) Validate() error {
	if t.ID == "" {
		return errors.New("turn id is required")
	}
	switch t.Role {
	case MessageRoleUser:
		if t.HasAudio() {
			return errors.New("user turns cannot carry audio")
		}
	case MessageRoleAssistant:
	default:
		return errors.New("invalid turn role")
	}
	if t.Timestamp.IsZero() {
		return errors.New("turn timestamp is required")
	}
	return nil
}

// TrailingHistory returns at most limit of the most recent entries, in order
func TrailingHistory(entries []HistoryEntry, limit int) []HistoryEntry {
	if limit < 0 {
		limit = 0
	}
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]HistoryEntry, len(entries))
	copy(out, entries)
	return out
}
