package websocket

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/satriahrh/speakcoach/domain"
	"github.com/satriahrh/speakcoach/domain/entities"
)

func TestMessageValidator_ValidateListeningStart(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name    string
		message string
		wantErr error
		level   entities.Level
	}{
		{
			name:    "valid start",
			message: `{"type": "listening_start", "level": "b2", "mime_type": "audio/ogg", "history": [{"id": "1", "role": "user", "content": "hi"}]}`,
			level:   entities.LevelB2,
		},
		{
			name:    "default level",
			message: `{"type": "listening_start"}`,
			level:   entities.DefaultLevel,
		},
		{
			name:    "invalid level",
			message: `{"type": "listening_start", "level": "D4"}`,
			wantErr: domain.ErrInvalidLevel,
		},
		{
			name:    "invalid history role",
			message: `{"type": "listening_start", "level": "A1", "history": [{"id": "1", "role": "system", "content": "x"}]}`,
			wantErr: domain.ErrInvalidHistory,
		},
		{
			name:    "history not an array",
			message: `{"type": "listening_start", "history": "nope"}`,
			wantErr: domain.ErrInvalidHistory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := validator.ValidateMessage([]byte(tt.message))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			start, ok := msg.(*ListeningStartMessage)
			if !ok {
				t.Fatalf("Expected *ListeningStartMessage, got %T", msg)
			}
			if start.Level != tt.level {
				t.Errorf("Expected level %s, got %s", tt.level, start.Level)
			}
			if start.MimeType == "" {
				t.Error("Expected mime type default")
			}
			if start.History == nil {
				t.Error("Expected non-nil history")
			}
		})
	}
}

func TestMessageValidator_OtherMessages(t *testing.T) {
	validator := NewMessageValidator()

	msg, err := validator.ValidateMessage([]byte(`{"type": "listening_end"}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := msg.(*ListeningEndMessage); !ok {
		t.Errorf("Expected *ListeningEndMessage, got %T", msg)
	}

	if _, err := validator.ValidateMessage([]byte(`{"type": "audio_chunk"}`)); !errors.Is(err, errUnsupportedMessage) {
		t.Errorf("Expected unsupported message error, got %v", err)
	}

	if _, err := validator.ValidateMessage([]byte(`not json`)); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestCreateErrorMessage(t *testing.T) {
	msg := CreateErrorMessage(domain.ErrNoSpeechDetected)

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}

	if decoded["type"] != string(MessageTypeError) {
		t.Errorf("Expected type error, got %v", decoded["type"])
	}
	if decoded["code"] != domain.CodeNoSpeechDetected {
		t.Errorf("Expected code %s, got %v", domain.CodeNoSpeechDetected, decoded["code"])
	}
	if decoded["error"] != "No speech detected in the audio" {
		t.Errorf("Unexpected error text %v", decoded["error"])
	}
}

func TestCreateReplyMessage(t *testing.T) {
	msg := CreateReplyMessage("I sink so", "I think so!", []byte("mp3"))

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var decoded struct {
		Type          string `json:"type"`
		Transcription string `json:"transcription"`
		Response      string `json:"response"`
		AudioBase64   string `json:"audioBase64"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}

	if decoded.Type != "reply" || decoded.Transcription != "I sink so" || decoded.Response != "I think so!" {
		t.Errorf("Unexpected reply %+v", decoded)
	}
	if decoded.AudioBase64 != base64.StdEncoding.EncodeToString([]byte("mp3")) {
		t.Errorf("Unexpected audio %q", decoded.AudioBase64)
	}
}
