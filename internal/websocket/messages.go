package websocket

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/satriahrh/speakcoach/domain"
	"github.com/satriahrh/speakcoach/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	MessageTypeListeningStart MessageType = domain.LiveMessageListeningStart
	MessageTypeListeningEnd   MessageType = domain.LiveMessageListeningEnd
	MessageTypeReply          MessageType = domain.LiveMessageReply
	MessageTypeError          MessageType = domain.LiveMessageError
	MessageTypeAck            MessageType = domain.LiveMessageAck
)

var errUnsupportedMessage = errors.New("unsupported message type")

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// ListeningStartMessage opens an utterance. Binary frames that follow are
// the recording, until ListeningEndMessage.
type ListeningStartMessage struct {
	BaseMessage
	Level    entities.Level          `json:"level"`
	MimeType string                  `json:"mime_type"`
	History  []entities.HistoryEntry `json:"history"`
}

// ListeningEndMessage closes the current utterance
type ListeningEndMessage struct {
	BaseMessage
}

// ReplyMessage is a completed conversation turn
type ReplyMessage struct {
	BaseMessage
	domain.ConverseResponse
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	domain.ErrorResponse
}

// AckMessage confirms a control message
type AckMessage struct {
	BaseMessage
	Message string `json:"message"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage decodes an incoming text frame into its typed message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeListeningStart:
		var msg ListeningStartMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidHistory, err)
		}
		if err := v.validateListeningStart(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeListeningEnd:
		return &ListeningEndMessage{BaseMessage: base}, nil

	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedMessage, base.Type)
	}
}

// validateListeningStart fills defaults and checks level and history
func (v *MessageValidator) validateListeningStart(msg *ListeningStartMessage) error {
	if msg.Level == "" {
		msg.Level = entities.DefaultLevel
	} else {
		level, err := entities.ParseLevel(string(msg.Level))
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidLevel, err)
		}
		msg.Level = level
	}

	if msg.MimeType == "" {
		msg.MimeType = entities.MimeTypeWebm
	}

	for _, entry := range msg.History {
		if entry.Role != entities.MessageRoleUser && entry.Role != entities.MessageRoleAssistant {
			return fmt.Errorf("%w: unknown role %q", domain.ErrInvalidHistory, entry.Role)
		}
	}
	if msg.History == nil {
		msg.History = []entities.HistoryEntry{}
	}

	return nil
}

func timestamp() string {
	return time.Now().Format(time.RFC3339)
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(err error) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{Type: MessageTypeError, Timestamp: timestamp()},
		ErrorResponse: domain.ErrorResponse{
			Error: domain.UserMessage(err, "Failed to process conversation"),
			Code:  domain.ErrorCode(err),
		},
	}
}

// CreateReplyMessage creates a reply message carrying base64 audio
func CreateReplyMessage(transcription, response string, audio []byte) *ReplyMessage {
	return &ReplyMessage{
		BaseMessage: BaseMessage{Type: MessageTypeReply, Timestamp: timestamp()},
		ConverseResponse: domain.ConverseResponse{
			Transcription: transcription,
			Response:      response,
			AudioBase64:   base64.StdEncoding.EncodeToString(audio),
		},
	}
}

// CreateAckMessage creates an acknowledgement message
func CreateAckMessage(message string) *AckMessage {
	return &AckMessage{
		BaseMessage: BaseMessage{Type: MessageTypeAck, Timestamp: timestamp()},
		Message:     message,
	}
}
