package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the client and the server
var (
	ErrDeviceAccessDenied = errors.New("audio input device unavailable")
	ErrEmptyCapture       = errors.New("no audio captured")
	ErrNoSpeechDetected   = errors.New("no speech detected in the audio")
	ErrUpstreamFailure    = errors.New("upstream provider failure")
	ErrMalformedResponse  = errors.New("malformed upstream response")

	ErrNoAudio          = errors.New("no audio file provided")
	ErrInvalidLevel     = errors.New("invalid level")
	ErrInvalidHistory   = errors.New("invalid conversation history")
	ErrUnsupportedAudio = errors.New("unsupported audio format")
)

// Wire error codes
const (
	CodeNoAudio           = "no_audio"
	CodeInvalidLevel      = "invalid_level"
	CodeInvalidHistory    = "invalid_history"
	CodeNoSpeechDetected  = "no_speech_detected"
	CodeUnsupportedAudio  = "unsupported_audio"
	CodeMalformedResponse = "malformed_response"
	CodeUpstreamFailure   = "upstream_failure"
)

// UpstreamError marks a provider failure at the given stage. The result
// matches ErrUpstreamFailure and still unwraps to the cause.
func UpstreamError(stage string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", stage, ErrUpstreamFailure, err)
}

// MalformedError marks upstream output that could not be parsed
func MalformedError(stage string, err error) error {
	if err == nil {
		err = errors.New("empty content")
	}
	return fmt.Errorf("%s: %w: %w", stage, ErrMalformedResponse, err)
}

// ErrorCode maps an error to its wire code
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNoAudio), errors.Is(err, ErrEmptyCapture):
		return CodeNoAudio
	case errors.Is(err, ErrInvalidLevel):
		return CodeInvalidLevel
	case errors.Is(err, ErrInvalidHistory):
		return CodeInvalidHistory
	case errors.Is(err, ErrNoSpeechDetected):
		return CodeNoSpeechDetected
	case errors.Is(err, ErrUnsupportedAudio):
		return CodeUnsupportedAudio
	case errors.Is(err, ErrMalformedResponse):
		return CodeMalformedResponse
	default:
		return CodeUpstreamFailure
	}
}

// ErrorForCode is the inverse of ErrorCode, used by the client
func ErrorForCode(code string) error {
	switch code {
	case CodeNoAudio:
		return ErrNoAudio
	case CodeInvalidLevel:
		return ErrInvalidLevel
	case CodeInvalidHistory:
		return ErrInvalidHistory
	case CodeNoSpeechDetected:
		return ErrNoSpeechDetected
	case CodeUnsupportedAudio:
		return ErrUnsupportedAudio
	case CodeMalformedResponse:
		return ErrMalformedResponse
	default:
		return ErrUpstreamFailure
	}
}

// IsClientError reports whether err was caused by the request itself
func IsClientError(err error) bool {
	return errors.Is(err, ErrNoAudio) ||
		errors.Is(err, ErrEmptyCapture) ||
		errors.Is(err, ErrInvalidLevel) ||
		errors.Is(err, ErrInvalidHistory) ||
		errors.Is(err, ErrNoSpeechDetected) ||
		errors.Is(err, ErrUnsupportedAudio)
}

// UserMessage is the single user-facing text for err. Upstream and malformed
// failures fall back to the caller's per-endpoint message.
func UserMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, ErrNoAudio), errors.Is(err, ErrEmptyCapture):
		return "No audio file provided"
	case errors.Is(err, ErrInvalidLevel):
		return "Invalid level"
	case errors.Is(err, ErrInvalidHistory):
		return "Invalid conversation history"
	case errors.Is(err, ErrNoSpeechDetected):
		return "No speech detected in the audio"
	case errors.Is(err, ErrUnsupportedAudio):
		return "Unsupported audio format"
	default:
		return fallback
	}
}
