package domain

// ConverseResponse is the body of a successful /converse call
type ConverseResponse struct {
	Transcription string `json:"transcription"`
	Response      string `json:"response"`
	AudioBase64   string `json:"audioBase64"`
}

// ErrorResponse is the body of every failed request. Error is the single
// user-facing message; Code identifies the failure for programmatic clients.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Live conversation control messages
const (
	LiveMessageListeningStart = "listening_start"
	LiveMessageListeningEnd   = "listening_end"
	LiveMessageReply          = "reply"
	LiveMessageError          = "error"
	LiveMessageAck            = "ack"
)
