package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/speakcoach/domain/entities"
	"github.com/satriahrh/speakcoach/domain/repositories"
)

// WhisperSTT implements SpeechToText with the audio transcriptions endpoint
type WhisperSTT struct {
	client *Client
}

var _ repositories.SpeechToText = (*WhisperSTT)(nil)

// NewWhisperSTT creates a transcription adapter
func NewWhisperSTT(client *Client) *WhisperSTT {
	return &WhisperSTT{client: client}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// TranscribeAudio uploads the recording and returns the transcript
func (w *WhisperSTT) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", fmt.Errorf("no audio data received")
	}

	language := config.Language
	if language == "" {
		language = w.client.config.Language
	}
	// Whisper wants ISO-639-1, so "en-US" becomes "en"
	language, _, _ = strings.Cut(language, "-")

	body, contentType, err := createTranscriptionRequest(audioData, config.MimeType, w.client.config.TranscriptionModel, language)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart request: %w", err)
	}

	respBody, err := w.client.post(ctx, "/audio/transcriptions", contentType, body)
	if err != nil {
		return "", err
	}

	var resp transcriptionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}

	w.client.logger.Info("Transcribed audio",
		zap.Int("audioSize", len(audioData)),
		zap.String("model", w.client.config.TranscriptionModel),
		zap.Int("transcriptLength", len(resp.Text)))

	return resp.Text, nil
}

// createTranscriptionRequest creates the multipart/form-data body
func createTranscriptionRequest(audioData []byte, mimeType, model, language string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if mimeType == "" {
		mimeType = entities.MimeTypeWebm
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="recording.%s"`, entities.ExtensionForMimeType(mimeType)))
	header.Set("Content-Type", mimeType)

	fileWriter, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(audioData); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"model":           model,
		"language":        language,
		"response_format": "json",
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}
