package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/speakcoach/domain"
	"github.com/satriahrh/speakcoach/domain/entities"
)

const (
	defaultTimeout = 120 * time.Second

	analyzePath  = "/analyze"
	conversePath = "/converse"

	// Responses larger than this are treated as malformed.
	maxResponseBytes = 64 << 20
)

// Config for the speech coach API client
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// ConversationReply is a decoded conversation turn
type ConversationReply struct {
	Transcription string
	Response      string
	Audio         []byte
}

// Client submits finalized recordings to the speech coach server. Every call
// is a single attempt.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a client
func New(config Config, logger *zap.Logger) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

// Analyze requests feedback for a practice recording
func (c *Client) Analyze(ctx context.Context, audio entities.AudioObject, level entities.Level) (*entities.FeedbackReport, error) {
	if audio.IsEmpty() {
		return nil, domain.ErrEmptyCapture
	}

	var report entities.FeedbackReport
	if err := c.submit(ctx, analyzePath, audio, level, nil, &report); err != nil {
		return nil, err
	}
	report.Normalize()
	return &report, nil
}

// Converse requests a spoken reply. history is sent as-is; nil is sent as [].
func (c *Client) Converse(ctx context.Context, audio entities.AudioObject, level entities.Level, history []entities.HistoryEntry) (*ConversationReply, error) {
	if audio.IsEmpty() {
		return nil, domain.ErrEmptyCapture
	}
	if history == nil {
		history = []entities.HistoryEntry{}
	}

	var resp domain.ConverseResponse
	if err := c.submit(ctx, conversePath, audio, level, history, &resp); err != nil {
		return nil, err
	}

	audioData, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	if err != nil {
		return nil, domain.MalformedError("decode audio", err)
	}

	return &ConversationReply{
		Transcription: resp.Transcription,
		Response:      resp.Response,
		Audio:         audioData,
	}, nil
}

// submit posts the multipart form and decodes a 200 body into out
func (c *Client) submit(ctx context.Context, path string, audio entities.AudioObject, level entities.Level, history []entities.HistoryEntry, out interface{}) error {
	body, contentType, err := encodeForm(audio, level, history)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return domain.UpstreamError("request", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.UpstreamError("request", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.UpstreamError("response", err)
	}

	c.logger.Debug("Server responded",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Int("bodySize", len(data)),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return domain.MalformedError("decode response", err)
	}
	return nil
}

// decodeError maps an error body back to the error taxonomy
func decodeError(status int, data []byte) error {
	var errResp domain.ErrorResponse
	if err := json.Unmarshal(data, &errResp); err != nil || errResp.Code == "" {
		return domain.UpstreamError("server", fmt.Errorf("status %d", status))
	}

	sentinel := domain.ErrorForCode(errResp.Code)
	return fmt.Errorf("%w: server %d: %s", sentinel, status, errResp.Error)
}

func encodeForm(audio entities.AudioObject, level entities.Level, history []entities.HistoryEntry) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename=%q`, audio.Filename()))
	mimeType := audio.MimeType
	if mimeType == "" {
		mimeType = entities.MimeTypeWebm
	}
	header.Set("Content-Type", mimeType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, "", err
	}

	if err := writer.WriteField("level", level.String()); err != nil {
		return nil, "", err
	}

	if history != nil {
		encoded, err := json.Marshal(history)
		if err != nil {
			return nil, "", err
		}
		if err := writer.WriteField("history", string(encoded)); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}
