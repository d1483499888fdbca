package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/speakcoach/domain"
	"github.com/satriahrh/speakcoach/domain/entities"
	"github.com/satriahrh/speakcoach/internal/metrics"
	"github.com/satriahrh/speakcoach/internal/websocket"
	"github.com/satriahrh/speakcoach/usecase"
)

const serviceName = "speakcoach"

// Dependencies are the collaborators the routes need
type Dependencies struct {
	Analyzer       Analyzer
	Converser      Converser
	Hub            *websocket.Hub
	Metrics        *metrics.Metrics
	MaxUploadBytes int64
	Logger         *zap.Logger
}

type handler struct {
	analyzer  Analyzer
	converser Converser
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies) {
	h := &handler{
		analyzer:  deps.Analyzer,
		converser: deps.Converser,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}

	if deps.Metrics != nil {
		e.Use(metricsMiddleware(deps.Metrics))
		e.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Service: serviceName})
	})

	upload := middleware.BodyLimit(strconv.FormatInt(deps.MaxUploadBytes, 10) + "B")
	if deps.MaxUploadBytes <= 0 {
		upload = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	e.POST("/analyze", h.analyze, upload)
	e.POST("/converse", h.converse, upload)

	// Paths used by the original web client
	e.POST("/api/analyze", h.analyze, upload)
	e.POST("/api/conversation", h.converse, upload)

	if deps.Hub != nil {
		e.GET("/ws/converse", func(c echo.Context) error {
			return websocket.HandleWebSocket(deps.Hub, c, deps.Logger)
		})
	}
}

func (h *handler) analyze(c echo.Context) error {
	audio, level, err := h.parseUpload(c)
	if err != nil {
		return h.fail(c, err, messageAnalyzeFailed)
	}

	report, err := h.analyzer.Analyze(c.Request().Context(), usecase.AnalyzeRequest{
		Audio: audio,
		Level: level,
	})
	if err != nil {
		return h.fail(c, err, messageAnalyzeFailed)
	}

	return c.JSON(http.StatusOK, report)
}

func (h *handler) converse(c echo.Context) error {
	audio, level, err := h.parseUpload(c)
	if err != nil {
		return h.fail(c, err, messageConverseFailed)
	}

	history, err := parseHistory(c.FormValue("history"))
	if err != nil {
		return h.fail(c, err, messageConverseFailed)
	}

	result, err := h.converser.Converse(c.Request().Context(), usecase.ConverseRequest{
		Audio:   audio,
		Level:   level,
		History: history,
	})
	if err != nil {
		return h.fail(c, err, messageConverseFailed)
	}

	return c.JSON(http.StatusOK, domain.ConverseResponse{
		Transcription: result.Transcription,
		Response:      result.Response,
		AudioBase64:   base64.StdEncoding.EncodeToString(result.Audio),
	})
}

// parseUpload reads the audio file and the level from a multipart form
func (h *handler) parseUpload(c echo.Context) (entities.AudioObject, entities.Level, error) {
	var audio entities.AudioObject

	level := entities.DefaultLevel
	if raw := c.FormValue("level"); raw != "" {
		parsed, err := entities.ParseLevel(raw)
		if err != nil {
			return audio, "", fmt.Errorf("%w: %v", domain.ErrInvalidLevel, err)
		}
		level = parsed
	}

	file, err := c.FormFile("audio")
	if err != nil {
		return audio, "", domain.ErrNoAudio
	}

	src, err := file.Open()
	if err != nil {
		return audio, "", fmt.Errorf("%w: %v", domain.ErrNoAudio, err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return audio, "", fmt.Errorf("%w: %v", domain.ErrNoAudio, err)
	}
	if len(data) == 0 {
		return audio, "", domain.ErrNoAudio
	}

	mimeType := file.Header.Get(echo.HeaderContentType)
	if mimeType == "" || mimeType == echo.MIMEOctetStream {
		mimeType = entities.MimeTypeWebm
	}

	if h.metrics != nil {
		h.metrics.RecordUpload(len(data))
	}

	return entities.AudioObject{Data: data, MimeType: mimeType}, level, nil
}

// parseHistory decodes the history form field; absent means no history
func parseHistory(raw string) ([]entities.HistoryEntry, error) {
	if strings.TrimSpace(raw) == "" {
		return []entities.HistoryEntry{}, nil
	}

	var history []entities.HistoryEntry
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidHistory, err)
	}
	for _, entry := range history {
		if entry.Role != entities.MessageRoleUser && entry.Role != entities.MessageRoleAssistant {
			return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidHistory, entry.Role)
		}
	}
	if history == nil {
		history = []entities.HistoryEntry{}
	}
	return history, nil
}

func (h *handler) fail(c echo.Context, err error, fallback string) error {
	status := http.StatusInternalServerError
	if domain.IsClientError(err) {
		status = http.StatusBadRequest
	}

	resp := errorResponse(err, fallback)
	if h.metrics != nil {
		h.metrics.RecordHTTPError(c.Path(), resp.Code)
	}

	h.logger.Error("Request failed",
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.String("code", resp.Code),
		zap.Error(err))

	return c.JSON(status, resp)
}

func metricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			m.RecordHTTPRequest(c.Request().Method, path, strconv.Itoa(status), time.Since(start).Seconds())
			return err
		}
	}
}
