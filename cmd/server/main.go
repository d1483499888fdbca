package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/satriahrh/speakcoach/adapters/llm"
	"github.com/satriahrh/speakcoach/adapters/openai"
	"github.com/satriahrh/speakcoach/adapters/stt"
	"github.com/satriahrh/speakcoach/adapters/tts"
	"github.com/satriahrh/speakcoach/domain/repositories"
	"github.com/satriahrh/speakcoach/internal/api"
	"github.com/satriahrh/speakcoach/internal/config"
	"github.com/satriahrh/speakcoach/internal/metrics"
	"github.com/satriahrh/speakcoach/internal/pipeline"
	"github.com/satriahrh/speakcoach/internal/websocket"
	"github.com/satriahrh/speakcoach/usecase"
)

type providers struct {
	speechToText repositories.SpeechToText
	llm          repositories.LargeLanguageModel
	textToSpeech repositories.TextToSpeech
	close        func()
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	p, err := newProviders(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize providers", zap.String("provider", cfg.Provider), zap.Error(err))
	}
	defer p.close()

	runner := pipeline.NewRunner(logger, m)
	settings := usecase.Settings{
		PipelineTimeout: time.Duration(cfg.Server.PipelineTimeout) * time.Second,
		HistoryLimit:    cfg.Server.HistoryLimit,
		Language:        cfg.GoogleSpeech.LanguageCode,
	}
	analysisService := usecase.NewAnalysisService(p.speechToText, p.llm, runner, settings, logger)
	conversationService := usecase.NewConversationService(p.speechToText, p.llm, p.textToSpeech, runner, settings, logger)

	hub := websocket.NewHub(conversationService, websocket.HubConfig{
		MaxUtteranceBytes: int(cfg.Server.MaxUploadBytes),
	}, m, logger)
	go hub.Run(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.InitRoutes(e, api.Dependencies{
		Analyzer:       analysisService,
		Converser:      conversationService,
		Hub:            hub,
		Metrics:        m,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Logger:         logger,
	})

	go func() {
		if err := e.Start(cfg.Server.ListenAddress()); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("address", cfg.Server.ListenAddress()),
		zap.String("provider", cfg.Provider))

	<-ctx.Done()

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zapConfig := zap.NewProductionConfig()
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = level
	return zapConfig.Build()
}

func newProviders(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*providers, error) {
	switch cfg.Provider {
	case config.ProviderMock:
		return &providers{
			speechToText: stt.NewMockSpeechToText(logger),
			llm:          llm.NewMockGeminiClient(),
			textToSpeech: tts.NewMockTextToSpeech(logger),
			close:        func() {},
		}, nil

	case config.ProviderOpenAI:
		client, err := openai.NewClient(openai.Config{
			APIKey:             cfg.OpenAI.APIKey,
			BaseURL:            cfg.OpenAI.BaseURL,
			ChatModel:          cfg.OpenAI.ChatModel,
			TranscriptionModel: cfg.OpenAI.TranscriptionModel,
			SpeechModel:        cfg.OpenAI.SpeechModel,
			Voice:              cfg.OpenAI.Voice,
			Language:           cfg.GoogleSpeech.LanguageCode,
			TimeoutSeconds:     cfg.OpenAI.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return &providers{
			speechToText: openai.NewWhisperSTT(client),
			llm:          openai.NewChatLLM(client),
			textToSpeech: openai.NewSpeechTTS(client),
			close:        func() {},
		}, nil

	default:
		speechToText, err := stt.NewGoogleSpeechToText(ctx, stt.GoogleSpeechConfig{
			LanguageCode:    cfg.GoogleSpeech.LanguageCode,
			SampleRate:      cfg.GoogleSpeech.SampleRate,
			CredentialsFile: cfg.GoogleSpeech.CredentialsFile,
		}, logger)
		if err != nil {
			return nil, err
		}

		gemini, err := llm.NewGeminiLLM(ctx, llm.GeminiConfig{
			APIKey:          cfg.Gemini.APIKey,
			Model:           cfg.Gemini.Model,
			Temperature:     cfg.Gemini.Temperature,
			MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
			TimeoutSeconds:  cfg.Gemini.Timeout,
		}, logger)
		if err != nil {
			speechToText.Close()
			return nil, err
		}

		elevenLabs, err := tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:         cfg.ElevenLabs.APIKey,
			APIBaseURL:     cfg.ElevenLabs.APIBaseURL,
			VoiceID:        cfg.ElevenLabs.VoiceID,
			ModelID:        cfg.ElevenLabs.ModelID,
			OutputFormat:   cfg.ElevenLabs.OutputFormat,
			TimeoutSeconds: cfg.ElevenLabs.Timeout,
		}, logger)
		if err != nil {
			speechToText.Close()
			return nil, err
		}

		return &providers{
			speechToText: speechToText,
			llm:          gemini,
			textToSpeech: elevenLabs,
			close: func() {
				if err := speechToText.Close(); err != nil {
					logger.Warn("Failed to close speech client", zap.Error(err))
				}
			},
		}, nil
	}
}
