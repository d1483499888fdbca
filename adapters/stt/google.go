package stt

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/satriahrh/speakcoach/domain"
	"github.com/satriahrh/speakcoach/domain/repositories"
)

const (
	defaultLanguageCode = "en-US"
	defaultSampleRate   = 48000
)

// GoogleSpeechConfig holds configuration for Google Cloud Speech-to-Text.
// Credentials come from CredentialsFile when set, otherwise from the
// application default credentials.
type GoogleSpeechConfig struct {
	LanguageCode    string
	SampleRate      int
	CredentialsFile string
}

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	client *speech.Client
	logger *zap.Logger
	config GoogleSpeechConfig
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// ValidateGoogleSpeechConfig validates the GoogleSpeechConfig
func ValidateGoogleSpeechConfig(config GoogleSpeechConfig) error {
	if config.SampleRate < 0 {
		return fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}
	return nil
}

// NewGoogleSpeechToText creates a client for the synchronous Recognize API
func NewGoogleSpeechToText(ctx context.Context, config GoogleSpeechConfig, logger *zap.Logger) (*GoogleSpeechToText, error) {
	if err := ValidateGoogleSpeechConfig(config); err != nil {
		return nil, err
	}

	if config.LanguageCode == "" {
		config.LanguageCode = defaultLanguageCode
	}
	if config.SampleRate == 0 {
		config.SampleRate = defaultSampleRate
	}

	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	return &GoogleSpeechToText{
		client: client,
		logger: logger,
		config: config,
	}, nil
}

// Close releases the underlying gRPC connection
func (g *GoogleSpeechToText) Close() error {
	return g.client.Close()
}

// TranscribeAudio converts a complete recording to text. An utterance with
// no recognized speech yields an empty string and no error.
func (g *GoogleSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", fmt.Errorf("no audio data received")
	}

	recognitionConfig, err := g.recognitionConfig(config)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: recognitionConfig,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audioData},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to recognize speech: %w", err)
	}

	var transcript strings.Builder
	for _, result := range resp.GetResults() {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}
		// Take the best alternative
		if transcript.Len() > 0 {
			transcript.WriteString(" ")
		}
		transcript.WriteString(strings.TrimSpace(alternatives[0].GetTranscript()))
	}

	g.logger.Info("Transcribed audio",
		zap.Int("audioSize", len(audioData)),
		zap.String("encoding", recognitionConfig.Encoding.String()),
		zap.Int("transcriptLength", transcript.Len()))

	return transcript.String(), nil
}

func (g *GoogleSpeechToText) recognitionConfig(config repositories.AudioConfig) (*speechpb.RecognitionConfig, error) {
	name := config.Encoding
	if name == "" {
		name = EncodingForMimeType(config.MimeType)
		if name == "" {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedAudio, config.MimeType)
		}
	}

	encoding, err := getAudioEncoding(name)
	if err != nil {
		return nil, err
	}

	// WAV and FLAC carry the rate in their header; a mismatch is rejected.
	sampleRate := config.SampleRate
	if sampleRate == 0 && !headerCarriesSampleRate(encoding) {
		sampleRate = g.config.SampleRate
	}

	language := config.Language
	if language == "" {
		language = g.config.LanguageCode
	}

	return &speechpb.RecognitionConfig{
		Encoding:                   encoding,
		SampleRateHertz:            int32(sampleRate),
		LanguageCode:               language,
		EnableAutomaticPunctuation: true,
	}, nil
}

// EncodingForMimeType maps a recording MIME type to a Speech API encoding
// name. Container parameters such as ";codecs=opus" are ignored. An empty
// MIME type is the capture default, WebM. Containers Recognize cannot decode,
// such as audio/mp4 or audio/mpeg, map to "".
func EncodingForMimeType(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	switch strings.ToLower(strings.TrimSpace(base)) {
	case "", "audio/webm", "video/webm":
		return "WEBM_OPUS"
	case "audio/ogg":
		return "OGG_OPUS"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "LINEAR16"
	case "audio/flac", "audio/x-flac":
		return "FLAC"
	case "audio/amr":
		return "AMR"
	case "audio/basic":
		return "MULAW"
	default:
		return ""
	}
}

func headerCarriesSampleRate(encoding speechpb.RecognitionConfig_AudioEncoding) bool {
	return encoding == speechpb.RecognitionConfig_LINEAR16 || encoding == speechpb.RecognitionConfig_FLAC
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
