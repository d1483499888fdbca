package usecase

import "time"

const (
	defaultPipelineTimeout = 90 * time.Second
	defaultHistoryLimit    = 10
	defaultLanguage        = "en-US"
)

// Settings tunes the provider pipelines
type Settings struct {
	PipelineTimeout time.Duration
	HistoryLimit    int
	Language        string
}

func (s Settings) withDefaults() Settings {
	if s.PipelineTimeout <= 0 {
		s.PipelineTimeout = defaultPipelineTimeout
	}
	if s.HistoryLimit <= 0 {
		s.HistoryLimit = defaultHistoryLimit
	}
	if s.Language == "" {
		s.Language = defaultLanguage
	}
	return s
}
