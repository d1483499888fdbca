package repositories

import "context"

// AudioInput grants exclusive access to a microphone
type AudioInput interface {
	Acquire(ctx context.Context) (AudioStream, error)
}

// AudioStream is a held input device. Chunks is closed once the device
// stops delivering audio, which Release guarantees to happen.
type AudioStream interface {
	Chunks() <-chan []byte
	MimeType() string
	Release() error
}

// AudioPlayer plays synthesized reply audio
type AudioPlayer interface {
	// Play starts playback; onEnded fires once when playback finishes on its
	// own and must not be called from within Play.
	Play(ctx context.Context, audio []byte, onEnded func()) (Playback, error)
}

// Playback is a running playback
type Playback interface {
	Stop() error
}
