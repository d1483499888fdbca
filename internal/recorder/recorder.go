package recorder

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/speakcoach/domain"
	"github.com/satriahrh/speakcoach/domain/entities"
	"github.com/satriahrh/speakcoach/domain/repositories"
)

// Status is the recording lifecycle state
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRecording Status = "recording"
	StatusCaptured  Status = "captured"
)

const defaultDrainTimeout = 2 * time.Second

// Snapshot is a point-in-time copy of the recorder state
type Snapshot struct {
	Status        Status
	ChunkCount    int
	BufferedBytes int
	Audio         entities.AudioObject
	Err           error
}

// Config controls capture finalization
type Config struct {
	// DrainTimeout bounds how long StopCapture waits for chunks that were
	// already delivered when the device was released.
	DrainTimeout time.Duration
}

// Recorder owns the microphone for one learner. Only one capture is active
// at a time and the device is released on every path out of recording.
type Recorder struct {
	input  repositories.AudioInput
	cfg    Config
	logger *zap.Logger

	// op serializes StartCapture, StopCapture and Reset; mu guards the state
	// and is the only lock the pump goroutine takes.
	op sync.Mutex
	mu sync.Mutex

	status Status
	chunks [][]byte
	audio  entities.AudioObject
	err    error
	active *activeCapture
}

type activeCapture struct {
	stream    repositories.AudioStream
	startedAt time.Time
	accepting bool
	pumpDone  chan struct{}
}

func New(input repositories.AudioInput, cfg Config, logger *zap.Logger) *Recorder {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	return &Recorder{
		input:  input,
		cfg:    cfg,
		logger: logger,
		status: StatusIdle,
	}
}

// StartCapture acquires the input device and begins buffering chunks. A
// denied device leaves the recorder idle with ErrDeviceAccessDenied in the
// snapshot. Calling it while recording changes nothing.
func (r *Recorder) StartCapture(ctx context.Context) Snapshot {
	r.op.Lock()
	defer r.op.Unlock()

	r.mu.Lock()
	if r.status == StatusRecording {
		r.mu.Unlock()
		return r.Snapshot()
	}
	if r.status == StatusCaptured {
		r.logger.Debug("Discarding previous recording")
	}
	r.clearLocked()
	r.mu.Unlock()

	stream, err := r.input.Acquire(ctx)
	if err != nil {
		r.logger.Warn("Failed to acquire audio input", zap.Error(err))
		r.mu.Lock()
		r.err = fmt.Errorf("%w: %w", domain.ErrDeviceAccessDenied, err)
		r.mu.Unlock()
		return r.Snapshot()
	}

	active := &activeCapture{
		stream:    stream,
		startedAt: time.Now(),
		accepting: true,
		pumpDone:  make(chan struct{}),
	}

	r.mu.Lock()
	r.status = StatusRecording
	r.active = active
	r.mu.Unlock()

	go r.pump(active)

	r.logger.Info("Recording started", zap.String("mimeType", stream.MimeType()))
	return r.Snapshot()
}

// StopCapture releases the device and finalizes the buffered chunks into a
// single audio object. It does nothing unless recording.
func (r *Recorder) StopCapture() Snapshot {
	r.op.Lock()
	defer r.op.Unlock()

	r.mu.Lock()
	active := r.active
	if r.status != StatusRecording || active == nil {
		r.mu.Unlock()
		return r.Snapshot()
	}
	r.mu.Unlock()

	r.release(active)

	r.mu.Lock()
	active.accepting = false
	r.active = nil

	data := bytes.Join(r.chunks, nil)
	chunkCount := len(r.chunks)
	r.chunks = nil

	if len(data) == 0 {
		r.status = StatusIdle
		r.err = domain.ErrEmptyCapture
		r.mu.Unlock()
		r.logger.Warn("Recording stopped without audio")
		return r.Snapshot()
	}

	mimeType := active.stream.MimeType()
	if mimeType == "" {
		mimeType = entities.MimeTypeWebm
	}
	r.audio = entities.AudioObject{
		Data:     data,
		MimeType: mimeType,
		Duration: time.Since(active.startedAt),
	}
	r.status = StatusCaptured
	r.mu.Unlock()

	r.logger.Info("Recording captured",
		zap.Int("chunkCount", chunkCount),
		zap.Int("audioSize", len(data)),
		zap.String("mimeType", mimeType))

	return r.Snapshot()
}

// Reset discards any recording and returns to idle. While recording it
// aborts the capture and releases the device.
func (r *Recorder) Reset() Snapshot {
	r.op.Lock()
	defer r.op.Unlock()

	r.mu.Lock()
	active := r.active
	if active != nil {
		active.accepting = false
		r.active = nil
	}
	r.clearLocked()
	r.mu.Unlock()

	if active != nil {
		r.release(active)
		r.logger.Info("Recording aborted")
	}

	return r.Snapshot()
}

// Close releases everything the recorder holds
func (r *Recorder) Close() {
	r.Reset()
}

// Snapshot returns the current state
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	buffered := 0
	for _, chunk := range r.chunks {
		buffered += len(chunk)
	}
	return Snapshot{
		Status:        r.status,
		ChunkCount:    len(r.chunks),
		BufferedBytes: buffered,
		Audio:         r.audio,
		Err:           r.err,
	}
}

// Audio returns the finalized recording while captured
func (r *Recorder) Audio() (entities.AudioObject, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusCaptured {
		return entities.AudioObject{}, false
	}
	return r.audio, true
}

func (r *Recorder) clearLocked() {
	r.status = StatusIdle
	r.chunks = nil
	r.audio = entities.AudioObject{}
	r.err = nil
}

// release gives the device back and waits, bounded, for the pump to drain
// what the device already delivered.
func (r *Recorder) release(active *activeCapture) {
	if err := active.stream.Release(); err != nil {
		r.logger.Warn("Audio input release reported an error", zap.Error(err))
	}

	timer := time.NewTimer(r.cfg.DrainTimeout)
	defer timer.Stop()

	select {
	case <-active.pumpDone:
	case <-timer.C:
		r.logger.Warn("Timed out draining audio chunks", zap.Duration("timeout", r.cfg.DrainTimeout))
	}
}

func (r *Recorder) pump(active *activeCapture) {
	defer close(active.pumpDone)

	for chunk := range active.stream.Chunks() {
		r.mu.Lock()
		if active.accepting && r.active == active {
			r.chunks = append(r.chunks, chunk)
		}
		r.mu.Unlock()
	}
}
