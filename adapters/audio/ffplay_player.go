package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/speakcoach/domain/repositories"
)

// FFPlayPlayer plays encoded audio by piping it into ffplay
type FFPlayPlayer struct {
	command string
	logger  *zap.Logger
}

var _ repositories.AudioPlayer = (*FFPlayPlayer)(nil)

func NewFFPlayPlayer(command string, logger *zap.Logger) *FFPlayPlayer {
	if command == "" {
		command = "ffplay"
	}
	return &FFPlayPlayer{command: command, logger: logger}
}

// Play starts ffplay in the background. onEnded fires from the wait
// goroutine when playback finishes without Stop being called.
func (p *FFPlayPlayer) Play(ctx context.Context, audio []byte, onEnded func()) (repositories.Playback, error) {
	if len(audio) == 0 {
		return nil, errors.New("no audio to play")
	}

	cmd := exec.Command(p.command, "-nodisp", "-autoexit", "-loglevel", "error", "-i", "-")
	cmd.Stdin = bytes.NewReader(audio)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = stopGracePeriod / 2

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", p.command, err)
	}

	playback := &ffplayPlayback{
		process: cmd.Process,
		done:    make(chan struct{}),
	}

	go func() {
		err := cmd.Wait()
		stopped := playback.markFinished()
		close(playback.done)

		if err != nil && !stopped {
			p.logger.Warn("Playback exited with error",
				zap.Error(err),
				zap.String("stderr", stringsTrimSpaceSafe(stderr.String())))
		}
		if !stopped && onEnded != nil {
			onEnded()
		}
	}()

	return playback, nil
}

type ffplayPlayback struct {
	process *os.Process
	done    chan struct{}

	mu       sync.Mutex
	stopped  bool
	finished bool
}

// markFinished records natural completion and reports whether Stop came first
func (p *ffplayPlayback) markFinished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = true
	return p.stopped
}

// Stop kills ffplay and waits for it to exit. onEnded is not fired for a
// stopped playback.
func (p *ffplayPlayback) Stop() error {
	p.mu.Lock()
	if p.stopped || p.finished {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	if err := p.process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to stop playback: %w", err)
	}

	select {
	case <-p.done:
	case <-time.After(stopGracePeriod):
		return errors.New("playback did not exit")
	}
	return nil
}
