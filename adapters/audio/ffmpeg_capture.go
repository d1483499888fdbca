package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/satriahrh/speakcoach/domain/entities"
	"github.com/satriahrh/speakcoach/domain/repositories"
)

const (
	defaultChunkSize   = 4096
	startupGracePeriod = 250 * time.Millisecond
	stopGracePeriod    = 1200 * time.Millisecond
)

// CaptureConfig selects the ffmpeg input device
type CaptureConfig struct {
	Command     string // ffmpeg binary, "ffmpeg" by default
	InputFormat string // e.g. "pulse", "alsa", "avfoundation"
	InputDevice string
	SampleRate  int
	Channels    int
}

// FFMPEGCapture records the microphone as WebM/Opus using ffmpeg
type FFMPEGCapture struct {
	config CaptureConfig
}

var _ repositories.AudioInput = (*FFMPEGCapture)(nil)

func NewFFMPEGCapture(config CaptureConfig) *FFMPEGCapture {
	if config.Command == "" {
		config.Command = "ffmpeg"
	}
	if config.InputFormat == "" {
		config.InputFormat = "pulse"
	}
	if config.InputDevice == "" {
		config.InputDevice = "default"
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 48000
	}
	if config.Channels <= 0 {
		config.Channels = 1
	}
	return &FFMPEGCapture{config: config}
}

// Acquire starts ffmpeg and returns a stream of encoded chunks. An ffmpeg
// that exits during startup means the device could not be opened.
func (c *FFMPEGCapture) Acquire(ctx context.Context) (repositories.AudioStream, error) {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", c.config.InputFormat,
		"-i", c.config.InputDevice,
		"-ac", strconv.Itoa(c.config.Channels),
		"-ar", strconv.Itoa(c.config.SampleRate),
		"-c:a", "libopus",
		"-f", "webm",
		"-",
	}

	// The process must outlive the acquire call, so it is not bound to ctx.
	cmd := exec.Command(c.config.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// Going through an io.Pipe makes Wait return only after every byte
	// ffmpeg wrote has been handed to the reader.
	stdout, stdoutWriter := io.Pipe()
	cmd.Stdout = stdoutWriter
	cmd.WaitDelay = stopGracePeriod

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		stdoutWriter.Close()
		waitErr <- err
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, stringsTrimSpaceSafe(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitErr
		return nil, ctx.Err()
	case <-time.After(startupGracePeriod):
	}

	stream := &ffmpegStream{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
		chunks:  make(chan []byte, 16),
		done:    make(chan struct{}),
		abandon: make(chan struct{}),
	}
	go stream.readLoop()

	return stream, nil
}

type ffmpegStream struct {
	stdout *io.PipeReader
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	chunks  chan []byte
	done    chan struct{}
	abandon chan struct{}

	abandonOnce sync.Once
	stopOnce    sync.Once
	stopErr     error
}

// readLoop forwards stdout as chunks until EOF. Once the stream is
// abandoned it keeps reading and discards, so ffmpeg's writes never block
// and Wait can return.
func (s *ffmpegStream) readLoop() {
	defer close(s.done)
	defer close(s.chunks)

	abandoned := false
	buf := make([]byte, defaultChunkSize)
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 && !abandoned {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.chunks <- chunk:
			case <-s.abandon:
				abandoned = true
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *ffmpegStream) Chunks() <-chan []byte {
	return s.chunks
}

func (s *ffmpegStream) MimeType() string {
	return entities.MimeTypeWebm
}

// Release interrupts ffmpeg so it flushes the container, waits for it to
// exit and for the reader to hit EOF. Chunks nobody drains within the grace
// period are dropped. It is safe to call more than once.
func (s *ffmpegStream) Release() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		exited, err := s.awaitExit(stopGracePeriod)
		if !exited {
			if s.process != nil {
				_ = s.process.Kill()
			}
			exited, err = s.awaitExit(stopGracePeriod)
		}
		if !exited {
			// Wait is stuck behind a full chunk channel.
			s.abandonChunks()
			err = <-s.waitErr
		}
		s.stopErr = normalizeStopErr(err)

		select {
		case <-s.done:
		case <-time.After(stopGracePeriod):
			s.abandonChunks()
			<-s.done
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, stringsTrimSpaceSafe(s.stderr.String()))
		}
	})

	return s.stopErr
}

func (s *ffmpegStream) awaitExit(timeout time.Duration) (bool, error) {
	select {
	case err := <-s.waitErr:
		return true, err
	case <-time.After(timeout):
		return false, nil
	}
}

func (s *ffmpegStream) abandonChunks() {
	s.abandonOnce.Do(func() { close(s.abandon) })
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
