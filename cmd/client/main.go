package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/speakcoach/adapters/audio"
	"github.com/satriahrh/speakcoach/domain/entities"
	"github.com/satriahrh/speakcoach/internal/client"
	"github.com/satriahrh/speakcoach/internal/coach"
	"github.com/satriahrh/speakcoach/internal/conversation"
	"github.com/satriahrh/speakcoach/internal/recorder"
)

const help = `Commands:
  <enter>       start or stop recording (conversation mode submits on stop)
  s             submit the recording
  x             discard the recording
  p <n>         play or stop turn n
  m <mode>      switch to practice or conversation
  l <level>     set the level (A1..C2)
  c             clear the conversation
  h             show this help
  q             quit`

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "speech coach server URL")
	levelFlag := flag.String("level", "B1", "CEFR level A1..C2")
	modeFlag := flag.String("mode", string(coach.ModeConversation), "practice or conversation")
	inputFormat := flag.String("input-format", "pulse", "ffmpeg input format (pulse, alsa, avfoundation, dshow)")
	inputDevice := flag.String("input-device", "default", "ffmpeg input device")
	autoPlay := flag.Bool("autoplay", true, "play replies as soon as they arrive")
	verbose := flag.Bool("verbose", false, "log debug output to stderr")
	flag.Parse()

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	level, err := entities.ParseLevel(*levelFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	apiClient, err := client.New(client.Config{BaseURL: *serverURL}, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	rec := recorder.New(audio.NewFFMPEGCapture(audio.CaptureConfig{
		InputFormat: *inputFormat,
		InputDevice: *inputDevice,
	}), recorder.Config{}, logger)
	conv := conversation.NewManager(audio.NewFFPlayPlayer("", logger), conversation.DefaultHistoryLimit, logger)

	session := coach.New(rec, apiClient, conv, coach.Config{
		Mode:     coach.Mode(*modeFlag),
		Level:    level,
		AutoPlay: *autoPlay,
	}, logger)
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := &terminal{session: session, out: os.Stdout}
	t.printf("Speech coach: %s mode, level %s. Type h for help.\n", session.Snapshot().Mode, level)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || !t.handle(ctx, line) {
				return
			}
		}
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

type terminal struct {
	session *coach.Coach
	out     io.Writer
}

func (t *terminal) printf(format string, args ...interface{}) {
	fmt.Fprintf(t.out, format, args...)
}

// handle runs one command and reports whether to keep going
func (t *terminal) handle(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		t.toggleRecording(ctx)
		return true
	}

	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "s":
		t.submit(ctx)
	case "x":
		if _, err := t.session.ResetRecording(); err != nil {
			t.printf("%v\n", err)
		}
	case "p":
		t.play(ctx, arg)
	case "m":
		if err := t.session.SetMode(coach.Mode(arg)); err != nil {
			t.printf("%v\n", err)
			return true
		}
		t.printf("Mode: %s\n", arg)
	case "l":
		level, err := entities.ParseLevel(arg)
		if err == nil {
			err = t.session.SetLevel(level)
		}
		if err != nil {
			t.printf("%v\n", err)
			return true
		}
		t.printf("Level: %s (%s)\n", level, level.Name())
	case "c":
		t.session.ClearConversation()
		t.printf("Conversation cleared\n")
	case "h":
		t.printf("%s\n", help)
	case "q":
		return false
	default:
		t.printf("Unknown command %q, type h for help\n", fields[0])
	}
	return true
}

func (t *terminal) toggleRecording(ctx context.Context) {
	state := t.session.Snapshot()
	if state.Recording.Status != recorder.StatusRecording {
		snap, err := t.session.StartRecording(ctx)
		if err != nil {
			t.printf("%v\n", err)
			return
		}
		if snap.Err != nil {
			t.printf("Microphone unavailable: %v\n", snap.Err)
			return
		}
		t.printf("Recording... press enter to stop\n")
		return
	}

	snap, err := t.session.StopRecording()
	if err != nil {
		t.printf("%v\n", err)
		return
	}
	if snap.Err != nil {
		t.printf("%v\n", snap.Err)
		return
	}
	t.printf("Captured %.1fs of audio\n", snap.Audio.Duration.Seconds())

	if state.Mode == coach.ModeConversation {
		t.submit(ctx)
	}
}

func (t *terminal) submit(ctx context.Context) {
	t.printf("Processing...\n")
	start := time.Now()

	outcome, err := t.session.Submit(ctx)
	if err != nil {
		var userErr *coach.UserError
		if errors.As(err, &userErr) {
			t.printf("%s\n", userErr.Message)
			return
		}
		t.printf("%v\n", err)
		return
	}

	switch outcome.Mode {
	case coach.ModePractice:
		t.printFeedback(outcome.Feedback)
	case coach.ModeConversation:
		turns := t.session.Snapshot().Turns
		t.printf("You: %s\n", outcome.User.Content)
		t.printf("Coach [%d]: %s\n", turns, outcome.Reply.Content)
	}
	t.printf("(%s)\n", time.Since(start).Round(100*time.Millisecond))
}

func (t *terminal) play(ctx context.Context, arg string) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		t.printf("Usage: p <n>\n")
		return
	}
	if err := t.session.PlayTurn(ctx, n); err != nil {
		t.printf("%v\n", err)
	}
}

func (t *terminal) printFeedback(report *entities.FeedbackReport) {
	t.printf("You said: %q\n", report.Transcription)
	t.printf("Overall: %d/100\n", report.OverallScore)
	t.printf("  Pronunciation %3d  %s\n", report.Pronunciation.Score, report.Pronunciation.Feedback)
	t.printf("  Grammar       %3d\n", report.Grammar.Score)
	for _, c := range report.Grammar.Corrections {
		t.printf("    %q -> %q: %s\n", c.Original, c.Corrected, c.Explanation)
	}
	t.printf("  Vocabulary    %3d  %s\n", report.Vocabulary.Score, report.Vocabulary.Feedback)
	if len(report.Vocabulary.Suggestions) > 0 {
		t.printf("    Try: %s\n", strings.Join(report.Vocabulary.Suggestions, ", "))
	}
	t.printf("  Fluency       %3d  %s\n", report.Fluency.Score, report.Fluency.Feedback)
	if report.Encouragement != "" {
		t.printf("%s\n", report.Encouragement)
	}
	if len(report.PracticeTopics) > 0 {
		t.printf("Practice: %s\n", strings.Join(report.PracticeTopics, ", "))
	}
}
