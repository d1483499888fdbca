package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/satriahrh/speakcoach/domain"
	"github.com/satriahrh/speakcoach/domain/entities"
	"github.com/satriahrh/speakcoach/internal/client"
	"github.com/satriahrh/speakcoach/internal/conversation"
	"github.com/satriahrh/speakcoach/internal/recorder"
)

// Mode selects what a submission does
type Mode string

const (
	ModePractice     Mode = "practice"
	ModeConversation Mode = "conversation"
)

var (
	ErrBusy        = errors.New("a submission is already in progress")
	ErrInvalidMode = errors.New("invalid mode")
)

const (
	messageNothingRecorded    = "Record something before submitting."
	messagePracticeFailed     = "Failed to analyze audio. Please try again."
	messageConversationFailed = "Failed to process conversation. Please try again."
)

// UserError is what the learner sees. It unwraps to the underlying
// sentinel for logging and tests.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string { return e.Message }
func (e *UserError) Unwrap() error { return e.Err }

// API submits recordings to the server
type API interface {
	Analyze(ctx context.Context, audio entities.AudioObject, level entities.Level) (*entities.FeedbackReport, error)
	Converse(ctx context.Context, audio entities.AudioObject, level entities.Level, history []entities.HistoryEntry) (*client.ConversationReply, error)
}

// Outcome is the result of a successful submission
type Outcome struct {
	Mode     Mode
	Feedback *entities.FeedbackReport
	User     entities.ConversationTurn
	Reply    entities.ConversationTurn
}

// State is a point-in-time view of the session
type State struct {
	Mode       Mode
	Level      entities.Level
	Processing bool
	Recording  recorder.Snapshot
	Turns      int
	PlayingID  string
}

// Config for a coach session
type Config struct {
	Mode     Mode
	Level    entities.Level
	AutoPlay bool
}

// Coach is one learner's session: it records, submits and keeps the
// conversation.
type Coach struct {
	recorder     *recorder.Recorder
	api          API
	conversation *conversation.Manager
	autoPlay     bool
	logger       *zap.Logger

	// gate serializes recorder actions with the start of a submission
	gate       sync.Mutex
	processing atomic.Bool

	mu       sync.Mutex
	mode     Mode
	level    entities.Level
	feedback *entities.FeedbackReport
}

func New(rec *recorder.Recorder, api API, conv *conversation.Manager, config Config, logger *zap.Logger) *Coach {
	if config.Mode == "" {
		config.Mode = ModeConversation
	}
	if !config.Level.Valid() {
		config.Level = entities.DefaultLevel
	}
	return &Coach{
		recorder:     rec,
		api:          api,
		conversation: conv,
		autoPlay:     config.AutoPlay,
		logger:       logger,
		mode:         config.Mode,
		level:        config.Level,
	}
}

// SetMode switches mode, discarding the recording and the last feedback
func (c *Coach) SetMode(mode Mode) error {
	if mode != ModePractice && mode != ModeConversation {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	return c.whileIdle(func() {
		c.mu.Lock()
		c.mode = mode
		c.feedback = nil
		c.mu.Unlock()

		c.recorder.Reset()
		c.conversation.Stop()
	})
}

// SetLevel sets the level sent with every request
func (c *Coach) SetLevel(level entities.Level) error {
	if !level.Valid() {
		return domain.ErrInvalidLevel
	}
	c.mu.Lock()
	c.level = level
	c.mu.Unlock()
	return nil
}

func (c *Coach) StartRecording(ctx context.Context) (recorder.Snapshot, error) {
	var snap recorder.Snapshot
	if err := c.whileIdle(func() { snap = c.recorder.StartCapture(ctx) }); err != nil {
		return c.recorder.Snapshot(), err
	}
	return snap, nil
}

func (c *Coach) StopRecording() (recorder.Snapshot, error) {
	var snap recorder.Snapshot
	if err := c.whileIdle(func() { snap = c.recorder.StopCapture() }); err != nil {
		return c.recorder.Snapshot(), err
	}
	return snap, nil
}

// ResetRecording discards the recording and the last feedback
func (c *Coach) ResetRecording() (recorder.Snapshot, error) {
	var snap recorder.Snapshot
	err := c.whileIdle(func() {
		c.mu.Lock()
		c.feedback = nil
		c.mu.Unlock()
		snap = c.recorder.Reset()
	})
	if err != nil {
		return c.recorder.Snapshot(), err
	}
	return snap, nil
}

// whileIdle runs fn under the gate unless a submission is in flight
func (c *Coach) whileIdle(fn func()) error {
	c.gate.Lock()
	defer c.gate.Unlock()
	if c.processing.Load() {
		return ErrBusy
	}
	fn()
	return nil
}

// Submit sends the captured recording. Only one submission runs at a time;
// a concurrent call fails with ErrBusy. Conversation turns are appended only
// when the whole turn succeeded.
func (c *Coach) Submit(ctx context.Context) (Outcome, error) {
	c.gate.Lock()
	started := c.processing.CompareAndSwap(false, true)
	c.gate.Unlock()
	if !started {
		return Outcome{}, ErrBusy
	}
	defer c.processing.Store(false)

	c.mu.Lock()
	mode, level := c.mode, c.level
	c.mu.Unlock()

	audio, ok := c.recorder.Audio()
	if !ok {
		return Outcome{}, &UserError{Message: messageNothingRecorded, Err: domain.ErrEmptyCapture}
	}

	if mode == ModePractice {
		return c.submitPractice(ctx, audio, level)
	}
	return c.submitConversation(ctx, audio, level)
}

// submitPractice keeps the recording on failure so it can be resubmitted
func (c *Coach) submitPractice(ctx context.Context, audio entities.AudioObject, level entities.Level) (Outcome, error) {
	report, err := c.api.Analyze(ctx, audio, level)
	if err != nil {
		c.logger.Error("Practice submission failed",
			zap.String("level", level.String()),
			zap.String("code", domain.ErrorCode(err)),
			zap.Error(err))
		return Outcome{}, &UserError{Message: messagePracticeFailed, Err: err}
	}

	c.mu.Lock()
	c.feedback = report
	c.mu.Unlock()

	c.recorder.Reset()

	c.logger.Info("Feedback received",
		zap.String("level", level.String()),
		zap.Int("overallScore", report.OverallScore))

	return Outcome{Mode: ModePractice, Feedback: report}, nil
}

func (c *Coach) submitConversation(ctx context.Context, audio entities.AudioObject, level entities.Level) (Outcome, error) {
	defer c.recorder.Reset()

	history := c.conversation.HistoryForRequest()

	reply, err := c.api.Converse(ctx, audio, level, history)
	if err == nil && strings.TrimSpace(reply.Transcription) == "" {
		err = domain.ErrNoSpeechDetected
	}
	if err == nil && len(reply.Audio) == 0 {
		err = domain.UpstreamError("synthesize", errors.New("reply without audio"))
	}
	if err != nil {
		c.logger.Error("Conversation submission failed",
			zap.String("level", level.String()),
			zap.Int("historyLength", len(history)),
			zap.String("code", domain.ErrorCode(err)),
			zap.Error(err))
		return Outcome{}, &UserError{Message: messageConversationFailed, Err: err}
	}

	user, assistant := c.conversation.AppendExchange(reply.Transcription, reply.Response, reply.Audio)

	if c.autoPlay {
		if err := c.conversation.Play(ctx, assistant.ID); err != nil {
			c.logger.Warn("Failed to auto-play reply", zap.String("turnID", assistant.ID), zap.Error(err))
		}
	}

	return Outcome{Mode: ModeConversation, User: user, Reply: assistant}, nil
}

// PlayTurn toggles playback of the n-th turn of the log, counting from 1
func (c *Coach) PlayTurn(ctx context.Context, n int) error {
	turns := c.conversation.Turns()
	if n < 1 || n > len(turns) {
		return fmt.Errorf("%w: #%d", conversation.ErrTurnNotFound, n)
	}
	return c.conversation.Play(ctx, turns[n-1].ID)
}

// ClearConversation stops playback and empties the turn log
func (c *Coach) ClearConversation() {
	c.conversation.Clear()
}

// Feedback returns the last practice feedback, if any
func (c *Coach) Feedback() *entities.FeedbackReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feedback
}

func (c *Coach) Snapshot() State {
	c.mu.Lock()
	mode, level := c.mode, c.level
	c.mu.Unlock()

	return State{
		Mode:       mode,
		Level:      level,
		Processing: c.processing.Load(),
		Recording:  c.recorder.Snapshot(),
		Turns:      c.conversation.Len(),
		PlayingID:  c.conversation.PlayingID(),
	}
}

// Close releases the input device and stops playback
func (c *Coach) Close() {
	c.recorder.Close()
	c.conversation.Stop()
}
