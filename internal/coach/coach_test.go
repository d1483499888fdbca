package coach

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/speakcoach/domain"
	"github.com/satriahrh/speakcoach/domain/entities"
	"github.com/satriahrh/speakcoach/domain/repositories"
	"github.com/satriahrh/speakcoach/internal/client"
	"github.com/satriahrh/speakcoach/internal/conversation"
	"github.com/satriahrh/speakcoach/internal/recorder"
)

type fakeInput struct {
	stream *fakeStream

	// when set, Acquire signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func (f *fakeInput) Acquire(ctx context.Context) (repositories.AudioStream, error) {
	if f.entered != nil {
		close(f.entered)
		<-f.release
	}
	f.stream = &fakeStream{chunks: make(chan []byte, 8)}
	return f.stream, nil
}

type fakeStream struct {
	chunks chan []byte
	once   sync.Once
}

func (s *fakeStream) Chunks() <-chan []byte { return s.chunks }
func (s *fakeStream) MimeType() string      { return "audio/webm" }
func (s *fakeStream) Release() error {
	s.once.Do(func() { close(s.chunks) })
	return nil
}

type fakePlayer struct {
	mu    sync.Mutex
	plays int
}

func (p *fakePlayer) Play(ctx context.Context, audio []byte, onEnded func()) (repositories.Playback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays++
	return &fakePlayback{}, nil
}

type fakePlayback struct{}

func (fakePlayback) Stop() error { return nil }

type fakeAPI struct {
	mu      sync.Mutex
	history []entities.HistoryEntry
	level   entities.Level
	reply   *client.ConversationReply
	report  *entities.FeedbackReport
	err     error
	calls   int
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeAPI) Analyze(ctx context.Context, audio entities.AudioObject, level entities.Level) (*entities.FeedbackReport, error) {
	f.mu.Lock()
	f.calls++
	f.level = level
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

func (f *fakeAPI) Converse(ctx context.Context, audio entities.AudioObject, level entities.Level, history []entities.HistoryEntry) (*client.ConversationReply, error) {
	f.mu.Lock()
	f.calls++
	f.level = level
	f.history = history
	f.mu.Unlock()
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

type harness struct {
	coach  *Coach
	input  *fakeInput
	player *fakePlayer
	api    *fakeAPI
	conv   *conversation.Manager
}

func newHarness(t *testing.T, mode Mode, api *fakeAPI) *harness {
	logger := zaptest.NewLogger(t)
	input := &fakeInput{}
	player := &fakePlayer{}
	conv := conversation.NewManager(player, 0, logger)
	rec := recorder.New(input, recorder.Config{DrainTimeout: time.Second}, logger)
	c := New(rec, api, conv, Config{Mode: mode, Level: entities.LevelB1, AutoPlay: true}, logger)
	t.Cleanup(c.Close)
	return &harness{coach: c, input: input, player: player, api: api, conv: conv}
}

func (h *harness) record(t *testing.T, data string) {
	t.Helper()
	if _, err := h.coach.StartRecording(context.Background()); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	h.input.stream.chunks <- []byte(data)
	snap, err := h.coach.StopRecording()
	if err != nil || snap.Status != recorder.StatusCaptured {
		t.Fatalf("Expected captured recording, got %+v %v", snap, err)
	}
}

func conversationReply() *client.ConversationReply {
	return &client.ConversationReply{Transcription: "I sink so", Response: "I think so...", Audio: []byte("mp3")}
}

func TestConversationSubmission(t *testing.T) {
	api := &fakeAPI{reply: conversationReply()}
	h := newHarness(t, ModeConversation, api)

	h.record(t, "0123456789012345678901234")
	outcome, err := h.coach.Submit(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if api.history == nil || len(api.history) != 0 {
		t.Errorf("Expected empty history on first turn, got %v", api.history)
	}
	if api.level != entities.LevelB1 {
		t.Errorf("Expected level B1, got %s", api.level)
	}

	turns := h.conv.Turns()
	if len(turns) != 2 || turns[0].Role != entities.MessageRoleUser || turns[1].Role != entities.MessageRoleAssistant {
		t.Fatalf("Expected [user, assistant], got %+v", turns)
	}
	if turns[0].Content != "I sink so" || outcome.Reply.ID != turns[1].ID {
		t.Errorf("Unexpected outcome %+v", outcome)
	}
	if h.conv.PlayingID() != outcome.Reply.ID || h.player.plays != 1 {
		t.Error("Expected reply to auto-play")
	}
	if snap := h.coach.Snapshot(); snap.Recording.Status != recorder.StatusIdle {
		t.Errorf("Expected recorder reset, got %s", snap.Recording.Status)
	}

	// second turn carries the first exchange
	h.record(t, "again")
	if _, err := h.coach.Submit(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(api.history) != 2 {
		t.Errorf("Expected 2 history entries, got %d", len(api.history))
	}
}

func TestConversationFailureAppendsNothing(t *testing.T) {
	tests := map[string]*fakeAPI{
		"no speech": {err: domain.ErrNoSpeechDetected},
		"upstream":  {err: domain.UpstreamError("synthesize", errors.New("boom"))},
		"blank":     {reply: &client.ConversationReply{Transcription: "  ", Response: "?", Audio: []byte("a")}},
		"no audio":  {reply: &client.ConversationReply{Transcription: "hi", Response: "hello"}},
	}

	for name, api := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, ModeConversation, api)
			h.record(t, "audio")

			_, err := h.coach.Submit(context.Background())
			var userErr *UserError
			if !errors.As(err, &userErr) {
				t.Fatalf("Expected UserError, got %v", err)
			}
			if userErr.Message != messageConversationFailed {
				t.Errorf("Unexpected message %q", userErr.Message)
			}
			if h.conv.Len() != 0 {
				t.Errorf("Expected no turns, got %d", h.conv.Len())
			}
			if snap := h.coach.Snapshot(); snap.Recording.Status != recorder.StatusIdle || snap.Processing {
				t.Errorf("Expected stable idle state, got %+v", snap)
			}
		})
	}
}

func TestNoSpeechUnwrapsToSentinel(t *testing.T) {
	h := newHarness(t, ModeConversation, &fakeAPI{err: domain.ErrNoSpeechDetected})
	h.record(t, "audio")

	_, err := h.coach.Submit(context.Background())
	if !errors.Is(err, domain.ErrNoSpeechDetected) {
		t.Errorf("Expected ErrNoSpeechDetected, got %v", err)
	}
}

func TestPracticeSubmission(t *testing.T) {
	api := &fakeAPI{report: &entities.FeedbackReport{Transcription: "hello", OverallScore: 77}}
	h := newHarness(t, ModePractice, api)
	h.coach.SetLevel(entities.LevelC1)

	h.record(t, "audio")
	outcome, err := h.coach.Submit(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if outcome.Feedback.OverallScore != 77 || h.coach.Feedback() == nil {
		t.Errorf("Expected stored feedback, got %+v", outcome)
	}
	if api.level != entities.LevelC1 {
		t.Errorf("Expected level C1, got %s", api.level)
	}
	if h.conv.Len() != 0 {
		t.Error("Practice mode must not touch the conversation")
	}

	if err := h.coach.SetMode(ModeConversation); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if h.coach.Feedback() != nil {
		t.Error("Expected feedback cleared on mode change")
	}
}

func TestPracticeFailureKeepsRecording(t *testing.T) {
	api := &fakeAPI{err: domain.MalformedError("parse", nil)}
	h := newHarness(t, ModePractice, api)
	h.record(t, "audio")

	_, err := h.coach.Submit(context.Background())
	var userErr *UserError
	if !errors.As(err, &userErr) || userErr.Message != messagePracticeFailed {
		t.Fatalf("Expected practice UserError, got %v", err)
	}
	if !errors.Is(err, domain.ErrMalformedResponse) {
		t.Error("Expected UserError to unwrap to the cause")
	}
	if snap := h.coach.Snapshot(); snap.Recording.Status != recorder.StatusCaptured {
		t.Errorf("Expected recording kept for resubmission, got %s", snap.Recording.Status)
	}
}

func TestSubmitWithoutRecording(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, ModeConversation, api)

	_, err := h.coach.Submit(context.Background())
	if !errors.Is(err, domain.ErrEmptyCapture) {
		t.Errorf("Expected ErrEmptyCapture, got %v", err)
	}
	if api.calls != 0 {
		t.Errorf("Expected no request, got %d", api.calls)
	}
}

func TestConcurrentSubmitIsRefused(t *testing.T) {
	api := &fakeAPI{reply: conversationReply(), block: make(chan struct{}), entered: make(chan struct{})}
	h := newHarness(t, ModeConversation, api)
	h.record(t, "audio")

	done := make(chan error, 1)
	go func() {
		_, err := h.coach.Submit(context.Background())
		done <- err
	}()
	<-api.entered

	if _, err := h.coach.Submit(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
	if _, err := h.coach.StartRecording(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy for StartRecording, got %v", err)
	}
	if err := h.coach.SetMode(ModePractice); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy for SetMode, got %v", err)
	}
	if !h.coach.Snapshot().Processing {
		t.Error("Expected processing flag set")
	}

	close(api.block)
	if err := <-done; err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if h.conv.Len() != 2 {
		t.Errorf("Expected exactly one exchange, got %d turns", h.conv.Len())
	}
}

func TestSubmitWaitsForRecorderAction(t *testing.T) {
	api := &fakeAPI{reply: conversationReply()}
	h := newHarness(t, ModeConversation, api)
	h.record(t, "first take")

	h.input.entered = make(chan struct{})
	h.input.release = make(chan struct{})

	started := make(chan error, 1)
	go func() {
		_, err := h.coach.StartRecording(context.Background())
		started <- err
	}()
	<-h.input.entered

	submitted := make(chan error, 1)
	go func() {
		_, err := h.coach.Submit(context.Background())
		submitted <- err
	}()

	select {
	case err := <-submitted:
		t.Fatalf("Expected Submit to wait for StartRecording, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(h.input.release)
	if err := <-started; err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := <-submitted; !errors.Is(err, domain.ErrEmptyCapture) {
		t.Errorf("Expected ErrEmptyCapture while recording, got %v", err)
	}
	if api.calls != 0 {
		t.Errorf("Expected no request, got %d", api.calls)
	}
	if snap := h.coach.Snapshot(); snap.Recording.Status != recorder.StatusRecording {
		t.Errorf("Expected the new recording to survive, got %s", snap.Recording.Status)
	}
}

func TestSetLevelAndMode(t *testing.T) {
	h := newHarness(t, ModeConversation, &fakeAPI{})

	if err := h.coach.SetLevel("Z1"); !errors.Is(err, domain.ErrInvalidLevel) {
		t.Errorf("Expected ErrInvalidLevel, got %v", err)
	}
	if err := h.coach.SetMode("karaoke"); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("Expected ErrInvalidMode, got %v", err)
	}

	h.record(t, "audio")
	h.coach.SetMode(ModePractice)
	snap := h.coach.Snapshot()
	if snap.Mode != ModePractice || snap.Recording.Status != recorder.StatusIdle {
		t.Errorf("Expected practice mode with reset recorder, got %+v", snap)
	}
}

func TestClearConversation(t *testing.T) {
	h := newHarness(t, ModeConversation, &fakeAPI{reply: conversationReply()})
	h.record(t, "audio")
	h.coach.Submit(context.Background())

	h.coach.ClearConversation()
	snap := h.coach.Snapshot()
	if snap.Turns != 0 || snap.PlayingID != "" {
		t.Errorf("Expected empty conversation, got %+v", snap)
	}
}

func TestPlayTurn(t *testing.T) {
	h := newHarness(t, ModeConversation, &fakeAPI{reply: conversationReply()})
	h.record(t, "audio")
	outcome, _ := h.coach.Submit(context.Background())

	// auto-played reply is turn 2; playing it again toggles it off
	if err := h.coach.PlayTurn(context.Background(), 2); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if h.conv.PlayingID() != "" {
		t.Errorf("Expected toggle off, still playing %s", h.conv.PlayingID())
	}
	if err := h.coach.PlayTurn(context.Background(), 2); err != nil || h.conv.PlayingID() != outcome.Reply.ID {
		t.Errorf("Expected reply playing again, err %v", err)
	}

	if err := h.coach.PlayTurn(context.Background(), 1); !errors.Is(err, conversation.ErrNotPlayable) {
		t.Errorf("Expected ErrNotPlayable for the user turn, got %v", err)
	}
	if err := h.coach.PlayTurn(context.Background(), 9); !errors.Is(err, conversation.ErrTurnNotFound) {
		t.Errorf("Expected ErrTurnNotFound, got %v", err)
	}
}
