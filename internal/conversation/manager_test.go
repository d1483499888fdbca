package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/speakcoach/domain/entities"
	"github.com/satriahrh/speakcoach/domain/repositories"
)

type fakePlayer struct {
	mu        sync.Mutex
	playbacks []*fakePlayback
	err       error

	// when set, Play signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func (p *fakePlayer) Play(ctx context.Context, audio []byte, onEnded func()) (repositories.Playback, error) {
	if p.entered != nil {
		close(p.entered)
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	pb := &fakePlayback{audio: string(audio), onEnded: onEnded}
	p.playbacks = append(p.playbacks, pb)
	return pb, nil
}

func (p *fakePlayer) active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, pb := range p.playbacks {
		if !pb.isStopped() {
			n++
		}
	}
	return n
}

func (p *fakePlayer) last() *fakePlayback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playbacks[len(p.playbacks)-1]
}

type fakePlayback struct {
	mu      sync.Mutex
	audio   string
	stopped bool
	onEnded func()
}

func (pb *fakePlayback) Stop() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.stopped = true
	return nil
}

func (pb *fakePlayback) isStopped() bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.stopped
}

// finish simulates playback reaching its natural end
func (pb *fakePlayback) finish() {
	pb.mu.Lock()
	pb.stopped = true
	pb.mu.Unlock()
	pb.onEnded()
}

func newManager(t *testing.T, player *fakePlayer) *Manager {
	return NewManager(player, 0, zaptest.NewLogger(t))
}

func TestAppendExchangeOrdersTurns(t *testing.T) {
	m := newManager(t, &fakePlayer{})

	user, assistant := m.AppendExchange("I sink so", "I think so...", []byte("mp3"))

	turns := m.Turns()
	if len(turns) != 2 {
		t.Fatalf("Expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != entities.MessageRoleUser || turns[1].Role != entities.MessageRoleAssistant {
		t.Errorf("Expected [user, assistant], got [%s, %s]", turns[0].Role, turns[1].Role)
	}
	if turns[0].ID != user.ID || turns[1].ID != assistant.ID || user.ID == assistant.ID {
		t.Error("Expected distinct ids matching the returned turns")
	}
	if !turns[1].Timestamp.After(turns[0].Timestamp) {
		t.Error("Expected strictly increasing timestamps")
	}
	if turns[0].HasAudio() || string(turns[1].Audio) != "mp3" {
		t.Error("Expected audio on the assistant turn only")
	}
}

func TestAppendExchangeWithFrozenClock(t *testing.T) {
	m := newManager(t, &fakePlayer{})
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return frozen }

	m.AppendExchange("a", "b", nil)
	m.AppendExchange("c", "d", nil)

	turns := m.Turns()
	for i := 1; i < len(turns); i++ {
		if !turns[i].Timestamp.After(turns[i-1].Timestamp) {
			t.Errorf("Turn %d timestamp not after turn %d", i, i-1)
		}
	}
}

func TestAppendTurnValidation(t *testing.T) {
	m := newManager(t, &fakePlayer{})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := m.AppendTurn(entities.ConversationTurn{ID: "1", Role: entities.MessageRoleUser, Content: "hi", Timestamp: base}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := m.AppendTurn(entities.ConversationTurn{ID: "2", Role: entities.MessageRoleAssistant, Timestamp: base}); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("Expected ErrOutOfOrder, got %v", err)
	}
	if err := m.AppendTurn(entities.ConversationTurn{ID: "3", Role: entities.MessageRoleUser, Audio: []byte("x"), Timestamp: base.Add(time.Second)}); err == nil {
		t.Error("Expected user turn with audio to be rejected")
	}
	if err := m.AppendTurn(entities.ConversationTurn{ID: "4", Role: "system", Timestamp: base.Add(time.Second)}); err == nil {
		t.Error("Expected unknown role to be rejected")
	}
	if m.Len() != 1 {
		t.Errorf("Expected 1 turn, got %d", m.Len())
	}
}

func TestTurnsAreCopies(t *testing.T) {
	m := newManager(t, &fakePlayer{})
	m.AppendExchange("hi", "hello", []byte("mp3"))

	turns := m.Turns()
	turns[1].Audio[0] = 'X'
	turns[0].Content = "changed"

	again := m.Turns()
	if string(again[1].Audio) != "mp3" || again[0].Content != "hi" {
		t.Error("Expected the log to be unaffected by caller mutation")
	}
}

func TestHistoryForRequest(t *testing.T) {
	for _, exchanges := range []int{0, 1, 4, 5, 6, 20} {
		t.Run(fmt.Sprintf("%d exchanges", exchanges), func(t *testing.T) {
			m := newManager(t, &fakePlayer{})
			for i := 0; i < exchanges; i++ {
				m.AppendExchange(fmt.Sprintf("user %d", i), fmt.Sprintf("reply %d", i), []byte("mp3"))
			}

			history := m.HistoryForRequest()
			if history == nil {
				t.Fatal("Expected non-nil history")
			}

			want := 2 * exchanges
			if want > DefaultHistoryLimit {
				want = DefaultHistoryLimit
			}
			if len(history) != want {
				t.Fatalf("Expected %d entries, got %d", want, len(history))
			}

			turns := m.Turns()
			offset := len(turns) - len(history)
			for i, entry := range history {
				if entry.ID != turns[offset+i].ID {
					t.Errorf("Entry %d out of order", i)
				}
			}
		})
	}
}

func TestPlayToggleAndSwitch(t *testing.T) {
	player := &fakePlayer{}
	m := newManager(t, player)
	_, a := m.AppendExchange("one", "reply one", []byte("audio-a"))
	_, b := m.AppendExchange("two", "reply two", []byte("audio-b"))

	if err := m.Play(context.Background(), a.ID); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if m.PlayingID() != a.ID {
		t.Errorf("Expected %s playing, got %s", a.ID, m.PlayingID())
	}

	if err := m.Play(context.Background(), b.ID); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if m.PlayingID() != b.ID {
		t.Errorf("Expected %s playing, got %s", b.ID, m.PlayingID())
	}
	if player.active() != 1 {
		t.Errorf("Expected exactly one active playback, got %d", player.active())
	}
	if player.last().audio != "audio-b" {
		t.Errorf("Expected audio-b playing, got %s", player.last().audio)
	}

	if err := m.Play(context.Background(), b.ID); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if m.PlayingID() != "" || player.active() != 0 {
		t.Error("Expected toggle to stop playback")
	}
}

func TestPlayErrors(t *testing.T) {
	m := newManager(t, &fakePlayer{})
	user, silent := m.AppendExchange("hi", "no audio", nil)

	if err := m.Play(context.Background(), "missing"); !errors.Is(err, ErrTurnNotFound) {
		t.Errorf("Expected ErrTurnNotFound, got %v", err)
	}
	if err := m.Play(context.Background(), user.ID); !errors.Is(err, ErrNotPlayable) {
		t.Errorf("Expected ErrNotPlayable for user turn, got %v", err)
	}
	if err := m.Play(context.Background(), silent.ID); !errors.Is(err, ErrNotPlayable) {
		t.Errorf("Expected ErrNotPlayable for silent reply, got %v", err)
	}
}

func TestPlayerFailureClearsPlayingState(t *testing.T) {
	player := &fakePlayer{err: errors.New("no output device")}
	m := newManager(t, player)
	_, a := m.AppendExchange("hi", "hello", []byte("mp3"))

	if err := m.Play(context.Background(), a.ID); err == nil {
		t.Fatal("Expected player error")
	}
	if m.PlayingID() != "" {
		t.Errorf("Expected nothing playing, got %s", m.PlayingID())
	}
}

func TestNaturalEndAndStaleCallbacks(t *testing.T) {
	player := &fakePlayer{}
	m := newManager(t, player)
	_, a := m.AppendExchange("one", "reply one", []byte("a"))
	_, b := m.AppendExchange("two", "reply two", []byte("b"))

	m.Play(context.Background(), a.ID)
	first := player.last()
	m.Play(context.Background(), b.ID)
	second := player.last()

	// the superseded playback ending late must not clear b
	first.onEnded()
	if m.PlayingID() != b.ID {
		t.Errorf("Expected %s still playing, got %q", b.ID, m.PlayingID())
	}

	second.finish()
	if m.PlayingID() != "" {
		t.Errorf("Expected natural end to clear playing state, got %q", m.PlayingID())
	}

	// Stop when idle is safe
	m.Stop()
}

func TestClearStopsPlaybackFirst(t *testing.T) {
	player := &fakePlayer{}
	m := newManager(t, player)
	_, a := m.AppendExchange("hi", "hello", []byte("mp3"))

	m.Play(context.Background(), a.ID)
	m.Clear()

	if !player.last().isStopped() {
		t.Error("Expected playback stopped")
	}
	if m.Len() != 0 || m.PlayingID() != "" {
		t.Errorf("Expected empty idle log, got %d turns playing %q", m.Len(), m.PlayingID())
	}
}

func TestClearDuringPlaybackStart(t *testing.T) {
	player := &fakePlayer{entered: make(chan struct{}), release: make(chan struct{})}
	m := newManager(t, player)
	_, a := m.AppendExchange("hi", "hello", []byte("mp3"))

	done := make(chan error, 1)
	go func() { done <- m.Play(context.Background(), a.ID) }()
	<-player.entered

	m.Clear()
	close(player.release)
	if err := <-done; err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if m.PlayingID() != "" {
		t.Errorf("Expected nothing playing after clear, got %q", m.PlayingID())
	}
	if player.active() != 0 {
		t.Errorf("Expected the late playback to be stopped, %d still active", player.active())
	}
	if m.Len() != 0 {
		t.Errorf("Expected empty log, got %d turns", m.Len())
	}
}
