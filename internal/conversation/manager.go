package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/speakcoach/domain/entities"
	"github.com/satriahrh/speakcoach/domain/repositories"
)

const DefaultHistoryLimit = 10

var (
	ErrTurnNotFound = errors.New("turn not found")
	ErrNotPlayable  = errors.New("turn has no playable audio")
	ErrOutOfOrder   = errors.New("turn timestamp must be after the last turn")
)

// Manager keeps the ordered turn log of one conversation and plays reply
// audio, at most one turn at a time.
type Manager struct {
	player       repositories.AudioPlayer
	historyLimit int
	logger       *zap.Logger
	now          func() time.Time

	mu         sync.Mutex
	turns      []entities.ConversationTurn
	playingID  string
	playback   repositories.Playback
	generation uint64
}

// NewManager creates a manager; a non-positive historyLimit means
// DefaultHistoryLimit.
func NewManager(player repositories.AudioPlayer, historyLimit int, logger *zap.Logger) *Manager {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Manager{
		player:       player,
		historyLimit: historyLimit,
		logger:       logger,
		now:          time.Now,
	}
}

// AppendTurn adds a turn to the end of the log
func (m *Manager) AppendTurn(turn entities.ConversationTurn) error {
	if err := turn.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.turns); n > 0 && !turn.Timestamp.After(m.turns[n-1].Timestamp) {
		return ErrOutOfOrder
	}
	m.turns = append(m.turns, copyTurn(turn))
	return nil
}

// AppendExchange records a completed exchange: the learner's transcription
// followed by the reply and its audio.
func (m *Manager) AppendExchange(userText, replyText string, replyAudio []byte) (entities.ConversationTurn, entities.ConversationTurn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userAt := m.now()
	if n := len(m.turns); n > 0 && !userAt.After(m.turns[n-1].Timestamp) {
		userAt = m.turns[n-1].Timestamp.Add(time.Nanosecond)
	}
	replyAt := m.now()
	if !replyAt.After(userAt) {
		replyAt = userAt.Add(time.Nanosecond)
	}

	user := entities.ConversationTurn{
		ID:        uuid.NewString(),
		Role:      entities.MessageRoleUser,
		Content:   userText,
		Timestamp: userAt,
	}
	assistant := entities.ConversationTurn{
		ID:        uuid.NewString(),
		Role:      entities.MessageRoleAssistant,
		Content:   replyText,
		Audio:     append([]byte(nil), replyAudio...),
		Timestamp: replyAt,
	}

	m.turns = append(m.turns, user, assistant)
	return copyTurn(user), copyTurn(assistant)
}

// Turns returns a copy of the log
func (m *Manager) Turns() []entities.ConversationTurn {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]entities.ConversationTurn, len(m.turns))
	for i, turn := range m.turns {
		out[i] = copyTurn(turn)
	}
	return out
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

// HistoryForRequest returns the most recent turns, oldest first, without
// audio. The result is never nil.
func (m *Manager) HistoryForRequest() []entities.HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]entities.HistoryEntry, len(m.turns))
	for i, turn := range m.turns {
		entries[i] = turn.HistoryEntry()
	}
	return entities.TrailingHistory(entries, m.historyLimit)
}

// Clear stops any playback and empties the log
func (m *Manager) Clear() {
	m.mu.Lock()
	previous := m.detachLocked()
	m.turns = nil
	m.mu.Unlock()

	stopPlayback(previous, m.logger)

	m.logger.Info("Conversation cleared")
}

// Play starts the reply audio of turn id. Playing the turn that is already
// playing stops it; any other playback is stopped first.
func (m *Manager) Play(ctx context.Context, id string) error {
	m.mu.Lock()
	turn, ok := m.findLocked(id)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTurnNotFound, id)
	}
	if turn.Role != entities.MessageRoleAssistant || !turn.HasAudio() {
		m.mu.Unlock()
		return ErrNotPlayable
	}

	toggled := m.playingID == id
	previous := m.detachLocked()
	if toggled {
		m.mu.Unlock()
		stopPlayback(previous, m.logger)
		return nil
	}

	m.generation++
	generation := m.generation
	m.playingID = id
	m.mu.Unlock()

	stopPlayback(previous, m.logger)

	playback, err := m.player.Play(ctx, turn.Audio, func() { m.playbackEnded(generation) })
	if err != nil {
		m.mu.Lock()
		if m.generation == generation {
			m.playingID = ""
		}
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	if m.generation != generation || m.playingID != id {
		// superseded or already finished while starting
		m.mu.Unlock()
		stopPlayback(playback, m.logger)
		return nil
	}
	m.playback = playback
	m.mu.Unlock()

	return nil
}

// Stop ends any playback; safe when nothing plays
func (m *Manager) Stop() {
	m.mu.Lock()
	previous := m.detachLocked()
	m.mu.Unlock()

	stopPlayback(previous, m.logger)
}

// PlayingID returns the id of the turn being played, or ""
func (m *Manager) PlayingID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playingID
}

func (m *Manager) playbackEnded(generation uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != generation {
		return
	}
	m.playingID = ""
	m.playback = nil
}

// detachLocked clears the playing state and invalidates pending end
// callbacks, returning the playback to stop outside the lock.
func (m *Manager) detachLocked() repositories.Playback {
	previous := m.playback
	m.playback = nil
	m.playingID = ""
	m.generation++
	return previous
}

func (m *Manager) findLocked(id string) (entities.ConversationTurn, bool) {
	for _, turn := range m.turns {
		if turn.ID == id {
			return turn, true
		}
	}
	return entities.ConversationTurn{}, false
}

func stopPlayback(playback repositories.Playback, logger *zap.Logger) {
	if playback == nil {
		return
	}
	if err := playback.Stop(); err != nil {
		logger.Warn("Failed to stop playback", zap.Error(err))
	}
}

func copyTurn(turn entities.ConversationTurn) entities.ConversationTurn {
	if turn.Audio != nil {
		turn.Audio = append([]byte(nil), turn.Audio...)
	}
	return turn
}
