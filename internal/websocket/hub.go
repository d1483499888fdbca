package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/speakcoach/domain"
	"github.com/satriahrh/speakcoach/domain/entities"
	"github.com/satriahrh/speakcoach/internal/metrics"
	"github.com/satriahrh/speakcoach/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer.
	maxMessageSize = 1024 * 1024

	// Utterances waiting for the pipeline per connection.
	utteranceQueueSize = 4

	defaultMaxUtteranceBytes = 25 << 20
)

var (
	errNotListening      = fmt.Errorf("%w: no utterance in progress", domain.ErrNoAudio)
	errUtteranceTooLarge = fmt.Errorf("%w: utterance exceeds size limit", domain.ErrNoAudio)
	errTooManyUtterances = errors.New("too many utterances in flight")
	errHubStopped        = errors.New("hub stopped")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Converser produces one conversation turn
type Converser interface {
	Converse(ctx context.Context, req usecase.ConverseRequest) (*usecase.ConverseResult, error)
}

// HubConfig tunes the live transport
type HubConfig struct {
	MaxUtteranceBytes int
}

// Hub maintains the set of live conversation connections
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	converser Converser
	config    HubConfig
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewHub creates a new WebSocket hub. metrics may be nil.
func NewHub(converser Converser, config HubConfig, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if config.MaxUtteranceBytes <= 0 {
		config.MaxUtteranceBytes = defaultMaxUtteranceBytes
	}
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		converser:  converser,
		config:     config,
		metrics:    m,
		logger:     logger,
	}
}

// Run starts the hub's main loop. When ctx ends every connection is closed.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.mu.Lock()
		for id, client := range h.clients {
			client.close()
			delete(h.clients, id)
		}
		h.mu.Unlock()
	}()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.LiveConnectionOpened()
			}
			h.logger.Info("Client registered", zap.String("clientID", client.id))

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client.id]
			delete(h.clients, client.id)
			h.mu.Unlock()
			if ok && h.metrics != nil {
				h.metrics.LiveConnectionClosed()
			}
			h.logger.Info("Client unregistered", zap.String("clientID", client.id))

		case <-ctx.Done():
			return
		}
	}
}

// ClientCount returns the number of registered connections
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// utterance is one recording received between listening_start and
// listening_end
type utterance struct {
	level    entities.Level
	mimeType string
	history  []entities.HistoryEntry
	data     []byte
	started  time.Time
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	id string

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	utterances chan utterance

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	validator *MessageValidator
	logger    *zap.Logger

	mutex   sync.Mutex
	current *utterance
}

// HandleWebSocket upgrades the request into a live conversation connection
func HandleWebSocket(hub *Hub, c echo.Context, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:        hub,
		id:         uuid.NewString(),
		conn:       conn,
		send:       make(chan WriteData, 256),
		utterances: make(chan utterance, utteranceQueueSize),
		ctx:        ctx,
		cancel:     cancel,
		validator:  NewMessageValidator(),
		logger:     logger,
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		cancel()
		conn.Close()
		return errHubStopped
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.processPump()
	go client.readPump()

	return nil
}

// close ends the connection's goroutines; safe to call more than once
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.conn.Close()
	})
}

// readPump pumps messages from the websocket connection to the client.
func (c *Client) readPump() {
	defer func() {
		c.close()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", zap.String("clientID", c.id), zap.Error(err))
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the client to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.String("clientID", c.id), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// processPump runs queued utterances through the conversation pipeline one
// at a time, so replies keep the order of the utterances.
func (c *Client) processPump() {
	for {
		select {
		case u := <-c.utterances:
			c.respond(u)
		case <-c.ctx.Done():
			return
		}
	}
}

// sendJSON queues a text frame; dropped once the connection is closing
func (c *Client) sendJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to encode message", zap.Error(err))
		return
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	case <-c.ctx.Done():
	}
}

func (c *Client) sendError(err error) {
	c.sendJSON(CreateErrorMessage(err))
}

// processMessage processes incoming control messages
func (c *Client) processMessage(message []byte) {
	msg, err := c.validator.ValidateMessage(message)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidLevel) || errors.Is(err, domain.ErrInvalidHistory) {
			c.sendError(err)
			return
		}
		c.logger.Warn("Ignoring control message", zap.String("clientID", c.id), zap.Error(err))
		return
	}

	switch m := msg.(type) {
	case *ListeningStartMessage:
		c.handleListeningStart(m)
	case *ListeningEndMessage:
		c.handleListeningEnd()
	}
}

// handleListeningStart opens a new utterance, discarding any unfinished one
func (c *Client) handleListeningStart(msg *ListeningStartMessage) {
	c.mutex.Lock()
	if c.current != nil {
		c.logger.Warn("Discarding unfinished utterance", zap.String("clientID", c.id))
	}
	c.current = &utterance{
		level:    msg.Level,
		mimeType: msg.MimeType,
		history:  msg.History,
		started:  time.Now(),
	}
	c.mutex.Unlock()

	c.logger.Info("Listening started",
		zap.String("clientID", c.id),
		zap.String("level", msg.Level.String()),
		zap.Int("historyLength", len(msg.History)))

	c.sendJSON(CreateAckMessage("listening started"))
}

// processBinaryAudioChunk appends audio to the open utterance
func (c *Client) processBinaryAudioChunk(data []byte) {
	c.mutex.Lock()
	if c.current == nil {
		c.mutex.Unlock()
		c.logger.Debug("Ignoring audio outside an utterance", zap.String("clientID", c.id), zap.Int("size", len(data)))
		return
	}

	if len(c.current.data)+len(data) > c.hub.config.MaxUtteranceBytes {
		c.current = nil
		c.mutex.Unlock()
		c.sendError(errUtteranceTooLarge)
		return
	}

	c.current.data = append(c.current.data, data...)
	c.mutex.Unlock()
}

// handleListeningEnd closes the utterance and queues it for processing
func (c *Client) handleListeningEnd() {
	c.mutex.Lock()
	u := c.current
	c.current = nil
	c.mutex.Unlock()

	if u == nil {
		c.sendError(errNotListening)
		return
	}

	if c.hub.metrics != nil {
		c.hub.metrics.RecordLiveUtterance()
	}

	c.logger.Info("Listening ended",
		zap.String("clientID", c.id),
		zap.Int("audioSize", len(u.data)),
		zap.Duration("duration", time.Since(u.started)))

	select {
	case c.utterances <- *u:
	default:
		c.sendError(domain.UpstreamError("queue", errTooManyUtterances))
	}
}

func (c *Client) respond(u utterance) {
	result, err := c.hub.converser.Converse(c.ctx, usecase.ConverseRequest{
		Audio: entities.AudioObject{
			Data:     u.data,
			MimeType: u.mimeType,
			Duration: time.Since(u.started),
		},
		Level:   u.level,
		History: u.history,
	})
	if err != nil {
		c.logger.Error("Live conversation turn failed", zap.String("clientID", c.id), zap.Error(err))
		c.sendError(err)
		return
	}

	c.sendJSON(CreateReplyMessage(result.Transcription, result.Response, result.Audio))
}
