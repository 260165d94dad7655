package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// NarrativeUpdate is the message pushed to stream clients after every fold
type NarrativeUpdate struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Narrative string `json:"narrative"`
	Timestamp int64  `json:"timestamp"`
}

type streamClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Broadcaster fans narrative updates out to websocket clients subscribed per
// session. Slow clients are dropped rather than allowed to stall the pipeline.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[string]map[string]*streamClient // session id -> client id
	logger  zerolog.Logger
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]map[string]*streamClient),
		logger:  logger.With().Str("module", "broadcaster").Logger(),
	}
}

// Attach registers a websocket connection for a session's updates and blocks
// until the client disconnects.
func (b *Broadcaster) Attach(sessionID string, conn *websocket.Conn) {
	id, err := gonanoid.New()
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to generate client id")
		conn.Close()
		return
	}

	c := &streamClient{
		id:   id,
		conn: conn,
		send: make(chan []byte, 16),
	}

	b.mu.Lock()
	if b.clients[sessionID] == nil {
		b.clients[sessionID] = make(map[string]*streamClient)
	}
	b.clients[sessionID][id] = c
	b.mu.Unlock()

	b.logger.Debug().Str("session_id", sessionID).Str("client_id", id).Msg("Stream client attached")

	go b.writeLoop(sessionID, c)

	// Drain incoming frames so pings and the close handshake work; the
	// stream is one-way.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	b.detach(sessionID, c)
}

func (b *Broadcaster) writeLoop(sessionID string, c *streamClient) {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			b.logger.Debug().Err(err).Str("client_id", c.id).Msg("Stream write failed")
			b.detach(sessionID, c)
			return
		}
	}
}

func (b *Broadcaster) detach(sessionID string, c *streamClient) {
	b.mu.Lock()
	clients, ok := b.clients[sessionID]
	if ok {
		if _, present := clients[c.id]; present {
			delete(clients, c.id)
			close(c.send)
			if len(clients) == 0 {
				delete(b.clients, sessionID)
			}
		}
	}
	b.mu.Unlock()

	c.conn.Close()
}

// Publish sends the updated narrative to every client subscribed to the
// session. Matches session.NarrativeFunc.
func (b *Broadcaster) Publish(sessionID, narrative string) {
	msg, err := json.Marshal(NarrativeUpdate{
		Type:      "narrative_update",
		SessionID: sessionID,
		Narrative: narrative,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to marshal narrative update")
		return
	}

	b.mu.RLock()
	var dropped []*streamClient
	for _, c := range b.clients[sessionID] {
		select {
		case c.send <- msg:
		default:
			dropped = append(dropped, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range dropped {
		b.logger.Warn().Str("client_id", c.id).Msg("Dropping slow stream client")
		b.detach(sessionID, c)
	}
}

// ClientCount returns the number of clients subscribed to a session
func (b *Broadcaster) ClientCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[sessionID])
}
