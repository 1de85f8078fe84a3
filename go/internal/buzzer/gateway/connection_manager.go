package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/buzzer/go/internal/buzzer/events"
	"github.com/rs/zerolog/log"
)

// Inbound receives connection lifecycle notifications and client frames
type Inbound interface {
	Connected(connectionID string)
	Received(connectionID string, frame []byte)
	Disconnected(connectionID string)
}

// ConnectionManager manages buzzer WebSocket connections and fans out events
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	config ConnectionConfig

	// Events are delivered in the order they were queued
	broadcastCh chan BroadcastMessage

	inbound Inbound
	mirror  Mirror
}

// Connection represents a WebSocket connection to a participant
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time

	// unix nanos of the last keepalive pong, written by the read pump
	lastPing atomic.Int64
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage represents an event queued for delivery
type BroadcastMessage struct {
	Event *events.Event
	// ConnectionID restricts delivery to one connection when set
	ConnectionID string
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024, // 1KB max message size
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000), // Buffer for high throughput
	}
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := time.Now()
	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: now,
	}
	connection.touch(now)

	// Register before the pumps start so Connected is queued ahead of any frame
	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	cm.connections[conn.ID] = conn
	total := len(cm.connections)
	cm.mu.Unlock()

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", total).
		Msg("connection registered")

	if cm.inbound != nil {
		cm.inbound.Connected(conn.ID)
	}
}

// unregisterConnection removes a connection from the manager. The disconnect
// notification is sent once, by whichever caller actually removed it.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) bool {
	cm.mu.Lock()
	if _, exists := cm.connections[conn.ID]; !exists {
		cm.mu.Unlock()
		return false
	}
	delete(cm.connections, conn.ID)
	close(conn.Send)
	cm.mu.Unlock()

	log.Info().
		Str("connection_id", conn.ID).
		Dur("connected_for", time.Since(conn.ConnectedAt)).
		Msg("connection unregistered")

	if cm.inbound != nil {
		cm.inbound.Disconnected(conn.ID)
	}
	return true
}

// SendTo queues an event for a single connection and reports whether it was queued
func (cm *ConnectionManager) SendTo(connectionID string, event *events.Event) bool {
	select {
	case cm.broadcastCh <- BroadcastMessage{Event: event, ConnectionID: connectionID}:
		return true
	default:
		log.Warn().
			Str("connection_id", connectionID).
			Str("event_type", string(event.Type)).
			Msg("broadcast channel full, dropping message")
		return false
	}
}

// Broadcast queues an event for every connection and reports whether it was queued
func (cm *ConnectionManager) Broadcast(event *events.Event) bool {
	select {
	case cm.broadcastCh <- BroadcastMessage{Event: event}:
		return true
	default:
		log.Warn().Str("event_type", string(event.Type)).Msg("broadcast channel full, dropping message")
		return false
	}
}

// handleBroadcast processes a broadcast message
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	// Marshal the event once
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends happen under the read lock so Send cannot be closed underneath us
	var slow []*Connection
	delivered := 0
	cm.mu.RLock()
	if message.ConnectionID != "" {
		if conn, exists := cm.connections[message.ConnectionID]; exists {
			if conn.trySend(eventData) {
				delivered++
			} else {
				slow = append(slow, conn)
			}
		}
	} else {
		for _, conn := range cm.connections {
			if conn.trySend(eventData) {
				delivered++
			} else {
				slow = append(slow, conn)
			}
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		if cm.unregisterConnection(conn) {
			conn.close()
		}
	}

	if message.ConnectionID == "" && message.Event.Type.ToAll() && cm.mirror != nil {
		cm.mirror.Publish(message.Event.Type, eventData)
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("target", message.ConnectionID).
		Int("connections", delivered).
		Msg("event delivered")
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	// Age of the most overdue keepalive pong across all connections
	now := time.Now()
	var oldest time.Duration
	for _, conn := range cm.connections {
		if age := now.Sub(conn.LastPing()); age > oldest {
			oldest = age
		}
	}

	return map[string]interface{}{
		"total_connections":    len(cm.connections),
		"queued_events":        len(cm.broadcastCh),
		"oldest_keepalive_sec": oldest.Seconds(),
	}
}

// closeAll drops every connection on shutdown
func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		if cm.unregisterConnection(conn) {
			conn.close()
		}
	}
}

// LastPing returns when the peer last answered a keepalive ping
func (c *Connection) LastPing() time.Time {
	return time.Unix(0, c.lastPing.Load())
}

func (c *Connection) touch(at time.Time) {
	c.lastPing.Store(at.UnixNano())
}

// trySend queues data without blocking. Callers hold the manager read lock.
func (c *Connection) trySend(data []byte) bool {
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) close() {
	if c.Conn != nil {
		c.Conn.Close()
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send keepalive ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		now := time.Now()
		c.touch(now)
		c.Conn.SetReadDeadline(now.Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))

		if messageType != websocket.TextMessage {
			log.Warn().
				Str("connection_id", c.ID).
				Int("message_type", messageType).
				Msg("ignoring non-text frame")
			continue
		}

		if c.Manager.inbound != nil {
			c.Manager.inbound.Received(c.ID, message)
		}
	}
}
