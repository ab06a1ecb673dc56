package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zaHanley/code-racer/go/internal/race/events"
)

// ConnectionManager owns all live WebSocket connections and the per-race
// rooms that broadcasts fan out to.
type ConnectionManager struct {
	// All connections by socket ID
	connections map[string]*Connection

	// Room membership organized by race ID
	rooms map[uuid.UUID]map[string]*Connection

	mu sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig

	// Event broadcasting
	broadcastCh chan broadcastMessage
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	UserID  string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	// Connection metadata
	ConnectedAt time.Time
	LastPing    time.Time

	onMessage func(conn *Connection, data []byte)
	onClose   func(conn *Connection)
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// broadcastMessage is either a race-room fanout or, when SocketID is set, a
// unicast to one connection.
type broadcastMessage struct {
	RaceID   uuid.UUID
	SocketID string
	Event    *events.Event
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		rooms:       make(map[uuid.UUID]map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket. onMessage is
// invoked for every inbound frame, onClose once when the connection drops.
func (cm *ConnectionManager) UpgradeConnection(
	w http.ResponseWriter,
	r *http.Request,
	userID string,
	onMessage func(conn *Connection, data []byte),
	onClose func(conn *Connection),
) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return nil, err
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
		onMessage:   onMessage,
		onClose:     onClose,
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("socket_id", connection.ID).
		Str("user_id", userID).
		Msg("WebSocket connection established")

	return connection, nil
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[conn.ID] = conn
}

// unregisterConnection removes a connection and its room membership
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	_, registered := cm.connections[conn.ID]
	if registered {
		delete(cm.connections, conn.ID)
		for raceID, members := range cm.rooms {
			if _, ok := members[conn.ID]; ok {
				delete(members, conn.ID)
				if len(members) == 0 {
					delete(cm.rooms, raceID)
				}
			}
		}
		close(conn.Send)
	}
	cm.mu.Unlock()

	if registered {
		log.Info().
			Str("socket_id", conn.ID).
			Str("user_id", conn.UserID).
			Msg("connection unregistered")
		if conn.onClose != nil {
			conn.onClose(conn)
		}
	}
}

// JoinRoom subscribes a connection to a race's broadcasts.
func (cm *ConnectionManager) JoinRoom(socketID string, raceID uuid.UUID) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	conn, ok := cm.connections[socketID]
	if !ok {
		return
	}
	if cm.rooms[raceID] == nil {
		cm.rooms[raceID] = make(map[string]*Connection)
	}
	cm.rooms[raceID][socketID] = conn
}

// LeaveRoom unsubscribes a connection from a race's broadcasts.
func (cm *ConnectionManager) LeaveRoom(socketID string, raceID uuid.UUID) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if members, ok := cm.rooms[raceID]; ok {
		delete(members, socketID)
		if len(members) == 0 {
			delete(cm.rooms, raceID)
		}
	}
}

// BroadcastToRace sends an event to every connection in a race's room.
func (cm *ConnectionManager) BroadcastToRace(raceID uuid.UUID, event *events.Event) {
	select {
	case cm.broadcastCh <- broadcastMessage{RaceID: raceID, Event: event}:
	default:
		log.Warn().Str("race_id", raceID.String()).Msg("broadcast channel full, dropping message")
	}
}

// SendToSocket sends an event to one specific connection.
func (cm *ConnectionManager) SendToSocket(socketID string, event *events.Event) {
	select {
	case cm.broadcastCh <- broadcastMessage{SocketID: socketID, Event: event}:
	default:
		log.Warn().Str("socket_id", socketID).Msg("broadcast channel full, dropping unicast")
	}
}

// handleBroadcast processes a broadcast message
func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	cm.mu.RLock()
	var targets []*Connection
	if message.SocketID != "" {
		if conn, ok := cm.connections[message.SocketID]; ok {
			targets = append(targets, conn)
		}
	} else {
		for _, conn := range cm.rooms[message.RaceID] {
			targets = append(targets, conn)
		}
	}
	cm.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		select {
		case conn.Send <- eventData:
		default:
			// Connection is slow/dead, close it
			log.Warn().
				Str("socket_id", conn.ID).
				Str("user_id", conn.UserID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("race_id", message.Event.RaceID).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	raceCounts := make(map[string]int)
	for raceID, members := range cm.rooms {
		raceCounts[raceID.String()] = len(members)
	}

	return map[string]interface{}{
		"total_connections": len(cm.connections),
		"active_races":      len(cm.rooms),
		"race_connections":  raceCounts,
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
					Str("socket_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("socket_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
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
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("socket_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		if c.onMessage != nil {
			c.onMessage(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
