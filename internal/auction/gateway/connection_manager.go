// Package gateway is the WebSocket surface of the auction service. Every
// client in an auction room shares one connection pool; committed state
// transitions fan out as deltas, reconnects get a full snapshot.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/draftkit/teamauction/internal/auction"
	"github.com/draftkit/teamauction/internal/auction/events"
)

// Engine is the command surface the gateway drives. Implemented by
// auction.Engine.
type Engine interface {
	Snapshot(auctionID uuid.UUID) (*auction.Snapshot, error)
	Start(ctx context.Context, auctionID, byUserID uuid.UUID) (*auction.Snapshot, error)
	Nominate(ctx context.Context, auctionID, byUserID uuid.UUID, teamID string, startingBid int64) (*auction.Snapshot, error)
	Bid(ctx context.Context, auctionID, byUserID uuid.UUID, teamID string, amount int64) (*auction.Snapshot, error)
	Pause(ctx context.Context, auctionID, byUserID uuid.UUID, reason string) (*auction.Snapshot, error)
	Resume(ctx context.Context, auctionID, byUserID uuid.UUID) (*auction.Snapshot, error)
	Cancel(ctx context.Context, auctionID, byUserID uuid.UUID) (*auction.Snapshot, error)
	SetParticipantActive(ctx context.Context, auctionID, userID uuid.UUID, active bool) (*auction.Snapshot, error)
}

// Presence tracks live connections across nodes. Implemented by
// presence.Store; nil disables cross-node presence.
type Presence interface {
	Touch(ctx context.Context, auctionID, userID uuid.UUID) error
	Clear(ctx context.Context, auctionID, userID uuid.UUID) error
}

// ConnectionManager manages WebSocket connections for auction rooms.
type ConnectionManager struct {
	roomConnections map[uuid.UUID]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	engine   Engine
	presence Presence

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a client.
type Connection struct {
	ID        string
	UserID    uuid.UUID
	AuctionID uuid.UUID
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage represents a message to broadcast to connections.
type BroadcastMessage struct {
	AuctionID uuid.UUID
	Event     *events.Event
	UserID    string // Optional: if set, only send to this user
}

// DefaultConnectionConfig returns default WebSocket configuration.
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

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig, engine Engine, presence Presence) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		engine:      engine,
		presence:    presence,
		broadcastCh: make(chan BroadcastMessage, 1000), // Buffer for high throughput
	}
}

// SetEngine binds the command surface. The engine's broadcast fan-out
// includes the manager, so the two are constructed before being linked.
// Must be called before the manager accepts connections.
func (cm *ConnectionManager) SetEngine(engine Engine) {
	cm.engine = engine
}

// Start begins processing broadcast messages.
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

// Broadcast enqueues a committed state transition for every member of the
// auction room. Satisfies auction.Broadcaster.
func (cm *ConnectionManager) Broadcast(auctionID uuid.UUID, ev *events.Event) {
	select {
	case cm.broadcastCh <- BroadcastMessage{AuctionID: auctionID, Event: ev}:
	default:
		log.Warn().Str("auction_id", auctionID.String()).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastToUser sends an event to a specific user in an auction room.
func (cm *ConnectionManager) BroadcastToUser(auctionID uuid.UUID, userID string, ev *events.Event) {
	select {
	case cm.broadcastCh <- BroadcastMessage{AuctionID: auctionID, Event: ev, UserID: userID}:
	default:
		log.Warn().
			Str("auction_id", auctionID.String()).
			Str("user_id", userID).
			Msg("broadcast channel full, dropping user message")
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket, registers it
// with the auction room and sends the current snapshot so the client starts
// from authoritative state.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID, auctionID uuid.UUID) error {
	snap, err := cm.engine.Snapshot(auctionID)
	if err != nil {
		return fmt.Errorf("snapshot auction %s: %w", auctionID, err)
	}

	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		AuctionID:   auctionID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	connection.sendEvent(events.New(auctionID, events.EventTypeSnapshot, snap))

	if _, err := cm.engine.SetParticipantActive(r.Context(), auctionID, userID, true); err != nil {
		// Spectators are not participants; their connections are still fine.
		log.Debug().Err(err).Str("user_id", userID.String()).Msg("connect presence not recorded")
	}
	if cm.presence != nil {
		if err := cm.presence.Touch(r.Context(), auctionID, userID); err != nil {
			log.Warn().Err(err).Msg("presence touch failed")
		}
	}

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID.String()).
		Str("auction_id", auctionID.String()).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[conn.AuctionID] == nil {
		cm.roomConnections[conn.AuctionID] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.AuctionID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("auction_id", conn.AuctionID.String()).
		Int("total_connections", len(cm.roomConnections[conn.AuctionID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	connections, exists := cm.roomConnections[conn.AuctionID]
	removed := false
	if exists {
		if _, ok := connections[conn]; ok {
			delete(connections, conn)
			close(conn.Send)
			removed = true
			if len(connections) == 0 {
				delete(cm.roomConnections, conn.AuctionID)
			}
		}
	}
	stillConnected := cm.userConnectedLocked(conn.AuctionID, conn.UserID)
	cm.mu.Unlock()

	if !removed {
		return
	}

	// Mark the participant offline only once their last tab is gone.
	if !stillConnected {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := cm.engine.SetParticipantActive(ctx, conn.AuctionID, conn.UserID, false); err != nil {
			log.Debug().Err(err).Str("user_id", conn.UserID.String()).Msg("disconnect presence not recorded")
		}
		if cm.presence != nil {
			if err := cm.presence.Clear(ctx, conn.AuctionID, conn.UserID); err != nil {
				log.Warn().Err(err).Msg("presence clear failed")
			}
		}
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID.String()).
		Str("auction_id", conn.AuctionID.String()).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) userConnectedLocked(auctionID, userID uuid.UUID) bool {
	for conn := range cm.roomConnections[auctionID] {
		if conn.UserID == userID {
			return true
		}
	}
	return false
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.roomConnections[message.AuctionID]
	if !exists {
		cm.mu.RUnlock()
		return
	}

	// Snapshot the pool so the lock is not held during sends.
	var targetConnections []*Connection
	for conn := range connections {
		if message.UserID != "" && conn.UserID.String() != message.UserID {
			continue
		}
		targetConnections = append(targetConnections, conn)
	}
	cm.mu.RUnlock()

	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targetConnections {
		select {
		case conn.Send <- eventData:
		default:
			// Connection is slow/dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Str("user_id", conn.UserID.String()).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("auction_id", message.AuctionID.String()).
		Int("connections", len(targetConnections)).
		Msg("event broadcasted")
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalConnections := 0
	roomCounts := make(map[string]int)

	for auctionID, connections := range cm.roomConnections {
		count := len(connections)
		totalConnections += count
		roomCounts[auctionID.String()] = count
	}

	return map[string]interface{}{
		"total_connections": totalConnections,
		"active_auctions":   len(cm.roomConnections),
		"room_connections":  roomCounts,
	}
}

func (c *Connection) sendEvent(ev *events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn().Str("connection_id", c.ID).Msg("send buffer full, dropping event")
	}
}

// writePump handles sending messages to the WebSocket connection.
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
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection.
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
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
