package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zaHanley/code-racer/go/internal/matchmaker"
	"github.com/zaHanley/code-racer/go/internal/race/events"
)

// Coordinator defines what the gateway needs from the race session core.
type Coordinator interface {
	EnterRace(ctx context.Context, raceID, participantID uuid.UUID, socketID string)
	LeaveRace(ctx context.Context, raceID uuid.UUID, socketID string)
	Disconnect(ctx context.Context, socketID string)
	UpdatePosition(ctx context.Context, raceID uuid.UUID, socketID string, position float64)
	RaceOf(socketID string) (uuid.UUID, bool)
}

// Matchmaker resolves a join request to a race assignment.
type Matchmaker interface {
	FindRace(ctx context.Context, language, userID string) (*matchmaker.Placement, error)
}

// WebSocketHandler upgrades racer connections and dispatches their inbound
// messages to matchmaking and the race coordinator.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	coordinator       Coordinator
	matchmaker        Matchmaker
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, coordinator Coordinator, mm Matchmaker) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		coordinator:       coordinator,
		matchmaker:        mm,
	}
}

// HandleRaceConnection handles a racer's WebSocket connection for its whole
// lifetime; a dropped socket synthesizes a leave for its race.
func (h *WebSocketHandler) HandleRaceConnection(w http.ResponseWriter, r *http.Request) {
	// In production the user ID would come from a session or JWT
	userID := r.URL.Query().Get("user_id")

	_, err := h.connectionManager.UpgradeConnection(w, r, userID, h.handleMessage, h.handleClose)
	if err != nil {
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
		return
	}
}

// handleMessage dispatches one inbound frame. Malformed payloads are logged
// and dropped, never fatal.
func (h *WebSocketHandler) handleMessage(conn *Connection, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Str("socket_id", conn.ID).Msg("malformed client message")
		return
	}

	switch msg.Type {
	case MessageTypeRaceJoinRequest:
		var req RaceJoinRequestMessage
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Warn().Err(err).Str("socket_id", conn.ID).Msg("malformed join request")
			return
		}
		h.handleJoinRequest(ctx, conn, req)

	case MessageTypeRaceEnter:
		var req RaceEnterMessage
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Warn().Err(err).Str("socket_id", conn.ID).Msg("malformed race enter")
			return
		}
		raceID, err := uuid.Parse(req.RaceID)
		if err != nil {
			log.Warn().Err(err).Str("socket_id", conn.ID).Msg("invalid race id")
			return
		}
		participantID, err := uuid.Parse(req.ParticipantID)
		if err != nil {
			log.Warn().Err(err).Str("socket_id", conn.ID).Msg("invalid participant id")
			return
		}

		h.coordinator.EnterRace(ctx, raceID, participantID, conn.ID)

		// Subscribe to the race room only if the join was accepted, so a
		// rejected connection never sees the race's broadcasts.
		if joined, ok := h.coordinator.RaceOf(conn.ID); ok && joined == raceID {
			h.connectionManager.JoinRoom(conn.ID, raceID)
		}

	case MessageTypeRaceLeave:
		var req RaceLeaveMessage
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Warn().Err(err).Str("socket_id", conn.ID).Msg("malformed race leave")
			return
		}
		raceID, err := uuid.Parse(req.RaceID)
		if err != nil {
			log.Warn().Err(err).Str("socket_id", conn.ID).Msg("invalid race id")
			return
		}

		h.coordinator.LeaveRace(ctx, raceID, conn.ID)
		h.connectionManager.LeaveRoom(conn.ID, raceID)

	case MessageTypePositionUpdate:
		var req PositionUpdateMessage
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Warn().Err(err).Str("socket_id", conn.ID).Msg("malformed position update")
			return
		}
		raceID, err := uuid.Parse(req.RaceID)
		if err != nil {
			log.Warn().Err(err).Str("socket_id", conn.ID).Msg("invalid race id")
			return
		}

		h.coordinator.UpdatePosition(ctx, raceID, conn.ID, req.Position)

	default:
		log.Warn().
			Str("socket_id", conn.ID).
			Str("type", msg.Type).
			Msg("unknown message type - ignoring")
	}
}

// handleJoinRequest runs matchmaking and unicasts the assignment back.
func (h *WebSocketHandler) handleJoinRequest(ctx context.Context, conn *Connection, req RaceJoinRequestMessage) {
	userID := req.UserID
	if userID == "" {
		userID = conn.UserID
	}

	placement, err := h.matchmaker.FindRace(ctx, req.Language, userID)
	if err != nil {
		log.Error().Err(err).
			Str("socket_id", conn.ID).
			Str("language", req.Language).
			Msg("matchmaking failed")
		return
	}

	evt, err := events.New(placement.RaceID, events.EventTypeRaceAssigned, time.Now(), events.RaceAssignedPayload{
		RaceID:        placement.RaceID.String(),
		ParticipantID: placement.ParticipantID.String(),
		Language:      placement.Snippet.Language,
		SnippetCode:   placement.Snippet.Code,
	})
	if err != nil {
		log.Error().Err(err).Str("socket_id", conn.ID).Msg("failed to build assignment event")
		return
	}
	h.connectionManager.SendToSocket(conn.ID, evt)
}

// handleClose synthesizes a leave for whatever race the connection was in.
func (h *WebSocketHandler) handleClose(conn *Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h.coordinator.Disconnect(ctx, conn.ID)
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to write stats response")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/race", h.HandleRaceConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
