package gateway

import (
	"encoding/json"
)

// ClientMessage is the envelope for every inbound WebSocket frame.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Inbound message types.
const (
	MessageTypeRaceJoinRequest = "RaceJoinRequest"
	MessageTypeRaceEnter       = "RaceEnter"
	MessageTypeRaceLeave       = "RaceLeave"
	MessageTypePositionUpdate  = "PositionUpdate"
)

// RaceJoinRequestMessage asks matchmaking for a race assignment.
type RaceJoinRequestMessage struct {
	Language string `json:"language"`
	UserID   string `json:"user_id"`
}

// RaceEnterMessage enters the race matchmaking assigned.
type RaceEnterMessage struct {
	RaceID        string `json:"race_id"`
	ParticipantID string `json:"participant_id"`
}

// RaceLeaveMessage leaves a race explicitly.
type RaceLeaveMessage struct {
	RaceID string `json:"race_id"`
}

// PositionUpdateMessage reports typing progress, 0 to 100.
type PositionUpdateMessage struct {
	RaceID   string  `json:"race_id"`
	Position float64 `json:"position"`
}
