package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope for everything broadcast to race participants.
type Event struct {
	ID        string          `json:"id"`        // Event UUID
	RaceID    string          `json:"race_id"`   // Race UUID
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of race event.
type EventType string

const (
	EventTypeRaceEnter       EventType = "RaceEnter"
	EventTypeRaceLeave       EventType = "RaceLeave"
	EventTypeRaceFull        EventType = "RaceFull"
	EventTypeRaceStateUpdate EventType = "RaceStateUpdate"
	EventTypeRaceAssigned    EventType = "RaceAssigned"
	EventTypeRaceStarted     EventType = "RaceStarted"
	EventTypeRaceEnded       EventType = "RaceEnded"
)

// New builds an event envelope with a marshaled payload.
func New(raceID uuid.UUID, eventType EventType, at time.Time, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		RaceID:    raceID.String(),
		Type:      eventType,
		Timestamp: at,
		Data:      data,
	}, nil
}
