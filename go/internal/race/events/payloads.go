package events

import (
	"time"
)

// Event payload types that are shared between the race core and the gateway

// ParticipantSnapshot is one participant's live state inside a state update.
type ParticipantSnapshot struct {
	ParticipantID string     `json:"participant_id"`
	SocketID      string     `json:"socket_id"`
	Position      float64    `json:"position"`
	FinishedAt    *time.Time `json:"finished_at"`
}

// RaceEnterPayload is the payload for a RaceEnter fanout
type RaceEnterPayload struct {
	RaceID      string              `json:"race_id"`
	Participant ParticipantSnapshot `json:"participant"`
}

// RaceLeavePayload is the payload for a RaceLeave fanout
type RaceLeavePayload struct {
	RaceID        string `json:"race_id"`
	ParticipantID string `json:"participant_id"`
	SocketID      string `json:"socket_id"`
}

// RaceFullPayload is unicast to a connection whose join was rejected
type RaceFullPayload struct {
	RaceID string `json:"race_id"`
}

// RaceStateUpdatePayload is the periodic snapshot emitted by both the
// countdown scheduler and the game loop. Countdown is only set while the
// race status is "countdown".
type RaceStateUpdatePayload struct {
	RaceID       string                `json:"race_id"`
	Status       string                `json:"status"`
	Countdown    *int                  `json:"countdown,omitempty"`
	Participants []ParticipantSnapshot `json:"participants"`
}

// RaceAssignedPayload is unicast to a requester once matchmaking has placed
// them: the race to enter, their provisional durable record, and the code
// snippet the race is typed against.
type RaceAssignedPayload struct {
	RaceID        string `json:"race_id"`
	ParticipantID string `json:"participant_id"`
	Language      string `json:"language"`
	SnippetCode   string `json:"snippet_code"`
}

// RaceStartedPayload is the payload for a RaceStarted lifecycle event
type RaceStartedPayload struct {
	RaceID    string    `json:"race_id"`
	StartedAt time.Time `json:"started_at"`
}

// RaceEndedPayload is the payload for a RaceEnded lifecycle event
type RaceEndedPayload struct {
	RaceID  string    `json:"race_id"`
	EndedAt time.Time `json:"ended_at"`
}
