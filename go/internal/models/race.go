package models

import (
	"time"

	"github.com/google/uuid"
)

// Race is the durable record of a racing session.
type Race struct {
	ID        uuid.UUID  `json:"id"`
	SnippetID uuid.UUID  `json:"snippet_id"`
	StartedAt *time.Time `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// RaceParticipant is the durable record of one participant's attempt.
type RaceParticipant struct {
	ID        uuid.UUID `json:"id"`
	RaceID    uuid.UUID `json:"race_id"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Snippet is the code passage a race is typed against.
type Snippet struct {
	ID       uuid.UUID `json:"id"`
	Language string    `json:"language"`
	Code     string    `json:"code"`
}
