package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Race struct {
	ID        uuid.UUID
	SnippetID uuid.UUID
	StartedAt sql.NullTime
	EndedAt   sql.NullTime
	CreatedAt time.Time
}

type RaceParticipant struct {
	ID        uuid.UUID
	RaceID    uuid.UUID
	UserID    sql.NullString
	CreatedAt time.Time
}

type Snippet struct {
	ID       uuid.UUID
	Language string
	Code     string
}
