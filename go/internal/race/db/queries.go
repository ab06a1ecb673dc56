package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const createRace = `
INSERT INTO races (id, snippet_id)
VALUES ($1, $2)
RETURNING id, snippet_id, started_at, ended_at, created_at
`

type CreateRaceParams struct {
	ID        uuid.UUID
	SnippetID uuid.UUID
}

func (q *Queries) CreateRace(ctx context.Context, arg CreateRaceParams) (Race, error) {
	row := q.db.QueryRowContext(ctx, createRace, arg.ID, arg.SnippetID)
	var i Race
	err := row.Scan(&i.ID, &i.SnippetID, &i.StartedAt, &i.EndedAt, &i.CreatedAt)
	return i, err
}

const deleteRace = `
DELETE FROM races WHERE id = $1
`

func (q *Queries) DeleteRace(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteRace, id)
	return err
}

const setRaceStartedAt = `
UPDATE races SET started_at = $2 WHERE id = $1
`

type SetRaceStartedAtParams struct {
	ID        uuid.UUID
	StartedAt sql.NullTime
}

func (q *Queries) SetRaceStartedAt(ctx context.Context, arg SetRaceStartedAtParams) error {
	_, err := q.db.ExecContext(ctx, setRaceStartedAt, arg.ID, arg.StartedAt)
	return err
}

const setRaceEndedAt = `
UPDATE races SET ended_at = $2 WHERE id = $1
`

type SetRaceEndedAtParams struct {
	ID      uuid.UUID
	EndedAt sql.NullTime
}

func (q *Queries) SetRaceEndedAt(ctx context.Context, arg SetRaceEndedAtParams) error {
	_, err := q.db.ExecContext(ctx, setRaceEndedAt, arg.ID, arg.EndedAt)
	return err
}

const createParticipant = `
INSERT INTO race_participants (id, race_id, user_id)
VALUES ($1, $2, $3)
RETURNING id, race_id, user_id, created_at
`

type CreateParticipantParams struct {
	ID     uuid.UUID
	RaceID uuid.UUID
	UserID sql.NullString
}

func (q *Queries) CreateParticipant(ctx context.Context, arg CreateParticipantParams) (RaceParticipant, error) {
	row := q.db.QueryRowContext(ctx, createParticipant, arg.ID, arg.RaceID, arg.UserID)
	var i RaceParticipant
	err := row.Scan(&i.ID, &i.RaceID, &i.UserID, &i.CreatedAt)
	return i, err
}

const deleteParticipant = `
DELETE FROM race_participants WHERE id = $1
`

func (q *Queries) DeleteParticipant(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteParticipant, id)
	return err
}

const getRandomSnippet = `
SELECT id, language, code FROM snippets
WHERE language = $1
ORDER BY random()
LIMIT 1
`

func (q *Queries) GetRandomSnippet(ctx context.Context, language string) (Snippet, error) {
	row := q.db.QueryRowContext(ctx, getRandomSnippet, language)
	var i Snippet
	err := row.Scan(&i.ID, &i.Language, &i.Code)
	return i, err
}

const getRaceSnippet = `
SELECT s.id, s.language, s.code FROM snippets s
JOIN races r ON r.snippet_id = s.id
WHERE r.id = $1
`

func (q *Queries) GetRaceSnippet(ctx context.Context, raceID uuid.UUID) (Snippet, error) {
	row := q.db.QueryRowContext(ctx, getRaceSnippet, raceID)
	var i Snippet
	err := row.Scan(&i.ID, &i.Language, &i.Code)
	return i, err
}
