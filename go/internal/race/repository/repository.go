package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zaHanley/code-racer/go/internal/models"
	"github.com/zaHanley/code-racer/go/internal/race/db"
	"github.com/zaHanley/code-racer/go/internal/sqlutil"
)

// Querier defines what the repository needs from the database layer
type Querier interface {
	CreateRace(ctx context.Context, arg db.CreateRaceParams) (db.Race, error)
	DeleteRace(ctx context.Context, id uuid.UUID) error
	SetRaceStartedAt(ctx context.Context, arg db.SetRaceStartedAtParams) error
	SetRaceEndedAt(ctx context.Context, arg db.SetRaceEndedAtParams) error
	CreateParticipant(ctx context.Context, arg db.CreateParticipantParams) (db.RaceParticipant, error)
	DeleteParticipant(ctx context.Context, id uuid.UUID) error
	GetRandomSnippet(ctx context.Context, language string) (db.Snippet, error)
	GetRaceSnippet(ctx context.Context, raceID uuid.UUID) (db.Snippet, error)
}

// Repository implements race data access operations
type Repository struct {
	queries Querier
}

// NewRepository creates a new race repository
func NewRepository(querier Querier) *Repository {
	return &Repository{
		queries: querier,
	}
}

type CreateRaceRequest struct {
	ID        uuid.UUID `json:"id"`
	SnippetID uuid.UUID `json:"snippet_id"`
}

type CreateParticipantRequest struct {
	ID     uuid.UUID `json:"id"`
	RaceID uuid.UUID `json:"race_id"`
	UserID string    `json:"user_id"`
}

// CreateRace creates a new durable race record
func (r *Repository) CreateRace(ctx context.Context, req CreateRaceRequest) (*models.Race, error) {
	race, err := r.queries.CreateRace(ctx, db.CreateRaceParams{
		ID:        req.ID,
		SnippetID: req.SnippetID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create race: %w", err)
	}

	return r.dbRaceToModel(race), nil
}

// DeleteRace deletes a race record by ID
func (r *Repository) DeleteRace(ctx context.Context, id uuid.UUID) error {
	if err := r.queries.DeleteRace(ctx, id); err != nil {
		return fmt.Errorf("failed to delete race: %w", err)
	}
	return nil
}

// SetRaceStartedAt records when a race began running
func (r *Repository) SetRaceStartedAt(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	err := r.queries.SetRaceStartedAt(ctx, db.SetRaceStartedAtParams{
		ID:        id,
		StartedAt: sqlutil.ToSqlTime(startedAt),
	})
	if err != nil {
		return fmt.Errorf("failed to set race started at: %w", err)
	}
	return nil
}

// SetRaceEndedAt records when a race finished
func (r *Repository) SetRaceEndedAt(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	err := r.queries.SetRaceEndedAt(ctx, db.SetRaceEndedAtParams{
		ID:      id,
		EndedAt: sqlutil.ToSqlTime(endedAt),
	})
	if err != nil {
		return fmt.Errorf("failed to set race ended at: %w", err)
	}
	return nil
}

// CreateParticipant creates a durable participant record
func (r *Repository) CreateParticipant(ctx context.Context, req CreateParticipantRequest) (*models.RaceParticipant, error) {
	participant, err := r.queries.CreateParticipant(ctx, db.CreateParticipantParams{
		ID:     req.ID,
		RaceID: req.RaceID,
		UserID: sqlutil.ToSqlString(req.UserID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}

	return r.dbParticipantToModel(participant), nil
}

// DeleteParticipant deletes a participant record by ID
func (r *Repository) DeleteParticipant(ctx context.Context, id uuid.UUID) error {
	if err := r.queries.DeleteParticipant(ctx, id); err != nil {
		return fmt.Errorf("failed to delete participant: %w", err)
	}
	return nil
}

// GetRandomSnippet picks a snippet for the given language
func (r *Repository) GetRandomSnippet(ctx context.Context, language string) (*models.Snippet, error) {
	snippet, err := r.queries.GetRandomSnippet(ctx, language)
	if err != nil {
		return nil, fmt.Errorf("failed to get snippet: %w", err)
	}

	return &models.Snippet{
		ID:       snippet.ID,
		Language: snippet.Language,
		Code:     snippet.Code,
	}, nil
}

// GetRaceSnippet returns the snippet an existing race is typed against
func (r *Repository) GetRaceSnippet(ctx context.Context, raceID uuid.UUID) (*models.Snippet, error) {
	snippet, err := r.queries.GetRaceSnippet(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get race snippet: %w", err)
	}

	return &models.Snippet{
		ID:       snippet.ID,
		Language: snippet.Language,
		Code:     snippet.Code,
	}, nil
}

// dbRaceToModel converts a database race to domain model
func (r *Repository) dbRaceToModel(dbRace db.Race) *models.Race {
	return &models.Race{
		ID:        dbRace.ID,
		SnippetID: dbRace.SnippetID,
		StartedAt: sqlutil.FromSqlTime(dbRace.StartedAt),
		EndedAt:   sqlutil.FromSqlTime(dbRace.EndedAt),
		CreatedAt: dbRace.CreatedAt,
	}
}

// dbParticipantToModel converts a database participant to domain model
func (r *Repository) dbParticipantToModel(dbParticipant db.RaceParticipant) *models.RaceParticipant {
	return &models.RaceParticipant{
		ID:        dbParticipant.ID,
		RaceID:    dbParticipant.RaceID,
		UserID:    sqlutil.FromSqlString(dbParticipant.UserID),
		CreatedAt: dbParticipant.CreatedAt,
	}
}
