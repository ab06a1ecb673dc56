package matchmaker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zaHanley/code-racer/go/internal/models"
	"github.com/zaHanley/code-racer/go/internal/race/repository"
)

// RaceFinder is the live-session view the matchmaker places joiners with.
type RaceFinder interface {
	FindJoinable(maxParticipants int) (uuid.UUID, bool)
}

// Store defines what the matchmaker needs from the persistence layer.
type Store interface {
	CreateRace(ctx context.Context, req repository.CreateRaceRequest) (*models.Race, error)
	CreateParticipant(ctx context.Context, req repository.CreateParticipantRequest) (*models.RaceParticipant, error)
	GetRandomSnippet(ctx context.Context, language string) (*models.Snippet, error)
	GetRaceSnippet(ctx context.Context, raceID uuid.UUID) (*models.Snippet, error)
}

// Placement is the result of matchmaking: the race a requester should enter,
// their provisional durable participant record, and the snippet to type.
type Placement struct {
	RaceID        uuid.UUID       `json:"race_id"`
	ParticipantID uuid.UUID       `json:"participant_id"`
	Snippet       *models.Snippet `json:"snippet"`
}

// Matchmaker assigns a requesting participant to an open race, creating a
// fresh race with a snippet when none has room.
type Matchmaker struct {
	finder          RaceFinder
	store           Store
	maxParticipants int
}

// NewMatchmaker creates a matchmaker over the live race view and the store.
func NewMatchmaker(finder RaceFinder, store Store, maxParticipants int) *Matchmaker {
	return &Matchmaker{
		finder:          finder,
		store:           store,
		maxParticipants: maxParticipants,
	}
}

// FindRace resolves a join request to a race, a provisional participant
// record and a snippet. The participant record is created here; a later
// rejected or abandoned join deletes it.
func (m *Matchmaker) FindRace(ctx context.Context, language, userID string) (*Placement, error) {
	raceID, found := m.finder.FindJoinable(m.maxParticipants)

	var snippet *models.Snippet
	var err error
	if found {
		snippet, err = m.store.GetRaceSnippet(ctx, raceID)
		if err != nil {
			return nil, fmt.Errorf("failed to load snippet for race: %w", err)
		}
	} else {
		snippet, err = m.store.GetRandomSnippet(ctx, language)
		if err != nil {
			return nil, fmt.Errorf("failed to pick snippet: %w", err)
		}

		raceID = uuid.New()
		if _, err := m.store.CreateRace(ctx, repository.CreateRaceRequest{
			ID:        raceID,
			SnippetID: snippet.ID,
		}); err != nil {
			return nil, fmt.Errorf("failed to create race record: %w", err)
		}
		log.Info().
			Str("race_id", raceID.String()).
			Str("language", language).
			Msg("new race created by matchmaking")
	}

	participantID := uuid.New()
	if _, err := m.store.CreateParticipant(ctx, repository.CreateParticipantRequest{
		ID:     participantID,
		RaceID: raceID,
		UserID: userID,
	}); err != nil {
		return nil, fmt.Errorf("failed to create participant record: %w", err)
	}

	return &Placement{
		RaceID:        raceID,
		ParticipantID: participantID,
		Snippet:       snippet,
	}, nil
}
