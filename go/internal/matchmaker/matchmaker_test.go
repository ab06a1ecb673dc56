package matchmaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/zaHanley/code-racer/go/internal/models"
	"github.com/zaHanley/code-racer/go/internal/race/repository"
)

type fakeFinder struct {
	raceID uuid.UUID
	found  bool
}

func (f *fakeFinder) FindJoinable(maxParticipants int) (uuid.UUID, bool) {
	return f.raceID, f.found
}

type fakeStore struct {
	createdRaces        []repository.CreateRaceRequest
	createdParticipants []repository.CreateParticipantRequest
	snippet             *models.Snippet
	snippetErr          error
}

func (f *fakeStore) CreateRace(ctx context.Context, req repository.CreateRaceRequest) (*models.Race, error) {
	f.createdRaces = append(f.createdRaces, req)
	return &models.Race{ID: req.ID, SnippetID: req.SnippetID, CreatedAt: time.Now()}, nil
}

func (f *fakeStore) CreateParticipant(ctx context.Context, req repository.CreateParticipantRequest) (*models.RaceParticipant, error) {
	f.createdParticipants = append(f.createdParticipants, req)
	return &models.RaceParticipant{ID: req.ID, RaceID: req.RaceID, CreatedAt: time.Now()}, nil
}

func (f *fakeStore) GetRandomSnippet(ctx context.Context, language string) (*models.Snippet, error) {
	return f.snippet, f.snippetErr
}

func (f *fakeStore) GetRaceSnippet(ctx context.Context, raceID uuid.UUID) (*models.Snippet, error) {
	return f.snippet, f.snippetErr
}

func TestFindRaceCreatesFreshRace(t *testing.T) {
	snippet := &models.Snippet{ID: uuid.New(), Language: "go", Code: "package main"}
	store := &fakeStore{snippet: snippet}
	mm := NewMatchmaker(&fakeFinder{}, store, 4)

	placement, err := mm.FindRace(context.Background(), "go", "user-1")
	if err != nil {
		t.Fatal(err)
	}

	if len(store.createdRaces) != 1 {
		t.Fatalf("expected one race record, got %d", len(store.createdRaces))
	}
	created := store.createdRaces[0]
	if created.ID != placement.RaceID || created.SnippetID != snippet.ID {
		t.Errorf("race record %+v does not match placement %+v", created, placement)
	}

	if len(store.createdParticipants) != 1 {
		t.Fatalf("expected one participant record, got %d", len(store.createdParticipants))
	}
	if store.createdParticipants[0].ID != placement.ParticipantID {
		t.Error("participant record should match the placement's participant ID")
	}
	if placement.Snippet != snippet {
		t.Error("placement should carry the assigned snippet")
	}
}

func TestFindRaceJoinsExistingRace(t *testing.T) {
	existing := uuid.New()
	snippet := &models.Snippet{ID: uuid.New(), Language: "go", Code: "package main"}
	store := &fakeStore{snippet: snippet}
	mm := NewMatchmaker(&fakeFinder{raceID: existing, found: true}, store, 4)

	placement, err := mm.FindRace(context.Background(), "go", "user-1")
	if err != nil {
		t.Fatal(err)
	}

	if placement.RaceID != existing {
		t.Errorf("expected placement into %s, got %s", existing, placement.RaceID)
	}
	if len(store.createdRaces) != 0 {
		t.Error("joining an existing race must not create a new race record")
	}
	if len(store.createdParticipants) != 1 {
		t.Error("joining still records the participant")
	}
	if store.createdParticipants[0].RaceID != existing {
		t.Error("participant record should reference the joined race")
	}
}

func TestFindRacePropagatesSnippetError(t *testing.T) {
	store := &fakeStore{snippetErr: errors.New("no snippets for language")}
	mm := NewMatchmaker(&fakeFinder{}, store, 4)

	if _, err := mm.FindRace(context.Background(), "brainfuck", "user-1"); err == nil {
		t.Fatal("expected a snippet lookup error")
	}
	if len(store.createdRaces) != 0 || len(store.createdParticipants) != 0 {
		t.Error("a failed lookup must not write any records")
	}
}
