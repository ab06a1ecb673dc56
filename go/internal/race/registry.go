package race

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zaHanley/code-racer/go/internal/race/events"
)

// Status is the lifecycle state of a race.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusCountdown Status = "countdown"
	StatusRunning   Status = "running"
	StatusFinished  Status = "finished"
)

const (
	// MaxPosition is the progress value at which a participant has finished.
	MaxPosition = 100

	// countdownStart is the number of one-second ticks before a race starts.
	countdownStart = 10

	countdownTickPeriod = time.Second
	loopTickPeriod      = 500 * time.Millisecond
)

// Participant is one connection's membership and live progress within a race.
// Keyed by socket ID in its owning race; ID correlates with the durable
// participant record.
type Participant struct {
	ID         uuid.UUID
	SocketID   string
	Position   float64
	FinishedAt *time.Time
}

// Race is one active racing session. Participants is keyed by socket ID.
// All field mutation happens under mu so that unrelated races never
// serialize on each other.
type Race struct {
	ID           uuid.UUID
	Status       Status
	Participants map[string]*Participant

	mu sync.Mutex
}

// snapshotLocked serializes the participant list. Callers must hold r.mu.
// Output is sorted by participant ID so snapshots are stable.
func (r *Race) snapshotLocked() []events.ParticipantSnapshot {
	snaps := make([]events.ParticipantSnapshot, 0, len(r.Participants))
	for socketID, p := range r.Participants {
		snaps = append(snaps, events.ParticipantSnapshot{
			ParticipantID: p.ID.String(),
			SocketID:      socketID,
			Position:      p.Position,
			FinishedAt:    p.FinishedAt,
		})
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].ParticipantID < snaps[j].ParticipantID
	})
	return snaps
}

// finishedCountLocked counts participants at the finish line. Callers must
// hold r.mu.
func (r *Race) finishedCountLocked() int {
	n := 0
	for _, p := range r.Participants {
		if p.FinishedAt != nil {
			n++
		}
	}
	return n
}

// Registry is the authoritative map of race ID to active race. Races are
// only ever removed by explicit end-of-race logic; there is no implicit
// eviction.
type Registry struct {
	mu    sync.RWMutex
	races map[uuid.UUID]*Race
}

// NewRegistry creates an empty race registry.
func NewRegistry() *Registry {
	return &Registry{
		races: make(map[uuid.UUID]*Race),
	}
}

// Get returns the race for the given ID, if registered.
func (g *Registry) Get(raceID uuid.UUID) (*Race, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.races[raceID]
	return r, ok
}

// Create registers a new waiting race with a sole first participant.
// If the ID is already registered the existing race is returned unchanged
// and created is false.
func (g *Registry) Create(raceID uuid.UUID, first *Participant) (r *Race, created bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.races[raceID]; ok {
		return existing, false
	}

	r = &Race{
		ID:           raceID,
		Status:       StatusWaiting,
		Participants: map[string]*Participant{first.SocketID: first},
	}
	g.races[raceID] = r
	return r, true
}

// Remove deletes a race from the registry. Removing an absent ID is a no-op.
func (g *Registry) Remove(raceID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.races, raceID)
}

// Len returns the number of registered races.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.races)
}

// FindJoinable returns a race that has not started yet and still has room
// for another participant. Used by matchmaking to place new joiners.
func (g *Registry) FindJoinable(maxParticipants int) (uuid.UUID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, r := range g.races {
		r.mu.Lock()
		open := (r.Status == StatusWaiting || r.Status == StatusCountdown) &&
			len(r.Participants) < maxParticipants
		r.mu.Unlock()
		if open {
			return id, true
		}
	}
	return uuid.Nil, false
}
