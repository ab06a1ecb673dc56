package race

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/zaHanley/code-racer/go/internal/race/events"
)

// Broadcaster defines what the coordinator needs from the transport fabric.
type Broadcaster interface {
	BroadcastToRace(raceID uuid.UUID, event *events.Event)
	SendToSocket(socketID string, event *events.Event)
}

// Store defines the persistence commands the coordinator issues. Failures
// are logged and never surfaced to participants; the in-memory state is the
// source of truth for live broadcasts.
type Store interface {
	DeleteParticipant(ctx context.Context, participantID uuid.UUID) error
	DeleteRace(ctx context.Context, raceID uuid.UUID) error
	SetRaceStartedAt(ctx context.Context, raceID uuid.UUID, startedAt time.Time) error
	SetRaceEndedAt(ctx context.Context, raceID uuid.UUID, endedAt time.Time) error
}

// Publisher emits race lifecycle events to the message bus. May be nil when
// no bus is configured.
type Publisher interface {
	PublishRaceStarted(raceID uuid.UUID, startedAt time.Time)
	PublishRaceEnded(raceID uuid.UUID, endedAt time.Time)
}

// Coordinator owns the race registry and the countdown-handle registry and
// is the sole entry point for inbound race events: join, leave, position
// update and disconnect. It is also the sole issuer of outbound broadcasts
// and persistence commands.
type Coordinator struct {
	registry    *Registry
	broadcaster Broadcaster
	store       Store
	bus         Publisher
	clock       clockwork.Clock

	maxParticipants int

	// At most one in-flight countdown per race ID; presence in this map is
	// the "countdown in progress" flag and the deduplication key.
	countdowns   map[uuid.UUID]*countdown
	countdownsMu sync.Mutex

	// Secondary index so a disconnect resolves to its race without scanning
	// the whole registry.
	bySocket   map[string]uuid.UUID
	bySocketMu sync.RWMutex

	done     chan struct{}
	doneOnce sync.Once
}

// NewCoordinator creates a race coordinator. bus may be nil.
func NewCoordinator(broadcaster Broadcaster, store Store, bus Publisher, maxParticipants int) *Coordinator {
	return &Coordinator{
		registry:        NewRegistry(),
		broadcaster:     broadcaster,
		store:           store,
		bus:             bus,
		clock:           clockwork.NewRealClock(),
		maxParticipants: maxParticipants,
		countdowns:      make(map[uuid.UUID]*countdown),
		bySocket:        make(map[string]uuid.UUID),
		done:            make(chan struct{}),
	}
}

// Registry exposes the coordinator's race registry for read-side consumers
// such as matchmaking.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// RaceOf returns the race a connection currently belongs to, if any.
func (c *Coordinator) RaceOf(socketID string) (uuid.UUID, bool) {
	c.bySocketMu.RLock()
	defer c.bySocketMu.RUnlock()
	raceID, ok := c.bySocket[socketID]
	return raceID, ok
}

// Close stops all countdown and game-loop goroutines. Races in flight are
// lost; durable results live with the persistence collaborator.
func (c *Coordinator) Close() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

// EnterRace handles a join request that matchmaking has already resolved to
// a race ID and a durable participant ID. Rejection (race full) and
// acceptance are mutually exclusive outcomes of a single request.
func (c *Coordinator) EnterRace(ctx context.Context, raceID, participantID uuid.UUID, socketID string) {
	p := &Participant{
		ID:       participantID,
		SocketID: socketID,
	}

	r, ok := c.registry.Get(raceID)
	if !ok {
		var created bool
		r, created = c.registry.Create(raceID, p)
		if created {
			c.indexSocket(socketID, raceID)
			log.Info().
				Str("race_id", raceID.String()).
				Str("participant_id", participantID.String()).
				Msg("race created with first participant")
			c.broadcastEnter(r, p)
			return
		}
		// Lost the create to a concurrent join; fall through to the add path.
	}

	r.mu.Lock()
	if len(r.Participants) >= c.maxParticipants {
		r.mu.Unlock()
		log.Info().
			Str("race_id", raceID.String()).
			Str("participant_id", participantID.String()).
			Int("max_participants", c.maxParticipants).
			Msg("join rejected: race full")

		c.unicast(socketID, raceID, events.EventTypeRaceFull, events.RaceFullPayload{
			RaceID: raceID.String(),
		})

		// Matchmaking provisionally created the durable record; it must not
		// dangle after a rejected join.
		if err := c.store.DeleteParticipant(ctx, participantID); err != nil {
			log.Error().Err(err).
				Str("participant_id", participantID.String()).
				Msg("failed to delete rejected participant record")
		}
		return
	}

	r.Participants[socketID] = p
	count := len(r.Participants)
	r.mu.Unlock()

	c.indexSocket(socketID, raceID)
	log.Info().
		Str("race_id", raceID.String()).
		Str("participant_id", participantID.String()).
		Int("participants", count).
		Msg("participant entered race")

	c.broadcastEnter(r, p)

	if count >= 2 {
		c.StartCountdown(raceID)
	}
}

// LeaveRace handles an explicit leave or a synthesized one from a
// disconnect. The participant is matched by connection identity.
func (c *Coordinator) LeaveRace(ctx context.Context, raceID uuid.UUID, socketID string) {
	r, ok := c.registry.Get(raceID)
	if !ok {
		log.Warn().
			Str("race_id", raceID.String()).
			Str("socket_id", socketID).
			Time("at", c.clock.Now()).
			Msg("leave for unknown race")
		return
	}

	r.mu.Lock()
	p, ok := r.Participants[socketID]
	if !ok {
		r.mu.Unlock()
		log.Warn().
			Str("race_id", raceID.String()).
			Str("socket_id", socketID).
			Time("at", c.clock.Now()).
			Msg("leave for unknown participant")
		return
	}
	unfinished := p.FinishedAt == nil
	delete(r.Participants, socketID)
	remaining := len(r.Participants)
	status := r.Status
	r.mu.Unlock()

	c.unindexSocket(socketID)

	// An incomplete attempt leaves no durable trace.
	if unfinished {
		if err := c.store.DeleteParticipant(ctx, p.ID); err != nil {
			log.Error().Err(err).
				Str("participant_id", p.ID.String()).
				Msg("failed to delete unfinished participant record")
		}
	}

	c.broadcast(raceID, events.EventTypeRaceLeave, events.RaceLeavePayload{
		RaceID:        raceID.String(),
		ParticipantID: p.ID.String(),
		SocketID:      socketID,
	})

	log.Info().
		Str("race_id", raceID.String()).
		Str("participant_id", p.ID.String()).
		Int("remaining", remaining).
		Msg("participant left race")

	if remaining == 0 {
		switch status {
		case StatusCountdown:
			// Everyone bailed mid-countdown: drop the countdown and keep the
			// race registered so a fresh join can schedule a new one. This
			// also keeps the vacuously-true end condition below from
			// finalizing an empty race.
			c.cancelCountdown(raceID)
			return
		case StatusWaiting:
			// A solo race whose only participant left has nobody to wait
			// for; reap it instead of leaving an empty entry behind.
			c.registry.Remove(raceID)
			if err := c.store.DeleteRace(ctx, raceID); err != nil {
				log.Error().Err(err).
					Str("race_id", raceID.String()).
					Msg("failed to delete abandoned race record")
			}
			log.Info().Str("race_id", raceID.String()).Msg("abandoned race removed")
			return
		}
	}

	c.checkRaceEnd(ctx, raceID)
}

// Disconnect synthesizes a leave for the race the closed connection was in,
// if any.
func (c *Coordinator) Disconnect(ctx context.Context, socketID string) {
	c.bySocketMu.RLock()
	raceID, ok := c.bySocket[socketID]
	c.bySocketMu.RUnlock()
	if !ok {
		log.Debug().Str("socket_id", socketID).Msg("disconnect for socket not in a race")
		return
	}
	c.LeaveRace(ctx, raceID, socketID)
}

// UpdatePosition records a participant's progress and re-evaluates the
// end-of-race condition. Positions are client-controlled: backwards moves
// and jumps are accepted, only the finish threshold is clamped and latched.
func (c *Coordinator) UpdatePosition(ctx context.Context, raceID uuid.UUID, socketID string, position float64) {
	r, ok := c.registry.Get(raceID)
	if !ok {
		log.Warn().
			Str("race_id", raceID.String()).
			Time("at", c.clock.Now()).
			Msg("position update for unknown race")
		return
	}

	r.mu.Lock()
	p, ok := r.Participants[socketID]
	if !ok {
		r.mu.Unlock()
		log.Warn().
			Str("race_id", raceID.String()).
			Str("socket_id", socketID).
			Time("at", c.clock.Now()).
			Msg("position update for unknown participant")
		return
	}
	if position < 0 {
		position = 0
	}
	if position >= MaxPosition {
		position = MaxPosition
		if p.FinishedAt == nil {
			finishedAt := c.clock.Now()
			p.FinishedAt = &finishedAt
			log.Info().
				Str("race_id", raceID.String()).
				Str("participant_id", p.ID.String()).
				Time("finished_at", finishedAt).
				Msg("participant finished")
		}
	}
	p.Position = position
	r.mu.Unlock()

	c.checkRaceEnd(ctx, raceID)
}

// checkRaceEnd finalizes the race once every currently-registered
// participant has finished.
func (c *Coordinator) checkRaceEnd(ctx context.Context, raceID uuid.UUID) {
	r, ok := c.registry.Get(raceID)
	if !ok {
		return
	}

	r.mu.Lock()
	total := len(r.Participants)
	finished := r.finishedCountLocked()
	r.mu.Unlock()

	if finished >= total {
		c.endRace(ctx, raceID)
	}
}

// endRace is the one-time finalizer: a last finished-status broadcast,
// removal from the registry, then the end-timestamp write. The broadcast is
// never blocked by persistence latency, but the call as a whole returns
// only once the persistence write has completed or failed.
func (c *Coordinator) endRace(ctx context.Context, raceID uuid.UUID) {
	r, ok := c.registry.Get(raceID)
	if !ok {
		log.Warn().
			Str("race_id", raceID.String()).
			Time("at", c.clock.Now()).
			Msg("end requested for unknown race")
		return
	}

	r.mu.Lock()
	if r.Status == StatusFinished {
		// Another event already finalized this race.
		r.mu.Unlock()
		return
	}
	r.Status = StatusFinished
	snaps := r.snapshotLocked()
	r.mu.Unlock()

	c.broadcast(raceID, events.EventTypeRaceStateUpdate, events.RaceStateUpdatePayload{
		RaceID:       raceID.String(),
		Status:       string(StatusFinished),
		Participants: snaps,
	})

	c.registry.Remove(raceID)
	for _, snap := range snaps {
		c.unindexSocket(snap.SocketID)
	}

	endedAt := c.clock.Now()
	if err := c.store.SetRaceEndedAt(ctx, raceID, endedAt); err != nil {
		log.Error().Err(err).
			Str("race_id", raceID.String()).
			Msg("failed to persist race end timestamp")
	}
	if c.bus != nil {
		c.bus.PublishRaceEnded(raceID, endedAt)
	}

	log.Info().
		Str("race_id", raceID.String()).
		Time("ended_at", endedAt).
		Msg("race finished")
}

func (c *Coordinator) indexSocket(socketID string, raceID uuid.UUID) {
	c.bySocketMu.Lock()
	c.bySocket[socketID] = raceID
	c.bySocketMu.Unlock()
}

func (c *Coordinator) unindexSocket(socketID string) {
	c.bySocketMu.Lock()
	delete(c.bySocket, socketID)
	c.bySocketMu.Unlock()
}

func (c *Coordinator) broadcastEnter(r *Race, p *Participant) {
	c.broadcast(r.ID, events.EventTypeRaceEnter, events.RaceEnterPayload{
		RaceID: r.ID.String(),
		Participant: events.ParticipantSnapshot{
			ParticipantID: p.ID.String(),
			SocketID:      p.SocketID,
			Position:      p.Position,
			FinishedAt:    p.FinishedAt,
		},
	})
}

func (c *Coordinator) broadcast(raceID uuid.UUID, eventType events.EventType, payload any) {
	evt, err := events.New(raceID, eventType, c.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("race_id", raceID.String()).Msg("failed to build broadcast event")
		return
	}
	c.broadcaster.BroadcastToRace(raceID, evt)
}

func (c *Coordinator) unicast(socketID string, raceID uuid.UUID, eventType events.EventType, payload any) {
	evt, err := events.New(raceID, eventType, c.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("race_id", raceID.String()).Msg("failed to build unicast event")
		return
	}
	c.broadcaster.SendToSocket(socketID, evt)
}
