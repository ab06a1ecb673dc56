package race

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zaHanley/code-racer/go/internal/race/events"
)

// startLoop begins the periodic snapshot broadcast for a race that has
// finished its countdown.
func (c *Coordinator) startLoop(raceID uuid.UUID) {
	go c.runLoop(raceID)
}

// runLoop ticks every 500ms until its race is no longer in the registry.
// The first tick that observes the race not yet running flips it to running
// and records the start timestamp exactly once.
func (c *Coordinator) runLoop(raceID uuid.UUID) {
	ticker := c.clock.NewTicker(loopTickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.Chan():
			r, ok := c.registry.Get(raceID)
			if !ok {
				// The finalizer removed the race; stopping on the next tick
				// is the loop's contract, not an error.
				log.Debug().Str("race_id", raceID.String()).Msg("game loop stopped: race removed")
				return
			}

			r.mu.Lock()
			if r.Status == StatusFinished {
				// Finalizer is mid-flight; registry removal lands before the
				// next tick.
				r.mu.Unlock()
				continue
			}
			firstTick := r.Status != StatusRunning
			if firstTick {
				r.Status = StatusRunning
			}
			status := r.Status
			snaps := r.snapshotLocked()
			r.mu.Unlock()

			if firstTick {
				startedAt := c.clock.Now()
				if err := c.store.SetRaceStartedAt(context.Background(), raceID, startedAt); err != nil {
					log.Error().Err(err).
						Str("race_id", raceID.String()).
						Msg("failed to persist race start timestamp")
				}
				if c.bus != nil {
					c.bus.PublishRaceStarted(raceID, startedAt)
				}
				log.Info().
					Str("race_id", raceID.String()).
					Time("started_at", startedAt).
					Msg("race running")
			}

			c.broadcast(raceID, events.EventTypeRaceStateUpdate, events.RaceStateUpdatePayload{
				RaceID:       raceID.String(),
				Status:       string(status),
				Participants: snaps,
			})
		}
	}
}
