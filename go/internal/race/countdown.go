package race

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zaHanley/code-racer/go/internal/race/events"
)

// countdown is one in-flight pre-race countdown. Its registry entry is both
// the "in progress" flag and the deduplication key.
type countdown struct {
	raceID uuid.UUID
	cancel chan struct{}
	once   sync.Once
}

func (cd *countdown) stop() {
	cd.once.Do(func() {
		close(cd.cancel)
	})
}

// StartCountdown schedules the pre-race countdown for a race. A race that
// already has a countdown in flight, or that is no longer waiting, is left
// unaffected.
func (c *Coordinator) StartCountdown(raceID uuid.UUID) {
	c.countdownsMu.Lock()
	if _, exists := c.countdowns[raceID]; exists {
		c.countdownsMu.Unlock()
		log.Debug().Str("race_id", raceID.String()).Msg("countdown already in flight")
		return
	}

	r, ok := c.registry.Get(raceID)
	if !ok {
		c.countdownsMu.Unlock()
		log.Warn().
			Str("race_id", raceID.String()).
			Time("at", c.clock.Now()).
			Msg("countdown requested for unknown race")
		return
	}

	r.mu.Lock()
	if r.Status != StatusWaiting {
		r.mu.Unlock()
		c.countdownsMu.Unlock()
		return
	}
	r.Status = StatusCountdown
	snaps := r.snapshotLocked()
	r.mu.Unlock()

	cd := &countdown{
		raceID: raceID,
		cancel: make(chan struct{}),
	}
	c.countdowns[raceID] = cd
	c.countdownsMu.Unlock()

	log.Info().
		Str("race_id", raceID.String()).
		Int("seconds", countdownStart).
		Msg("countdown started")

	remaining := countdownStart
	c.broadcast(raceID, events.EventTypeRaceStateUpdate, events.RaceStateUpdatePayload{
		RaceID:       raceID.String(),
		Status:       string(StatusCountdown),
		Countdown:    &remaining,
		Participants: snaps,
	})

	go c.runCountdown(cd)
}

// runCountdown ticks once per second, broadcasting the remaining count down
// to and including zero, then hands the race over to the game loop.
func (c *Coordinator) runCountdown(cd *countdown) {
	ticker := c.clock.NewTicker(countdownTickPeriod)
	defer ticker.Stop()

	remaining := countdownStart
	for {
		select {
		case <-c.done:
			return
		case <-cd.cancel:
			return
		case <-ticker.Chan():
			r, ok := c.registry.Get(cd.raceID)
			if !ok {
				// Race vanished mid-countdown; abort without starting the loop.
				c.releaseCountdown(cd.raceID)
				log.Warn().
					Str("race_id", cd.raceID.String()).
					Msg("race disappeared mid-countdown")
				return
			}

			r.mu.Lock()
			status := r.Status
			snaps := r.snapshotLocked()
			r.mu.Unlock()

			remaining--
			count := remaining
			c.broadcast(cd.raceID, events.EventTypeRaceStateUpdate, events.RaceStateUpdatePayload{
				RaceID:       cd.raceID.String(),
				Status:       string(status),
				Countdown:    &count,
				Participants: snaps,
			})

			if remaining <= 0 {
				// Releasing the handle before starting the loop means a race
				// that somehow returns to waiting can be scheduled again.
				c.releaseCountdown(cd.raceID)
				c.startLoop(cd.raceID)
				return
			}
		}
	}
}

// cancelCountdown drops the in-flight countdown for a race that emptied out
// mid-countdown. The race stays registered and goes back to waiting so a
// fresh join schedules a new countdown.
func (c *Coordinator) cancelCountdown(raceID uuid.UUID) {
	c.countdownsMu.Lock()
	cd, ok := c.countdowns[raceID]
	if ok {
		delete(c.countdowns, raceID)
	}
	c.countdownsMu.Unlock()
	if !ok {
		return
	}

	cd.stop()

	if r, found := c.registry.Get(raceID); found {
		r.mu.Lock()
		if r.Status == StatusCountdown {
			r.Status = StatusWaiting
		}
		r.mu.Unlock()
	}

	log.Info().Str("race_id", raceID.String()).Msg("countdown cancelled")
}

// releaseCountdown removes the handle once the countdown has run its course.
func (c *Coordinator) releaseCountdown(raceID uuid.UUID) {
	c.countdownsMu.Lock()
	delete(c.countdowns, raceID)
	c.countdownsMu.Unlock()
}

// countdownInFlight reports whether a countdown handle exists for a race.
func (c *Coordinator) countdownInFlight(raceID uuid.UUID) bool {
	c.countdownsMu.Lock()
	defer c.countdownsMu.Unlock()
	_, ok := c.countdowns[raceID]
	return ok
}
