package race

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/zaHanley/code-racer/go/internal/race/events"
)

// Records everything the coordinator broadcasts
type fakeBroadcaster struct {
	mu         sync.Mutex
	broadcasts []*events.Event
	unicasts   map[string][]*events.Event
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{
		unicasts: make(map[string][]*events.Event),
	}
}

func (f *fakeBroadcaster) BroadcastToRace(raceID uuid.UUID, event *events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, event)
}

func (f *fakeBroadcaster) SendToSocket(socketID string, event *events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unicasts[socketID] = append(f.unicasts[socketID], event)
}

func (f *fakeBroadcaster) countByType(eventType events.EventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, evt := range f.broadcasts {
		if evt.Type == eventType {
			n++
		}
	}
	return n
}

func (f *fakeBroadcaster) stateUpdates() []events.RaceStateUpdatePayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	var updates []events.RaceStateUpdatePayload
	for _, evt := range f.broadcasts {
		if evt.Type != events.EventTypeRaceStateUpdate {
			continue
		}
		var payload events.RaceStateUpdatePayload
		if err := json.Unmarshal(evt.Data, &payload); err != nil {
			continue
		}
		updates = append(updates, payload)
	}
	return updates
}

func (f *fakeBroadcaster) unicastsFor(socketID string) []*events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*events.Event(nil), f.unicasts[socketID]...)
}

// Records persistence commands
type fakeStore struct {
	mu                  sync.Mutex
	deletedParticipants []uuid.UUID
	deletedRaces        []uuid.UUID
	startedAt           map[uuid.UUID][]time.Time
	endedAt             map[uuid.UUID][]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		startedAt: make(map[uuid.UUID][]time.Time),
		endedAt:   make(map[uuid.UUID][]time.Time),
	}
}

func (f *fakeStore) DeleteParticipant(ctx context.Context, participantID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedParticipants = append(f.deletedParticipants, participantID)
	return nil
}

func (f *fakeStore) DeleteRace(ctx context.Context, raceID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedRaces = append(f.deletedRaces, raceID)
	return nil
}

func (f *fakeStore) SetRaceStartedAt(ctx context.Context, raceID uuid.UUID, startedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startedAt[raceID] = append(f.startedAt[raceID], startedAt)
	return nil
}

func (f *fakeStore) SetRaceEndedAt(ctx context.Context, raceID uuid.UUID, endedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endedAt[raceID] = append(f.endedAt[raceID], endedAt)
	return nil
}

func (f *fakeStore) deletedParticipantCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deletedParticipants)
}

func (f *fakeStore) endedCount(raceID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.endedAt[raceID])
}

func (f *fakeStore) startedCount(raceID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.startedAt[raceID])
}

func newTestCoordinator(maxParticipants int) (*Coordinator, *fakeBroadcaster, *fakeStore, clockwork.Clock) {
	broadcaster := newFakeBroadcaster()
	store := newFakeStore()
	c := NewCoordinator(broadcaster, store, nil, maxParticipants)
	clock := clockwork.NewFakeClock()
	c.clock = clock
	return c, broadcaster, store, clock
}

func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestSoloJoinStaysWaiting(t *testing.T) {
	c, broadcaster, _, _ := newTestCoordinator(4)
	defer c.Close()

	raceID := uuid.New()
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-a")

	r, ok := c.registry.Get(raceID)
	if !ok {
		t.Fatal("race should be registered")
	}
	if r.Status != StatusWaiting {
		t.Errorf("expected waiting, got %s", r.Status)
	}
	if c.countdownInFlight(raceID) {
		t.Error("solo join must not start a countdown")
	}
	if got := broadcaster.countByType(events.EventTypeRaceEnter); got != 1 {
		t.Errorf("expected 1 enter broadcast, got %d", got)
	}
}

func TestSecondJoinStartsCountdown(t *testing.T) {
	c, broadcaster, _, _ := newTestCoordinator(4)
	defer c.Close()

	raceID := uuid.New()
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-a")
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-b")

	r, _ := c.registry.Get(raceID)
	if r.Status != StatusCountdown {
		t.Errorf("expected countdown, got %s", r.Status)
	}
	if !c.countdownInFlight(raceID) {
		t.Error("expected a countdown handle")
	}

	// A countdown announcement carries the starting count
	updates := broadcaster.stateUpdates()
	if len(updates) != 1 {
		t.Fatalf("expected 1 state update, got %d", len(updates))
	}
	if updates[0].Countdown == nil || *updates[0].Countdown != countdownStart {
		t.Errorf("expected countdown %d in announcement, got %v", countdownStart, updates[0].Countdown)
	}
}

func TestStartCountdownIsIdempotent(t *testing.T) {
	c, broadcaster, _, _ := newTestCoordinator(4)
	defer c.Close()

	raceID := uuid.New()
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-a")
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-b")

	c.StartCountdown(raceID)
	c.StartCountdown(raceID)

	c.countdownsMu.Lock()
	handles := len(c.countdowns)
	c.countdownsMu.Unlock()
	if handles != 1 {
		t.Errorf("expected exactly 1 countdown handle, got %d", handles)
	}
	if got := broadcaster.countByType(events.EventTypeRaceStateUpdate); got != 1 {
		t.Errorf("expected 1 countdown announcement, got %d", got)
	}
}

func TestJoinFullRaceIsRejected(t *testing.T) {
	c, broadcaster, store, _ := newTestCoordinator(2)
	defer c.Close()

	raceID := uuid.New()
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-a")
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-b")

	rejectedID := uuid.New()
	c.EnterRace(context.Background(), raceID, rejectedID, "sock-c")

	r, _ := c.registry.Get(raceID)
	r.mu.Lock()
	count := len(r.Participants)
	_, present := r.Participants["sock-c"]
	r.mu.Unlock()
	if present {
		t.Error("rejected participant must not be added")
	}
	if count != 2 {
		t.Errorf("participant count changed: got %d", count)
	}

	full := broadcaster.unicastsFor("sock-c")
	if len(full) != 1 || full[0].Type != events.EventTypeRaceFull {
		t.Fatalf("expected exactly one RaceFull unicast, got %v", full)
	}

	store.mu.Lock()
	deleted := append([]uuid.UUID(nil), store.deletedParticipants...)
	store.mu.Unlock()
	if len(deleted) != 1 || deleted[0] != rejectedID {
		t.Errorf("expected the rejected record deleted, got %v", deleted)
	}

	// No enter broadcast for the rejected join: two accepted joins only
	if got := broadcaster.countByType(events.EventTypeRaceEnter); got != 2 {
		t.Errorf("expected 2 enter broadcasts, got %d", got)
	}
}

func TestLeaveUnfinishedDeletesRecord(t *testing.T) {
	c, broadcaster, store, _ := newTestCoordinator(4)
	defer c.Close()

	raceID := uuid.New()
	participantID := uuid.New()
	c.EnterRace(context.Background(), raceID, participantID, "sock-a")
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-b")

	c.LeaveRace(context.Background(), raceID, "sock-a")

	if store.deletedParticipantCount() != 1 {
		t.Fatalf("expected 1 participant delete, got %d", store.deletedParticipantCount())
	}
	if got := broadcaster.countByType(events.EventTypeRaceLeave); got != 1 {
		t.Errorf("expected 1 leave broadcast, got %d", got)
	}
}

func TestLeaveAfterFinishingKeepsRecord(t *testing.T) {
	c, _, store, _ := newTestCoordinator(4)
	defer c.Close()

	raceID := uuid.New()
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-a")
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-b")

	c.UpdatePosition(context.Background(), raceID, "sock-a", MaxPosition)
	c.LeaveRace(context.Background(), raceID, "sock-a")

	if store.deletedParticipantCount() != 0 {
		t.Errorf("finished participant's record must survive a leave, got %d deletes", store.deletedParticipantCount())
	}
}

func TestLeaveUnknownRaceIsNoop(t *testing.T) {
	c, broadcaster, store, _ := newTestCoordinator(4)
	defer c.Close()

	c.LeaveRace(context.Background(), uuid.New(), "sock-a")

	if len(broadcaster.broadcasts) != 0 {
		t.Error("no broadcast expected for unknown race")
	}
	if store.deletedParticipantCount() != 0 {
		t.Error("no persistence command expected for unknown race")
	}
}

func TestDisconnectSynthesizesLeave(t *testing.T) {
	c, broadcaster, _, _ := newTestCoordinator(4)
	defer c.Close()

	raceID := uuid.New()
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-a")
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-b")

	c.Disconnect(context.Background(), "sock-b")

	r, _ := c.registry.Get(raceID)
	r.mu.Lock()
	_, present := r.Participants["sock-b"]
	r.mu.Unlock()
	if present {
		t.Error("disconnected participant should be removed")
	}
	if got := broadcaster.countByType(events.EventTypeRaceLeave); got != 1 {
		t.Errorf("expected 1 leave broadcast, got %d", got)
	}
	if _, ok := c.RaceOf("sock-b"); ok {
		t.Error("socket index entry should be gone")
	}
}

func TestEmptiedCountdownIsDroppedNotFinalized(t *testing.T) {
	c, _, store, _ := newTestCoordinator(4)
	defer c.Close()

	raceID := uuid.New()
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-a")
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-b")

	c.LeaveRace(context.Background(), raceID, "sock-a")
	c.LeaveRace(context.Background(), raceID, "sock-b")

	if c.countdownInFlight(raceID) {
		t.Error("countdown handle should be dropped")
	}
	r, ok := c.registry.Get(raceID)
	if !ok {
		t.Fatal("emptied countdown race stays registered")
	}
	if r.Status != StatusWaiting {
		t.Errorf("expected race back to waiting, got %s", r.Status)
	}
	if store.endedCount(raceID) != 0 {
		t.Error("an emptied countdown race must not be finalized")
	}
}

func TestSoloLeaveReapsWaitingRace(t *testing.T) {
	c, _, store, _ := newTestCoordinator(4)
	defer c.Close()

	raceID := uuid.New()
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-a")
	c.LeaveRace(context.Background(), raceID, "sock-a")

	if _, ok := c.registry.Get(raceID); ok {
		t.Error("abandoned waiting race should be removed")
	}
	store.mu.Lock()
	reaped := len(store.deletedRaces)
	store.mu.Unlock()
	if reaped != 1 {
		t.Errorf("expected the race record deleted, got %d deletes", reaped)
	}
	if store.endedCount(raceID) != 0 {
		t.Error("reaping must not look like a finish")
	}
}

func TestAllFinishedEndsRaceExactlyOnce(t *testing.T) {
	c, broadcaster, store, _ := newTestCoordinator(4)
	defer c.Close()

	raceID := uuid.New()
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-a")
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-b")

	c.UpdatePosition(context.Background(), raceID, "sock-a", MaxPosition)
	if _, ok := c.registry.Get(raceID); !ok {
		t.Fatal("race must not end while a participant is unfinished")
	}

	c.UpdatePosition(context.Background(), raceID, "sock-b", MaxPosition)

	if _, ok := c.registry.Get(raceID); ok {
		t.Error("finished race should be removed from the registry")
	}
	if store.endedCount(raceID) != 1 {
		t.Errorf("expected exactly 1 end-timestamp write, got %d", store.endedCount(raceID))
	}

	finished := 0
	for _, update := range broadcaster.stateUpdates() {
		if update.Status == string(StatusFinished) {
			finished++
		}
	}
	if finished != 1 {
		t.Errorf("expected exactly 1 finished broadcast, got %d", finished)
	}

	// A late leave for the removed race is a no-op, not a second finalize
	c.LeaveRace(context.Background(), raceID, "sock-a")
	if store.endedCount(raceID) != 1 {
		t.Error("duplicate end detection must not finalize twice")
	}
}

func TestPositionClampAndFinishLatch(t *testing.T) {
	c, _, _, clock := newTestCoordinator(4)
	defer c.Close()

	raceID := uuid.New()
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-a")
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-b")

	c.UpdatePosition(context.Background(), raceID, "sock-a", 150)

	r, _ := c.registry.Get(raceID)
	r.mu.Lock()
	p := r.Participants["sock-a"]
	pos, finishedAt := p.Position, p.FinishedAt
	r.mu.Unlock()
	if pos != MaxPosition {
		t.Errorf("expected clamp to %d, got %v", MaxPosition, pos)
	}
	if finishedAt == nil || !finishedAt.Equal(clock.Now()) {
		t.Fatalf("expected finishedAt latched at %v, got %v", clock.Now(), finishedAt)
	}

	// Positions are client-controlled: backwards moves are accepted, but the
	// completion timestamp never resets
	c.UpdatePosition(context.Background(), raceID, "sock-a", 40)
	r.mu.Lock()
	pos = p.Position
	stillFinished := p.FinishedAt
	r.mu.Unlock()
	if pos != 40 {
		t.Errorf("expected backwards move to 40, got %v", pos)
	}
	if stillFinished == nil || !stillFinished.Equal(*finishedAt) {
		t.Error("finishedAt must be set exactly once")
	}
}

func TestPositionUpdateUnknownRaceIsNoop(t *testing.T) {
	c, broadcaster, _, _ := newTestCoordinator(4)
	defer c.Close()

	c.UpdatePosition(context.Background(), uuid.New(), "sock-a", 50)

	if len(broadcaster.broadcasts) != 0 {
		t.Error("no broadcast expected for unknown race")
	}
}

func TestRunningRaceEndsWhenLastUnfinishedLeaves(t *testing.T) {
	c, _, store, clock := newTestCoordinator(4)
	defer c.Close()

	raceID := uuid.New()
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-a")
	c.EnterRace(context.Background(), raceID, uuid.New(), "sock-b")

	// Run the countdown out and let the loop take the race to running
	fc := clock.(advancer)
	waitFor(t, "race running", func() bool {
		if store.startedCount(raceID) >= 1 {
			return true
		}
		fc.Advance(loopTickPeriod)
		return false
	})

	// A finishes, B gives up: the race has nobody left unfinished
	c.UpdatePosition(context.Background(), raceID, "sock-a", MaxPosition)
	c.LeaveRace(context.Background(), raceID, "sock-a")
	c.LeaveRace(context.Background(), raceID, "sock-b")

	if _, ok := c.registry.Get(raceID); ok {
		t.Error("race should be finalized once empty while running")
	}
	if store.endedCount(raceID) != 1 {
		t.Errorf("expected exactly 1 end-timestamp write, got %d", store.endedCount(raceID))
	}
}

// advancer is the slice of the fake clock timing tests drive.
type advancer interface {
	Advance(d time.Duration)
}
