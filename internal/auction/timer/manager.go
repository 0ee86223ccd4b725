// Package timer tracks the single live bid deadline per auction and fires
// exactly one expiry per armed deadline. Deadlines can be reprogrammed on new
// bids, frozen on pause, re-armed on resume, and rebuilt from a persisted
// absolute end time after a restart.
package timer

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ExpiryFunc is invoked exactly once when an armed deadline elapses. It runs
// on the manager's waiter goroutine; implementations route into the owning
// auction's command queue rather than mutating state directly.
type ExpiryFunc func(auctionID uuid.UUID, lotID string)

// Manager maps auctionID -> live deadline. One deadline per auction: a new
// Schedule or Reset for the same auction supersedes the previous timer.
type Manager struct {
	clock    clockwork.Clock
	onExpiry ExpiryFunc

	mu     sync.Mutex
	active map[uuid.UUID]*entry
}

type entry struct {
	lotID    string
	endsAt   time.Time
	timer    clockwork.Timer
	done     chan struct{}
	stopOnce sync.Once

	// Set while the auction is paused; the timer is disarmed and the
	// leftover window kept for resume.
	paused bool
	frozen time.Duration
}

func (e *entry) stop() {
	e.stopOnce.Do(func() { close(e.done) })
}

// NewManager returns a manager driven by the given clock. Production passes
// clockwork.NewRealClock(); tests pass a fake clock.
func NewManager(clock clockwork.Clock, onExpiry ExpiryFunc) *Manager {
	return &Manager{
		clock:    clock,
		onExpiry: onExpiry,
		active:   make(map[uuid.UUID]*entry),
	}
}

// Schedule arms a fresh deadline of the given window for the auction's live
// lot, superseding any previous deadline. Returns the absolute end time.
func (m *Manager) Schedule(auctionID uuid.UUID, lotID string, window time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.arm(auctionID, lotID, window)
}

// Reset reprograms the deadline to a full window. Called on every accepted
// bid so a late bid always restarts the clock (anti-snipe).
func (m *Manager) Reset(auctionID uuid.UUID, lotID string, window time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.arm(auctionID, lotID, window)
}

// RestoreDeadline re-arms a deadline from a persisted absolute end time after
// a process restart. A deadline already in the past fires immediately rather
// than being lost.
func (m *Manager) RestoreDeadline(auctionID uuid.UUID, lotID string, endsAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.arm(auctionID, lotID, endsAt.Sub(m.clock.Now()))
}

// Pause disarms the auction's deadline and freezes the remaining window.
// Returns the frozen remainder, or false if no deadline is armed.
func (m *Manager) Pause(auctionID uuid.UUID) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.active[auctionID]
	if !ok || e.paused {
		return 0, false
	}

	remaining := e.endsAt.Sub(m.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	e.stop()

	m.active[auctionID] = &entry{
		lotID:  e.lotID,
		paused: true,
		frozen: remaining,
		done:   make(chan struct{}),
	}
	log.Debug().
		Str("auction_id", auctionID.String()).
		Str("lot_id", e.lotID).
		Dur("remaining", remaining).
		Msg("deadline frozen")
	return remaining, true
}

// Resume re-arms a paused deadline with its frozen remainder, not a fresh
// window. Returns the new absolute end time.
func (m *Manager) Resume(auctionID uuid.UUID) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.active[auctionID]
	if !ok || !e.paused {
		return time.Time{}, false
	}
	return m.arm(auctionID, e.lotID, e.frozen), true
}

// Cancel disarms and forgets the auction's deadline, if any.
func (m *Manager) Cancel(auctionID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.active[auctionID]; ok {
		e.stop()
		delete(m.active, auctionID)
	}
}

// Deadline returns the armed absolute end time for the auction.
func (m *Manager) Deadline(auctionID uuid.UUID) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.active[auctionID]
	if !ok || e.paused {
		return time.Time{}, false
	}
	return e.endsAt, true
}

// arm replaces any existing entry with a live timer. Caller holds m.mu.
func (m *Manager) arm(auctionID uuid.UUID, lotID string, window time.Duration) time.Time {
	if old, ok := m.active[auctionID]; ok {
		old.stop()
	}
	if window < 0 {
		window = 0
	}

	e := &entry{
		lotID:  lotID,
		endsAt: m.clock.Now().Add(window),
		timer:  m.clock.NewTimer(window),
		done:   make(chan struct{}),
	}
	m.active[auctionID] = e
	go m.wait(auctionID, e)

	log.Debug().
		Str("auction_id", auctionID.String()).
		Str("lot_id", lotID).
		Time("ends_at", e.endsAt).
		Msg("deadline armed")
	return e.endsAt
}

func (m *Manager) wait(auctionID uuid.UUID, e *entry) {
	select {
	case <-e.timer.Chan():
		m.mu.Lock()
		if cur, ok := m.active[auctionID]; !ok || cur != e {
			// Superseded by a newer deadline between fire and lock.
			m.mu.Unlock()
			return
		}
		delete(m.active, auctionID)
		m.mu.Unlock()
		m.onExpiry(auctionID, e.lotID)
	case <-e.done:
		stopAndDrain(e.timer)
	}
}

// stopAndDrain stops a timer and drains its channel if it already fired,
// per the time.Timer.Stop contract.
func stopAndDrain(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
