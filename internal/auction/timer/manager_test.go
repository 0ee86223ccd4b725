package timer

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firing struct {
	auctionID uuid.UUID
	lotID     string
}

func newTestManager(t *testing.T) (*Manager, *clockwork.FakeClock, chan firing) {
	t.Helper()
	fc := clockwork.NewFakeClock()
	fired := make(chan firing, 8)
	m := NewManager(fc, func(auctionID uuid.UUID, lotID string) {
		fired <- firing{auctionID: auctionID, lotID: lotID}
	})
	return m, fc, fired
}

func expectFire(t *testing.T, fired chan firing) firing {
	t.Helper()
	select {
	case f := <-fired:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("expected expiry, got none")
		return firing{}
	}
}

func expectNoFire(t *testing.T, fired chan firing) {
	t.Helper()
	select {
	case f := <-fired:
		t.Fatalf("unexpected expiry for lot %s", f.lotID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScheduleFiresOnce(t *testing.T) {
	m, fc, fired := newTestManager(t)
	id := uuid.New()

	endsAt := m.Schedule(id, "DAL", 10*time.Second)
	assert.Equal(t, fc.Now().Add(10*time.Second), endsAt)

	fc.BlockUntil(1)
	fc.Advance(9 * time.Second)
	expectNoFire(t, fired)

	fc.Advance(1 * time.Second)
	f := expectFire(t, fired)
	assert.Equal(t, id, f.auctionID)
	assert.Equal(t, "DAL", f.lotID)

	// Deadline is consumed; nothing further fires.
	fc.Advance(time.Minute)
	expectNoFire(t, fired)
	_, ok := m.Deadline(id)
	assert.False(t, ok)
}

func TestResetRestartsFullWindow(t *testing.T) {
	m, fc, fired := newTestManager(t)
	id := uuid.New()

	m.Schedule(id, "GB", 10*time.Second)
	fc.BlockUntil(1)
	fc.Advance(7 * time.Second)

	// A valid bid three seconds before expiry restarts the clock.
	m.Reset(id, "GB", 10*time.Second)
	fc.BlockUntil(1)

	fc.Advance(9 * time.Second)
	expectNoFire(t, fired)

	fc.Advance(1 * time.Second)
	f := expectFire(t, fired)
	assert.Equal(t, "GB", f.lotID)
}

func TestPauseResumePreservesRemaining(t *testing.T) {
	m, fc, fired := newTestManager(t)
	id := uuid.New()

	m.Schedule(id, "KC", 30*time.Second)
	fc.BlockUntil(1)
	fc.Advance(22 * time.Second)

	remaining, ok := m.Pause(id)
	require.True(t, ok)
	assert.Equal(t, 8*time.Second, remaining)

	// Time passing while paused changes nothing.
	fc.Advance(5 * time.Minute)
	expectNoFire(t, fired)

	endsAt, ok := m.Resume(id)
	require.True(t, ok)
	assert.Equal(t, fc.Now().Add(8*time.Second), endsAt)

	fc.BlockUntil(1)
	fc.Advance(7 * time.Second)
	expectNoFire(t, fired)

	fc.Advance(1 * time.Second)
	f := expectFire(t, fired)
	assert.Equal(t, "KC", f.lotID)
}

func TestPauseWithoutDeadline(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, ok := m.Pause(uuid.New())
	assert.False(t, ok)
	_, ok = m.Resume(uuid.New())
	assert.False(t, ok)
}

func TestCancelDisarms(t *testing.T) {
	m, fc, fired := newTestManager(t)
	id := uuid.New()

	m.Schedule(id, "SF", 10*time.Second)
	fc.BlockUntil(1)
	m.Cancel(id)

	fc.Advance(time.Minute)
	expectNoFire(t, fired)
}

func TestScheduleSupersedesPrevious(t *testing.T) {
	m, fc, fired := newTestManager(t)
	id := uuid.New()

	m.Schedule(id, "SEA", 10*time.Second)
	fc.BlockUntil(1)
	m.Schedule(id, "LAR", 20*time.Second)
	fc.BlockUntil(1)

	fc.Advance(10 * time.Second)
	expectNoFire(t, fired)

	fc.Advance(10 * time.Second)
	f := expectFire(t, fired)
	assert.Equal(t, "LAR", f.lotID)

	fc.Advance(time.Minute)
	expectNoFire(t, fired)
}

func TestRestoreDeadlineInPastFiresImmediately(t *testing.T) {
	m, fc, fired := newTestManager(t)
	id := uuid.New()

	// Deadline that elapsed while the process was down.
	m.RestoreDeadline(id, "PHI", fc.Now().Add(-30*time.Second))
	fc.Advance(time.Millisecond)

	f := expectFire(t, fired)
	assert.Equal(t, "PHI", f.lotID)
}

func TestRestoreDeadlineInFuture(t *testing.T) {
	m, fc, fired := newTestManager(t)
	id := uuid.New()

	m.RestoreDeadline(id, "NYJ", fc.Now().Add(12*time.Second))
	fc.BlockUntil(1)

	fc.Advance(11 * time.Second)
	expectNoFire(t, fired)

	fc.Advance(1 * time.Second)
	f := expectFire(t, fired)
	assert.Equal(t, "NYJ", f.lotID)
}
