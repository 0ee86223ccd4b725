package auction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftkit/teamauction/internal/auction/events"
	"github.com/draftkit/teamauction/internal/models"
)

// fakeRepo is an in-memory Repository. failWith, when set, makes the next
// Save* call fail so commit-or-reject behavior can be exercised.
type fakeRepo struct {
	mu       sync.Mutex
	auctions map[uuid.UUID]*models.Auction
	lots     map[uuid.UUID]map[string]models.TeamLot
	lotOrder map[uuid.UUID][]string
	bids     map[uuid.UUID][]models.Bid
	failWith error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		auctions: make(map[uuid.UUID]*models.Auction),
		lots:     make(map[uuid.UUID]map[string]models.TeamLot),
		lotOrder: make(map[uuid.UUID][]string),
		bids:     make(map[uuid.UUID][]models.Bid),
	}
}

func (r *fakeRepo) fail() error {
	if err := r.failWith; err != nil {
		r.failWith = nil
		return err
	}
	return nil
}

func (r *fakeRepo) CreateAuction(_ context.Context, a *models.Auction, lotList []models.TeamLot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	r.auctions[a.ID] = a.Clone()
	byID := make(map[string]models.TeamLot, len(lotList))
	for _, lot := range lotList {
		byID[lot.TeamID] = lot
		r.lotOrder[a.ID] = append(r.lotOrder[a.ID], lot.TeamID)
	}
	r.lots[a.ID] = byID
	return nil
}

func (r *fakeRepo) SaveState(_ context.Context, a *models.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	r.auctions[a.ID] = a.Clone()
	return nil
}

func (r *fakeRepo) SaveNomination(_ context.Context, a *models.Auction, lot models.TeamLot, opening models.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	r.auctions[a.ID] = a.Clone()
	r.lots[a.ID][lot.TeamID] = lot
	r.bids[a.ID] = append(r.bids[a.ID], opening)
	return nil
}

func (r *fakeRepo) SaveBid(_ context.Context, a *models.Auction, bid models.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	r.auctions[a.ID] = a.Clone()
	r.bids[a.ID] = append(r.bids[a.ID], bid)
	return nil
}

func (r *fakeRepo) SaveSale(_ context.Context, a *models.Auction, lot models.TeamLot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	r.auctions[a.ID] = a.Clone()
	r.lots[a.ID][lot.TeamID] = lot
	return nil
}

func (r *fakeRepo) GetAuction(_ context.Context, id uuid.UUID) (*models.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return a.Clone(), nil
}

func (r *fakeRepo) ListLots(_ context.Context, auctionID uuid.UUID) ([]models.TeamLot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TeamLot
	for _, id := range r.lotOrder[auctionID] {
		out = append(out, r.lots[auctionID][id])
	}
	return out, nil
}

func (r *fakeRepo) ListBids(_ context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Bid(nil), r.bids[auctionID]...), nil
}

func (r *fakeRepo) ListInFlight(_ context.Context) ([]*models.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Auction
	for _, a := range r.auctions {
		if !a.Status.Terminal() {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

// captureBroadcaster records broadcast events in order.
type captureBroadcaster struct {
	mu     sync.Mutex
	events []*events.Event
}

func (c *captureBroadcaster) Broadcast(_ uuid.UUID, ev *events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureBroadcaster) last() *events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

func (c *captureBroadcaster) types() []events.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.EventType, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Type
	}
	return out
}

// fakeDeadlines is a deterministic Deadlines double driven by the same fake
// clock as the engine.
type fakeDeadlines struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	lotID    string
	endsAt   time.Time
	armed    bool
	paused   bool
	frozen   time.Duration
	restored []time.Time
}

func (d *fakeDeadlines) Schedule(_ uuid.UUID, lotID string, window time.Duration) time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lotID, d.endsAt, d.armed, d.paused = lotID, d.clock.Now().Add(window), true, false
	return d.endsAt
}

func (d *fakeDeadlines) Reset(id uuid.UUID, lotID string, window time.Duration) time.Time {
	return d.Schedule(id, lotID, window)
}

func (d *fakeDeadlines) Pause(_ uuid.UUID) (time.Duration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.armed || d.paused {
		return 0, false
	}
	d.frozen = d.endsAt.Sub(d.clock.Now())
	d.paused = true
	return d.frozen, true
}

func (d *fakeDeadlines) Resume(_ uuid.UUID) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.paused {
		return time.Time{}, false
	}
	d.endsAt = d.clock.Now().Add(d.frozen)
	d.paused = false
	return d.endsAt, true
}

func (d *fakeDeadlines) Cancel(_ uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = false
}

func (d *fakeDeadlines) RestoreDeadline(_ uuid.UUID, lotID string, endsAt time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lotID, d.endsAt, d.armed = lotID, endsAt, true
	d.restored = append(d.restored, endsAt)
}

type testRig struct {
	eng   *Engine
	repo  *fakeRepo
	bcast *captureBroadcaster
	dl    *fakeDeadlines
	clock *clockwork.FakeClock
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	fc := clockwork.NewFakeClock()
	repo := newFakeRepo()
	bcast := &captureBroadcaster{}
	dl := &fakeDeadlines{clock: fc}
	eng := NewEngine(repo, bcast, dl, fc)
	t.Cleanup(eng.Close)
	return &testRig{eng: eng, repo: repo, bcast: bcast, dl: dl, clock: fc}
}

var testSettings = models.AuctionSettings{
	MinimumBid:      1,
	BidIncrement:    1,
	BidTimerSec:     30,
	MinParticipants: 2,
	MaxParticipants: 12,
}

// createAuction sets up a scheduled auction with n participants. The first
// participant is the auctioneer.
func createAuction(t *testing.T, rig *testRig, n int, teams []string) (*Snapshot, []uuid.UUID) {
	t.Helper()
	users := make([]uuid.UUID, n)
	parts := make([]models.Participant, n)
	names := []string{"alice", "bob", "carol", "dave", "erin", "frank"}
	for i := range users {
		users[i] = uuid.New()
		parts[i] = models.Participant{UserID: users[i], Username: names[i%len(names)], IsActive: true}
	}
	snap, err := rig.eng.Create(context.Background(), CreateRequest{
		LeagueID:     uuid.New(),
		AuctioneerID: users[0],
		Participants: parts,
		Settings:     testSettings,
		TeamIDs:      teams,
	})
	require.NoError(t, err)
	require.Equal(t, models.AuctionStatusScheduled, snap.Status)
	return snap, users
}

func startAuction(t *testing.T, rig *testRig, n int, teams []string) (uuid.UUID, []uuid.UUID) {
	t.Helper()
	snap, users := createAuction(t, rig, n, teams)
	started, err := rig.eng.Start(context.Background(), snap.AuctionID, users[0])
	require.NoError(t, err)
	require.Equal(t, models.AuctionStatusActive, started.Status)
	return snap.AuctionID, users
}

func TestStartOnlyByAuctioneer(t *testing.T) {
	rig := newTestRig(t)
	snap, users := createAuction(t, rig, 3, []string{"DAL", "GB", "KC"})

	_, err := rig.eng.Start(context.Background(), snap.AuctionID, users[1])
	assert.Equal(t, KindNotAuctioneer, KindOf(err))

	started, err := rig.eng.Start(context.Background(), snap.AuctionID, users[0])
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusActive, started.Status)
	assert.Len(t, started.NominationOrder, 3)
	require.NotNil(t, started.CurrentNominator)
	assert.Equal(t, users[0], *started.CurrentNominator)

	// Starting twice is an invalid transition.
	_, err = rig.eng.Start(context.Background(), snap.AuctionID, users[0])
	assert.Equal(t, KindInvalidTransition, KindOf(err))
}

func TestStartRejectsBelowMinimumParticipants(t *testing.T) {
	rig := newTestRig(t)
	users := []uuid.UUID{uuid.New()}
	snap, err := rig.eng.Create(context.Background(), CreateRequest{
		LeagueID:     uuid.New(),
		AuctioneerID: users[0],
		Participants: []models.Participant{{UserID: users[0], Username: "solo"}},
		Settings:     testSettings,
		TeamIDs:      []string{"DAL", "GB"},
	})
	require.NoError(t, err)

	_, err = rig.eng.Start(context.Background(), snap.AuctionID, users[0])
	assert.Equal(t, KindInvalidTransition, KindOf(err))
}

func TestSnakeNominationTurns(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	id, users := startAuction(t, rig, 3, []string{"DAL", "GB", "KC", "SF", "PHI", "SEA"})

	// Slot 1 cannot nominate on slot 0's turn.
	_, err := rig.eng.Nominate(ctx, id, users[1], "DAL", 1)
	assert.Equal(t, KindNotYourTurn, KindOf(err))
	require.NotNil(t, SnapshotOf(err))

	// Turn holder nominates; the nomination is a standing bid.
	snap, err := rig.eng.Nominate(ctx, id, users[0], "DAL", 5)
	require.NoError(t, err)
	require.NotNil(t, snap.CurrentLot)
	assert.Equal(t, "DAL", *snap.CurrentLot)
	assert.Equal(t, int64(5), snap.CurrentBid)
	assert.Equal(t, users[0], *snap.CurrentHighBidder)
	assert.Equal(t, 30, snap.TimeRemainingSec)

	bids, err := rig.eng.Bids(id)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, users[0], bids[0].BidderID)

	// No second nomination while a lot is live.
	_, err = rig.eng.Nominate(ctx, id, users[0], "GB", 1)
	assert.Equal(t, KindInvalidTransition, KindOf(err))

	// Sell DAL uncontested, then turn passes snake-forward to slot 1.
	rig.clock.Advance(31 * time.Second)
	rig.eng.HandleExpiry(id, "DAL")

	snap, err = rig.eng.Snapshot(id)
	require.NoError(t, err)
	require.NotNil(t, snap.CurrentNominator)
	assert.Equal(t, users[1], *snap.CurrentNominator)

	_, err = rig.eng.Nominate(ctx, id, users[0], "GB", 1)
	assert.Equal(t, KindNotYourTurn, KindOf(err))
	_, err = rig.eng.Nominate(ctx, id, users[1], "GB", 1)
	require.NoError(t, err)
}

func TestBidValidation(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	id, users := startAuction(t, rig, 3, []string{"DAL", "GB", "KC"})

	_, err := rig.eng.Nominate(ctx, id, users[0], "DAL", 5)
	require.NoError(t, err)

	// Bid on a lot that is not live.
	_, err = rig.eng.Bid(ctx, id, users[1], "GB", 10)
	assert.Equal(t, KindStaleBid, KindOf(err))

	// Equal amount does not beat the standing bid, even from its holder.
	_, err = rig.eng.Bid(ctx, id, users[0], "DAL", 5)
	assert.Equal(t, KindStaleBid, KindOf(err))

	// Non-participant.
	_, err = rig.eng.Bid(ctx, id, uuid.New(), "DAL", 10)
	assert.Equal(t, KindNotYourTurn, KindOf(err))

	snap, err := rig.eng.Bid(ctx, id, users[1], "DAL", 8)
	require.NoError(t, err)
	assert.Equal(t, int64(8), snap.CurrentBid)
	assert.Equal(t, users[1], *snap.CurrentHighBidder)

	// High bidder raising their own standing bid.
	_, err = rig.eng.Bid(ctx, id, users[1], "DAL", 12)
	assert.Equal(t, KindSelfOutbid, KindOf(err))

	// A bid racing a just-accepted higher bid loses as stale and the
	// rejection carries the authoritative state.
	_, err = rig.eng.Bid(ctx, id, users[2], "DAL", 7)
	assert.Equal(t, KindStaleBid, KindOf(err))
	resync := SnapshotOf(err)
	require.NotNil(t, resync)
	assert.Equal(t, int64(8), resync.CurrentBid)
}

func TestAcceptedBidRestartsTimer(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	id, users := startAuction(t, rig, 3, []string{"DAL", "GB"})

	_, err := rig.eng.Nominate(ctx, id, users[0], "DAL", 5)
	require.NoError(t, err)
	firstEnd := rig.dl.endsAt

	rig.clock.Advance(27 * time.Second)
	snap, err := rig.eng.Bid(ctx, id, users[1], "DAL", 6)
	require.NoError(t, err)

	require.NotNil(t, snap.BidEndTime)
	assert.Equal(t, rig.clock.Now().Add(30*time.Second).UTC(), snap.BidEndTime.UTC())
	assert.True(t, rig.dl.endsAt.After(firstEnd))
	assert.Equal(t, 30, snap.TimeRemainingSec)
}

func TestUncontestedLotSellsToNominator(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	id, users := startAuction(t, rig, 3, []string{"DAL", "GB", "KC"})

	_, err := rig.eng.Nominate(ctx, id, users[0], "DAL", 5)
	require.NoError(t, err)

	rig.clock.Advance(30 * time.Second)
	rig.eng.HandleExpiry(id, "DAL")

	snap, err := rig.eng.Snapshot(id)
	require.NoError(t, err)
	assert.Nil(t, snap.CurrentLot)
	assert.Equal(t, 1, snap.SoldCount)
	assert.Equal(t, int64(5), snap.TotalSpent)

	var dal *models.TeamLot
	for i := range snap.Lots {
		if snap.Lots[i].TeamID == "DAL" {
			dal = &snap.Lots[i]
		}
	}
	require.NotNil(t, dal)
	assert.Equal(t, models.LotStatusSold, dal.Status)
	require.NotNil(t, dal.OwnerID)
	assert.Equal(t, users[0], *dal.OwnerID)
	require.NotNil(t, dal.FinalPrice)
	assert.Equal(t, int64(5), *dal.FinalPrice)

	last := rig.bcast.last()
	require.NotNil(t, last)
	assert.Equal(t, events.EventTypeTeamSold, last.Type)
}

func TestStaleExpiryIsIgnored(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	id, users := startAuction(t, rig, 3, []string{"DAL", "GB"})

	_, err := rig.eng.Nominate(ctx, id, users[0], "DAL", 5)
	require.NoError(t, err)

	// A late bid already extended the deadline; the superseded expiry
	// must not settle the lot.
	rig.clock.Advance(29 * time.Second)
	_, err = rig.eng.Bid(ctx, id, users[1], "DAL", 6)
	require.NoError(t, err)

	rig.eng.HandleExpiry(id, "DAL")
	snap, err := rig.eng.Snapshot(id)
	require.NoError(t, err)
	require.NotNil(t, snap.CurrentLot)
	assert.Equal(t, 0, snap.SoldCount)

	// Duplicate expiry after settlement is a no-op.
	rig.clock.Advance(30 * time.Second)
	rig.eng.HandleExpiry(id, "DAL")
	rig.eng.HandleExpiry(id, "DAL")
	snap, err = rig.eng.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.SoldCount)
	assert.Equal(t, int64(6), snap.TotalSpent)
}

func TestPauseResumePreservesRemaining(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	id, users := startAuction(t, rig, 3, []string{"DAL", "GB"})

	_, err := rig.eng.Nominate(ctx, id, users[0], "DAL", 5)
	require.NoError(t, err)

	rig.clock.Advance(22 * time.Second)
	_, err = rig.eng.Pause(ctx, id, users[1], "dispute")
	assert.Equal(t, KindNotAuctioneer, KindOf(err))

	snap, err := rig.eng.Pause(ctx, id, users[0], "dispute")
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusPaused, snap.Status)
	assert.Equal(t, 8, snap.TimeRemainingSec)

	// No bids while paused.
	_, err = rig.eng.Bid(ctx, id, users[1], "DAL", 9)
	assert.Equal(t, KindInvalidTransition, KindOf(err))

	// Wall-clock time while paused does not erode the remainder.
	rig.clock.Advance(5 * time.Minute)
	snap, err = rig.eng.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, 8, snap.TimeRemainingSec)

	snap, err = rig.eng.Resume(ctx, id, users[0])
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusActive, snap.Status)
	require.NotNil(t, snap.BidEndTime)
	assert.Equal(t, rig.clock.Now().Add(8*time.Second).UTC(), snap.BidEndTime.UTC())

	// Resuming an active auction is invalid.
	_, err = rig.eng.Resume(ctx, id, users[0])
	assert.Equal(t, KindInvalidTransition, KindOf(err))
}

func TestCompletionAfterFinalLot(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	id, users := startAuction(t, rig, 2, []string{"DAL", "GB"})

	_, err := rig.eng.Nominate(ctx, id, users[0], "DAL", 3)
	require.NoError(t, err)
	rig.clock.Advance(30 * time.Second)
	rig.eng.HandleExpiry(id, "DAL")

	_, err = rig.eng.Nominate(ctx, id, users[1], "GB", 4)
	require.NoError(t, err)
	_, err = rig.eng.Bid(ctx, id, users[0], "GB", 7)
	require.NoError(t, err)
	rig.clock.Advance(30 * time.Second)
	rig.eng.HandleExpiry(id, "GB")

	snap, err := rig.eng.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.SoldCount)
	assert.Equal(t, int64(10), snap.TotalSpent)
	assert.Nil(t, snap.CurrentNominator)

	types := rig.bcast.types()
	require.NotEmpty(t, types)
	assert.Equal(t, events.EventTypeAuctionCompleted, types[len(types)-1])

	// Completed auctions accept no further commands.
	_, err = rig.eng.Nominate(ctx, id, users[0], "KC", 1)
	assert.Equal(t, KindInvalidTransition, KindOf(err))
	_, err = rig.eng.Cancel(ctx, id, users[0])
	assert.Equal(t, KindInvalidTransition, KindOf(err))
}

func TestCancelIsTerminal(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	id, users := startAuction(t, rig, 3, []string{"DAL", "GB"})

	_, err := rig.eng.Cancel(ctx, id, users[2])
	assert.Equal(t, KindNotAuctioneer, KindOf(err))

	snap, err := rig.eng.Cancel(ctx, id, users[0])
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusCancelled, snap.Status)
	assert.False(t, rig.dl.armed)

	_, err = rig.eng.Start(ctx, id, users[0])
	assert.Equal(t, KindInvalidTransition, KindOf(err))
}

func TestPersistFailureRejectsWholeCommand(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	id, users := startAuction(t, rig, 3, []string{"DAL", "GB"})

	_, err := rig.eng.Nominate(ctx, id, users[0], "DAL", 5)
	require.NoError(t, err)

	rig.repo.mu.Lock()
	rig.repo.failWith = errors.New("connection reset")
	rig.repo.mu.Unlock()

	_, err = rig.eng.Bid(ctx, id, users[1], "DAL", 8)
	require.Error(t, err)
	assert.Equal(t, ErrorKind(""), KindOf(err))

	// Nothing committed: no ledger entry, high bid unchanged.
	snap, err := rig.eng.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, int64(5), snap.CurrentBid)
	assert.Equal(t, users[0], *snap.CurrentHighBidder)
	bids, err := rig.eng.Bids(id)
	require.NoError(t, err)
	assert.Len(t, bids, 1)

	// The same bid succeeds once persistence recovers.
	_, err = rig.eng.Bid(ctx, id, users[1], "DAL", 8)
	require.NoError(t, err)
}

func TestUnknownAuction(t *testing.T) {
	rig := newTestRig(t)
	_, err := rig.eng.Snapshot(uuid.New())
	assert.Equal(t, KindAuctionNotFound, KindOf(err))
	_, err = rig.eng.Bid(context.Background(), uuid.New(), uuid.New(), "DAL", 5)
	assert.Equal(t, KindAuctionNotFound, KindOf(err))
}

func TestPresenceTogglesParticipant(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	id, users := startAuction(t, rig, 3, []string{"DAL", "GB"})

	snap, err := rig.eng.SetParticipantActive(ctx, id, users[1], false)
	require.NoError(t, err)
	for _, p := range snap.Participants {
		if p.UserID == users[1] {
			assert.False(t, p.IsActive)
		}
	}

	// A disconnected nominator keeps the turn; others still cannot act.
	_, err = rig.eng.SetParticipantActive(ctx, id, users[0], false)
	require.NoError(t, err)
	_, err = rig.eng.Nominate(ctx, id, users[1], "DAL", 1)
	assert.Equal(t, KindNotYourTurn, KindOf(err))
}

func TestRestoreRoundTrip(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	id, users := startAuction(t, rig, 3, []string{"DAL", "GB", "KC"})

	_, err := rig.eng.Nominate(ctx, id, users[0], "DAL", 5)
	require.NoError(t, err)
	before, err := rig.eng.Bid(ctx, id, users[1], "DAL", 9)
	require.NoError(t, err)
	rig.eng.Close()

	// Fresh process sharing the same store.
	dl2 := &fakeDeadlines{clock: rig.clock}
	eng2 := NewEngine(rig.repo, &captureBroadcaster{}, dl2, rig.clock)
	t.Cleanup(eng2.Close)
	require.NoError(t, eng2.Restore(ctx))

	after, err := eng2.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusActive, after.Status)
	assert.Equal(t, before.CurrentBid, after.CurrentBid)
	assert.Equal(t, *before.CurrentHighBidder, *after.CurrentHighBidder)
	assert.Equal(t, *before.CurrentLot, *after.CurrentLot)
	assert.Equal(t, before.NominationOrder, after.NominationOrder)

	// Deadline re-armed at the persisted absolute end time.
	require.Len(t, dl2.restored, 1)
	assert.Equal(t, before.BidEndTime.UTC(), dl2.restored[0].UTC())

	bids, err := eng2.Bids(id)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, int64(9), bids[1].Amount)

	// The restored machine keeps operating.
	rig.clock.Advance(time.Minute)
	eng2.HandleExpiry(id, "DAL")
	after, err = eng2.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, 1, after.SoldCount)
}

func TestResumeAfterRestartReArmsFromFrozenRemainder(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	id, users := startAuction(t, rig, 3, []string{"DAL", "GB"})

	_, err := rig.eng.Nominate(ctx, id, users[0], "DAL", 5)
	require.NoError(t, err)
	rig.clock.Advance(22 * time.Second)
	_, err = rig.eng.Pause(ctx, id, users[0], "outage")
	require.NoError(t, err)
	rig.eng.Close()

	dl2 := &fakeDeadlines{clock: rig.clock}
	eng2 := NewEngine(rig.repo, &captureBroadcaster{}, dl2, rig.clock)
	t.Cleanup(eng2.Close)
	require.NoError(t, eng2.Restore(ctx))

	// No frozen timer entry survives the restart; resume falls back to the
	// persisted remainder.
	snap, err := eng2.Resume(ctx, id, users[0])
	require.NoError(t, err)
	require.NotNil(t, snap.BidEndTime)
	assert.Equal(t, rig.clock.Now().Add(8*time.Second).UTC(), snap.BidEndTime.UTC())
}

func TestStrictIncrementEnforced(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	users := []uuid.UUID{uuid.New(), uuid.New()}
	settings := testSettings
	settings.StrictIncrement = true
	settings.BidIncrement = 5
	snap, err := rig.eng.Create(ctx, CreateRequest{
		LeagueID:     uuid.New(),
		AuctioneerID: users[0],
		Participants: []models.Participant{
			{UserID: users[0], Username: "alice"},
			{UserID: users[1], Username: "bob"},
		},
		Settings: settings,
		TeamIDs:  []string{"DAL", "GB"},
	})
	require.NoError(t, err)
	_, err = rig.eng.Start(ctx, snap.AuctionID, users[0])
	require.NoError(t, err)

	_, err = rig.eng.Nominate(ctx, snap.AuctionID, users[0], "DAL", 10)
	require.NoError(t, err)

	_, err = rig.eng.Bid(ctx, snap.AuctionID, users[1], "DAL", 12)
	assert.Equal(t, KindStaleBid, KindOf(err))

	got, err := rig.eng.Bid(ctx, snap.AuctionID, users[1], "DAL", 15)
	require.NoError(t, err)
	assert.Equal(t, int64(15), got.CurrentBid)
}
