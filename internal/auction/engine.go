// Package auction implements the server-authoritative state machine for a
// league's live team auction: nomination order, concurrent bidding, deadline
// management and settlement. All mutation for a given auction is serialized
// through a single room goroutine; commands either fully commit or fully
// reject with a typed error carrying a resync snapshot.
package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/draftkit/teamauction/internal/auction/events"
	"github.com/draftkit/teamauction/internal/auction/ledger"
	"github.com/draftkit/teamauction/internal/auction/lots"
	"github.com/draftkit/teamauction/internal/models"
)

// Repository is the persistence collaborator. Each Save* call is expected to
// apply its writes atomically so a command never half-commits.
type Repository interface {
	CreateAuction(ctx context.Context, a *models.Auction, lotList []models.TeamLot) error
	SaveState(ctx context.Context, a *models.Auction) error
	SaveNomination(ctx context.Context, a *models.Auction, lot models.TeamLot, opening models.Bid) error
	SaveBid(ctx context.Context, a *models.Auction, bid models.Bid) error
	SaveSale(ctx context.Context, a *models.Auction, lot models.TeamLot) error
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	ListLots(ctx context.Context, auctionID uuid.UUID) ([]models.TeamLot, error)
	ListBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error)
	ListInFlight(ctx context.Context) ([]*models.Auction, error)
}

// Broadcaster fans a committed state delta out to every member of the
// auction room.
type Broadcaster interface {
	Broadcast(auctionID uuid.UUID, ev *events.Event)
}

// FanOut broadcasts to several sinks, e.g. the WebSocket gateway plus the
// event stream publisher.
type FanOut []Broadcaster

func (f FanOut) Broadcast(auctionID uuid.UUID, ev *events.Event) {
	for _, b := range f {
		b.Broadcast(auctionID, ev)
	}
}

// Deadlines is the timer manager surface the engine programs. Implemented by
// timer.Manager.
type Deadlines interface {
	Schedule(auctionID uuid.UUID, lotID string, window time.Duration) time.Time
	Reset(auctionID uuid.UUID, lotID string, window time.Duration) time.Time
	Pause(auctionID uuid.UUID) (time.Duration, bool)
	Resume(auctionID uuid.UUID) (time.Time, bool)
	Cancel(auctionID uuid.UUID)
	RestoreDeadline(auctionID uuid.UUID, lotID string, endsAt time.Time)
}

// expiryRetryDelay is how long a failed settlement waits before the expiry
// is re-fired. Settlement is idempotent, so retrying is safe.
const expiryRetryDelay = 2 * time.Second

// Engine hosts the rooms of all live auctions on this node.
type Engine struct {
	repo      Repository
	broadcast Broadcaster
	deadlines Deadlines
	clock     clockwork.Clock

	mu    sync.RWMutex
	rooms map[uuid.UUID]*room
}

// NewEngine wires the state machine with its injected collaborators.
func NewEngine(repo Repository, broadcast Broadcaster, deadlines Deadlines, clock clockwork.Clock) *Engine {
	return &Engine{
		repo:      repo,
		broadcast: broadcast,
		deadlines: deadlines,
		clock:     clock,
		rooms:     make(map[uuid.UUID]*room),
	}
}

// CreateRequest describes a new scheduled auction. The roster comes from the
// league service; membership is fixed once the auction starts.
type CreateRequest struct {
	LeagueID     uuid.UUID
	AuctioneerID uuid.UUID
	Participants []models.Participant
	Settings     models.AuctionSettings
	TeamIDs      []string
	ScheduledAt  *time.Time
}

// Create persists a new auction in the scheduled state and opens its room.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*Snapshot, error) {
	teamIDs := req.TeamIDs
	if len(teamIDs) == 0 {
		teamIDs = models.NFLTeamIDs
	}
	if len(req.Participants) == 0 {
		return nil, fmt.Errorf("auction needs at least one participant")
	}

	now := e.clock.Now().UTC()
	a := &models.Auction{
		ID:           uuid.New(),
		LeagueID:     req.LeagueID,
		AuctioneerID: req.AuctioneerID,
		Status:       models.AuctionStatusScheduled,
		Settings:     req.Settings,
		Participants: append([]models.Participant(nil), req.Participants...),
		ScheduledAt:  req.ScheduledAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i := range a.Participants {
		a.Participants[i].Slot = i
	}

	lotStore := lots.New(teamIDs)
	if err := e.repo.CreateAuction(ctx, a, lotStore.Snapshot()); err != nil {
		return nil, fmt.Errorf("create auction: %w", err)
	}

	r := e.openRoom(a, lotStore, ledger.New())
	log.Info().
		Str("auction_id", a.ID.String()).
		Str("league_id", a.LeagueID.String()).
		Int("participants", len(a.Participants)).
		Msg("auction created")
	return e.readSnapshot(r), nil
}

// Restore reloads all in-flight auctions after a process restart, rebuilding
// rooms from persisted state and re-arming deadlines from the stored
// absolute bid end time. Deadlines already in the past fire immediately.
func (e *Engine) Restore(ctx context.Context) error {
	inFlight, err := e.repo.ListInFlight(ctx)
	if err != nil {
		return fmt.Errorf("list in-flight auctions: %w", err)
	}

	for _, a := range inFlight {
		lotList, err := e.repo.ListLots(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("load lots for %s: %w", a.ID, err)
		}
		bids, err := e.repo.ListBids(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("load bids for %s: %w", a.ID, err)
		}

		e.openRoom(a, lots.Restore(lotList), ledger.Restore(bids))

		if a.Status == models.AuctionStatusActive && a.CurrentLotID != nil && a.BidEndTime != nil {
			e.deadlines.RestoreDeadline(a.ID, *a.CurrentLotID, *a.BidEndTime)
		}
		log.Info().
			Str("auction_id", a.ID.String()).
			Str("status", string(a.Status)).
			Msg("auction restored")
	}
	return nil
}

// Close stops every room goroutine.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, r := range e.rooms {
		r.closeOnce.Do(func() { close(r.closed) })
		delete(e.rooms, id)
	}
}

// Start transitions a scheduled auction to active and announces the first
// nomination turn. Only the auctioneer may start.
func (e *Engine) Start(ctx context.Context, auctionID, byUserID uuid.UUID) (*Snapshot, error) {
	return e.do(ctx, auctionID, command{kind: cmdStart, userID: byUserID})
}

// Nominate puts an available lot up for bid at the starting price. The
// nomination is itself a standing bid by the nominator.
func (e *Engine) Nominate(ctx context.Context, auctionID, byUserID uuid.UUID, teamID string, startingBid int64) (*Snapshot, error) {
	return e.do(ctx, auctionID, command{kind: cmdNominate, userID: byUserID, lotID: teamID, amount: startingBid})
}

// Bid places a bid on the live lot. Bids are accepted strictly in arrival
// order at the room; a bid losing the race against a just-applied higher bid
// is rejected as StaleBid with the authoritative snapshot attached.
func (e *Engine) Bid(ctx context.Context, auctionID, byUserID uuid.UUID, teamID string, amount int64) (*Snapshot, error) {
	return e.do(ctx, auctionID, command{kind: cmdBid, userID: byUserID, lotID: teamID, amount: amount})
}

// Pause freezes an active auction, preserving the live lot's remaining time.
func (e *Engine) Pause(ctx context.Context, auctionID, byUserID uuid.UUID, reason string) (*Snapshot, error) {
	return e.do(ctx, auctionID, command{kind: cmdPause, userID: byUserID, reason: reason})
}

// Resume re-activates a paused auction with the previously frozen remainder.
func (e *Engine) Resume(ctx context.Context, auctionID, byUserID uuid.UUID) (*Snapshot, error) {
	return e.do(ctx, auctionID, command{kind: cmdResume, userID: byUserID})
}

// Cancel terminally cancels a scheduled, active or paused auction.
func (e *Engine) Cancel(ctx context.Context, auctionID, byUserID uuid.UUID) (*Snapshot, error) {
	return e.do(ctx, auctionID, command{kind: cmdCancel, userID: byUserID})
}

// SetParticipantActive records a participant's connection state. Disconnects
// never remove participation; a disconnected nominator still holds the turn.
func (e *Engine) SetParticipantActive(ctx context.Context, auctionID, userID uuid.UUID, active bool) (*Snapshot, error) {
	return e.do(ctx, auctionID, command{kind: cmdPresence, userID: userID, active: active})
}

// Snapshot serves the latest committed state without touching the room
// goroutine, so reads stay concurrent with writes.
func (e *Engine) Snapshot(auctionID uuid.UUID) (*Snapshot, error) {
	r := e.room(auctionID)
	if r == nil {
		return nil, newError(KindAuctionNotFound, "auction %s not found", auctionID)
	}
	return e.readSnapshot(r), nil
}

// Bids returns the auction's full bid ledger in arrival order.
func (e *Engine) Bids(auctionID uuid.UUID) ([]models.Bid, error) {
	r := e.room(auctionID)
	if r == nil {
		return nil, newError(KindAuctionNotFound, "auction %s not found", auctionID)
	}
	return r.ledger.All(), nil
}

// HandleExpiry is the timer manager's expiry sink. It routes the expiry into
// the owning room's command queue so an expiry and a last-moment bid are
// serialized by arrival order. Infrastructure failures re-arm a short retry;
// settlement is idempotent so a duplicate firing is harmless.
func (e *Engine) HandleExpiry(auctionID uuid.UUID, lotID string) {
	snap, err := e.do(context.Background(), auctionID, command{kind: cmdExpire, lotID: lotID})
	if err != nil {
		if KindOf(err) != "" {
			// Stale expiry (lot no longer current, auction paused, ...).
			log.Debug().
				Str("auction_id", auctionID.String()).
				Str("lot_id", lotID).
				Err(err).
				Msg("expiry superseded")
			return
		}
		log.Error().
			Str("auction_id", auctionID.String()).
			Str("lot_id", lotID).
			Err(err).
			Msg("settlement failed; scheduling retry")
		e.deadlines.RestoreDeadline(auctionID, lotID, e.clock.Now().Add(expiryRetryDelay))
		return
	}
	log.Info().
		Str("auction_id", auctionID.String()).
		Str("lot_id", lotID).
		Int("sold", snap.SoldCount).
		Msg("lot settled")
}

func (e *Engine) room(auctionID uuid.UUID) *room {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rooms[auctionID]
}

func (e *Engine) openRoom(a *models.Auction, lotStore *lots.Store, bidLedger *ledger.Ledger) *room {
	r := &room{
		eng:    e,
		a:      a,
		lots:   lotStore,
		ledger: bidLedger,
		cmdCh:  make(chan command, 64),
		closed: make(chan struct{}),
	}
	r.snap.Store(r.buildSnapshot())

	e.mu.Lock()
	e.rooms[a.ID] = r
	e.mu.Unlock()

	go r.run()
	return r
}

func (e *Engine) readSnapshot(r *room) *Snapshot {
	return r.snap.Load().withClock(e.clock.Now().UTC())
}

func (e *Engine) do(ctx context.Context, auctionID uuid.UUID, c command) (*Snapshot, error) {
	r := e.room(auctionID)
	if r == nil {
		return nil, newError(KindAuctionNotFound, "auction %s not found", auctionID)
	}

	c.ctx = ctx
	c.reply = make(chan cmdResult, 1)
	select {
	case r.cmdCh <- c:
	case <-r.closed:
		return nil, newError(KindAuctionNotFound, "auction %s not found", auctionID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-c.reply:
		return res.snap, res.err
	case <-r.closed:
		return nil, newError(KindAuctionNotFound, "auction %s shut down", auctionID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdNominate
	cmdBid
	cmdPause
	cmdResume
	cmdCancel
	cmdExpire
	cmdPresence
)

type command struct {
	kind   cmdKind
	ctx    context.Context
	userID uuid.UUID
	lotID  string
	amount int64
	reason string
	active bool
	reply  chan cmdResult
}

type cmdResult struct {
	snap *Snapshot
	err  error
}

// room owns one auction. Its goroutine is the single serialization point for
// every mutation, including timer expiries.
type room struct {
	eng    *Engine
	a      *models.Auction
	lots   *lots.Store
	ledger *ledger.Ledger

	cmdCh     chan command
	closed    chan struct{}
	closeOnce sync.Once

	snap atomic.Pointer[Snapshot]
}

func (r *room) run() {
	for {
		select {
		case <-r.closed:
			return
		case c := <-r.cmdCh:
			r.dispatch(c)
		}
	}
}

func (r *room) dispatch(c command) {
	var (
		evs []*events.Event
		err error
	)

	switch c.kind {
	case cmdStart:
		evs, err = r.applyStart(c)
	case cmdNominate:
		evs, err = r.applyNominate(c)
	case cmdBid:
		evs, err = r.applyBid(c)
	case cmdPause:
		evs, err = r.applyPause(c)
	case cmdResume:
		evs, err = r.applyResume(c)
	case cmdCancel:
		evs, err = r.applyCancel(c)
	case cmdExpire:
		evs, err = r.applyExpire(c)
	case cmdPresence:
		evs, err = r.applyPresence(c)
	default:
		err = fmt.Errorf("unknown command kind %d", c.kind)
	}

	r.snap.Store(r.buildSnapshot())
	snap := r.eng.readSnapshot(r)

	// Rejections carry the authoritative state for client resync.
	var cmdErr *Error
	if errors.As(err, &cmdErr) {
		cmdErr.Snapshot = snap
	}

	if c.reply != nil {
		c.reply <- cmdResult{snap: snap, err: err}
	}
	for _, ev := range evs {
		r.eng.broadcast.Broadcast(r.a.ID, ev)
	}
}

func (r *room) applyStart(c command) ([]*events.Event, error) {
	a := r.a
	if a.Status != models.AuctionStatusScheduled {
		return nil, newError(KindInvalidTransition, "cannot start auction in status %s", a.Status)
	}
	if c.userID != a.AuctioneerID {
		return nil, newError(KindNotAuctioneer, "only the auctioneer may start the auction")
	}
	n := len(a.Participants)
	if n < a.Settings.MinParticipants {
		return nil, newError(KindInvalidTransition, "%d participants, league minimum is %d", n, a.Settings.MinParticipants)
	}
	if a.Settings.MaxParticipants > 0 && n > a.Settings.MaxParticipants {
		return nil, newError(KindInvalidTransition, "%d participants, league maximum is %d", n, a.Settings.MaxParticipants)
	}

	now := r.eng.clock.Now().UTC()
	next := a.Clone()
	next.Status = models.AuctionStatusActive
	next.NominationOrder = NominationOrder(n, r.lots.Len())
	next.CurrentNominatorIdx = 0
	next.StartedAt = &now
	next.UpdatedAt = now

	if err := r.eng.repo.SaveState(c.ctx, next); err != nil {
		return nil, fmt.Errorf("persist start: %w", err)
	}
	r.a = next

	first, _ := next.CurrentNominator()
	log.Info().
		Str("auction_id", next.ID.String()).
		Str("first_nominator", first.UserID.String()).
		Msg("auction started")
	return []*events.Event{events.New(next.ID, events.EventTypeAuctionStarted, events.AuctionStartedPayload{
		StartedAt:       now,
		FirstNominator:  first.UserID,
		NominationOrder: next.NominationOrder,
	})}, nil
}

func (r *room) applyNominate(c command) ([]*events.Event, error) {
	a := r.a
	if a.Status != models.AuctionStatusActive {
		return nil, newError(KindInvalidTransition, "cannot nominate while auction is %s", a.Status)
	}
	if a.CurrentLotID != nil {
		return nil, newError(KindInvalidTransition, "lot %s is already up for bid", *a.CurrentLotID)
	}
	nominator, ok := a.CurrentNominator()
	if !ok {
		return nil, newError(KindInvalidTransition, "no nomination turn is open")
	}
	if c.userID != nominator.UserID {
		return nil, newError(KindNotYourTurn, "it is %s's turn to nominate", nominator.Username)
	}
	lot, ok := r.lots.Get(c.lotID)
	if !ok {
		return nil, newError(KindStaleBid, "unknown team %s", c.lotID)
	}
	if lot.Status != models.LotStatusAvailable {
		return nil, newError(KindStaleBid, "team %s is %s", c.lotID, lot.Status)
	}
	if c.amount < a.Settings.MinimumBid {
		return nil, newError(KindBelowMinimum, "starting bid %d is below the %d minimum", c.amount, a.Settings.MinimumBid)
	}

	now := r.eng.clock.Now().UTC()
	window := time.Duration(a.Settings.BidTimerSec) * time.Second
	endsAt := now.Add(window)

	next := a.Clone()
	lotID := c.lotID
	bidder := c.userID
	next.CurrentLotID = &lotID
	next.CurrentBid = c.amount
	next.CurrentHighBidder = &bidder
	next.BidEndTime = &endsAt
	next.UpdatedAt = now

	nominatedLot := lot
	nominatedLot.Status = models.LotStatusNominated
	opening := models.Bid{
		ID:        uuid.New(),
		AuctionID: a.ID,
		LotID:     lotID,
		BidderID:  bidder,
		Amount:    c.amount,
		PlacedAt:  now,
	}

	if err := r.eng.repo.SaveNomination(c.ctx, next, nominatedLot, opening); err != nil {
		return nil, fmt.Errorf("persist nomination: %w", err)
	}

	r.a = next
	if err := r.lots.Nominate(lotID); err != nil {
		// Validated above under the same serialization point.
		log.Error().Err(err).Str("lot_id", lotID).Msg("lot store out of sync")
	}
	r.ledger.Append(opening)
	r.eng.deadlines.Schedule(a.ID, lotID, window)

	log.Info().
		Str("auction_id", a.ID.String()).
		Str("team", lotID).
		Str("nominator", bidder.String()).
		Int64("starting_bid", c.amount).
		Msg("team nominated")
	return []*events.Event{events.New(a.ID, events.EventTypeTeamNominated, events.TeamNominatedPayload{
		Team:        lotID,
		Nominator:   bidder,
		StartingBid: c.amount,
		BidEndTime:  endsAt,
	})}, nil
}

func (r *room) applyBid(c command) ([]*events.Event, error) {
	a := r.a
	if a.Status != models.AuctionStatusActive {
		return nil, newError(KindInvalidTransition, "cannot bid while auction is %s", a.Status)
	}
	if a.CurrentLotID == nil || c.lotID != *a.CurrentLotID {
		return nil, newError(KindStaleBid, "team %s is not up for bid", c.lotID)
	}
	if _, ok := a.ParticipantByUser(c.userID); !ok {
		return nil, newError(KindNotYourTurn, "user %s is not a participant of this auction", c.userID)
	}
	if c.amount <= a.CurrentBid {
		return nil, newError(KindStaleBid, "bid %d does not beat the current high of %d", c.amount, a.CurrentBid)
	}
	if a.Settings.StrictIncrement && c.amount < a.CurrentBid+a.Settings.BidIncrement {
		return nil, newError(KindStaleBid, "bid %d does not raise the high of %d by the %d increment", c.amount, a.CurrentBid, a.Settings.BidIncrement)
	}
	if a.CurrentHighBidder != nil && c.userID == *a.CurrentHighBidder {
		return nil, newError(KindSelfOutbid, "you already hold the high bid")
	}

	now := r.eng.clock.Now().UTC()
	window := time.Duration(a.Settings.BidTimerSec) * time.Second
	endsAt := now.Add(window)

	next := a.Clone()
	bidder := c.userID
	next.CurrentBid = c.amount
	next.CurrentHighBidder = &bidder
	next.BidEndTime = &endsAt
	next.UpdatedAt = now

	bid := models.Bid{
		ID:        uuid.New(),
		AuctionID: a.ID,
		LotID:     c.lotID,
		BidderID:  bidder,
		Amount:    c.amount,
		PlacedAt:  now,
	}
	if err := r.eng.repo.SaveBid(c.ctx, next, bid); err != nil {
		return nil, fmt.Errorf("persist bid: %w", err)
	}

	r.a = next
	r.ledger.Append(bid)
	// Every accepted bid restarts the full window (anti-snipe).
	r.eng.deadlines.Reset(a.ID, c.lotID, window)

	log.Info().
		Str("auction_id", a.ID.String()).
		Str("team", c.lotID).
		Str("bidder", bidder.String()).
		Int64("amount", c.amount).
		Msg("bid placed")
	return []*events.Event{events.New(a.ID, events.EventTypeBidPlaced, events.BidPlacedPayload{
		Team:       c.lotID,
		Bidder:     bidder,
		BidAmount:  c.amount,
		BidEndTime: endsAt,
	})}, nil
}

func (r *room) applyExpire(c command) ([]*events.Event, error) {
	a := r.a
	if a.Status != models.AuctionStatusActive {
		return nil, newError(KindInvalidTransition, "expiry while auction is %s", a.Status)
	}
	if a.CurrentLotID == nil || c.lotID != *a.CurrentLotID {
		return nil, newError(KindStaleBid, "team %s is no longer the live lot", c.lotID)
	}
	if a.BidEndTime != nil && r.eng.clock.Now().Before(*a.BidEndTime) {
		// A bid accepted after this expiry was queued already extended the
		// deadline; the new timer will fire later.
		return nil, newError(KindStaleBid, "deadline for %s was extended", c.lotID)
	}
	if lot, ok := r.lots.Get(c.lotID); ok && lot.Status == models.LotStatusSold {
		// Retried settlement of an already-sold lot is a no-op.
		return nil, nil
	}
	if a.CurrentHighBidder == nil {
		return nil, fmt.Errorf("live lot %s has no standing bid", c.lotID)
	}

	now := r.eng.clock.Now().UTC()
	winner := *a.CurrentHighBidder
	price := a.CurrentBid

	soldLot, _ := r.lots.Get(c.lotID)
	soldLot.Status = models.LotStatusSold
	soldLot.OwnerID = &winner
	soldLot.FinalPrice = &price

	next := a.Clone()
	next.CurrentLotID = nil
	next.CurrentBid = 0
	next.CurrentHighBidder = nil
	next.BidEndTime = nil
	next.CurrentNominatorIdx++
	next.UpdatedAt = now

	complete := r.lots.SoldCount()+1 == r.lots.Len()
	if complete {
		next.Status = models.AuctionStatusCompleted
		next.CompletedAt = &now
	}

	if err := r.eng.repo.SaveSale(c.ctx, next, soldLot); err != nil {
		return nil, fmt.Errorf("persist sale: %w", err)
	}

	r.a = next
	if err := r.lots.Sell(c.lotID, winner, price); err != nil && !errors.Is(err, lots.ErrAlreadySold) {
		log.Error().Err(err).Str("lot_id", c.lotID).Msg("lot store out of sync")
	}

	sold := events.TeamSoldPayload{
		Team:              c.lotID,
		Winner:            winner,
		FinalPrice:        price,
		IsAuctionComplete: complete,
	}
	evs := make([]*events.Event, 0, 2)
	if complete {
		evs = append(evs,
			events.New(a.ID, events.EventTypeTeamSold, sold),
			events.New(a.ID, events.EventTypeAuctionCompleted, events.AuctionCompletedPayload{
				CompletedAt: now,
				TotalSpent:  r.lots.TotalSold(),
			}))
		log.Info().Str("auction_id", a.ID.String()).Msg("auction completed")
	} else {
		if nom, ok := next.CurrentNominator(); ok {
			id := nom.UserID
			sold.NextNominator = &id
		}
		evs = append(evs, events.New(a.ID, events.EventTypeTeamSold, sold))
	}
	return evs, nil
}

func (r *room) applyPause(c command) ([]*events.Event, error) {
	a := r.a
	if a.Status != models.AuctionStatusActive {
		return nil, newError(KindInvalidTransition, "cannot pause auction in status %s", a.Status)
	}
	if c.userID != a.AuctioneerID {
		return nil, newError(KindNotAuctioneer, "only the auctioneer may pause the auction")
	}

	now := r.eng.clock.Now().UTC()
	next := a.Clone()
	next.Status = models.AuctionStatusPaused
	next.UpdatedAt = now

	var frozen *time.Duration
	if a.CurrentLotID != nil {
		if remaining, ok := r.eng.deadlines.Pause(a.ID); ok {
			frozen = &remaining
		} else if a.BidEndTime != nil {
			remaining := a.BidEndTime.Sub(now)
			if remaining < 0 {
				remaining = 0
			}
			frozen = &remaining
		}
		next.PausedRemaining = frozen
	}

	if err := r.eng.repo.SaveState(c.ctx, next); err != nil {
		// Roll the freeze back so the live deadline keeps running.
		if a.CurrentLotID != nil {
			r.eng.deadlines.Resume(a.ID)
		}
		return nil, fmt.Errorf("persist pause: %w", err)
	}
	r.a = next

	log.Info().
		Str("auction_id", a.ID.String()).
		Str("reason", c.reason).
		Msg("auction paused")
	return []*events.Event{events.New(a.ID, events.EventTypeAuctionPaused, events.AuctionPausedPayload{
		Reason:   c.reason,
		PausedAt: now,
	})}, nil
}

func (r *room) applyResume(c command) ([]*events.Event, error) {
	a := r.a
	if a.Status != models.AuctionStatusPaused {
		return nil, newError(KindInvalidTransition, "cannot resume auction in status %s", a.Status)
	}
	if c.userID != a.AuctioneerID {
		return nil, newError(KindNotAuctioneer, "only the auctioneer may resume the auction")
	}

	now := r.eng.clock.Now().UTC()
	next := a.Clone()
	next.Status = models.AuctionStatusActive
	next.PausedRemaining = nil
	next.UpdatedAt = now

	var endsAt *time.Time
	if a.CurrentLotID != nil {
		if t, ok := r.eng.deadlines.Resume(a.ID); ok {
			endsAt = &t
		} else if a.PausedRemaining != nil {
			// After a restart there is no frozen timer entry; re-arm from
			// the persisted remainder.
			t := r.eng.deadlines.Schedule(a.ID, *a.CurrentLotID, *a.PausedRemaining)
			endsAt = &t
		}
		next.BidEndTime = endsAt
	}

	if err := r.eng.repo.SaveState(c.ctx, next); err != nil {
		if a.CurrentLotID != nil {
			r.eng.deadlines.Pause(a.ID)
		}
		return nil, fmt.Errorf("persist resume: %w", err)
	}
	r.a = next

	log.Info().Str("auction_id", a.ID.String()).Msg("auction resumed")
	return []*events.Event{events.New(a.ID, events.EventTypeAuctionResumed, events.AuctionResumedPayload{
		ResumedAt:  now,
		BidEndTime: endsAt,
	})}, nil
}

func (r *room) applyCancel(c command) ([]*events.Event, error) {
	a := r.a
	if a.Status.Terminal() {
		return nil, newError(KindInvalidTransition, "auction is already %s", a.Status)
	}
	if c.userID != a.AuctioneerID {
		return nil, newError(KindNotAuctioneer, "only the auctioneer may cancel the auction")
	}

	now := r.eng.clock.Now().UTC()
	next := a.Clone()
	next.Status = models.AuctionStatusCancelled
	next.UpdatedAt = now

	if err := r.eng.repo.SaveState(c.ctx, next); err != nil {
		return nil, fmt.Errorf("persist cancel: %w", err)
	}
	r.a = next
	r.eng.deadlines.Cancel(a.ID)

	log.Info().Str("auction_id", a.ID.String()).Msg("auction cancelled")
	return []*events.Event{events.New(a.ID, events.EventTypeAuctionCancelled, events.AuctionCancelledPayload{
		CancelledAt: now,
		ByUserID:    c.userID,
	})}, nil
}

func (r *room) applyPresence(c command) ([]*events.Event, error) {
	a := r.a
	p, ok := a.ParticipantByUser(c.userID)
	if !ok {
		return nil, newError(KindNotYourTurn, "user %s is not a participant of this auction", c.userID)
	}
	if p.IsActive == c.active {
		return nil, nil
	}

	next := a.Clone()
	online := 0
	for i := range next.Participants {
		if next.Participants[i].UserID == c.userID {
			next.Participants[i].IsActive = c.active
		}
		if next.Participants[i].IsActive {
			online++
		}
	}
	next.UpdatedAt = r.eng.clock.Now().UTC()

	if err := r.eng.repo.SaveState(c.ctx, next); err != nil {
		return nil, fmt.Errorf("persist presence: %w", err)
	}
	r.a = next

	return []*events.Event{events.New(a.ID, events.EventTypePresence, events.PresencePayload{
		UserID:   p.UserID,
		Username: p.Username,
		IsActive: c.active,
		Online:   online,
	})}, nil
}

// buildSnapshot captures committed state. Time-derived fields are filled in
// at read time by withClock.
func (r *room) buildSnapshot() *Snapshot {
	a := r.a
	s := &Snapshot{
		AuctionID:           a.ID,
		LeagueID:            a.LeagueID,
		AuctioneerID:        a.AuctioneerID,
		Status:              a.Status,
		Settings:            a.Settings,
		Participants:        append([]models.Participant(nil), a.Participants...),
		NominationOrder:     append([]int(nil), a.NominationOrder...),
		CurrentNominatorIdx: a.CurrentNominatorIdx,
		Lots:                r.lots.Snapshot(),
		SoldCount:           r.lots.SoldCount(),
		TotalSpent:          r.lots.TotalSold(),
		CurrentBid:          a.CurrentBid,
	}
	if nom, ok := a.CurrentNominator(); ok && !a.Status.Terminal() {
		id := nom.UserID
		s.CurrentNominator = &id
	}
	if a.CurrentLotID != nil {
		v := *a.CurrentLotID
		s.CurrentLot = &v
	}
	if a.CurrentHighBidder != nil {
		v := *a.CurrentHighBidder
		s.CurrentHighBidder = &v
	}
	if a.BidEndTime != nil {
		v := *a.BidEndTime
		s.BidEndTime = &v
	}
	if a.Status == models.AuctionStatusPaused && a.PausedRemaining != nil {
		s.TimeRemainingSec = int(a.PausedRemaining.Seconds())
	}
	return s
}
