package models

import (
	"time"

	"github.com/google/uuid"
)

// AuctionStatus defines the lifecycle status of a team auction.
type AuctionStatus string

const (
	AuctionStatusScheduled AuctionStatus = "SCHEDULED"
	AuctionStatusActive    AuctionStatus = "ACTIVE"
	AuctionStatusPaused    AuctionStatus = "PAUSED"
	AuctionStatusCompleted AuctionStatus = "COMPLETED"
	AuctionStatusCancelled AuctionStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are possible from s.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionStatusCompleted || s == AuctionStatusCancelled
}

// AuctionSettings holds auction-level configuration, immutable after creation.
// Amounts are whole dollars.
type AuctionSettings struct {
	MinimumBid         int64 `json:"minimum_bid"`
	BidIncrement       int64 `json:"bid_increment"`
	StrictIncrement    bool  `json:"strict_increment,omitempty"`
	BidTimerSec        int   `json:"bid_timer_sec"`
	BidTimerWarningSec int   `json:"bid_timer_warning_sec"`
	MinParticipants    int   `json:"min_participants"`
	MaxParticipants    int   `json:"max_participants"`
}

// Participant is a member of an auction. Membership is fixed once the auction
// starts; a disconnected participant stays in the set with IsActive false.
type Participant struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Slot     int       `json:"slot"`
	IsActive bool      `json:"is_active"`
}

// Auction is the aggregate root for a single league's team auction. The lots
// and bids hanging off it are mutated only through the auction engine.
type Auction struct {
	ID           uuid.UUID       `json:"id"`
	LeagueID     uuid.UUID       `json:"league_id"`
	AuctioneerID uuid.UUID       `json:"auctioneer_id"`
	Status       AuctionStatus   `json:"status"`
	Settings     AuctionSettings `json:"settings"`
	Participants []Participant   `json:"participants"`

	// NominationOrder is the precomputed snake sequence of participant slots,
	// one entry per lot. CurrentNominatorIdx points into it.
	NominationOrder     []int `json:"nomination_order,omitempty"`
	CurrentNominatorIdx int   `json:"current_nominator_idx"`

	// Live bid cycle. CurrentLotID is nil when no lot is up for bid.
	CurrentLotID      *string    `json:"current_lot_id,omitempty"`
	CurrentBid        int64      `json:"current_bid"`
	CurrentHighBidder *uuid.UUID `json:"current_high_bidder,omitempty"`
	BidEndTime        *time.Time `json:"bid_end_time,omitempty"`

	// PausedRemaining is the frozen time-to-expiry while the auction is
	// paused mid-lot, so resume re-arms with the leftover window.
	PausedRemaining *time.Duration `json:"paused_remaining,omitempty"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Clone returns a deep copy of the auction head, so a command can stage its
// mutation and only replace the live copy once persistence succeeds.
func (a *Auction) Clone() *Auction {
	next := *a
	next.Participants = append([]Participant(nil), a.Participants...)
	next.NominationOrder = append([]int(nil), a.NominationOrder...)
	if a.CurrentLotID != nil {
		v := *a.CurrentLotID
		next.CurrentLotID = &v
	}
	if a.CurrentHighBidder != nil {
		v := *a.CurrentHighBidder
		next.CurrentHighBidder = &v
	}
	if a.BidEndTime != nil {
		v := *a.BidEndTime
		next.BidEndTime = &v
	}
	if a.PausedRemaining != nil {
		v := *a.PausedRemaining
		next.PausedRemaining = &v
	}
	if a.ScheduledAt != nil {
		v := *a.ScheduledAt
		next.ScheduledAt = &v
	}
	if a.StartedAt != nil {
		v := *a.StartedAt
		next.StartedAt = &v
	}
	if a.CompletedAt != nil {
		v := *a.CompletedAt
		next.CompletedAt = &v
	}
	return &next
}

// ParticipantByUser returns the participant entry for userID, if any.
func (a *Auction) ParticipantByUser(userID uuid.UUID) (Participant, bool) {
	for _, p := range a.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

// ParticipantBySlot returns the participant occupying the given slot.
func (a *Auction) ParticipantBySlot(slot int) (Participant, bool) {
	for _, p := range a.Participants {
		if p.Slot == slot {
			return p, true
		}
	}
	return Participant{}, false
}

// CurrentNominator returns the participant whose turn it is to nominate.
func (a *Auction) CurrentNominator() (Participant, bool) {
	if a.CurrentNominatorIdx < 0 || a.CurrentNominatorIdx >= len(a.NominationOrder) {
		return Participant{}, false
	}
	return a.ParticipantBySlot(a.NominationOrder[a.CurrentNominatorIdx])
}
