// Package events defines the outbound event envelope and payloads broadcast
// to auction room members and published to the event stream.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType is the wire name of an auction room event.
type EventType string

const (
	EventTypeAuctionStarted   EventType = "auction-started"
	EventTypeTeamNominated    EventType = "team-nominated"
	EventTypeBidPlaced        EventType = "bid-placed"
	EventTypeTeamSold         EventType = "team-sold"
	EventTypeAuctionPaused    EventType = "auction-paused"
	EventTypeAuctionResumed   EventType = "auction-resumed"
	EventTypeAuctionCompleted EventType = "auction-completed"
	EventTypeAuctionCancelled EventType = "auction-cancelled"
	EventTypePresence         EventType = "presence"

	// Gateway-local types, never produced by the state machine.
	EventTypeSnapshot        EventType = "snapshot"
	EventTypeCommandRejected EventType = "command-rejected"
)

// Event is the envelope broadcast to every member of an auction room.
type Event struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auction_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New wraps a payload in an envelope. Marshal failures are programming
// errors (payloads are plain structs), so New panics rather than returning
// a second value every call site would ignore.
func New(auctionID uuid.UUID, typ EventType, payload any) *Event {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("marshal %s payload: %v", typ, err))
	}
	return &Event{
		ID:        uuid.New().String(),
		AuctionID: auctionID.String(),
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// AuctionStartedPayload announces the transition to active.
type AuctionStartedPayload struct {
	StartedAt       time.Time `json:"started_at"`
	FirstNominator  uuid.UUID `json:"first_nominator"`
	NominationOrder []int     `json:"nomination_order"`
}

// TeamNominatedPayload announces a lot going up for bid.
type TeamNominatedPayload struct {
	Team        string    `json:"team"`
	Nominator   uuid.UUID `json:"nominator"`
	StartingBid int64     `json:"starting_bid"`
	BidEndTime  time.Time `json:"bid_end_time"`
}

// BidPlacedPayload announces an accepted bid and the extended deadline.
type BidPlacedPayload struct {
	Team       string    `json:"team"`
	Bidder     uuid.UUID `json:"bidder"`
	BidAmount  int64     `json:"bid_amount"`
	BidEndTime time.Time `json:"bid_end_time"`
}

// TeamSoldPayload announces a settled lot. NextNominator is nil when the
// sale completed the auction.
type TeamSoldPayload struct {
	Team              string     `json:"team"`
	Winner            uuid.UUID  `json:"winner"`
	FinalPrice        int64      `json:"final_price"`
	IsAuctionComplete bool       `json:"is_auction_complete"`
	NextNominator     *uuid.UUID `json:"next_nominator,omitempty"`
}

// AuctionPausedPayload carries the auctioneer's stated reason.
type AuctionPausedPayload struct {
	Reason   string    `json:"reason"`
	PausedAt time.Time `json:"paused_at"`
}

// AuctionResumedPayload carries the re-armed deadline, if a lot was live.
type AuctionResumedPayload struct {
	ResumedAt  time.Time  `json:"resumed_at"`
	BidEndTime *time.Time `json:"bid_end_time,omitempty"`
}

// AuctionCompletedPayload closes out the auction.
type AuctionCompletedPayload struct {
	CompletedAt time.Time `json:"completed_at"`
	TotalSpent  int64     `json:"total_spent"`
}

// AuctionCancelledPayload announces a terminal cancellation.
type AuctionCancelledPayload struct {
	CancelledAt time.Time `json:"cancelled_at"`
	ByUserID    uuid.UUID `json:"by_user_id"`
}

// PresencePayload reports a participant's connection change.
type PresencePayload struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	IsActive bool      `json:"is_active"`
	Online   int       `json:"online"`
}

// CommandRejectedPayload is sent only to the issuing connection. Snapshot is
// the authoritative state at rejection time.
type CommandRejectedPayload struct {
	Kind     string          `json:"kind"`
	Message  string          `json:"message"`
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
}
