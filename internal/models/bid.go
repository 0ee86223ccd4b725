package models

import (
	"time"

	"github.com/google/uuid"
)

// Bid is a single accepted bid. Bids are append-only; the current high bid
// for a lot is always the last accepted bid recorded for it.
type Bid struct {
	ID        uuid.UUID `json:"id"`
	AuctionID uuid.UUID `json:"auction_id"`
	LotID     string    `json:"lot_id"`
	BidderID  uuid.UUID `json:"bidder_id"`
	Amount    int64     `json:"amount"`
	PlacedAt  time.Time `json:"placed_at"`
}
