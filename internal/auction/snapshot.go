package auction

import (
	"time"

	"github.com/google/uuid"

	"github.com/draftkit/teamauction/internal/models"
)

// Snapshot is a complete, self-contained view of an auction's committed
// state. Reconnecting clients receive a snapshot instead of replaying
// deltas; rejected commands carry one for resync.
type Snapshot struct {
	AuctionID    uuid.UUID              `json:"auction_id"`
	LeagueID     uuid.UUID              `json:"league_id"`
	AuctioneerID uuid.UUID              `json:"auctioneer_id"`
	Status       models.AuctionStatus   `json:"status"`
	Settings     models.AuctionSettings `json:"settings"`
	Participants []models.Participant   `json:"participants"`

	NominationOrder     []int      `json:"nomination_order,omitempty"`
	CurrentNominatorIdx int        `json:"current_nominator_idx"`
	CurrentNominator    *uuid.UUID `json:"current_nominator,omitempty"`

	Lots       []models.TeamLot `json:"lots"`
	SoldCount  int              `json:"sold_count"`
	TotalSpent int64            `json:"total_spent"`

	CurrentLot        *string    `json:"current_lot,omitempty"`
	CurrentBid        int64      `json:"current_bid"`
	CurrentHighBidder *uuid.UUID `json:"current_high_bidder,omitempty"`
	BidEndTime        *time.Time `json:"bid_end_time,omitempty"`

	// TimeRemainingSec is derived server-side against ServerTime so clients
	// do not need a synchronized clock. While paused it reflects the frozen
	// remainder.
	TimeRemainingSec int       `json:"time_remaining_sec"`
	ServerTime       time.Time `json:"server_time"`
}

// withClock returns a copy of s with ServerTime and TimeRemainingSec
// recomputed at read time.
func (s *Snapshot) withClock(now time.Time) *Snapshot {
	out := *s
	out.ServerTime = now
	out.TimeRemainingSec = 0
	switch {
	case s.Status == models.AuctionStatusPaused:
		// Frozen remainder was computed at pause time; keep it.
		out.TimeRemainingSec = s.TimeRemainingSec
	case s.BidEndTime != nil:
		remaining := int(s.BidEndTime.Sub(now).Seconds())
		if remaining > 0 {
			out.TimeRemainingSec = remaining
		}
	}
	return &out
}
