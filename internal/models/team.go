package models

import (
	"github.com/google/uuid"
)

// LotStatus defines the status of a single team lot within an auction.
// Lots only move forward: AVAILABLE -> NOMINATED -> SOLD.
type LotStatus string

const (
	LotStatusAvailable LotStatus = "AVAILABLE"
	LotStatusNominated LotStatus = "NOMINATED"
	LotStatusSold      LotStatus = "SOLD"
)

// TeamLot is one of the 32 indivisible NFL team lots sold in an auction.
type TeamLot struct {
	TeamID     string     `json:"team_id"`
	Status     LotStatus  `json:"status"`
	OwnerID    *uuid.UUID `json:"owner_id,omitempty"`
	FinalPrice *int64     `json:"final_price,omitempty"`
}

// NFLTeamIDs lists the 32 team codes auctioned in every league, in the
// conventional alphabetical order.
var NFLTeamIDs = []string{
	"ARI", "ATL", "BAL", "BUF", "CAR", "CHI", "CIN", "CLE",
	"DAL", "DEN", "DET", "GB", "HOU", "IND", "JAX", "KC",
	"LAC", "LAR", "LV", "MIA", "MIN", "NE", "NO", "NYG",
	"NYJ", "PHI", "PIT", "SEA", "SF", "TB", "TEN", "WAS",
}
