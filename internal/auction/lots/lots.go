// Package lots tracks per-lot state for an auction's 32 team lots. Lot
// transitions are forward-only; a sold lot never reverts.
package lots

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/draftkit/teamauction/internal/models"
)

var (
	// ErrNotFound is returned for a team ID the auction does not carry.
	ErrNotFound = errors.New("lot not found")
	// ErrAlreadySold is returned when a sale is re-applied to a sold lot.
	// Callers treat it as a successful no-op for expiry idempotency.
	ErrAlreadySold = errors.New("lot already sold")
)

// Store holds the lots of a single auction. Mutations go through the
// auction's serialization point; reads may be concurrent.
type Store struct {
	mu    sync.RWMutex
	order []string
	lots  map[string]*models.TeamLot
}

// New returns a store with every lot available.
func New(teamIDs []string) *Store {
	s := &Store{
		order: append([]string(nil), teamIDs...),
		lots:  make(map[string]*models.TeamLot, len(teamIDs)),
	}
	for _, id := range teamIDs {
		s.lots[id] = &models.TeamLot{TeamID: id, Status: models.LotStatusAvailable}
	}
	return s
}

// Restore rebuilds a store from persisted lots, preserving their order.
func Restore(persisted []models.TeamLot) *Store {
	s := &Store{lots: make(map[string]*models.TeamLot, len(persisted))}
	for _, lot := range persisted {
		l := lot
		s.order = append(s.order, l.TeamID)
		s.lots[l.TeamID] = &l
	}
	return s
}

// Get returns a copy of the lot.
func (s *Store) Get(teamID string) (models.TeamLot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lot, ok := s.lots[teamID]
	if !ok {
		return models.TeamLot{}, false
	}
	return *lot, true
}

// Nominate moves an available lot to nominated.
func (s *Store) Nominate(teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lot, ok := s.lots[teamID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, teamID)
	}
	if lot.Status != models.LotStatusAvailable {
		return fmt.Errorf("lot %s is %s, not available", teamID, lot.Status)
	}
	lot.Status = models.LotStatusNominated
	return nil
}

// Sell settles a nominated lot to its winner at the final price. Selling a
// lot that is already sold returns ErrAlreadySold without mutating anything,
// so a retried expiry cannot double-sell.
func (s *Store) Sell(teamID string, owner uuid.UUID, price int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lot, ok := s.lots[teamID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, teamID)
	}
	switch lot.Status {
	case models.LotStatusSold:
		return ErrAlreadySold
	case models.LotStatusAvailable:
		return fmt.Errorf("lot %s was never nominated", teamID)
	}
	o := owner
	lot.Status = models.LotStatusSold
	lot.OwnerID = &o
	lot.FinalPrice = &price
	return nil
}

// SoldCount returns the number of settled lots.
func (s *Store) SoldCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, lot := range s.lots {
		if lot.Status == models.LotStatusSold {
			n++
		}
	}
	return n
}

// TotalSold returns the sum of final prices over settled lots.
func (s *Store) TotalSold() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, lot := range s.lots {
		if lot.Status == models.LotStatusSold && lot.FinalPrice != nil {
			total += *lot.FinalPrice
		}
	}
	return total
}

// Len returns the number of lots in the auction.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Snapshot returns copies of all lots in their fixed order.
func (s *Store) Snapshot() []models.TeamLot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TeamLot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.lots[id])
	}
	return out
}
