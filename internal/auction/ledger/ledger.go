// Package ledger holds the append-only record of accepted bids for a single
// auction. The ledger is the source of truth for the current high bid and
// doubles as the audit trail; entries are never updated or removed.
package ledger

import (
	"sync"

	"github.com/draftkit/teamauction/internal/models"
)

// Ledger is an in-memory append-only bid record for one auction. Writes go
// through the auction's serialization point, reads may be concurrent.
type Ledger struct {
	mu   sync.RWMutex
	bids []models.Bid
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Restore returns a ledger pre-populated from persisted bids, in their
// original accepted order.
func Restore(bids []models.Bid) *Ledger {
	l := &Ledger{bids: make([]models.Bid, len(bids))}
	copy(l.bids, bids)
	return l
}

// Append records an accepted bid.
func (l *Ledger) Append(b models.Bid) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bids = append(l.bids, b)
}

// High returns the latest accepted bid for the given lot, which by
// construction is the highest.
func (l *Ledger) High(lotID string) (models.Bid, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.bids) - 1; i >= 0; i-- {
		if l.bids[i].LotID == lotID {
			return l.bids[i], true
		}
	}
	return models.Bid{}, false
}

// ForLot returns all accepted bids for a lot in arrival order.
func (l *Ledger) ForLot(lotID string) []models.Bid {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []models.Bid
	for _, b := range l.bids {
		if b.LotID == lotID {
			out = append(out, b)
		}
	}
	return out
}

// All returns a copy of the full ledger in arrival order.
func (l *Ledger) All() []models.Bid {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Bid, len(l.bids))
	copy(out, l.bids)
	return out
}

// Len returns the number of accepted bids.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.bids)
}
