package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftkit/teamauction/internal/models"
)

func bid(lotID string, amount int64) models.Bid {
	return models.Bid{
		ID:        uuid.New(),
		AuctionID: uuid.New(),
		LotID:     lotID,
		BidderID:  uuid.New(),
		Amount:    amount,
		PlacedAt:  time.Now(),
	}
}

func TestLedgerHighIsLatest(t *testing.T) {
	l := New()

	_, ok := l.High("DAL")
	assert.False(t, ok)

	l.Append(bid("DAL", 10))
	l.Append(bid("DAL", 15))
	l.Append(bid("PHI", 50))

	high, ok := l.High("DAL")
	require.True(t, ok)
	assert.Equal(t, int64(15), high.Amount)

	high, ok = l.High("PHI")
	require.True(t, ok)
	assert.Equal(t, int64(50), high.Amount)
}

func TestLedgerForLotPreservesArrivalOrder(t *testing.T) {
	l := New()
	l.Append(bid("GB", 10))
	l.Append(bid("CHI", 12))
	l.Append(bid("GB", 20))

	gb := l.ForLot("GB")
	require.Len(t, gb, 2)
	assert.Equal(t, int64(10), gb[0].Amount)
	assert.Equal(t, int64(20), gb[1].Amount)
	assert.Equal(t, 3, l.Len())
}

func TestRestoreKeepsOrder(t *testing.T) {
	bids := []models.Bid{bid("KC", 10), bid("KC", 25)}
	l := Restore(bids)

	high, ok := l.High("KC")
	require.True(t, ok)
	assert.Equal(t, int64(25), high.Amount)
	assert.Equal(t, 2, l.Len())
}

func TestAllReturnsCopy(t *testing.T) {
	l := New()
	l.Append(bid("SF", 10))

	all := l.All()
	all[0].Amount = 999

	high, _ := l.High("SF")
	assert.Equal(t, int64(10), high.Amount)
}
