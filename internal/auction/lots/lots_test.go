package lots

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftkit/teamauction/internal/models"
)

func TestLotLifecycleForwardOnly(t *testing.T) {
	s := New(models.NFLTeamIDs)
	require.Equal(t, 32, s.Len())

	owner := uuid.New()

	// Cannot sell before nomination.
	require.Error(t, s.Sell("DAL", owner, 10))

	require.NoError(t, s.Nominate("DAL"))
	lot, ok := s.Get("DAL")
	require.True(t, ok)
	assert.Equal(t, models.LotStatusNominated, lot.Status)

	// Cannot re-nominate a nominated lot.
	require.Error(t, s.Nominate("DAL"))

	require.NoError(t, s.Sell("DAL", owner, 25))
	lot, _ = s.Get("DAL")
	assert.Equal(t, models.LotStatusSold, lot.Status)
	require.NotNil(t, lot.OwnerID)
	assert.Equal(t, owner, *lot.OwnerID)
	require.NotNil(t, lot.FinalPrice)
	assert.Equal(t, int64(25), *lot.FinalPrice)

	// Cannot re-nominate a sold lot.
	require.Error(t, s.Nominate("DAL"))
}

func TestSellIdempotent(t *testing.T) {
	s := New(models.NFLTeamIDs)
	owner := uuid.New()

	require.NoError(t, s.Nominate("KC"))
	require.NoError(t, s.Sell("KC", owner, 40))

	// Re-applying a completed sale is flagged, not applied.
	err := s.Sell("KC", uuid.New(), 99)
	require.ErrorIs(t, err, ErrAlreadySold)

	lot, _ := s.Get("KC")
	assert.Equal(t, owner, *lot.OwnerID)
	assert.Equal(t, int64(40), *lot.FinalPrice)
	assert.Equal(t, 1, s.SoldCount())
	assert.Equal(t, int64(40), s.TotalSold())
}

func TestUnknownLot(t *testing.T) {
	s := New(models.NFLTeamIDs)
	assert.ErrorIs(t, s.Nominate("XYZ"), ErrNotFound)
	assert.ErrorIs(t, s.Sell("XYZ", uuid.New(), 10), ErrNotFound)
	_, ok := s.Get("XYZ")
	assert.False(t, ok)
}

func TestRestorePreservesState(t *testing.T) {
	s := New(models.NFLTeamIDs)
	owner := uuid.New()
	require.NoError(t, s.Nominate("SF"))
	require.NoError(t, s.Sell("SF", owner, 75))
	require.NoError(t, s.Nominate("SEA"))

	restored := Restore(s.Snapshot())
	require.Equal(t, 32, restored.Len())

	lot, _ := restored.Get("SF")
	assert.Equal(t, models.LotStatusSold, lot.Status)
	assert.Equal(t, int64(75), *lot.FinalPrice)

	lot, _ = restored.Get("SEA")
	assert.Equal(t, models.LotStatusNominated, lot.Status)

	assert.Equal(t, s.Snapshot(), restored.Snapshot())
}
