package auction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNominationOrderSnake(t *testing.T) {
	order := NominationOrder(3, 32)
	require.Len(t, order, 32)

	// First two rounds reverse direction: A,B,C then C,B,A.
	assert.Equal(t, []int{0, 1, 2, 2, 1, 0, 0, 1, 2}, order[:9])

	// Last turn of a 3-team, 32-lot auction: 10 full rounds would be 30
	// turns, so the truncated 11th round contributes two forward slots.
	assert.Equal(t, []int{0, 1}, order[30:])
}

func TestNominationOrderSingleParticipant(t *testing.T) {
	order := NominationOrder(1, 32)
	require.Len(t, order, 32)
	for _, slot := range order {
		assert.Equal(t, 0, slot)
	}
}

func TestNominationOrderMoreParticipantsThanLots(t *testing.T) {
	order := NominationOrder(40, 32)
	require.Len(t, order, 32)
	for i, slot := range order {
		assert.Equal(t, i, slot)
	}
}

func TestNominationOrderDeterministic(t *testing.T) {
	assert.Equal(t, NominationOrder(8, 32), NominationOrder(8, 32))
}

func TestNominationOrderEveryoneGetsTurns(t *testing.T) {
	order := NominationOrder(4, 32)
	counts := make(map[int]int)
	for _, slot := range order {
		counts[slot]++
	}
	// 32 lots over 4 participants is exactly 8 turns each.
	for slot := 0; slot < 4; slot++ {
		assert.Equal(t, 8, counts[slot], "slot %d", slot)
	}
}

func TestNominationOrderDegenerate(t *testing.T) {
	assert.Nil(t, NominationOrder(0, 32))
	assert.Nil(t, NominationOrder(3, 0))
}
