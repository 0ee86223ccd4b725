package auction

// NominationOrder computes the snake sequence of participant slots used for
// nominations. Round one runs slots 0..n-1, round two runs n-1..0, and so on,
// truncated to exactly lots turns. The result is deterministic for a given
// participant count and must only be recomputed if the roster changes before
// the auction starts.
func NominationOrder(participants, lots int) []int {
	if participants <= 0 || lots <= 0 {
		return nil
	}

	order := make([]int, 0, lots)
	for round := 0; len(order) < lots; round++ {
		for i := 0; i < participants && len(order) < lots; i++ {
			slot := i
			if round%2 == 1 {
				slot = participants - 1 - i
			}
			order = append(order, slot)
		}
	}
	return order
}
