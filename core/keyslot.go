package core

import "sort"

// FindFreeKeySlot returns the lowest key slot in [0, max) that is not in
// active. First-fit keeps allocation deterministic and idempotent for a
// given active set. Returns ErrSlotsExhausted when every slot is taken;
// callers must treat that as a hard stop, not a retry.
func FindFreeKeySlot(active []uint8, max uint8) (uint8, error) {
	taken := make([]uint8, len(active))
	copy(taken, active)
	sort.Slice(taken, func(i, j int) bool { return taken[i] < taken[j] })

	var slot uint8
	for _, t := range taken {
		if t >= max {
			continue
		}
		if t > slot {
			break
		}
		if t == slot {
			slot++
		}
	}
	if slot >= max {
		return 0, ErrSlotsExhausted
	}
	return slot, nil
}
