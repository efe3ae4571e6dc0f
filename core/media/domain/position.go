package domain

import (
	"context"
	"math"
)

// maxPositionProbe bounds the linear probe. Profiles hold tens of photos, so
// hitting it means the store is misbehaving.
const maxPositionProbe = 10_000

// maxOrderIndex bounds |n| so that floor(n) converts to int exactly and
// max(1, floor(n)) * positionStep stays within int range on every platform.
const maxOrderIndex = 1_000_000

// probeFreePosition walks upward from candidate until a slot is free for the
// profile. excludePhotoID lets a photo keep probing past its own slot.
func probeFreePosition(ctx context.Context, tx PhotoWriteTx, profileID int64, candidate int, excludePhotoID int64) (int, error) {
	for range maxPositionProbe {
		taken, err := tx.PositionTaken(ctx, profileID, candidate, excludePhotoID)
		if err != nil {
			return 0, err
		}
		if !taken {
			return candidate, nil
		}
		candidate++
	}
	return 0, ErrAllocationExhausted
}

// orderIndexPosition maps a client order index to a candidate position.
func orderIndexPosition(n float64) int {
	return max(1, int(math.Floor(n))) * positionStep
}

func validOrderIndex(n float64) bool {
	return !math.IsNaN(n) && !math.IsInf(n, 0) && n >= -maxOrderIndex && n <= maxOrderIndex
}
