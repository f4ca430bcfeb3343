package booking

import (
	"context"
	"fmt"

	"github.com/uma-arai/sbcntr-roombooking/internal/model"
	"github.com/uma-arai/sbcntr-roombooking/internal/repository"
)

// FindConflicts は candidates のうち interval と重なる有効な予約を返します
// excluding が指定された場合、その予約は対象外です
func FindConflicts(candidates []model.Booking, interval model.Interval, excluding *int64) []model.Booking {
	var conflicts []model.Booking
	for _, b := range candidates {
		if excluding != nil && b.ID == *excluding {
			continue
		}
		if !b.Status.IsActive() {
			continue
		}
		if b.Interval().Overlaps(interval) {
			conflicts = append(conflicts, b)
		}
	}
	return conflicts
}

// HasConflict は部屋の有効な予約と interval が重なるかを判定します
func HasConflict(ctx context.Context, repo repository.BookingRepository, roomID int64, interval model.Interval, excluding *int64) (bool, error) {
	candidates, err := repo.FindOverlapping(ctx, roomID, interval, model.ActiveBookingStatuses)
	if err != nil {
		return false, fmt.Errorf("failed to find overlapping bookings for room %d: %w", roomID, err)
	}
	return len(FindConflicts(candidates, interval, excluding)) > 0, nil
}
