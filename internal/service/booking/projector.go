package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/uma-arai/sbcntr-roombooking/internal/model"
	"github.com/uma-arai/sbcntr-roombooking/internal/repository"
)

// ProjectRoomStatus は部屋の予約から現在の部屋ステータスを導出します
//
//  1. CHECKED_IN で start <= now < end の予約があれば OCCUPIED
//  2. RESERVED で end > now かつ到着猶予 [start-grace, start+grace] に now を含む予約があれば RESERVED
//  3. それ以外は FREE
func ProjectRoomStatus(bookings []model.Booking, now time.Time) model.RoomStatus {
	reserved := false
	for _, b := range bookings {
		switch b.Status {
		case model.BookingStatusCheckedIn:
			if !now.Before(b.Start) && now.Before(b.End) {
				return model.RoomStatusOccupied
			}
		case model.BookingStatusReserved:
			if b.End.After(now) && b.ArrivalWindowContains(now) {
				reserved = true
			}
		}
	}
	if reserved {
		return model.RoomStatusReserved
	}
	return model.RoomStatusFree
}

// Refresh は部屋の有効な予約を読み直し、部屋のステータスを書き込みます
// 部屋のステータスはキャッシュのため、同時実行時は後勝ちです
func Refresh(ctx context.Context, tx repository.Tx, roomID int64, now time.Time) (model.RoomStatus, error) {
	status, _, err := refresh(ctx, tx, roomID, now)
	return status, err
}

// refresh は Refresh に加えて、まだ終了していない CHECKED_IN の予約が部屋に残っているかを返します
// 開始前に早めにチェックインした予約も利用中として扱います
func refresh(ctx context.Context, tx repository.Tx, roomID int64, now time.Time) (model.RoomStatus, bool, error) {
	bookings, err := tx.FindActiveForRoom(ctx, roomID, now)
	if err != nil {
		return "", false, fmt.Errorf("failed to find active bookings for room %d: %w", roomID, err)
	}

	status := ProjectRoomStatus(bookings, now)
	if err := tx.UpdateRoomStatus(ctx, roomID, status); err != nil {
		return "", false, err
	}

	inUse := false
	for _, b := range bookings {
		if b.Status == model.BookingStatusCheckedIn {
			inUse = true
			break
		}
	}
	return status, inUse, nil
}

// refreshIfPresent は部屋が削除済みの場合は何もせずに refresh します
// 戻り値は部屋にチェックイン中の予約が残っているかどうかです
func refreshIfPresent(ctx context.Context, tx repository.Tx, roomID *int64, now time.Time) (bool, error) {
	if roomID == nil {
		return false, nil
	}
	_, inUse, err := refresh(ctx, tx, *roomID, now)
	if err != nil {
		if errors.Is(err, model.ErrRoomNotFound) {
			log.Printf("Room %d no longer exists, skipping status refresh", *roomID)
			return false, nil
		}
		return false, err
	}
	return inUse, nil
}
