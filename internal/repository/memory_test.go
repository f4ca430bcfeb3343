package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/uma-arai/sbcntr-roombooking/internal/model"
)

func TestMemoryStore_WithinTx_RollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	store.AddRoom(model.Room{ID: 1})
	start := time.Date(2026, 1, 14, 10, 0, 0, 0, time.UTC)
	roomID := int64(1)

	err := store.WithinTx(context.Background(), TxOptions{}, func(ctx context.Context, tx Tx) error {
		b := &model.Booking{
			UserID: 1, RoomID: &roomID, Start: start, End: start.Add(time.Hour),
			Status: model.BookingStatusReserved,
		}
		if err := tx.Create(ctx, b); err != nil {
			return err
		}
		if err := tx.UpdateRoomStatus(ctx, roomID, model.RoomStatusReserved); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if err == nil {
		t.Fatal("WithinTx() should return the error from fn")
	}

	if _, ok := store.Booking(1); ok {
		t.Error("booking created inside a failed unit of work should be rolled back")
	}
	if room, _ := store.Room(1); room.Status != model.RoomStatusFree {
		t.Errorf("room status = %v, want %v", room.Status, model.RoomStatusFree)
	}
}

func TestMemoryStore_Queries(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC)
	roomID := int64(1)

	expired := store.PutBooking(model.Booking{
		RoomID: &roomID, Start: now.Add(-20 * time.Minute), End: now.Add(40 * time.Minute),
		GracePeriodMinutes: 15, Status: model.BookingStatusReserved,
	})
	inWindow := store.PutBooking(model.Booking{
		UserID: 2, RoomID: &roomID, Start: now.Add(10 * time.Minute), End: now.Add(70 * time.Minute),
		GracePeriodMinutes: 15, Status: model.BookingStatusReserved,
	})
	finished := store.PutBooking(model.Booking{
		UserID: 2, RoomID: &roomID, Start: now.Add(-2 * time.Hour), End: now,
		GracePeriodMinutes: 15, Status: model.BookingStatusCheckedIn,
	})

	tests := []struct {
		name  string
		query func(ctx context.Context, tx Tx) ([]model.Booking, error)
		want  []int64
	}{
		{
			name:  "チェックイン期限切れ",
			query: func(ctx context.Context, tx Tx) ([]model.Booking, error) { return tx.FindExpiredReservations(ctx, now) },
			want:  []int64{expired.ID},
		},
		{
			name:  "終了済み",
			query: func(ctx context.Context, tx Tx) ([]model.Booking, error) { return tx.FindCompleted(ctx, now) },
			want:  []int64{finished.ID},
		},
		{
			name:  "チェックインウィンドウ内",
			query: func(ctx context.Context, tx Tx) ([]model.Booking, error) { return tx.FindInCheckInWindow(ctx, now) },
			want:  []int64{expired.ID, inWindow.ID},
		},
		{
			name: "ユーザーの予約を期間で絞り込む",
			query: func(ctx context.Context, tx Tx) ([]model.Booking, error) {
				from, to := now.Add(-time.Hour), now
				return tx.FindByUser(ctx, 2, &from, &to)
			},
			want: []int64{finished.ID},
		},
		{
			name: "部屋の予約を件数制限付きで取得",
			query: func(ctx context.Context, tx Tx) ([]model.Booking, error) {
				return tx.FindByRoom(ctx, roomID, nil, nil, 2)
			},
			want: []int64{finished.ID, expired.ID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []model.Booking
			err := store.WithinTx(context.Background(), TxOptions{ReadOnly: true}, func(ctx context.Context, tx Tx) error {
				var err error
				got, err = tt.query(ctx, tx)
				return err
			})
			if err != nil {
				t.Fatalf("query error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d bookings, want %d", len(got), len(tt.want))
			}
			for i, b := range got {
				if b.ID != tt.want[i] {
					t.Errorf("booking[%d].ID = %d, want %d", i, b.ID, tt.want[i])
				}
			}
		})
	}
}

func TestMemoryStore_RemoveRoomClearsReference(t *testing.T) {
	store := NewMemoryStore()
	store.AddRoom(model.Room{ID: 7})
	roomID := int64(7)
	b := store.PutBooking(model.Booking{RoomID: &roomID, Status: model.BookingStatusReserved})

	store.RemoveRoom(7)

	got, _ := store.Booking(b.ID)
	if got.RoomID != nil {
		t.Errorf("RoomID = %v, want nil after room removal", *got.RoomID)
	}
}

func TestMemoryStore_UpdateStatus_RejectsStaleBooking(t *testing.T) {
	store := NewMemoryStore()
	b := store.PutBooking(model.Booking{Status: model.BookingStatusReserved})

	err := store.WithinTx(context.Background(), TxOptions{}, func(ctx context.Context, tx Tx) error {
		stale, err := tx.LockBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		current := *stale
		if err := tx.UpdateStatus(ctx, &current, model.BookingStatusCheckedIn); err != nil {
			return err
		}
		// 読み込み時の RESERVED を前提にした更新は拒否される
		return tx.UpdateStatus(ctx, stale, model.BookingStatusNoShow)
	})
	if !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("WithinTx() error = %v, want %v", err, model.ErrInvalidTransition)
	}
	if got, _ := store.Booking(b.ID); got.Status != model.BookingStatusReserved {
		t.Errorf("status = %v, want %v after rollback", got.Status, model.BookingStatusReserved)
	}
}
