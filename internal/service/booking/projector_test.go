package booking

import (
	"context"
	"testing"
	"time"

	"github.com/uma-arai/sbcntr-roombooking/internal/model"
	"github.com/uma-arai/sbcntr-roombooking/internal/repository"
)

func TestProjectRoomStatus(t *testing.T) {
	now := at(10, 0)

	tests := []struct {
		name     string
		bookings []model.Booking
		want     model.RoomStatus
	}{
		{
			name: "予約なしは FREE",
			want: model.RoomStatusFree,
		},
		{
			name: "利用中の予約があれば OCCUPIED",
			bookings: []model.Booking{
				{Start: at(9, 30), End: at(10, 30), Status: model.BookingStatusCheckedIn},
			},
			want: model.RoomStatusOccupied,
		},
		{
			name: "到着猶予内の予約があれば RESERVED",
			bookings: []model.Booking{
				{Start: at(10, 10), End: at(11, 0), GracePeriodMinutes: 15, Status: model.BookingStatusReserved},
			},
			want: model.RoomStatusReserved,
		},
		{
			name: "到着猶予の境界は含む",
			bookings: []model.Booking{
				{Start: at(9, 45), End: at(11, 0), GracePeriodMinutes: 15, Status: model.BookingStatusReserved},
			},
			want: model.RoomStatusReserved,
		},
		{
			name: "到着猶予より前の予約は FREE",
			bookings: []model.Booking{
				{Start: at(10, 30), End: at(11, 0), GracePeriodMinutes: 15, Status: model.BookingStatusReserved},
			},
			want: model.RoomStatusFree,
		},
		{
			name: "OCCUPIED は RESERVED より優先",
			bookings: []model.Booking{
				{Start: at(10, 10), End: at(11, 0), GracePeriodMinutes: 15, Status: model.BookingStatusReserved},
				{Start: at(9, 0), End: at(10, 10), Status: model.BookingStatusCheckedIn},
			},
			want: model.RoomStatusOccupied,
		},
		{
			name: "終了時刻ちょうどの利用中予約は OCCUPIED ではない",
			bookings: []model.Booking{
				{Start: at(9, 0), End: at(10, 0), Status: model.BookingStatusCheckedIn},
			},
			want: model.RoomStatusFree,
		},
		{
			name: "取消済みの予約は無視する",
			bookings: []model.Booking{
				{Start: at(9, 30), End: at(10, 30), Status: model.BookingStatusCancelled},
			},
			want: model.RoomStatusFree,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProjectRoomStatus(tt.bookings, now); got != tt.want {
				t.Errorf("ProjectRoomStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	store := repository.NewMemoryStore()
	store.AddRoom(model.Room{ID: 1, Status: model.RoomStatusOccupied})
	roomID := int64(1)
	now := at(10, 0)
	store.PutBooking(model.Booking{
		RoomID: &roomID, Start: now.Add(5 * time.Minute), End: now.Add(time.Hour),
		GracePeriodMinutes: 15, Status: model.BookingStatusReserved,
	})

	err := store.WithinTx(context.Background(), repository.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		got, err := Refresh(ctx, tx, roomID, now)
		if err != nil {
			return err
		}
		if got != model.RoomStatusReserved {
			t.Errorf("Refresh() = %v, want %v", got, model.RoomStatusReserved)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithinTx() error = %v", err)
	}

	room, _ := store.Room(1)
	if room.Status != model.RoomStatusReserved {
		t.Errorf("room status = %v, want %v", room.Status, model.RoomStatusReserved)
	}
}
