package booking

import (
	"context"
	"log"
	"time"

	"github.com/uma-arai/sbcntr-roombooking/internal/metrics"
	"github.com/uma-arai/sbcntr-roombooking/internal/model"
	"github.com/uma-arai/sbcntr-roombooking/internal/repository"
)

// ExpireReservation はチェックイン期限を過ぎた RESERVED の予約を NO_SHOW にします
// 予約を読み直し、すでに状態が変わっていれば何もせず nil を返します
func (s *Service) ExpireReservation(ctx context.Context, bookingID int64, now time.Time) (*model.TransitionEvent, error) {
	var event *model.TransitionEvent
	err := s.store.WithinTx(ctx, repository.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != model.BookingStatusReserved || !b.CheckInDeadline().Before(now) {
			return nil
		}

		e := model.NewTransitionEvent(*b, model.BookingStatusNoShow, now)
		if err := tx.UpdateStatus(ctx, b, model.BookingStatusNoShow); err != nil {
			return err
		}
		if _, err := refreshIfPresent(ctx, tx, b.RoomID, now); err != nil {
			return err
		}
		event = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	if event != nil {
		metrics.IncTransition(event.To.String())
	}
	return event, nil
}

// CloseBooking は終了時刻を過ぎた予約を閉じ、部屋の設備を停止します
// CHECKED_IN は COMPLETED に、チェックインされなかった RESERVED は NO_SHOW になります
// 次の予約がすでにチェックイン済みの場合、部屋は閉じません
func (s *Service) CloseBooking(ctx context.Context, bookingID int64, now time.Time) (*model.TransitionEvent, error) {
	var (
		event     *model.TransitionEvent
		roomInUse bool
	)
	err := s.store.WithinTx(ctx, repository.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !b.Status.IsActive() || b.End.After(now) {
			return nil
		}

		to := model.BookingStatusCompleted
		if b.Status == model.BookingStatusReserved {
			to = model.BookingStatusNoShow
		}
		e := model.NewTransitionEvent(*b, to, now)
		if err := tx.UpdateStatus(ctx, b, to); err != nil {
			return err
		}
		roomInUse, err = refreshIfPresent(ctx, tx, b.RoomID, now)
		if err != nil {
			return err
		}
		event = &e
		return nil
	})
	if err != nil || event == nil {
		return nil, err
	}

	metrics.IncTransition(event.To.String())
	if event.RoomID == nil {
		log.Printf("Booking %d has no room, skipping lock and power-off", event.BookingID)
		return event, nil
	}
	if roomInUse {
		log.Printf("Room %d is still in use by another booking, skipping lock after booking %d",
			*event.RoomID, event.BookingID)
		return event, nil
	}
	log.Printf("Locking room %d and powering down after booking %d", *event.RoomID, event.BookingID)
	s.actuator.CloseRoom(ctx, *event.RoomID)
	return event, nil
}

// AnnounceCode はチェックインウィンドウ内の予約の確認コードを部屋に再送し、部屋のステータスを再計算します
// ウィンドウ外や RESERVED 以外の予約は false を返します
func (s *Service) AnnounceCode(ctx context.Context, bookingID int64, now time.Time) (bool, error) {
	var (
		roomID int64
		code   string
	)
	err := s.store.WithinTx(ctx, repository.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.FindByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != model.BookingStatusReserved || !b.CheckInWindow().Contains(now) {
			return nil
		}
		if !b.HasRoom() {
			return model.ErrRoomNotFound
		}
		if _, err := Refresh(ctx, tx, *b.RoomID, now); err != nil {
			return err
		}
		roomID, code = *b.RoomID, b.ConfirmationCode
		return nil
	})
	if err != nil || code == "" {
		return false, err
	}

	s.actuator.AnnounceCode(ctx, roomID, code)
	return true, nil
}
