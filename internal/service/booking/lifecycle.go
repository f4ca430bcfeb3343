package booking

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/uma-arai/sbcntr-roombooking/internal/actuation"
	"github.com/uma-arai/sbcntr-roombooking/internal/common/clock"
	"github.com/uma-arai/sbcntr-roombooking/internal/common/tracing"
	"github.com/uma-arai/sbcntr-roombooking/internal/metrics"
	"github.com/uma-arai/sbcntr-roombooking/internal/model"
	"github.com/uma-arai/sbcntr-roombooking/internal/repository"
)

// DefaultGracePeriodMinutes は予約作成時に設定される猶予時間(分)の既定値です
const DefaultGracePeriodMinutes = 15

// CreateBookingInput は予約作成の入力です
type CreateBookingInput struct {
	UserID      int64
	RoomID      int64
	Start       time.Time
	End         time.Time
	Description string
}

// UpdateBookingInput は予約変更の入力です
type UpdateBookingInput struct {
	RoomID      int64
	Start       time.Time
	End         time.Time
	Description string
}

// Service は予約の状態遷移をすべて担当します
// 各操作は1つの作業単位で実行され、設備への指示はコミット後に送信されます
type Service struct {
	store              repository.BookingStore
	clock              clock.Clock
	actuator           *actuation.Dispatcher
	generateCode       CodeGenerator
	gracePeriodMinutes int
}

// Option は Service の設定を変更します
type Option func(*Service)

// WithCodeGenerator は確認コードの生成方法を差し替えます
func WithCodeGenerator(g CodeGenerator) Option {
	return func(s *Service) { s.generateCode = g }
}

// WithGracePeriod は新しい予約に設定する猶予時間(分)を変更します
func WithGracePeriod(minutes int) Option {
	return func(s *Service) {
		if minutes >= 0 {
			s.gracePeriodMinutes = minutes
		}
	}
}

// NewService は新しい Service を作成します
func NewService(store repository.BookingStore, clk clock.Clock, actuator *actuation.Dispatcher, opts ...Option) *Service {
	s := &Service{
		store:              store,
		clock:              clk,
		actuator:           actuator,
		generateCode:       RandomCode,
		gracePeriodMinutes: DefaultGracePeriodMinutes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create は新しい予約を RESERVED で作成します
func (s *Service) Create(ctx context.Context, in CreateBookingInput) (_ *model.Booking, err error) {
	ctx, span := tracing.Begin(ctx, "BookingService.Create")
	defer func() { span.End(err) }()
	defer rejected("create", &err)

	if in.UserID == 0 || in.RoomID == 0 {
		return nil, model.ErrBlankField
	}
	interval, err := model.NewInterval(in.Start, in.End)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !interval.Start.After(now) {
		return nil, model.ErrStartNotInFuture
	}

	var created *model.Booking
	err = s.store.WithinTx(ctx, repository.TxOptions{Serializable: true}, func(ctx context.Context, tx repository.Tx) error {
		// 同じ部屋への同時予約を直列化する
		if _, err := tx.LockRoom(ctx, in.RoomID); err != nil {
			return err
		}
		exists, err := tx.UserExists(ctx, in.UserID)
		if err != nil {
			return err
		}
		if !exists {
			return model.ErrUserNotFound
		}

		conflict, err := HasConflict(ctx, tx, in.RoomID, interval, nil)
		if err != nil {
			return err
		}
		if conflict {
			return model.ErrSlotUnavailable
		}

		code, err := s.generateCode()
		if err != nil {
			return err
		}
		roomID := in.RoomID
		b := &model.Booking{
			UserID:             in.UserID,
			RoomID:             &roomID,
			Start:              interval.Start,
			End:                interval.End,
			GracePeriodMinutes: s.gracePeriodMinutes,
			Status:             model.BookingStatusReserved,
			ConfirmationCode:   code,
			Description:        strings.TrimSpace(in.Description),
			CreatedAt:          now,
		}
		if err := tx.Create(ctx, b); err != nil {
			return err
		}
		if _, err := Refresh(ctx, tx, in.RoomID, now); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncBookingCreated()
	span.AddMetadata("booking_id", created.ID)
	return created, nil
}

// Update は RESERVED の予約の部屋・時間枠・説明を変更します
// 自分自身の変更前の枠は重複チェックの対象外です
func (s *Service) Update(ctx context.Context, userID, bookingID int64, in UpdateBookingInput) (_ *model.Booking, err error) {
	ctx, span := tracing.Begin(ctx, "BookingService.Update")
	defer func() { span.End(err) }()
	defer rejected("update", &err)

	if in.RoomID == 0 {
		return nil, model.ErrBlankField
	}
	interval, err := model.NewInterval(in.Start, in.End)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !interval.Start.After(now) {
		return nil, model.ErrStartNotInFuture
	}

	var updated *model.Booking
	err = s.store.WithinTx(ctx, repository.TxOptions{Serializable: true}, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !b.IsOwnedBy(userID) {
			return model.ErrUnauthorized
		}
		if b.Status != model.BookingStatusReserved {
			return model.ErrInvalidTransition
		}
		if _, err := tx.LockRoom(ctx, in.RoomID); err != nil {
			return err
		}

		conflict, err := HasConflict(ctx, tx, in.RoomID, interval, &b.ID)
		if err != nil {
			return err
		}
		if conflict {
			return model.ErrSlotUnavailable
		}

		previousRoom := b.RoomID
		if err := tx.Update(ctx, b, in.RoomID, interval, strings.TrimSpace(in.Description)); err != nil {
			return err
		}
		if _, err := Refresh(ctx, tx, in.RoomID, now); err != nil {
			return err
		}
		if previousRoom != nil && *previousRoom != in.RoomID {
			if _, err := refreshIfPresent(ctx, tx, previousRoom, now); err != nil {
				return err
			}
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// OwnerCancel は予約者本人による取り消しです
func (s *Service) OwnerCancel(ctx context.Context, userID, bookingID int64) (model.TransitionEvent, error) {
	return s.cancel(ctx, "owner_cancel", bookingID, func(b *model.Booking, _ time.Time) error {
		if !b.IsOwnedBy(userID) {
			return model.ErrUnauthorized
		}
		return nil
	}, model.BookingStatusCancelled)
}

// AdminCancel は管理者による取り消しです。終了済みの予約は取り消せません
func (s *Service) AdminCancel(ctx context.Context, bookingID int64) (model.TransitionEvent, error) {
	return s.cancel(ctx, "admin_cancel", bookingID, func(b *model.Booking, now time.Time) error {
		if b.Status.IsCancelled() {
			return model.ErrAlreadyCancelled
		}
		if !b.End.After(now) {
			return model.ErrPastBooking
		}
		return nil
	}, model.BookingStatusAdminCancelled)
}

func (s *Service) cancel(ctx context.Context, operation string, bookingID int64, check func(b *model.Booking, now time.Time) error, to model.BookingStatus) (event model.TransitionEvent, err error) {
	ctx, span := tracing.Begin(ctx, "BookingService.Cancel")
	defer func() { span.End(err) }()
	defer rejected(operation, &err)

	now := s.clock.Now()
	var wasCheckedIn, roomInUse bool
	err = s.store.WithinTx(ctx, repository.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := check(b, now); err != nil {
			return err
		}
		if b.Status.IsCancelled() {
			return model.ErrAlreadyCancelled
		}
		if !b.Status.CanTransitionTo(to) {
			return model.ErrInvalidTransition
		}

		event = model.NewTransitionEvent(*b, to, now)
		wasCheckedIn = b.Status == model.BookingStatusCheckedIn
		if err := tx.UpdateStatus(ctx, b, to); err != nil {
			return err
		}
		roomInUse, err = refreshIfPresent(ctx, tx, b.RoomID, now)
		return err
	})
	if err != nil {
		return model.TransitionEvent{}, err
	}

	metrics.IncTransition(to.String())
	// 利用中の取り消しでは部屋を閉じる
	if wasCheckedIn && event.RoomID != nil {
		if roomInUse {
			log.Printf("Room %d is still in use by another booking, skipping lock after cancelling booking %d",
				*event.RoomID, event.BookingID)
		} else {
			s.actuator.CloseRoom(context.WithoutCancel(ctx), *event.RoomID)
		}
	}
	return event, nil
}

// CheckIn は確認コードを検証して予約を CHECKED_IN にします
// コードは予約の確認コードか部屋の固定コードのどちらかに一致すれば受け付けます
func (s *Service) CheckIn(ctx context.Context, userID, bookingID int64, code string) (event model.TransitionEvent, err error) {
	ctx, span := tracing.Begin(ctx, "BookingService.CheckIn")
	defer func() { span.End(err) }()
	defer rejected("check_in", &err)

	code = strings.TrimSpace(code)
	now := s.clock.Now()
	err = s.store.WithinTx(ctx, repository.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !b.IsOwnedBy(userID) {
			return model.ErrUnauthorized
		}
		if !b.HasRoom() {
			return model.ErrRoomNotFound
		}
		room, err := tx.FindRoom(ctx, *b.RoomID)
		if err != nil {
			return err
		}
		if b.Status != model.BookingStatusReserved {
			return model.ErrInvalidTransition
		}
		if !b.CheckInWindow().Contains(now) {
			return model.ErrOutsideCheckInWindow
		}
		if code == "" || (code != b.ConfirmationCode && !room.AcceptsCode(code)) {
			return model.ErrCodeMismatch
		}

		event = model.NewTransitionEvent(*b, model.BookingStatusCheckedIn, now)
		if err := tx.UpdateStatus(ctx, b, model.BookingStatusCheckedIn); err != nil {
			return err
		}
		// 次回の定期実行を待たずに利用中にする
		return tx.UpdateRoomStatus(ctx, room.ID, model.RoomStatusOccupied)
	})
	if err != nil {
		return model.TransitionEvent{}, err
	}

	metrics.IncTransition(model.BookingStatusCheckedIn.String())
	s.actuator.OpenRoom(context.WithoutCancel(ctx), *event.RoomID)
	return event, nil
}

// Delete は本人の予約を物理削除します
// 利用中(CHECKED_IN)の予約は設備の後始末が残るため削除できません
func (s *Service) Delete(ctx context.Context, userID, bookingID int64) (err error) {
	ctx, span := tracing.Begin(ctx, "BookingService.Delete")
	defer func() { span.End(err) }()
	defer rejected("delete", &err)

	now := s.clock.Now()
	return s.store.WithinTx(ctx, repository.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !b.IsOwnedBy(userID) {
			return model.ErrUnauthorized
		}
		if b.Status == model.BookingStatusCheckedIn {
			return model.ErrInvalidTransition
		}
		if err := tx.Delete(ctx, b.ID); err != nil {
			return err
		}
		_, err = refreshIfPresent(ctx, tx, b.RoomID, now)
		return err
	})
}

// ListForUser はユーザーの予約を期間で絞り込み、開始時刻順に返します
// from / to が nil の場合はその側を制限しません
func (s *Service) ListForUser(ctx context.Context, userID int64, from, to *time.Time) ([]model.Booking, error) {
	var bookings []model.Booking
	err := s.store.WithinTx(ctx, repository.TxOptions{ReadOnly: true}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		bookings, err = tx.FindByUser(ctx, userID, from, to)
		return err
	})
	return bookings, err
}

// ListForRoom は部屋の予約を期間で絞り込み、開始時刻順に返します
// limit が0以下の場合は件数を制限しません
func (s *Service) ListForRoom(ctx context.Context, roomID int64, from, to *time.Time, limit int) ([]model.Booking, error) {
	var bookings []model.Booking
	err := s.store.WithinTx(ctx, repository.TxOptions{ReadOnly: true}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.FindRoom(ctx, roomID); err != nil {
			return err
		}
		var err error
		bookings, err = tx.FindByRoom(ctx, roomID, from, to, limit)
		return err
	})
	return bookings, err
}

// rejected は拒否された操作をエラー種別ごとに集計します
func rejected(operation string, err *error) {
	if *err != nil {
		metrics.IncBookingRejected(operation, model.KindOf(*err).String())
	}
}
