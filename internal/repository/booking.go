package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/uma-arai/sbcntr-roombooking/internal/common/tracing"
	"github.com/uma-arai/sbcntr-roombooking/internal/model"
)

// BookingRepository は予約の永続化を担当するインターフェースです
type BookingRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Booking, error)
	LockBooking(ctx context.Context, id int64) (*model.Booking, error)
	FindByUser(ctx context.Context, userID int64, from, to *time.Time) ([]model.Booking, error)
	FindByRoom(ctx context.Context, roomID int64, from, to *time.Time, limit int) ([]model.Booking, error)
	FindOverlapping(ctx context.Context, roomID int64, interval model.Interval, statuses []model.BookingStatus) ([]model.Booking, error)
	FindActiveForRoom(ctx context.Context, roomID int64, now time.Time) ([]model.Booking, error)
	FindExpiredReservations(ctx context.Context, now time.Time) ([]model.Booking, error)
	FindCompleted(ctx context.Context, now time.Time) ([]model.Booking, error)
	FindInCheckInWindow(ctx context.Context, now time.Time) ([]model.Booking, error)
	Create(ctx context.Context, booking *model.Booking) error
	UpdateStatus(ctx context.Context, booking *model.Booking, status model.BookingStatus) error
	Update(ctx context.Context, booking *model.Booking, roomID int64, interval model.Interval, description string) error
	Delete(ctx context.Context, id int64) error
}

const bookingColumns = `
	id,
	user_id,
	room_id,
	start_at,
	end_at,
	grace_period_min,
	status,
	confirmation_code,
	description,
	created_at,
	updated_at`

type bookingRepository struct {
	q sqlx.ExtContext
}

// FindByID は予約を1件取得します
func (r *bookingRepository) FindByID(ctx context.Context, id int64) (*model.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE id = $1`

	return r.getBooking(ctx, "BookingRepository.FindByID", query, id)
}

// LockBooking は予約の行をロックして取得します
// 状態を変更する作業単位はこれで読み、同じ予約への遷移を直列化します
func (r *bookingRepository) LockBooking(ctx context.Context, id int64) (*model.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE id = $1
		FOR UPDATE`

	return r.getBooking(ctx, "BookingRepository.LockBooking", query, id)
}

// FindByUser はユーザーの予約を期間で絞り込み、開始時刻順に取得します
func (r *bookingRepository) FindByUser(ctx context.Context, userID int64, from, to *time.Time) ([]model.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		AND ($2::timestamptz IS NULL OR end_at > $2)
		AND ($3::timestamptz IS NULL OR start_at < $3)
		ORDER BY start_at ASC`

	return r.selectBookings(ctx, "BookingRepository.FindByUser", query, userID, from, to)
}

// FindByRoom は部屋の予約を期間で絞り込んで取得します
// from 以降に終了し、to より前に開始する予約が対象です
func (r *bookingRepository) FindByRoom(ctx context.Context, roomID int64, from, to *time.Time, limit int) ([]model.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE room_id = $1
		AND ($2::timestamptz IS NULL OR end_at > $2)
		AND ($3::timestamptz IS NULL OR start_at < $3)
		ORDER BY start_at ASC`

	args := []interface{}{roomID, from, to}
	if limit > 0 {
		query += `
		LIMIT $4`
		args = append(args, limit)
	}

	return r.selectBookings(ctx, "BookingRepository.FindByRoom", query, args...)
}

// FindOverlapping は指定された状態のうち、区間が重なる予約を取得します
func (r *bookingRepository) FindOverlapping(ctx context.Context, roomID int64, interval model.Interval, statuses []model.BookingStatus) ([]model.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE room_id = $1
		AND status = ANY($2)
		AND start_at < $3
		AND end_at > $4
		ORDER BY start_at ASC`

	return r.selectBookings(ctx, "BookingRepository.FindOverlapping", query,
		roomID, pq.Array(statusStrings(statuses)), interval.End, interval.Start)
}

// FindActiveForRoom は部屋の RESERVED / CHECKED_IN でまだ終了していない予約を取得します
func (r *bookingRepository) FindActiveForRoom(ctx context.Context, roomID int64, now time.Time) ([]model.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE room_id = $1
		AND status IN ('RESERVED', 'CHECKED_IN')
		AND end_at > $2
		ORDER BY start_at ASC`

	return r.selectBookings(ctx, "BookingRepository.FindActiveForRoom", query, roomID, now)
}

// FindExpiredReservations はチェックイン期限 (start + grace) を過ぎた RESERVED の予約を取得します
func (r *bookingRepository) FindExpiredReservations(ctx context.Context, now time.Time) ([]model.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE status = 'RESERVED'
		AND start_at + make_interval(mins => grace_period_min) < $1
		ORDER BY start_at ASC`

	return r.selectBookings(ctx, "BookingRepository.FindExpiredReservations", query, now)
}

// FindCompleted は終了時刻を過ぎた RESERVED / CHECKED_IN の予約を取得します
func (r *bookingRepository) FindCompleted(ctx context.Context, now time.Time) ([]model.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE status IN ('RESERVED', 'CHECKED_IN')
		AND end_at <= $1
		ORDER BY end_at ASC`

	return r.selectBookings(ctx, "BookingRepository.FindCompleted", query, now)
}

// FindInCheckInWindow は [start - grace, end) に now が含まれる RESERVED の予約を取得します
func (r *bookingRepository) FindInCheckInWindow(ctx context.Context, now time.Time) ([]model.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE status = 'RESERVED'
		AND end_at > $1
		AND start_at - make_interval(mins => grace_period_min) <= $1
		ORDER BY start_at ASC`

	return r.selectBookings(ctx, "BookingRepository.FindInCheckInWindow", query, now)
}

// Create は予約を作成し、採番された ID を booking に設定します
func (r *bookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, span := tracing.Begin(ctx, "BookingRepository.Create")
	defer span.End(nil)

	query := `
		INSERT INTO bookings (
			user_id,
			room_id,
			start_at,
			end_at,
			grace_period_min,
			status,
			confirmation_code,
			description,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $9
		)
		RETURNING id`

	err := r.q.QueryRowxContext(ctx,
		query,
		booking.UserID,
		booking.RoomID,
		booking.Start,
		booking.End,
		booking.GracePeriodMinutes,
		booking.Status,
		booking.ConfirmationCode,
		booking.Description,
		booking.CreatedAt,
	).Scan(&booking.ID)
	if err != nil {
		span.End(err)
		if isExclusionViolation(err) {
			return model.ErrSlotUnavailable
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	booking.UpdatedAt = booking.CreatedAt
	return nil
}

// UpdateStatus は予約のステータスを booking.Status から status に更新します
// 読み込み後に別の作業単位がステータスを変えていた場合は ErrInvalidTransition を返します
func (r *bookingRepository) UpdateStatus(ctx context.Context, booking *model.Booking, status model.BookingStatus) error {
	ctx, span := tracing.Begin(ctx, "BookingRepository.UpdateStatus")
	defer span.End(nil)

	now := time.Now().UTC()
	query := `
		UPDATE bookings
		SET status = $1,
			updated_at = $2
		WHERE id = $3
		AND status = $4`

	result, err := r.q.ExecContext(ctx, query, status, now, booking.ID, booking.Status)
	if err != nil {
		span.End(err)
		if isRetryable(err) {
			return err
		}
		return fmt.Errorf("failed to update booking %d: %w", booking.ID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.End(err)
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var exists bool
		if err := sqlx.GetContext(ctx, r.q, &exists, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, booking.ID); err != nil {
			span.End(err)
			return fmt.Errorf("failed to check booking %d: %w", booking.ID, err)
		}
		if !exists {
			return model.ErrBookingNotFound
		}
		return model.ErrInvalidTransition
	}

	booking.Status = status
	booking.UpdatedAt = now
	return nil
}

// Update は予約の部屋・時間枠・説明を更新します
func (r *bookingRepository) Update(ctx context.Context, booking *model.Booking, roomID int64, interval model.Interval, description string) error {
	ctx, span := tracing.Begin(ctx, "BookingRepository.Update")
	defer span.End(nil)

	now := time.Now().UTC()
	query := `
		UPDATE bookings
		SET room_id = $1,
			start_at = $2,
			end_at = $3,
			description = $4,
			updated_at = $5
		WHERE id = $6`

	if err := r.execOne(ctx, query, booking.ID, roomID, interval.Start, interval.End, description, now, booking.ID); err != nil {
		span.End(err)
		if isExclusionViolation(err) {
			return model.ErrSlotUnavailable
		}
		return err
	}

	booking.RoomID = &roomID
	booking.Start = interval.Start
	booking.End = interval.End
	booking.Description = description
	booking.UpdatedAt = now
	return nil
}

// Delete は予約を物理削除します
func (r *bookingRepository) Delete(ctx context.Context, id int64) error {
	ctx, span := tracing.Begin(ctx, "BookingRepository.Delete")
	defer span.End(nil)

	if err := r.execOne(ctx, `DELETE FROM bookings WHERE id = $1`, id, id); err != nil {
		span.End(err)
		return err
	}
	return nil
}

func (r *bookingRepository) getBooking(ctx context.Context, name, query string, id int64) (*model.Booking, error) {
	ctx, span := tracing.Begin(ctx, name)
	defer span.End(nil)

	var booking model.Booking
	if err := sqlx.GetContext(ctx, r.q, &booking, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrBookingNotFound
		}
		span.End(err)
		return nil, fmt.Errorf("failed to get booking %d: %w", id, err)
	}
	return &booking, nil
}

func (r *bookingRepository) selectBookings(ctx context.Context, name, query string, args ...interface{}) ([]model.Booking, error) {
	ctx, span := tracing.Begin(ctx, name)
	defer span.End(nil)

	var bookings []model.Booking
	if err := sqlx.SelectContext(ctx, r.q, &bookings, query, args...); err != nil {
		span.End(err)
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	span.AddMetadata("booking_count", len(bookings))
	return bookings, nil
}

// execOne は1行だけ更新されることを期待してクエリを実行します
func (r *bookingRepository) execOne(ctx context.Context, query string, id int64, args ...interface{}) error {
	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		if isExclusionViolation(err) || isRetryable(err) {
			return err
		}
		return fmt.Errorf("failed to update booking %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrBookingNotFound
	}
	return nil
}

func statusStrings(statuses []model.BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
