package model

import (
	"fmt"
	"time"
)

// BookingStatus は予約のライフサイクル上の状態を表します
type BookingStatus string

const (
	BookingStatusReserved       BookingStatus = "RESERVED"
	BookingStatusCheckedIn      BookingStatus = "CHECKED_IN"
	BookingStatusCompleted      BookingStatus = "COMPLETED"
	BookingStatusNoShow         BookingStatus = "NO_SHOW"
	BookingStatusCancelled      BookingStatus = "CANCELLED"
	BookingStatusAdminCancelled BookingStatus = "ADMIN_CANCELLED"
)

// ActiveBookingStatuses は部屋を占有する(重複してはならない)状態です
var ActiveBookingStatuses = []BookingStatus{BookingStatusReserved, BookingStatusCheckedIn}

// 状態遷移表
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusReserved: {
		BookingStatusCheckedIn,
		BookingStatusNoShow,
		BookingStatusCancelled,
		BookingStatusAdminCancelled,
	},
	BookingStatusCheckedIn: {
		BookingStatusCompleted,
		BookingStatusCancelled,
		BookingStatusAdminCancelled,
	},
	BookingStatusCompleted:      {},
	BookingStatusNoShow:         {},
	BookingStatusCancelled:      {},
	BookingStatusAdminCancelled: {},
}

// IsValid は定義済みのステータスかどうかを返します
func (s BookingStatus) IsValid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

// IsActive は部屋の枠を占有しているステータスかどうかを返します
func (s BookingStatus) IsActive() bool {
	return s == BookingStatusReserved || s == BookingStatusCheckedIn
}

// IsTerminal はこれ以上遷移できないステータスかどうかを返します
func (s BookingStatus) IsTerminal() bool {
	next, ok := bookingTransitions[s]
	return !ok || len(next) == 0
}

// IsCancelled はオーナーまたは管理者によるキャンセル済みかどうかを返します
func (s BookingStatus) IsCancelled() bool {
	return s == BookingStatusCancelled || s == BookingStatusAdminCancelled
}

// CanTransitionTo は target への遷移が許可されているかを返します
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, next := range bookingTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

func (s BookingStatus) String() string {
	return string(s)
}

// ParseBookingStatus は文字列を BookingStatus に変換します
func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %s", s)
	}
	return status, nil
}

// Interval は半開区間 [Start, End) です
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval は Start < End を検証して区間を作成します
func NewInterval(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, ErrInvalidInterval
	}
	return Interval{Start: start.UTC(), End: end.UTC()}, nil
}

// Overlaps は2つの半開区間が交差するかを返します
// 端点が接しているだけの場合は交差しません
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Contains は t が [Start, End) に含まれるかを返します
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Booking は部屋の予約です
// RoomID は部屋が削除されると nil になる弱参照です
type Booking struct {
	ID                 int64         `db:"id" json:"id"`
	UserID             int64         `db:"user_id" json:"user_id"`
	RoomID             *int64        `db:"room_id" json:"room_id,omitempty"`
	Start              time.Time     `db:"start_at" json:"start"`
	End                time.Time     `db:"end_at" json:"end"`
	GracePeriodMinutes int           `db:"grace_period_min" json:"grace_period_min"`
	Status             BookingStatus `db:"status" json:"status"`
	ConfirmationCode   string        `db:"confirmation_code" json:"-"`
	Description        string        `db:"description" json:"description"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// Interval は予約の時間枠を返します
func (b Booking) Interval() Interval {
	return Interval{Start: b.Start, End: b.End}
}

// GracePeriod は猶予時間を Duration で返します
func (b Booking) GracePeriod() time.Duration {
	return time.Duration(b.GracePeriodMinutes) * time.Minute
}

// CheckInDeadline はチェックイン期限 (start + grace) です
// これを過ぎても RESERVED のままなら NO_SHOW になります
func (b Booking) CheckInDeadline() time.Time {
	return b.Start.Add(b.GracePeriod())
}

// ArrivalWindowContains は到着猶予区間 [start - grace, start + grace] に now が含まれるかを返します
func (b Booking) ArrivalWindowContains(now time.Time) bool {
	grace := b.GracePeriod()
	return !now.Before(b.Start.Add(-grace)) && !now.After(b.Start.Add(grace))
}

// CheckInWindow はチェックイン可能な区間 [start - grace, end) を返します
func (b Booking) CheckInWindow() Interval {
	return Interval{Start: b.Start.Add(-b.GracePeriod()), End: b.End}
}

// IsOwnedBy は userID がこの予約の所有者かどうかを返します
func (b Booking) IsOwnedBy(userID int64) bool {
	return b.UserID == userID
}

// HasRoom は部屋への参照が残っているかどうかを返します
func (b Booking) HasRoom() bool {
	return b.RoomID != nil
}
