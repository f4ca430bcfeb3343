package model

import "time"

// TransitionEvent は予約のステータス遷移1回分を表します
// 遷移ごとに1度だけ発行されます
type TransitionEvent struct {
	BookingID int64         `json:"booking_id"`
	RoomID    *int64        `json:"room_id,omitempty"`
	From      BookingStatus `json:"from"`
	To        BookingStatus `json:"to"`
	At        time.Time     `json:"at"`
}

// NewTransitionEvent は予約の現在の状態から遷移イベントを作成します
func NewTransitionEvent(b Booking, to BookingStatus, at time.Time) TransitionEvent {
	return TransitionEvent{
		BookingID: b.ID,
		RoomID:    b.RoomID,
		From:      b.Status,
		To:        to,
		At:        at,
	}
}
