package model

import (
	"testing"
	"time"
)

func TestInterval_Overlaps(t *testing.T) {
	base := time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time {
		return base.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
	}

	tests := []struct {
		name string
		a    Interval
		b    Interval
		want bool
	}{
		{
			name: "端点が接しているだけなら重複しない",
			a:    Interval{Start: at(10, 0), End: at(11, 0)},
			b:    Interval{Start: at(11, 0), End: at(12, 0)},
			want: false,
		},
		{
			name: "一部が重なる",
			a:    Interval{Start: at(10, 0), End: at(11, 0)},
			b:    Interval{Start: at(10, 30), End: at(11, 30)},
			want: true,
		},
		{
			name: "内包している",
			a:    Interval{Start: at(9, 0), End: at(13, 0)},
			b:    Interval{Start: at(10, 0), End: at(11, 0)},
			want: true,
		},
		{
			name: "完全に離れている",
			a:    Interval{Start: at(8, 0), End: at(9, 0)},
			b:    Interval{Start: at(10, 0), End: at(11, 0)},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Errorf("Overlaps() reversed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewInterval(t *testing.T) {
	now := time.Now()

	if _, err := NewInterval(now, now); err != ErrInvalidInterval {
		t.Errorf("NewInterval(start == end) error = %v, want %v", err, ErrInvalidInterval)
	}
	if _, err := NewInterval(now.Add(time.Hour), now); err != ErrInvalidInterval {
		t.Errorf("NewInterval(start > end) error = %v, want %v", err, ErrInvalidInterval)
	}
	iv, err := NewInterval(now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("NewInterval() unexpected error = %v", err)
	}
	if iv.Start.Location() != time.UTC {
		t.Errorf("NewInterval() start location = %v, want UTC", iv.Start.Location())
	}
}

func TestBookingStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from BookingStatus
		to   BookingStatus
		want bool
	}{
		{BookingStatusReserved, BookingStatusCheckedIn, true},
		{BookingStatusReserved, BookingStatusNoShow, true},
		{BookingStatusReserved, BookingStatusCancelled, true},
		{BookingStatusReserved, BookingStatusAdminCancelled, true},
		{BookingStatusReserved, BookingStatusCompleted, false},
		{BookingStatusCheckedIn, BookingStatusCompleted, true},
		{BookingStatusCheckedIn, BookingStatusCancelled, true},
		{BookingStatusCheckedIn, BookingStatusNoShow, false},
		{BookingStatusCompleted, BookingStatusCancelled, false},
		{BookingStatusNoShow, BookingStatusCheckedIn, false},
		{BookingStatusCancelled, BookingStatusAdminCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBookingStatus_IsTerminal(t *testing.T) {
	terminal := []BookingStatus{
		BookingStatusCompleted, BookingStatusNoShow, BookingStatusCancelled, BookingStatusAdminCancelled,
	}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = false, want true", s)
		}
	}
	for _, s := range ActiveBookingStatuses {
		if s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = true, want false", s)
		}
	}
}

func TestParseBookingStatus(t *testing.T) {
	if got, err := ParseBookingStatus("NO_SHOW"); err != nil || got != BookingStatusNoShow {
		t.Errorf("ParseBookingStatus(NO_SHOW) = %v, %v", got, err)
	}
	if _, err := ParseBookingStatus("pending"); err == nil {
		t.Error("ParseBookingStatus(pending) should fail")
	}
}

func TestBooking_Windows(t *testing.T) {
	start := time.Date(2026, 1, 14, 10, 0, 0, 0, time.UTC)
	b := Booking{
		Start:              start,
		End:                start.Add(time.Hour),
		GracePeriodMinutes: 15,
	}

	if got := b.CheckInDeadline(); !got.Equal(start.Add(15 * time.Minute)) {
		t.Errorf("CheckInDeadline() = %v, want %v", got, start.Add(15*time.Minute))
	}

	tests := []struct {
		name          string
		now           time.Time
		wantArrival   bool
		wantInCheckIn bool
	}{
		{"猶予開始前", start.Add(-16 * time.Minute), false, false},
		{"猶予開始ちょうど", start.Add(-15 * time.Minute), true, true},
		{"開始時刻", start, true, true},
		{"猶予終了ちょうど", start.Add(15 * time.Minute), true, true},
		{"猶予終了後", start.Add(16 * time.Minute), false, true},
		{"終了時刻", start.Add(time.Hour), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.ArrivalWindowContains(tt.now); got != tt.wantArrival {
				t.Errorf("ArrivalWindowContains() = %v, want %v", got, tt.wantArrival)
			}
			if got := b.CheckInWindow().Contains(tt.now); got != tt.wantInCheckIn {
				t.Errorf("CheckInWindow().Contains() = %v, want %v", got, tt.wantInCheckIn)
			}
		})
	}
}
