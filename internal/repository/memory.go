package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/uma-arai/sbcntr-roombooking/internal/model"
)

// MemoryStore はメモリ上の BookingStore です
// すべての作業単位を1つのロックで直列化するため、常に SERIALIZABLE 相当で動作します
// fn がエラーを返した場合は開始前の状態に戻します
type MemoryStore struct {
	mu       sync.Mutex
	bookings map[int64]model.Booking
	rooms    map[int64]model.Room
	users    map[int64]model.User
	nextID   int64
	now      func() time.Time
}

// NewMemoryStore は空の MemoryStore を作成します
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: make(map[int64]model.Booking),
		rooms:    make(map[int64]model.Room),
		users:    make(map[int64]model.User),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithinTx は fn をストア全体のロックを取った状態で実行します
func (s *MemoryStore) WithinTx(ctx context.Context, _ TxOptions, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshotLocked()
	if err := fn(ctx, &memoryTx{s: s}); err != nil {
		s.restoreLocked(snapshot)
		return err
	}
	return nil
}

// AddRoom は部屋を登録します
func (s *MemoryStore) AddRoom(room model.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room.Status == "" {
		room.Status = model.RoomStatusFree
	}
	s.rooms[room.ID] = room
}

// RemoveRoom は部屋を削除し、予約からの参照を外します (ON DELETE SET NULL 相当)
func (s *MemoryStore) RemoveRoom(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
	for bid, b := range s.bookings {
		if b.RoomID != nil && *b.RoomID == id {
			b.RoomID = nil
			s.bookings[bid] = b
		}
	}
}

// AddUser はユーザーを登録します
func (s *MemoryStore) AddUser(user model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

// PutBooking は予約をそのまま保存します。ID が0の場合は採番します
func (s *MemoryStore) PutBooking(b model.Booking) model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		s.nextID++
		b.ID = s.nextID
	} else if b.ID > s.nextID {
		s.nextID = b.ID
	}
	s.bookings[b.ID] = b
	return b
}

// Booking は保存されている予約を返します
func (s *MemoryStore) Booking(id int64) (model.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	return b, ok
}

// Room は保存されている部屋を返します
func (s *MemoryStore) Room(id int64) (model.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	return r, ok
}

type memorySnapshot struct {
	bookings map[int64]model.Booking
	rooms    map[int64]model.Room
	nextID   int64
}

func (s *MemoryStore) snapshotLocked() memorySnapshot {
	snap := memorySnapshot{
		bookings: make(map[int64]model.Booking, len(s.bookings)),
		rooms:    make(map[int64]model.Room, len(s.rooms)),
		nextID:   s.nextID,
	}
	for id, b := range s.bookings {
		snap.bookings[id] = b
	}
	for id, r := range s.rooms {
		snap.rooms[id] = r
	}
	return snap
}

func (s *MemoryStore) restoreLocked(snap memorySnapshot) {
	s.bookings = snap.bookings
	s.rooms = snap.rooms
	s.nextID = snap.nextID
}

// memoryTx はロック取得済みの MemoryStore を操作します
type memoryTx struct {
	s *MemoryStore
}

func (t *memoryTx) FindByID(_ context.Context, id int64) (*model.Booking, error) {
	b, ok := t.s.bookings[id]
	if !ok {
		return nil, model.ErrBookingNotFound
	}
	return &b, nil
}

// LockBooking はストア全体がロック済みのため FindByID と同じです
func (t *memoryTx) LockBooking(ctx context.Context, id int64) (*model.Booking, error) {
	return t.FindByID(ctx, id)
}

func (t *memoryTx) FindByUser(_ context.Context, userID int64, from, to *time.Time) ([]model.Booking, error) {
	return t.filter(func(b model.Booking) bool {
		return b.UserID == userID && inRange(b, from, to)
	}), nil
}

func (t *memoryTx) FindByRoom(_ context.Context, roomID int64, from, to *time.Time, limit int) ([]model.Booking, error) {
	out := t.filter(func(b model.Booking) bool {
		return b.RoomID != nil && *b.RoomID == roomID && inRange(b, from, to)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memoryTx) FindOverlapping(_ context.Context, roomID int64, interval model.Interval, statuses []model.BookingStatus) ([]model.Booking, error) {
	return t.filter(func(b model.Booking) bool {
		return b.RoomID != nil && *b.RoomID == roomID &&
			containsStatus(statuses, b.Status) &&
			b.Interval().Overlaps(interval)
	}), nil
}

func (t *memoryTx) FindActiveForRoom(_ context.Context, roomID int64, now time.Time) ([]model.Booking, error) {
	return t.filter(func(b model.Booking) bool {
		return b.RoomID != nil && *b.RoomID == roomID && b.Status.IsActive() && b.End.After(now)
	}), nil
}

func (t *memoryTx) FindExpiredReservations(_ context.Context, now time.Time) ([]model.Booking, error) {
	return t.filter(func(b model.Booking) bool {
		return b.Status == model.BookingStatusReserved && b.CheckInDeadline().Before(now)
	}), nil
}

func (t *memoryTx) FindCompleted(_ context.Context, now time.Time) ([]model.Booking, error) {
	return t.filter(func(b model.Booking) bool {
		return b.Status.IsActive() && !b.End.After(now)
	}), nil
}

func (t *memoryTx) FindInCheckInWindow(_ context.Context, now time.Time) ([]model.Booking, error) {
	return t.filter(func(b model.Booking) bool {
		return b.Status == model.BookingStatusReserved && b.CheckInWindow().Contains(now)
	}), nil
}

func (t *memoryTx) Create(_ context.Context, booking *model.Booking) error {
	if booking.Status.IsActive() && booking.RoomID != nil {
		for _, b := range t.s.bookings {
			if b.RoomID != nil && *b.RoomID == *booking.RoomID && b.Status.IsActive() &&
				b.Interval().Overlaps(booking.Interval()) {
				return model.ErrSlotUnavailable
			}
		}
	}
	t.s.nextID++
	booking.ID = t.s.nextID
	booking.UpdatedAt = booking.CreatedAt
	t.s.bookings[booking.ID] = *booking
	return nil
}

func (t *memoryTx) UpdateStatus(_ context.Context, booking *model.Booking, status model.BookingStatus) error {
	stored, ok := t.s.bookings[booking.ID]
	if !ok {
		return model.ErrBookingNotFound
	}
	if stored.Status != booking.Status {
		return model.ErrInvalidTransition
	}
	stored.Status = status
	stored.UpdatedAt = t.s.now()
	t.s.bookings[booking.ID] = stored

	booking.Status = stored.Status
	booking.UpdatedAt = stored.UpdatedAt
	return nil
}

func (t *memoryTx) Update(_ context.Context, booking *model.Booking, roomID int64, interval model.Interval, description string) error {
	stored, ok := t.s.bookings[booking.ID]
	if !ok {
		return model.ErrBookingNotFound
	}
	if stored.Status.IsActive() {
		for id, b := range t.s.bookings {
			if id != booking.ID && b.RoomID != nil && *b.RoomID == roomID && b.Status.IsActive() &&
				b.Interval().Overlaps(interval) {
				return model.ErrSlotUnavailable
			}
		}
	}
	stored.RoomID = &roomID
	stored.Start = interval.Start
	stored.End = interval.End
	stored.Description = description
	stored.UpdatedAt = t.s.now()
	t.s.bookings[booking.ID] = stored

	*booking = stored
	return nil
}

func (t *memoryTx) Delete(_ context.Context, id int64) error {
	if _, ok := t.s.bookings[id]; !ok {
		return model.ErrBookingNotFound
	}
	delete(t.s.bookings, id)
	return nil
}

func (t *memoryTx) FindRoom(_ context.Context, id int64) (*model.Room, error) {
	r, ok := t.s.rooms[id]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	return &r, nil
}

// LockRoom はストア全体がロック済みのため FindRoom と同じです
func (t *memoryTx) LockRoom(ctx context.Context, id int64) (*model.Room, error) {
	return t.FindRoom(ctx, id)
}

func (t *memoryTx) UpdateRoomStatus(_ context.Context, roomID int64, status model.RoomStatus) error {
	r, ok := t.s.rooms[roomID]
	if !ok {
		return model.ErrRoomNotFound
	}
	r.Status = status
	r.UpdatedAt = t.s.now()
	t.s.rooms[roomID] = r
	return nil
}

func (t *memoryTx) UserExists(_ context.Context, id int64) (bool, error) {
	_, ok := t.s.users[id]
	return ok, nil
}

func (t *memoryTx) filter(keep func(model.Booking) bool) []model.Booking {
	var out []model.Booking
	for _, b := range t.s.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// inRange は from 以降に終了し、to より前に開始する予約かどうかを返します
func inRange(b model.Booking, from, to *time.Time) bool {
	if from != nil && !b.End.After(*from) {
		return false
	}
	if to != nil && !b.Start.Before(*to) {
		return false
	}
	return true
}

func containsStatus(statuses []model.BookingStatus, s model.BookingStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}
