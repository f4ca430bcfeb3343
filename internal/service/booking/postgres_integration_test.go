package booking

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/uma-arai/sbcntr-roombooking/internal/actuation"
	"github.com/uma-arai/sbcntr-roombooking/internal/actuation/actuationtest"
	"github.com/uma-arai/sbcntr-roombooking/internal/common/clock"
	"github.com/uma-arai/sbcntr-roombooking/internal/common/config"
	"github.com/uma-arai/sbcntr-roombooking/internal/common/database"
	"github.com/uma-arai/sbcntr-roombooking/internal/model"
	"github.com/uma-arai/sbcntr-roombooking/internal/repository"
)

type postgresEnv struct {
	db     *repository.DB
	svc    *Service
	userID int64
}

// newPostgresEnv は実際の PostgreSQL に接続し、テスト用のユーザーを作成します
// ROOMBOOKING_INTEGRATION=1 のときだけ実行します
func newPostgresEnv(t *testing.T) *postgresEnv {
	t.Helper()
	if os.Getenv("ROOMBOOKING_INTEGRATION") == "" {
		t.Skip("set ROOMBOOKING_INTEGRATION=1 to run against PostgreSQL")
	}

	ctx := context.Background()
	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	db, err := database.NewDB(cfg.DB)
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	repoDB := &repository.DB{DB: db.DB}
	t.Cleanup(func() { repoDB.Close() })

	if err := repository.Migrate(ctx, repoDB); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	var userID int64
	if err := repoDB.QueryRowxContext(ctx, `INSERT INTO users (name) VALUES ('integration') RETURNING id`).Scan(&userID); err != nil {
		t.Fatalf("failed to insert user: %v", err)
	}
	t.Cleanup(func() {
		repoDB.ExecContext(ctx, `DELETE FROM bookings WHERE user_id = $1`, userID)
		repoDB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	})

	svc := NewService(repository.NewPostgresStore(repoDB), clock.Real{}, actuation.NewDispatcher(&actuationtest.Recorder{}))
	return &postgresEnv{db: repoDB, svc: svc, userID: userID}
}

func (e *postgresEnv) addRoom(t *testing.T) int64 {
	t.Helper()
	ctx := context.Background()

	var roomID int64
	if err := e.db.QueryRowxContext(ctx,
		`INSERT INTO rooms (room_number, name, capacity) VALUES (901, 'integration', 4) RETURNING id`).Scan(&roomID); err != nil {
		t.Fatalf("failed to insert room: %v", err)
	}
	t.Cleanup(func() {
		e.db.ExecContext(ctx, `DELETE FROM bookings WHERE room_id = $1`, roomID)
		e.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, roomID)
	})
	return roomID
}

func (e *postgresEnv) bookingStatus(t *testing.T, id int64) model.BookingStatus {
	t.Helper()
	var status model.BookingStatus
	if err := e.db.GetContext(context.Background(), &status, `SELECT status FROM bookings WHERE id = $1`, id); err != nil {
		t.Fatalf("failed to read booking %d: %v", id, err)
	}
	return status
}

func TestService_Postgres_ConcurrentCreate(t *testing.T) {
	env := newPostgresEnv(t)
	roomID := env.addRoom(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Minute)

	const workers = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		succeeded  int
		unexpected []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Create(ctx, CreateBookingInput{
				UserID: env.userID, RoomID: roomID, Start: start, End: start.Add(time.Hour),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, model.ErrSlotUnavailable):
			default:
				unexpected = append(unexpected, err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("succeeded = %d, want exactly 1", succeeded)
	}
	for _, err := range unexpected {
		t.Errorf("unexpected error: %v", err)
	}
}

// チェックイン期限は過ぎたがウィンドウ内の予約に対して、チェックインと NO_SHOW 判定を同時に行う
// どちらか一方だけが遷移し、CHECKED_IN が NO_SHOW で上書きされることはない
func TestService_Postgres_CheckInRacesExpiration(t *testing.T) {
	env := newPostgresEnv(t)
	ctx := context.Background()

	const rounds = 10
	for i := 0; i < rounds; i++ {
		roomID := env.addRoom(t)
		now := time.Now().UTC()

		var bookingID int64
		if err := env.db.QueryRowxContext(ctx, `
			INSERT INTO bookings (user_id, room_id, start_at, end_at, grace_period_min, status, confirmation_code, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 15, 'RESERVED', '4821', $5, $5)
			RETURNING id`,
			env.userID, roomID, now.Add(-20*time.Minute), now.Add(40*time.Minute), now).Scan(&bookingID); err != nil {
			t.Fatalf("failed to insert booking: %v", err)
		}

		var (
			wg        sync.WaitGroup
			checkErr  error
			expired   *model.TransitionEvent
			expireErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, checkErr = env.svc.CheckIn(ctx, env.userID, bookingID, "4821")
		}()
		go func() {
			defer wg.Done()
			expired, expireErr = env.svc.ExpireReservation(ctx, bookingID, time.Now().UTC())
		}()
		wg.Wait()

		if expireErr != nil {
			t.Fatalf("round %d: ExpireReservation() error = %v", i, expireErr)
		}
		got := env.bookingStatus(t, bookingID)
		switch {
		case checkErr == nil:
			if expired != nil {
				t.Errorf("round %d: booking was both checked in and expired (%s -> %s)", i, expired.From, expired.To)
			}
			if got != model.BookingStatusCheckedIn {
				t.Errorf("round %d: status = %v, want %v", i, got, model.BookingStatusCheckedIn)
			}
		case errors.Is(checkErr, model.ErrInvalidTransition):
			if expired == nil {
				t.Errorf("round %d: check-in was rejected but the booking did not expire", i)
			}
			if got != model.BookingStatusNoShow {
				t.Errorf("round %d: status = %v, want %v", i, got, model.BookingStatusNoShow)
			}
		default:
			t.Errorf("round %d: CheckIn() error = %v", i, checkErr)
		}
	}
}
