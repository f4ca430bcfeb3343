package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-roombooking/internal/common/clock"
	"github.com/uma-arai/sbcntr-roombooking/internal/common/tracing"
	"github.com/uma-arai/sbcntr-roombooking/internal/metrics"
	"github.com/uma-arai/sbcntr-roombooking/internal/model"
	"github.com/uma-arai/sbcntr-roombooking/internal/repository"
	"github.com/uma-arai/sbcntr-roombooking/internal/service/booking"
)

const (
	PassExpiration    = "expiration"
	PassCompletion    = "completion"
	PassCheckInWindow = "check_in_window"

	DefaultInterval    = 5 * time.Minute
	DefaultTickTimeout = 2 * time.Minute
)

// Lifecycle はスケジューラーが呼び出す予約の状態遷移です
type Lifecycle interface {
	ExpireReservation(ctx context.Context, bookingID int64, now time.Time) (*model.TransitionEvent, error)
	CloseBooking(ctx context.Context, bookingID int64, now time.Time) (*model.TransitionEvent, error)
	AnnounceCode(ctx context.Context, bookingID int64, now time.Time) (bool, error)
}

var _ Lifecycle = (*booking.Service)(nil)

// Locker は複数レプリカのうち1台だけがティックを実行するための排他ロックです
type Locker interface {
	TryLock(ctx context.Context) (release func(), acquired bool, err error)
}

// TickReport は1回のティックの結果です
type TickReport struct {
	StartedAt time.Time               `json:"started_at"`
	Duration  string                  `json:"duration"`
	Expired   int                     `json:"expired"`
	Closed    int                     `json:"closed"`
	Announced int                     `json:"announced"`
	Failed    int                     `json:"failed"`
	Events    []model.TransitionEvent `json:"events"`
}

// ReconciliationService は時刻の経過に応じて予約の状態を進めます
type ReconciliationService struct {
	store       repository.BookingStore
	lifecycle   Lifecycle
	clock       clock.Clock
	interval    time.Duration
	tickTimeout time.Duration
	locker      Locker
	segmentName string
}

// Option は ReconciliationService の設定を変更します
type Option func(*ReconciliationService)

// WithInterval はティックの間隔を変更します
func WithInterval(d time.Duration) Option {
	return func(s *ReconciliationService) { s.interval = d }
}

// WithTickTimeout は1回のティックの制限時間を変更します
func WithTickTimeout(d time.Duration) Option {
	return func(s *ReconciliationService) { s.tickTimeout = d }
}

// WithLocker はティックごとに取得する排他ロックを設定します
func WithLocker(l Locker) Option {
	return func(s *ReconciliationService) { s.locker = l }
}

// WithTracing はティックごとに X-Ray セグメントを開始します
func WithTracing(segmentName string) Option {
	return func(s *ReconciliationService) { s.segmentName = segmentName }
}

// NewReconciliationService は新しい ReconciliationService を作成します
func NewReconciliationService(store repository.BookingStore, lifecycle Lifecycle, clk clock.Clock, opts ...Option) *ReconciliationService {
	s := &ReconciliationService{
		store:       store,
		lifecycle:   lifecycle,
		clock:       clk,
		interval:    DefaultInterval,
		tickTimeout: DefaultTickTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run はコンテキストがキャンセルされるまで一定間隔でティックを実行します
// 起動直後に1回実行し、キャンセル時は実行中のティックの完了を待ってから戻ります
func (s *ReconciliationService) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("Reconciliation scheduler started. Interval: %v", s.interval)
	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Reconciliation scheduler stopped: %v", ctx.Err())
			return nil
		case <-ticker.C():
			// 停止要求とティックが同時に届いた場合は停止を優先する
			if ctx.Err() != nil {
				continue
			}
			s.runOnce(ctx)
		}
	}
}

// runOnce は停止要求の影響を受けないコンテキストで1回のティックを実行します
func (s *ReconciliationService) runOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.tickTimeout)
	defer cancel()

	if s.segmentName != "" {
		var seg *xray.Segment
		ctx, seg = xray.BeginSegment(ctx, s.segmentName)
		defer seg.Close(nil)
	}

	if s.locker != nil {
		release, acquired, err := s.locker.TryLock(ctx)
		if err != nil {
			log.Printf("Skipping tick, failed to acquire scheduler lock: %v", err)
			metrics.IncTickSkipped()
			return
		}
		if !acquired {
			log.Printf("Skipping tick, another scheduler holds the lock")
			metrics.IncTickSkipped()
			return
		}
		defer release()
	}

	if _, err := s.Tick(ctx); err != nil {
		log.Printf("Reconciliation tick finished with errors: %v", err)
	}
}

// Tick は期限切れ・終了・チェックインウィンドウの3つのパスを順に実行します
// 1件の予約の失敗はログに出力して次の予約に進みます
// 候補の取得に失敗したパスがあればエラーを返しますが、残りのパスは実行します
func (s *ReconciliationService) Tick(ctx context.Context) (TickReport, error) {
	ctx, span := tracing.Begin(ctx, "ReconciliationService.Tick")
	defer span.End(nil)

	started := time.Now()
	now := s.clock.Now()
	report := TickReport{StartedAt: now, Events: []model.TransitionEvent{}}

	var errs []error
	if err := s.runPass(ctx, PassExpiration, now, s.expirationPass(&report)); err != nil {
		errs = append(errs, err)
	}
	if err := s.runPass(ctx, PassCompletion, now, s.completionPass(&report)); err != nil {
		errs = append(errs, err)
	}
	if err := s.runPass(ctx, PassCheckInWindow, now, s.checkInWindowPass(&report)); err != nil {
		errs = append(errs, err)
	}

	report.Duration = time.Since(started).String()

	span.AddMetadata("expired", report.Expired)
	span.AddMetadata("closed", report.Closed)
	span.AddMetadata("announced", report.Announced)

	log.Printf("Reconciliation tick at %s: expired=%d closed=%d announced=%d failed=%d",
		now.Format(time.RFC3339), report.Expired, report.Closed, report.Announced, report.Failed)

	err := errors.Join(errs...)
	if err != nil {
		span.End(err)
	}
	return report, err
}

type passStep struct {
	find    func(ctx context.Context, tx repository.Tx, now time.Time) ([]model.Booking, error)
	process func(ctx context.Context, b model.Booking, now time.Time) error
}

// runPass は候補を読み取り専用で取得し、予約ごとに個別の作業単位で処理します
func (s *ReconciliationService) runPass(ctx context.Context, pass string, now time.Time, step passStep) error {
	ctx, span := tracing.Begin(ctx, "ReconciliationService."+pass)
	defer span.End(nil)
	started := time.Now()
	defer func() { metrics.ObservePass(pass, time.Since(started)) }()

	var candidates []model.Booking
	err := s.store.WithinTx(ctx, repository.TxOptions{ReadOnly: true}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		candidates, err = step.find(ctx, tx, now)
		return err
	})
	if err != nil {
		span.End(err)
		return fmt.Errorf("%s pass: failed to find candidates: %w", pass, err)
	}

	log.Printf("Found %d bookings for %s pass", len(candidates), pass)
	span.AddMetadata("candidates", len(candidates))

	for _, b := range candidates {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s pass interrupted: %w", pass, err)
		}
		if err := step.process(ctx, b, now); err != nil {
			log.Printf("Skipping booking %d in %s pass: %v", b.ID, pass, err)
			metrics.IncPassProcessed(pass, "failed")
			continue
		}
	}
	return nil
}

func (s *ReconciliationService) expirationPass(report *TickReport) passStep {
	return passStep{
		find: func(ctx context.Context, tx repository.Tx, now time.Time) ([]model.Booking, error) {
			return tx.FindExpiredReservations(ctx, now)
		},
		process: func(ctx context.Context, b model.Booking, now time.Time) error {
			event, err := s.lifecycle.ExpireReservation(ctx, b.ID, now)
			if err != nil {
				report.Failed++
				return err
			}
			s.record(report, PassExpiration, event, &report.Expired)
			return nil
		},
	}
}

func (s *ReconciliationService) completionPass(report *TickReport) passStep {
	return passStep{
		find: func(ctx context.Context, tx repository.Tx, now time.Time) ([]model.Booking, error) {
			return tx.FindCompleted(ctx, now)
		},
		process: func(ctx context.Context, b model.Booking, now time.Time) error {
			event, err := s.lifecycle.CloseBooking(ctx, b.ID, now)
			if err != nil {
				report.Failed++
				return err
			}
			s.record(report, PassCompletion, event, &report.Closed)
			return nil
		},
	}
}

func (s *ReconciliationService) checkInWindowPass(report *TickReport) passStep {
	return passStep{
		find: func(ctx context.Context, tx repository.Tx, now time.Time) ([]model.Booking, error) {
			return tx.FindInCheckInWindow(ctx, now)
		},
		process: func(ctx context.Context, b model.Booking, now time.Time) error {
			announced, err := s.lifecycle.AnnounceCode(ctx, b.ID, now)
			if err != nil {
				report.Failed++
				return err
			}
			if announced {
				report.Announced++
				metrics.IncPassProcessed(PassCheckInWindow, "announced")
			} else {
				metrics.IncPassProcessed(PassCheckInWindow, "unchanged")
			}
			return nil
		},
	}
}

// record は遷移が起きた場合にレポートへ追加します
// 作業単位の中で状態が変わっていた予約は nil になります
func (s *ReconciliationService) record(report *TickReport, pass string, event *model.TransitionEvent, counter *int) {
	if event == nil {
		metrics.IncPassProcessed(pass, "unchanged")
		return
	}
	*counter++
	report.Events = append(report.Events, *event)
	metrics.IncPassProcessed(pass, "transitioned")
	log.Printf("Booking %d moved from %s to %s", event.BookingID, event.From, event.To)
}
