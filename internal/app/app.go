package app

import (
	"context"
	"fmt"
	"log"

	"github.com/uma-arai/sbcntr-roombooking/internal/actuation"
	"github.com/uma-arai/sbcntr-roombooking/internal/common/clock"
	"github.com/uma-arai/sbcntr-roombooking/internal/common/config"
	"github.com/uma-arai/sbcntr-roombooking/internal/common/database"
	"github.com/uma-arai/sbcntr-roombooking/internal/lock"
	"github.com/uma-arai/sbcntr-roombooking/internal/repository"
	"github.com/uma-arai/sbcntr-roombooking/internal/service/batch"
	"github.com/uma-arai/sbcntr-roombooking/internal/service/booking"
)

// App はコマンドが共有する依存関係をまとめたものです
type App struct {
	DB        *repository.DB
	Store     repository.BookingStore
	Gateway   actuation.Gateway
	Lifecycle *booking.Service
	Scheduler *batch.ReconciliationService

	closers []func() error
}

// New は設定から依存関係を組み立てます
func New(ctx context.Context, cfg *config.Config, segmentName string) (*App, error) {
	a := &App{}

	db, err := database.NewDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	// database.DBをrepository.DBに変換
	a.DB = &repository.DB{DB: db.DB}
	a.closers = append(a.closers, a.DB.Close)
	a.Store = repository.NewPostgresStore(a.DB)

	gateway, err := newGateway(cfg.Actuation)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Gateway = gateway

	clk := clock.Real{}
	a.Lifecycle = booking.NewService(a.Store, clk, actuation.NewDispatcher(gateway),
		booking.WithGracePeriod(cfg.Booking.GracePeriodMinutes),
	)

	opts := []batch.Option{
		batch.WithInterval(cfg.Scheduler.Interval),
		batch.WithTickTimeout(cfg.Scheduler.TickTimeout),
	}
	if cfg.EnableTracing {
		opts = append(opts, batch.WithTracing(segmentName))
	}
	if cfg.Redis.Addr != "" {
		client, err := lock.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		opts = append(opts, batch.WithLocker(lock.NewRedisLocker(client, cfg.Scheduler.LockKey, cfg.Scheduler.LockTTL)))
	}
	a.Scheduler = batch.NewReconciliationService(a.Store, a.Lifecycle, clk, opts...)

	return a, nil
}

func newGateway(cfg config.ActuationConfig) (actuation.Gateway, error) {
	switch cfg.Transport {
	case config.TransportAMQP:
		g, err := actuation.NewAMQPGateway(cfg.AMQPURL, cfg.Exchange, cfg.PublishTimeout,
			actuation.WithReconnectBackoff(cfg.ReconnectBackoff))
		if err != nil {
			return nil, fmt.Errorf("failed to connect actuation gateway: %w", err)
		}
		return g, nil
	default:
		log.Printf("Actuation transport is %q, commands are only logged", cfg.Transport)
		return actuation.LogGateway{}, nil
	}
}

// Close は開いた接続を逆順に閉じます
func (a *App) Close() error {
	if g, ok := a.Gateway.(*actuation.AMQPGateway); ok {
		if err := g.Close(); err != nil {
			log.Printf("Failed to close actuation gateway: %v", err)
		}
	}

	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
