package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/uma-arai/sbcntr-roombooking/internal/common/tracing"
)

// TxOptions は作業単位の分離レベルを指定します
type TxOptions struct {
	// Serializable は重複チェックと書き込みを直列化可能な分離レベルで実行します
	Serializable bool
	ReadOnly     bool
}

func (o TxOptions) sqlOptions() *sql.TxOptions {
	opts := &sql.TxOptions{ReadOnly: o.ReadOnly}
	if o.Serializable {
		opts.Isolation = sql.LevelSerializable
	}
	return opts
}

// Tx は1つの作業単位の中で利用できるリポジトリの集合です
type Tx interface {
	BookingRepository
	RoomRepository
	UserRepository
}

// BookingStore は予約の永続化と作業単位の境界を提供します
// fn の中の読み書きはすべてコミットされるか、すべて破棄されます
type BookingStore interface {
	WithinTx(ctx context.Context, opts TxOptions, fn func(ctx context.Context, tx Tx) error) error
}

const defaultMaxAttempts = 3

// PostgresStore は PostgreSQL 上の BookingStore です
type PostgresStore struct {
	db          *DB
	maxAttempts int
}

// NewPostgresStore は新しい PostgresStore を作成します
func NewPostgresStore(db *DB) *PostgresStore {
	return &PostgresStore{db: db, maxAttempts: defaultMaxAttempts}
}

// WithinTx は fn をトランザクション内で実行します
// 直列化失敗やデッドロックの場合は最大 maxAttempts 回まで再実行します
func (s *PostgresStore) WithinTx(ctx context.Context, opts TxOptions, fn func(ctx context.Context, tx Tx) error) error {
	ctx, span := tracing.Begin(ctx, "PostgresStore.WithinTx")
	defer span.End(nil)
	span.AddMetadata("serializable", opts.Serializable)

	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.runOnce(ctx, opts, fn)
		if err == nil || !isRetryable(err) {
			break
		}
		log.Printf("Retrying transaction after serialization conflict (attempt %d/%d): %v",
			attempt, s.maxAttempts, err)
	}
	if err != nil {
		span.End(err)
	}
	return err
}

func (s *PostgresStore) runOnce(ctx context.Context, opts TxOptions, fn func(ctx context.Context, tx Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, opts.sqlOptions())
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// エラーが発生した場合のみロールバックを実行
	defer func() {
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil {
				log.Printf("Failed to rollback transaction: %v, original error: %v", rbErr, err)
			}
		}
	}()

	tx := &pgTx{
		bookingRepository: &bookingRepository{q: sqlTx},
		roomRepository:    &roomRepository{q: sqlTx},
		userRepository:    &userRepository{q: sqlTx},
	}
	if err = fn(ctx, tx); err != nil {
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	*bookingRepository
	*roomRepository
	*userRepository
}
