package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/uma-arai/sbcntr-roombooking/internal/common/tracing"
)

// PostgreSQL のエラーコード
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqExclusionViolation   = "23P01"
)

type DB struct {
	*sqlx.DB
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// BeginTx starts a new transaction with X-Ray tracing
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	ctx, span := tracing.Begin(ctx, "DB.BeginTx")
	defer span.End(nil)

	tx, err := db.DB.BeginTxx(ctx, opts)
	if err != nil {
		span.End(err)
		return nil, err
	}
	return tx, nil
}

// isRetryable はトランザクションを再実行すれば成功しうるエラーかを判定します
func isRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected
}

// isExclusionViolation は重複予約を禁止する排他制約に違反したかを判定します
func isExclusionViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqExclusionViolation
}
