package repository

import (
	"context"
	"fmt"
	"log"
)

// schema は予約コアが必要とするテーブル定義です
// bookings_no_overlap は同じ部屋の有効な予約 (RESERVED / CHECKED_IN) が
// [start_at, end_at) で重ならないことをデータベース側でも保証します
const schema = `
CREATE EXTENSION IF NOT EXISTS btree_gist;

CREATE TABLE IF NOT EXISTS users (
	id   BIGSERIAL PRIMARY KEY,
	name VARCHAR(100) NOT NULL
);

CREATE TABLE IF NOT EXISTS rooms (
	id                BIGSERIAL PRIMARY KEY,
	room_number       INTEGER NOT NULL,
	name              VARCHAR(100) NOT NULL,
	capacity          INTEGER NOT NULL CHECK (capacity >= 0),
	status            VARCHAR(20) NOT NULL DEFAULT 'FREE',
	confirmation_code VARCHAR(50) NOT NULL DEFAULT '',
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS bookings (
	id                BIGSERIAL PRIMARY KEY,
	user_id           BIGINT NOT NULL REFERENCES users (id),
	room_id           BIGINT REFERENCES rooms (id) ON DELETE SET NULL,
	start_at          TIMESTAMPTZ NOT NULL,
	end_at            TIMESTAMPTZ NOT NULL,
	grace_period_min  INTEGER NOT NULL CHECK (grace_period_min >= 0),
	status            VARCHAR(20) NOT NULL,
	confirmation_code VARCHAR(10) NOT NULL,
	description       VARCHAR(255) NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	CHECK (start_at < end_at),
	CONSTRAINT bookings_no_overlap EXCLUDE USING gist (
		room_id WITH =,
		tstzrange(start_at, end_at, '[)') WITH &&
	) WHERE (status IN ('RESERVED', 'CHECKED_IN'))
);

CREATE INDEX IF NOT EXISTS bookings_status_start_idx ON bookings (status, start_at);
CREATE INDEX IF NOT EXISTS bookings_user_idx ON bookings (user_id);
`

// Migrate はテーブルが存在しない場合に作成します
func Migrate(ctx context.Context, db *DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	log.Println("Schema migrated successfully")
	return nil
}
