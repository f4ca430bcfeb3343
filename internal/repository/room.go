package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/uma-arai/sbcntr-roombooking/internal/common/tracing"
	"github.com/uma-arai/sbcntr-roombooking/internal/model"
)

// RoomRepository は部屋の参照とステータスキャッシュの更新を担当します
type RoomRepository interface {
	FindRoom(ctx context.Context, id int64) (*model.Room, error)
	LockRoom(ctx context.Context, id int64) (*model.Room, error)
	UpdateRoomStatus(ctx context.Context, roomID int64, status model.RoomStatus) error
}

const roomColumns = `
	id,
	room_number,
	name,
	capacity,
	status,
	confirmation_code,
	updated_at`

type roomRepository struct {
	q sqlx.ExtContext
}

// FindRoom は部屋を1件取得します
func (r *roomRepository) FindRoom(ctx context.Context, id int64) (*model.Room, error) {
	query := `SELECT` + roomColumns + `
		FROM rooms
		WHERE id = $1`

	return r.getRoom(ctx, "RoomRepository.FindRoom", query, id)
}

// LockRoom は部屋の行をロックして取得します
// 同じ部屋に対する予約の作成・更新・ステータス再計算はこのロックで直列化されます
func (r *roomRepository) LockRoom(ctx context.Context, id int64) (*model.Room, error) {
	query := `SELECT` + roomColumns + `
		FROM rooms
		WHERE id = $1
		FOR UPDATE`

	return r.getRoom(ctx, "RoomRepository.LockRoom", query, id)
}

// UpdateRoomStatus は部屋のステータスキャッシュを更新します
func (r *roomRepository) UpdateRoomStatus(ctx context.Context, roomID int64, status model.RoomStatus) error {
	ctx, span := tracing.Begin(ctx, "RoomRepository.UpdateRoomStatus")
	defer span.End(nil)

	query := `
		UPDATE rooms
		SET status = $1,
			updated_at = $2
		WHERE id = $3`

	result, err := r.q.ExecContext(ctx, query, status, time.Now().UTC(), roomID)
	if err != nil {
		span.End(err)
		return fmt.Errorf("failed to update room status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.End(err)
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		span.End(model.ErrRoomNotFound)
		return model.ErrRoomNotFound
	}
	return nil
}

func (r *roomRepository) getRoom(ctx context.Context, name, query string, id int64) (*model.Room, error) {
	ctx, span := tracing.Begin(ctx, name)
	defer span.End(nil)

	var room model.Room
	if err := sqlx.GetContext(ctx, r.q, &room, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrRoomNotFound
		}
		span.End(err)
		return nil, fmt.Errorf("failed to get room %d: %w", id, err)
	}
	return &room, nil
}
