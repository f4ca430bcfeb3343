package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/uma-arai/sbcntr-roombooking/internal/common/tracing"
)

// UserRepository はユーザーの存在確認を担当します
type UserRepository interface {
	UserExists(ctx context.Context, id int64) (bool, error)
}

type userRepository struct {
	q sqlx.ExtContext
}

// UserExists は指定されたユーザーが存在するかチェックします
func (r *userRepository) UserExists(ctx context.Context, id int64) (bool, error) {
	ctx, span := tracing.Begin(ctx, "UserRepository.UserExists")
	defer span.End(nil)

	query := `
		SELECT EXISTS (
			SELECT 1
			FROM users
			WHERE id = $1
		)`

	var exists bool
	if err := r.q.QueryRowxContext(ctx, query, id).Scan(&exists); err != nil {
		span.End(err)
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}
