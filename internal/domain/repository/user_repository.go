package repository

import (
	"context"

	"edulink/internal/domain/entity"
)

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
	Search(ctx context.Context, query, excludeUserID string, limit int) ([]*entity.User, error)
	FindByRole(ctx context.Context, role string, limit int) ([]*entity.User, error)
}
