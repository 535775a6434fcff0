package repository

import (
	"context"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"edulink/internal/domain/entity"
	"edulink/internal/domain/repository"
	"edulink/pkg/errors"
)

type firestoreUserRepository struct {
	client *firestore.Client
}

func NewFirestoreUserRepository(client *firestore.Client) repository.UserRepository {
	return &firestoreUserRepository{
		client: client,
	}
}

func (r *firestoreUserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	doc, err := r.client.Collection("users").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("User", nil)
		}
		return nil, errors.Internal("Failed to get user", err)
	}

	var user entity.User
	if err := doc.DataTo(&user); err != nil {
		return nil, errors.Internal("Failed to parse user data", err)
	}

	return &user, nil
}

// Search matches users by username prefix, excluding the caller. Firestore
// has no substring search, so a prefix range query stands in for it.
func (r *firestoreUserRepository) Search(ctx context.Context, query, excludeUserID string, limit int) ([]*entity.User, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}

	iter := r.client.Collection("users").
		Where("username", ">=", q).
		Where("username", "<", q+"\uf8ff").
		Limit(limit + 1).
		Documents(ctx)

	var users []*entity.User
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to search users", err)
		}

		var user entity.User
		if err := doc.DataTo(&user); err != nil {
			return nil, errors.Internal("Failed to parse user data", err)
		}

		if user.ID == excludeUserID {
			continue
		}

		users = append(users, &user)
		if len(users) >= limit {
			break
		}
	}

	return users, nil
}

func (r *firestoreUserRepository) FindByRole(ctx context.Context, role string, limit int) ([]*entity.User, error) {
	query := r.client.Collection("users").Where("role", "==", role)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	var users []*entity.User

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to query users by role", err)
		}

		var user entity.User
		if err := doc.DataTo(&user); err != nil {
			return nil, errors.Internal("Failed to parse user data", err)
		}
		users = append(users, &user)
	}

	return users, nil
}
