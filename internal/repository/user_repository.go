package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"datasethub/internal/domain"
)

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
        INSERT INTO users (username, email, credential_hash, full_name, bio)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FullName,
		user.Bio,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return mapError(err, "user "+user.Username)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("user %d", id))
	}
	return &user, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE username = $1`, username)
	if err != nil {
		return nil, mapError(err, "user "+username)
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email = $1`, email)
	if err != nil {
		return nil, mapError(err, "user with email "+email)
	}
	return &user, nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id int64, patch domain.ProfilePatch) (*domain.User, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var user domain.User
	err = tx.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("user %d", id))
	}

	patch.Apply(&user)

	query := `
        UPDATE users
        SET full_name = $1,
            bio = $2,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $3
        RETURNING updated_at`

	if err := tx.QueryRowContext(ctx, query, user.FullName, user.Bio, id).Scan(&user.UpdatedAt); err != nil {
		return nil, fmt.Errorf("error updating user profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &user, nil
}
