package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rpg-chat-bot/internal/model"
)

// UserRepository handles user data persistence.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, name, is_admin, is_owner, last_active, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.IsAdmin,
		&user.IsOwner,
		&user.LastActiveAt,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Ensure inserts a user row if none exists. Existing rows are untouched.
func (r *UserRepository) Ensure(ctx context.Context, id, name string) error {
	const query = `
		INSERT INTO users (id, name, last_active, created_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := conn(ctx, r.pool).Exec(ctx, query, id, name); err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

// Touch upserts the user's display name and last activity. An empty name
// keeps the stored one. Role flags are never changed here.
func (r *UserRepository) Touch(ctx context.Context, id, name string, at time.Time) error {
	const query = `
		INSERT INTO users (id, name, last_active, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END,
			last_active = EXCLUDED.last_active
	`

	if _, err := conn(ctx, r.pool).Exec(ctx, query, id, name, at); err != nil {
		return fmt.Errorf("failed to touch user: %w", err)
	}
	return nil
}

// Get retrieves a user by canonical identity.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) Get(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// FindByName retrieves the most recently active user with the given display
// name, compared case-insensitively.
func (r *UserRepository) FindByName(ctx context.Context, name string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE LOWER(name) = LOWER($1)
		ORDER BY last_active DESC
		LIMIT 1`

	user, err := scanUser(conn(ctx, r.pool).QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// SetRoles upserts the user's admin and owner flags.
func (r *UserRepository) SetRoles(ctx context.Context, id string, isAdmin, isOwner bool) error {
	const query = `
		INSERT INTO users (id, is_admin, is_owner, last_active, created_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			is_admin = EXCLUDED.is_admin,
			is_owner = EXCLUDED.is_owner
	`

	if _, err := conn(ctx, r.pool).Exec(ctx, query, id, isAdmin, isOwner); err != nil {
		return fmt.Errorf("failed to set user roles: %w", err)
	}
	return nil
}

// List returns all users ordered by identity.
func (r *UserRepository) List(ctx context.Context) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id`

	rows, err := conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}
