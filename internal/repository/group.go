package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rpg-chat-bot/internal/model"
)

// GroupRepository handles per-conversation configuration.
type GroupRepository struct {
	pool *pgxpool.Pool
}

// NewGroupRepository creates a new GroupRepository instance.
func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

// Get returns the configuration of a group, or the defaults when the group
// has never been configured.
func (r *GroupRepository) Get(ctx context.Context, groupID string) (*model.GroupConfig, error) {
	const query = `SELECT group_id, prefix, autosticker FROM group_config WHERE group_id = $1`

	var cfg model.GroupConfig
	err := conn(ctx, r.pool).QueryRow(ctx, query, groupID).Scan(&cfg.GroupID, &cfg.Prefix, &cfg.Autosticker)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DefaultGroupConfig(groupID), nil
		}
		return nil, fmt.Errorf("failed to get group config: %w", err)
	}
	return &cfg, nil
}

// Upsert writes the non-nil fields of update and returns the stored row.
func (r *GroupRepository) Upsert(ctx context.Context, groupID string, update model.GroupConfigUpdate) (*model.GroupConfig, error) {
	const query = `
		INSERT INTO group_config (group_id, prefix, autosticker)
		VALUES ($1, COALESCE($2, ''), COALESCE($3, FALSE))
		ON CONFLICT (group_id) DO UPDATE SET
			prefix = COALESCE($2, group_config.prefix),
			autosticker = COALESCE($3, group_config.autosticker)
		RETURNING group_id, prefix, autosticker
	`

	var cfg model.GroupConfig
	err := conn(ctx, r.pool).QueryRow(ctx, query, groupID, update.Prefix, update.Autosticker).
		Scan(&cfg.GroupID, &cfg.Prefix, &cfg.Autosticker)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert group config: %w", err)
	}
	return &cfg, nil
}
