package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Execer runs a statement. Both *pgxpool.Pool and pgx.Tx implement it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "users table",
		sql: `
			CREATE TABLE IF NOT EXISTS users (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL DEFAULT '',
				is_admin BOOLEAN NOT NULL DEFAULT FALSE,
				is_owner BOOLEAN NOT NULL DEFAULT FALSE,
				last_active TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_users_name ON users(LOWER(name));
		`,
	},
	{
		name: "player_stats table",
		sql: `
			CREATE TABLE IF NOT EXISTS player_stats (
				user_id VARCHAR(255) PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
				level INT NOT NULL DEFAULT 1,
				xp BIGINT NOT NULL DEFAULT 0,
				hp INT NOT NULL DEFAULT 100,
				mp INT NOT NULL DEFAULT 50,
				coins BIGINT NOT NULL DEFAULT 0 CHECK (coins >= 0),
				bank BIGINT NOT NULL DEFAULT 0 CHECK (bank >= 0),
				bank_interest INT NOT NULL DEFAULT 15,
				class VARCHAR(50) NOT NULL DEFAULT 'warrior',
				strength INT NOT NULL DEFAULT 10,
				defense INT NOT NULL DEFAULT 10,
				agility INT NOT NULL DEFAULT 10,
				magic INT NOT NULL DEFAULT 10,
				battles_won INT NOT NULL DEFAULT 0,
				battles_lost INT NOT NULL DEFAULT 0,
				quests_completed INT NOT NULL DEFAULT 0,
				items_collected INT NOT NULL DEFAULT 0,
				last_active TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_player_stats_coins ON player_stats(coins DESC);
		`,
	},
	{
		name: "group_config table",
		sql: `
			CREATE TABLE IF NOT EXISTS group_config (
				group_id VARCHAR(255) PRIMARY KEY,
				prefix VARCHAR(16) NOT NULL DEFAULT '',
				autosticker BOOLEAN NOT NULL DEFAULT FALSE
			);
			ALTER TABLE group_config ADD COLUMN IF NOT EXISTS autosticker BOOLEAN NOT NULL DEFAULT FALSE;
		`,
	},
	{
		name: "ledger_entries table",
		sql: `
			CREATE TABLE IF NOT EXISTS ledger_entries (
				id BIGSERIAL PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				amount BIGINT NOT NULL,
				type VARCHAR(50) NOT NULL,
				description TEXT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_ledger_entries_user_time ON ledger_entries(user_id, created_at DESC);
		`,
	},
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db Execer) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", i+1, m.name, err)
		}
		log.Info().Int("migration", i+1).Msgf("Migration %d: %s created", i+1, m.name)
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
