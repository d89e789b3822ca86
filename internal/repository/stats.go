package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rpg-chat-bot/internal/model"
)

// StatsRepository handles player ledger rows.
type StatsRepository struct {
	pool *pgxpool.Pool
}

// NewStatsRepository creates a new StatsRepository instance.
func NewStatsRepository(pool *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{pool: pool}
}

const statsColumns = `user_id, level, xp, hp, mp, coins, bank, bank_interest, class,
	strength, defense, agility, magic, battles_won, battles_lost,
	quests_completed, items_collected, last_active`

func scanStats(row pgx.Row) (*model.PlayerStats, error) {
	var s model.PlayerStats
	err := row.Scan(
		&s.UserID,
		&s.Level,
		&s.XP,
		&s.HP,
		&s.MP,
		&s.Coins,
		&s.Bank,
		&s.BankInterest,
		&s.Class,
		&s.Strength,
		&s.Defense,
		&s.Agility,
		&s.Magic,
		&s.BattlesWon,
		&s.BattlesLost,
		&s.QuestsCompleted,
		&s.ItemsCollected,
		&s.LastActiveAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Get retrieves the ledger row of a user.
// Returns ErrStatsNotFound if the row does not exist.
func (r *StatsRepository) Get(ctx context.Context, userID string) (*model.PlayerStats, error) {
	return r.get(ctx, `SELECT `+statsColumns+` FROM player_stats WHERE user_id = $1`, userID)
}

// GetForUpdate retrieves the ledger row and locks it until the surrounding
// transaction ends.
func (r *StatsRepository) GetForUpdate(ctx context.Context, userID string) (*model.PlayerStats, error) {
	return r.get(ctx, `SELECT `+statsColumns+` FROM player_stats WHERE user_id = $1 FOR UPDATE`, userID)
}

func (r *StatsRepository) get(ctx context.Context, query, userID string) (*model.PlayerStats, error) {
	s, err := scanStats(conn(ctx, r.pool).QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStatsNotFound
		}
		return nil, fmt.Errorf("failed to get player stats: %w", err)
	}
	return s, nil
}

// Create inserts a ledger row unless one already exists.
func (r *StatsRepository) Create(ctx context.Context, s *model.PlayerStats) error {
	query := `INSERT INTO player_stats (` + statsColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (user_id) DO NOTHING`

	if _, err := conn(ctx, r.pool).Exec(ctx, query, statsArgs(s)...); err != nil {
		return fmt.Errorf("failed to create player stats: %w", err)
	}
	return nil
}

// Save writes every field of the row, inserting it when missing.
func (r *StatsRepository) Save(ctx context.Context, s *model.PlayerStats) error {
	query := `INSERT INTO player_stats (` + statsColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (user_id) DO UPDATE SET
			level = EXCLUDED.level,
			xp = EXCLUDED.xp,
			hp = EXCLUDED.hp,
			mp = EXCLUDED.mp,
			coins = EXCLUDED.coins,
			bank = EXCLUDED.bank,
			bank_interest = EXCLUDED.bank_interest,
			class = EXCLUDED.class,
			strength = EXCLUDED.strength,
			defense = EXCLUDED.defense,
			agility = EXCLUDED.agility,
			magic = EXCLUDED.magic,
			battles_won = EXCLUDED.battles_won,
			battles_lost = EXCLUDED.battles_lost,
			quests_completed = EXCLUDED.quests_completed,
			items_collected = EXCLUDED.items_collected,
			last_active = EXCLUDED.last_active`

	if _, err := conn(ctx, r.pool).Exec(ctx, query, statsArgs(s)...); err != nil {
		return fmt.Errorf("failed to save player stats: %w", err)
	}
	return nil
}

// TotalCoins returns the sum of liquid and banked coins over all rows.
func (r *StatsRepository) TotalCoins(ctx context.Context) (int64, error) {
	const query = `SELECT COALESCE(SUM(coins + bank), 0) FROM player_stats`

	var total int64
	if err := conn(ctx, r.pool).QueryRow(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum coins: %w", err)
	}
	return total, nil
}

func statsArgs(s *model.PlayerStats) []any {
	return []any{
		s.UserID, s.Level, s.XP, s.HP, s.MP, s.Coins, s.Bank, s.BankInterest, s.Class,
		s.Strength, s.Defense, s.Agility, s.Magic, s.BattlesWon, s.BattlesLost,
		s.QuestsCompleted, s.ItemsCollected, s.LastActiveAt,
	}
}

// Top returns the richest users by liquid plus banked coins. Ties are
// ordered by identity.
func (r *StatsRepository) Top(ctx context.Context, limit int) ([]*model.RankEntry, error) {
	const query = `
		SELECT s.user_id, u.name, s.coins + s.bank AS total
		FROM player_stats s
		JOIN users u ON u.id = s.user_id
		ORDER BY total DESC, s.user_id
		LIMIT $1
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	defer rows.Close()

	var entries []*model.RankEntry
	for rows.Next() {
		var e model.RankEntry
		if err := rows.Scan(&e.UserID, &e.Name, &e.Total); err != nil {
			return nil, fmt.Errorf("failed to scan rank entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rank entries: %w", err)
	}

	return entries, nil
}
