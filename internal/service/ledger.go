package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"rpg-chat-bot/internal/model"
	"rpg-chat-bot/internal/pkg/lock"
	"rpg-chat-bot/internal/repository"
)

// XPPerLevel is the xp needed per level: clearing level n costs n*XPPerLevel.
const XPPerLevel = 100

// Ledger errors.
var (
	ErrInvalidAmount       = errors.New("invalid amount: must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrBalanceOverflow     = errors.New("balance overflow")
)

// Ledger operation names, used for journal descriptions and metrics.
const (
	OpGetOrCreate = "get_or_create"
	OpAddCoins    = "add_coins"
	OpSetCoins    = "set_coins"
	OpDeduct      = "deduct"
	OpTransfer    = "transfer"
	OpDeposit     = "deposit"
	OpWithdraw    = "withdraw"
	OpAddXP       = "add_xp"
	OpSetHP       = "set_hp"
	OpSetMP       = "set_mp"
)

// Ledger owns every read-modify-write of player rows. Each mutation runs
// under the identity's process lock and inside one store transaction.
type Ledger struct {
	users   UserStore
	stats   StatsStore
	entries EntryStore
	tx      Transactor
	locks   *lock.UserLock
	obs     LedgerObserver
	now     func() time.Time
}

// NewLedger creates a new Ledger instance.
func NewLedger(stores Stores, locks *lock.UserLock) *Ledger {
	if locks == nil {
		locks = lock.NewUserLock()
	}
	return &Ledger{
		users:   stores.Users,
		stats:   stores.Stats,
		entries: stores.Entries,
		tx:      stores.Tx,
		locks:   locks,
		obs:     nopObserver{},
		now:     time.Now,
	}
}

// WithObserver reports operation outcomes to obs.
func (l *Ledger) WithObserver(obs LedgerObserver) *Ledger {
	if obs != nil {
		l.obs = obs
	}
	return l
}

// load returns the row of id, creating the user and ledger rows when
// missing. Must run inside a transaction.
func (l *Ledger) load(ctx context.Context, id string) (*model.PlayerStats, error) {
	row, err := l.stats.GetForUpdate(ctx, id)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, repository.ErrStatsNotFound) {
		return nil, err
	}

	if err := l.users.Ensure(ctx, id, ""); err != nil {
		return nil, err
	}
	if err := l.stats.Create(ctx, model.NewPlayerStats(id)); err != nil {
		return nil, err
	}
	return l.stats.GetForUpdate(ctx, id)
}

func (l *Ledger) journal(ctx context.Context, id string, amount int64, txType, desc string) error {
	if amount == 0 {
		return nil
	}
	if _, err := l.entries.Create(ctx, id, amount, txType, &desc); err != nil {
		return err
	}
	return nil
}

// update runs fn on the locked row of id and saves the result.
func (l *Ledger) update(ctx context.Context, op, id string, fn func(ctx context.Context, row *model.PlayerStats) error) (*model.PlayerStats, error) {
	var out *model.PlayerStats
	err := l.locks.WithLock(ctx, id, func() error {
		return l.tx.WithinTx(ctx, func(ctx context.Context) error {
			row, err := l.load(ctx, id)
			if err != nil {
				return err
			}
			if err := fn(ctx, row); err != nil {
				return err
			}
			row.LastActiveAt = l.now()
			if err := l.stats.Save(ctx, row); err != nil {
				return err
			}
			out = row
			return nil
		})
	})
	l.obs.LedgerOperation(op, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetOrCreate returns the row of id, creating it with the defaults when
// missing.
func (l *Ledger) GetOrCreate(ctx context.Context, id string) (*model.PlayerStats, error) {
	row, err := l.stats.Get(ctx, id)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, repository.ErrStatsNotFound) {
		return nil, fmt.Errorf("failed to get player stats: %w", err)
	}

	var out *model.PlayerStats
	err = l.locks.WithLock(ctx, id, func() error {
		return l.tx.WithinTx(ctx, func(ctx context.Context) error {
			row, err := l.load(ctx, id)
			out = row
			return err
		})
	})
	l.obs.LedgerOperation(OpGetOrCreate, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create player stats: %w", err)
	}
	return out, nil
}

// Get returns the row of id without creating it. A missing row reads as the
// defaults.
func (l *Ledger) Get(ctx context.Context, id string) (*model.PlayerStats, error) {
	row, err := l.stats.Get(ctx, id)
	if errors.Is(err, repository.ErrStatsNotFound) {
		return model.NewPlayerStats(id), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player stats: %w", err)
	}
	return row, nil
}

// Balance returns the liquid coins of id.
func (l *Ledger) Balance(ctx context.Context, id string) (int64, error) {
	row, err := l.GetOrCreate(ctx, id)
	if err != nil {
		return 0, err
	}
	return row.Coins, nil
}

// HasEnough reports whether id holds at least amount liquid coins.
func (l *Ledger) HasEnough(ctx context.Context, id string, amount int64) (bool, error) {
	coins, err := l.Balance(ctx, id)
	if err != nil {
		return false, err
	}
	return coins >= amount, nil
}

// AddCoins adds delta to the liquid coins, clamping the result at zero.
func (l *Ledger) AddCoins(ctx context.Context, id string, delta int64) (*model.PlayerStats, error) {
	return l.update(ctx, OpAddCoins, id, func(ctx context.Context, row *model.PlayerStats) error {
		next := clampNonNegative(saturatingAdd(row.Coins, delta))
		applied := next - row.Coins
		row.Coins = next
		return l.journal(ctx, id, applied, model.TxTypeAdjust, OpAddCoins)
	})
}

// SetCoins sets the liquid coins, clamping at zero.
func (l *Ledger) SetCoins(ctx context.Context, id string, amount int64) (*model.PlayerStats, error) {
	return l.update(ctx, OpSetCoins, id, func(ctx context.Context, row *model.PlayerStats) error {
		next := clampNonNegative(amount)
		applied := next - row.Coins
		row.Coins = next
		return l.journal(ctx, id, applied, model.TxTypeSet, OpSetCoins)
	})
}

// Deduct removes amount from the liquid coins, failing instead of clamping.
func (l *Ledger) Deduct(ctx context.Context, id string, amount int64) (*model.PlayerStats, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return l.update(ctx, OpDeduct, id, func(ctx context.Context, row *model.PlayerStats) error {
		if row.Coins < amount {
			return ErrInsufficientBalance
		}
		row.Coins -= amount
		return l.journal(ctx, id, -amount, model.TxTypeDeduct, OpDeduct)
	})
}

// Transfer moves amount liquid coins from one identity to another. Both rows
// change in one transaction, so the total is conserved. A transfer that
// would overflow the receiver fails with ErrBalanceOverflow and changes
// nothing. A transfer to self is validated and then leaves the row untouched.
func (l *Ledger) Transfer(ctx context.Context, from, to string, amount int64) (*model.PlayerStats, *model.PlayerStats, error) {
	if amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	var fromRow, toRow *model.PlayerStats
	err := l.locks.WithLocks(ctx, []string{from, to}, func() error {
		return l.tx.WithinTx(ctx, func(ctx context.Context) error {
			rows := make(map[string]*model.PlayerStats, 2)
			// Row locks are taken in the same order as the process locks.
			for _, id := range lock.SortedUnique([]string{from, to}) {
				row, err := l.load(ctx, id)
				if err != nil {
					return err
				}
				rows[id] = row
			}
			fromRow, toRow = rows[from], rows[to]

			if fromRow.Coins < amount {
				return ErrInsufficientBalance
			}
			if from == to {
				return nil
			}
			if !fits(toRow.Coins, amount) {
				return ErrBalanceOverflow
			}

			now := l.now()
			fromRow.Coins -= amount
			toRow.Coins += amount
			fromRow.LastActiveAt = now
			toRow.LastActiveAt = now

			if err := l.stats.Save(ctx, fromRow); err != nil {
				return err
			}
			if err := l.stats.Save(ctx, toRow); err != nil {
				return err
			}
			if err := l.journal(ctx, from, -amount, model.TxTypeTransferOut, "transfer to "+to); err != nil {
				return err
			}
			return l.journal(ctx, to, amount, model.TxTypeTransferIn, "transfer from "+from)
		})
	})
	l.obs.LedgerOperation(OpTransfer, err)
	if err != nil {
		return nil, nil, err
	}
	return fromRow, toRow, nil
}

// Deposit moves amount from liquid coins to the bank.
func (l *Ledger) Deposit(ctx context.Context, id string, amount int64) (*model.PlayerStats, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return l.update(ctx, OpDeposit, id, func(ctx context.Context, row *model.PlayerStats) error {
		if row.Coins < amount {
			return ErrInsufficientFunds
		}
		if !fits(row.Bank, amount) {
			return ErrBalanceOverflow
		}
		row.Coins -= amount
		row.Bank += amount
		return l.journal(ctx, id, amount, model.TxTypeDeposit, OpDeposit)
	})
}

// Withdraw moves amount from the bank to liquid coins.
func (l *Ledger) Withdraw(ctx context.Context, id string, amount int64) (*model.PlayerStats, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return l.update(ctx, OpWithdraw, id, func(ctx context.Context, row *model.PlayerStats) error {
		if row.Bank < amount {
			return ErrInsufficientFunds
		}
		if !fits(row.Coins, amount) {
			return ErrBalanceOverflow
		}
		row.Bank -= amount
		row.Coins += amount
		return l.journal(ctx, id, amount, model.TxTypeWithdraw, OpWithdraw)
	})
}

// AddXP accumulates xp and applies level-ups. It returns the updated row and
// the number of levels gained. Non-positive amounts change nothing.
func (l *Ledger) AddXP(ctx context.Context, id string, amount int64) (*model.PlayerStats, int, error) {
	if amount <= 0 {
		row, err := l.GetOrCreate(ctx, id)
		return row, 0, err
	}

	gained := 0
	row, err := l.update(ctx, OpAddXP, id, func(_ context.Context, row *model.PlayerStats) error {
		level, xp := ApplyXP(row.Level, row.XP, amount)
		gained = level - row.Level
		row.Level, row.XP = level, xp
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return row, gained, nil
}

// ApplyXP adds amount to xp and levels up while the current level's
// threshold (level*XPPerLevel) is met. The number of levels cleared is
// solved in closed form, so huge amounts cost the same as small ones.
// Non-positive amounts return the input unchanged.
func ApplyXP(level int, xp, amount int64) (int, int64) {
	if level < 1 {
		level = 1
	}
	if amount <= 0 {
		return level, xp
	}

	xp = saturatingAdd(xp, amount)
	n := levelsAffordable(int64(level), xp)
	return level + int(n), xp - levelCost(int64(level), n).Int64()
}

// levelsAffordable returns the largest n with levelCost(level, n) <= xp.
func levelsAffordable(level, xp int64) int64 {
	// n*n + (2*level-1)*n - 2*xp/XPPerLevel <= 0
	b := float64(2*level - 1)
	n := int64((math.Sqrt(b*b+8*float64(xp)/XPPerLevel) - b) / 2)
	n = max(n, 0)

	budget := big.NewInt(xp)
	for n > 0 && levelCost(level, n).Cmp(budget) > 0 {
		n--
	}
	for levelCost(level, n+1).Cmp(budget) <= 0 {
		n++
	}
	return n
}

// levelCost is the xp needed to clear n levels starting at level:
// XPPerLevel * (n*level + n*(n-1)/2).
func levelCost(level, n int64) *big.Int {
	cost := new(big.Int).Mul(big.NewInt(n), big.NewInt(level))
	tri := new(big.Int).Mul(big.NewInt(n), big.NewInt(n-1))
	cost.Add(cost, tri.Rsh(tri, 1))
	return cost.Mul(cost, big.NewInt(XPPerLevel))
}

// XPToNextLevel returns the xp threshold of level.
func XPToNextLevel(level int) int64 {
	return int64(level) * XPPerLevel
}

// SetHP sets hit points, clamping at zero.
func (l *Ledger) SetHP(ctx context.Context, id string, hp int) (*model.PlayerStats, error) {
	return l.update(ctx, OpSetHP, id, func(_ context.Context, row *model.PlayerStats) error {
		row.HP = max(0, hp)
		return nil
	})
}

// SetMP sets mana points, clamping at zero.
func (l *Ledger) SetMP(ctx context.Context, id string, mp int) (*model.PlayerStats, error) {
	return l.update(ctx, OpSetMP, id, func(_ context.Context, row *model.PlayerStats) error {
		row.MP = max(0, mp)
		return nil
	})
}

// History returns the latest journal entries of id, newest first.
func (l *Ledger) History(ctx context.Context, id string, limit int) ([]*model.Transaction, error) {
	entries, err := l.entries.GetByUserID(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return entries, nil
}

func clampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// fits reports whether balance+amount stays representable.
func fits(balance, amount int64) bool {
	return balance <= math.MaxInt64-amount
}

func saturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}
