// Package memstore is an in-memory implementation of the repositories. It
// backs the "memory" database driver and the service tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"rpg-chat-bot/internal/model"
	"rpg-chat-bot/internal/repository"
)

// Store holds all tables. A transaction holds the store lock for its whole
// duration, so transactions are serializable.
type Store struct {
	mu      sync.Mutex
	users   map[string]*model.User
	stats   map[string]*model.PlayerStats
	groups  map[string]*model.GroupConfig
	entries []*model.Transaction
	nextID  int64
	now     func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:  make(map[string]*model.User),
		stats:  make(map[string]*model.PlayerStats),
		groups: make(map[string]*model.GroupConfig),
		now:    time.Now,
	}
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

// lock acquires the store lock unless ctx already runs inside a transaction.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshot struct {
	users   map[string]model.User
	stats   map[string]model.PlayerStats
	groups  map[string]model.GroupConfig
	entries int
	nextID  int64
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		users:   make(map[string]model.User, len(s.users)),
		stats:   make(map[string]model.PlayerStats, len(s.stats)),
		groups:  make(map[string]model.GroupConfig, len(s.groups)),
		entries: len(s.entries),
		nextID:  s.nextID,
	}
	for k, v := range s.users {
		snap.users[k] = *v
	}
	for k, v := range s.stats {
		snap.stats[k] = *v
	}
	for k, v := range s.groups {
		snap.groups[k] = *v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.users = make(map[string]*model.User, len(snap.users))
	for k, v := range snap.users {
		u := v
		s.users[k] = &u
	}
	s.stats = make(map[string]*model.PlayerStats, len(snap.stats))
	for k, v := range snap.stats {
		st := v
		s.stats[k] = &st
	}
	s.groups = make(map[string]*model.GroupConfig, len(snap.groups))
	for k, v := range snap.groups {
		g := v
		s.groups[k] = &g
	}
	s.entries = s.entries[:snap.entries]
	s.nextID = snap.nextID
}

// WithinTx runs fn exclusively and rolls every table back when fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Users returns the user table.
func (s *Store) Users() *Users { return &Users{s: s} }

// Stats returns the ledger table.
func (s *Store) Stats() *Stats { return &Stats{s: s} }

// Groups returns the group configuration table.
func (s *Store) Groups() *Groups { return &Groups{s: s} }

// Entries returns the ledger journal.
func (s *Store) Entries() *Entries { return &Entries{s: s} }

// Users mirrors repository.UserRepository.
type Users struct{ s *Store }

// Ensure inserts a user row if none exists.
func (u *Users) Ensure(ctx context.Context, id, name string) error {
	defer u.s.lock(ctx)()
	if _, ok := u.s.users[id]; !ok {
		now := u.s.now()
		u.s.users[id] = &model.User{ID: id, Name: name, LastActiveAt: now, CreatedAt: now}
	}
	return nil
}

// Touch upserts name and last activity. An empty name keeps the stored one.
func (u *Users) Touch(ctx context.Context, id, name string, at time.Time) error {
	defer u.s.lock(ctx)()
	user, ok := u.s.users[id]
	if !ok {
		user = &model.User{ID: id, CreatedAt: u.s.now()}
		u.s.users[id] = user
	}
	if name != "" {
		user.Name = name
	}
	user.LastActiveAt = at
	return nil
}

// Get returns a copy of the user row.
func (u *Users) Get(ctx context.Context, id string) (*model.User, error) {
	defer u.s.lock(ctx)()
	user, ok := u.s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	c := *user
	return &c, nil
}

// FindByName returns the most recently active user with the name.
func (u *Users) FindByName(ctx context.Context, name string) (*model.User, error) {
	defer u.s.lock(ctx)()
	var found *model.User
	for _, user := range u.s.users {
		if !strings.EqualFold(user.Name, name) {
			continue
		}
		if found == nil || user.LastActiveAt.After(found.LastActiveAt) {
			found = user
		}
	}
	if found == nil {
		return nil, repository.ErrUserNotFound
	}
	c := *found
	return &c, nil
}

// SetRoles upserts the role flags.
func (u *Users) SetRoles(ctx context.Context, id string, isAdmin, isOwner bool) error {
	defer u.s.lock(ctx)()
	user, ok := u.s.users[id]
	if !ok {
		now := u.s.now()
		user = &model.User{ID: id, LastActiveAt: now, CreatedAt: now}
		u.s.users[id] = user
	}
	user.IsAdmin = isAdmin
	user.IsOwner = isOwner
	return nil
}

// List returns all users ordered by identity.
func (u *Users) List(ctx context.Context) ([]*model.User, error) {
	defer u.s.lock(ctx)()
	out := make([]*model.User, 0, len(u.s.users))
	for _, user := range u.s.users {
		c := *user
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Stats mirrors repository.StatsRepository.
type Stats struct{ s *Store }

// Get returns a copy of the ledger row.
func (st *Stats) Get(ctx context.Context, userID string) (*model.PlayerStats, error) {
	defer st.s.lock(ctx)()
	row, ok := st.s.stats[userID]
	if !ok {
		return nil, repository.ErrStatsNotFound
	}
	return row.Clone(), nil
}

// GetForUpdate is Get; transactions are already exclusive.
func (st *Stats) GetForUpdate(ctx context.Context, userID string) (*model.PlayerStats, error) {
	return st.Get(ctx, userID)
}

// Create inserts the row unless one exists.
func (st *Stats) Create(ctx context.Context, row *model.PlayerStats) error {
	defer st.s.lock(ctx)()
	if _, ok := st.s.users[row.UserID]; !ok {
		return fmt.Errorf("failed to create player stats: user %s does not exist", row.UserID)
	}
	if _, ok := st.s.stats[row.UserID]; !ok {
		st.s.stats[row.UserID] = row.Clone()
	}
	return nil
}

// Save upserts the row. Negative balances are rejected like the database
// check constraints do.
func (st *Stats) Save(ctx context.Context, row *model.PlayerStats) error {
	defer st.s.lock(ctx)()
	if row.Coins < 0 || row.Bank < 0 {
		return fmt.Errorf("failed to save player stats: negative balance for %s", row.UserID)
	}
	if _, ok := st.s.users[row.UserID]; !ok {
		return fmt.Errorf("failed to save player stats: user %s does not exist", row.UserID)
	}
	st.s.stats[row.UserID] = row.Clone()
	return nil
}

// TotalCoins sums liquid and banked coins over all rows.
func (st *Stats) TotalCoins(ctx context.Context) (int64, error) {
	defer st.s.lock(ctx)()
	var total int64
	for _, row := range st.s.stats {
		total += row.Total()
	}
	return total, nil
}

// Top returns the richest users by liquid plus banked coins.
func (st *Stats) Top(ctx context.Context, limit int) ([]*model.RankEntry, error) {
	defer st.s.lock(ctx)()
	out := make([]*model.RankEntry, 0, len(st.s.stats))
	for id, row := range st.s.stats {
		entry := &model.RankEntry{UserID: id, Total: row.Total()}
		if user, ok := st.s.users[id]; ok {
			entry.Name = user.Name
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Groups mirrors repository.GroupRepository.
type Groups struct{ s *Store }

// Get returns the group configuration or the defaults.
func (g *Groups) Get(ctx context.Context, groupID string) (*model.GroupConfig, error) {
	defer g.s.lock(ctx)()
	cfg, ok := g.s.groups[groupID]
	if !ok {
		return model.DefaultGroupConfig(groupID), nil
	}
	c := *cfg
	return &c, nil
}

// Upsert writes the non-nil fields.
func (g *Groups) Upsert(ctx context.Context, groupID string, update model.GroupConfigUpdate) (*model.GroupConfig, error) {
	defer g.s.lock(ctx)()
	cfg, ok := g.s.groups[groupID]
	if !ok {
		cfg = model.DefaultGroupConfig(groupID)
		g.s.groups[groupID] = cfg
	}
	if update.Prefix != nil {
		cfg.Prefix = *update.Prefix
	}
	if update.Autosticker != nil {
		cfg.Autosticker = *update.Autosticker
	}
	c := *cfg
	return &c, nil
}

// Entries mirrors repository.TransactionRepository.
type Entries struct{ s *Store }

// Create appends a journal entry.
func (e *Entries) Create(ctx context.Context, userID string, amount int64, txType string, description *string) (*model.Transaction, error) {
	defer e.s.lock(ctx)()
	e.s.nextID++
	tx := &model.Transaction{
		ID:          e.s.nextID,
		UserID:      userID,
		Amount:      amount,
		Type:        txType,
		Description: description,
		CreatedAt:   e.s.now(),
	}
	e.s.entries = append(e.s.entries, tx)
	c := *tx
	return &c, nil
}

// GetByUserID returns a user's entries, newest first.
func (e *Entries) GetByUserID(ctx context.Context, userID string, limit int) ([]*model.Transaction, error) {
	defer e.s.lock(ctx)()
	var out []*model.Transaction
	for i := len(e.s.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if tx := e.s.entries[i]; tx.UserID == userID {
			c := *tx
			out = append(out, &c)
		}
	}
	return out, nil
}
