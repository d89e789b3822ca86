// Package service provides business logic implementations.
package service

import (
	"context"
	"time"

	"rpg-chat-bot/internal/model"
	"rpg-chat-bot/internal/repository"
)

// ErrUserNotFound is returned when an identity has no user row or cannot be
// found by name.
var ErrUserNotFound = repository.ErrUserNotFound

// UserStore persists user rows.
type UserStore interface {
	Ensure(ctx context.Context, id, name string) error
	Touch(ctx context.Context, id, name string, at time.Time) error
	Get(ctx context.Context, id string) (*model.User, error)
	FindByName(ctx context.Context, name string) (*model.User, error)
	SetRoles(ctx context.Context, id string, isAdmin, isOwner bool) error
	List(ctx context.Context) ([]*model.User, error)
}

// StatsStore persists ledger rows.
type StatsStore interface {
	Get(ctx context.Context, userID string) (*model.PlayerStats, error)
	GetForUpdate(ctx context.Context, userID string) (*model.PlayerStats, error)
	Create(ctx context.Context, s *model.PlayerStats) error
	Save(ctx context.Context, s *model.PlayerStats) error
	RankStore
}

// EntryStore persists the ledger journal.
type EntryStore interface {
	Create(ctx context.Context, userID string, amount int64, txType string, description *string) (*model.Transaction, error)
	GetByUserID(ctx context.Context, userID string, limit int) ([]*model.Transaction, error)
}

// GroupStore persists per-conversation configuration.
type GroupStore interface {
	Get(ctx context.Context, groupID string) (*model.GroupConfig, error)
	Upsert(ctx context.Context, groupID string, update model.GroupConfigUpdate) (*model.GroupConfig, error)
}

// Transactor runs fn in one store transaction. Stores called with the
// context handed to fn take part in it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Stores bundles the persistence collaborators of the services.
type Stores struct {
	Users   UserStore
	Stats   StatsStore
	Entries EntryStore
	Groups  GroupStore
	Tx      Transactor
}

// LedgerObserver receives ledger operation outcomes. *metrics.Metrics
// implements it.
type LedgerObserver interface {
	LedgerOperation(op string, err error)
}

type nopObserver struct{}

func (nopObserver) LedgerOperation(string, error) {}
