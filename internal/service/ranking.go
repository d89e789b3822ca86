package service

import (
	"context"
	"fmt"

	"rpg-chat-bot/internal/model"
)

// DefaultTopLimit is the leaderboard size.
const DefaultTopLimit = 10

// RankStore lists ledger rows by wealth.
type RankStore interface {
	Top(ctx context.Context, limit int) ([]*model.RankEntry, error)
}

// RankingService handles leaderboard operations.
type RankingService struct {
	ranks RankStore
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(ranks RankStore) *RankingService {
	return &RankingService{ranks: ranks}
}

// GetTopUsers retrieves the richest users, highest total first.
// A non-positive limit uses DefaultTopLimit.
func (s *RankingService) GetTopUsers(ctx context.Context, limit int) ([]*model.RankEntry, error) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	entries, err := s.ranks.Top(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get ranking: %w", err)
	}
	return entries, nil
}
