package handler

import (
	"context"
	"fmt"
	"strings"

	"rpg-chat-bot/internal/command"
	"rpg-chat-bot/internal/service"
)

// RankingHandler handles leaderboard commands.
type RankingHandler struct {
	deps Deps
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(d Deps) *RankingHandler {
	return &RankingHandler{deps: d}
}

// Commands returns the ranking commands.
func (h *RankingHandler) Commands() []command.Command {
	return []command.Command{
		&command.Func{M: command.Meta{
			Name:        "top",
			Aliases:     []string{"rank", "leaderboard"},
			Category:    CategoryEconomy,
			Description: "Shows the richest users",
		}, Fn: h.HandleTop},
	}
}

// HandleTop lists the users with the most coins, bank included.
func (h *RankingHandler) HandleTop(ctx context.Context, inv *command.Invocation) error {
	entries, err := h.deps.Ranking.GetTopUsers(ctx, service.DefaultTopLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return inv.Reply(ctx, "Nobody has coins yet.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🏆 Top %d", service.DefaultTopLimit)
	medals := []string{"🥇", "🥈", "🥉"}
	for i, entry := range entries {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}

		name := entry.Name
		if name == "" {
			name = h.deps.Accounts.DisplayName(ctx, entry.UserID)
		}

		fmt.Fprintf(&b, "\n%s %s: %d", rank, name, entry.Total)
	}
	return inv.Reply(ctx, b.String())
}
