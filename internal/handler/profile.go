package handler

import (
	"context"
	"errors"
	"strings"

	"rpg-chat-bot/internal/command"
	"rpg-chat-bot/internal/service"
)

// ProfileHandler shows RPG stats.
type ProfileHandler struct {
	deps Deps
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(d Deps) *ProfileHandler {
	return &ProfileHandler{deps: d}
}

// Commands returns the profile commands.
func (h *ProfileHandler) Commands() []command.Command {
	return []command.Command{
		&command.Func{M: command.Meta{
			Name:        "profile",
			Aliases:     []string{"stats", "me"},
			Category:    CategoryProfile,
			Description: "Shows level, experience and attributes",
			Usage:       "[user]",
		}, Fn: h.HandleProfile},
	}
}

// HandleProfile renders the stats of the sender or of a target.
func (h *ProfileHandler) HandleProfile(ctx context.Context, inv *command.Invocation) error {
	targetID := inv.SenderID
	if len(inv.Mentions()) > 0 || len(inv.Args) > 0 {
		id, err := h.deps.target(ctx, inv, strings.Join(inv.Args, " "))
		if err != nil {
			if errors.Is(err, service.ErrUserNotFound) {
				return inv.Reply(ctx, "❌ User not found.")
			}
			return err
		}
		targetID = id
	}

	row, err := h.deps.Ledger.Get(ctx, targetID)
	if err != nil {
		return err
	}

	return inv.Replyf(ctx,
		"📊 %s\n"+
			"━━━━━━━━━━━━━━━\n"+
			"⭐ Level %d (%d/%d xp)\n"+
			"❤️ HP %d | 🔮 MP %d\n"+
			"🛡️ Class: %s\n"+
			"💪 STR %d | DEF %d | AGI %d | MAG %d\n"+
			"⚔️ Battles: %d won, %d lost\n"+
			"📜 Quests: %d | 🎒 Items: %d\n"+
			"💰 Coins: %d | 🏦 Bank: %d (%d%%)",
		h.deps.Accounts.DisplayName(ctx, targetID),
		row.Level, row.XP, service.XPToNextLevel(row.Level),
		row.HP, row.MP,
		row.Class,
		row.Strength, row.Defense, row.Agility, row.Magic,
		row.BattlesWon, row.BattlesLost,
		row.QuestsCompleted, row.ItemsCollected,
		row.Coins, row.Bank, row.BankInterest,
	)
}
