package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"rpg-chat-bot/internal/command"
	"rpg-chat-bot/internal/service"
)

// AdminHandler handles bot admin commands.
type AdminHandler struct {
	deps Deps
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(d Deps) *AdminHandler {
	return &AdminHandler{deps: d}
}

// Commands returns the admin commands. All of them require a bot admin.
func (h *AdminHandler) Commands() []command.Command {
	return []command.Command{
		&command.Func{M: command.Meta{
			Name:        "add-coins",
			Aliases:     []string{"addcoins"},
			Category:    CategoryAdmin,
			Description: "Adds coins to a user; negative amounts remove them",
			Usage:       "<user> <amount>",
			Args:        2,
			BotAdmin:    true,
		}, Fn: h.HandleAddCoins},
		&command.Func{M: command.Meta{
			Name:        "set-coins",
			Aliases:     []string{"setcoins"},
			Category:    CategoryAdmin,
			Description: "Sets a user's coins",
			Usage:       "<user> <amount>",
			Args:        2,
			BotAdmin:    true,
		}, Fn: h.HandleSetCoins},
		&command.Func{M: command.Meta{
			Name:        "add-xp",
			Aliases:     []string{"addxp"},
			Category:    CategoryAdmin,
			Description: "Grants experience to a user",
			Usage:       "<user> <amount>",
			Args:        2,
			BotAdmin:    true,
		}, Fn: h.HandleAddXP},
	}
}

// parseAdminArgs parses "<user> <amount>". A non-empty reply means the
// input was rejected and reply should be sent back.
func (h *AdminHandler) parseAdminArgs(ctx context.Context, inv *command.Invocation) (targetID string, amount int64, reply string, err error) {
	amount, err = parseAmount(inv.Args[len(inv.Args)-1])
	if err != nil {
		return "", 0, "❌ The amount must be a whole number.", nil
	}

	targetID, err = h.deps.target(ctx, inv, strings.Join(inv.Args[:len(inv.Args)-1], " "))
	if errors.Is(err, service.ErrUserNotFound) {
		return "", 0, "❌ User not found.", nil
	}
	if err != nil {
		return "", 0, "", err
	}
	return targetID, amount, "", nil
}

// HandleAddCoins adds coins to the target, clamping the result at zero.
func (h *AdminHandler) HandleAddCoins(ctx context.Context, inv *command.Invocation) error {
	targetID, amount, reply, err := h.parseAdminArgs(ctx, inv)
	if err != nil {
		return err
	}
	if reply != "" {
		return inv.Reply(ctx, reply)
	}

	row, err := h.deps.Ledger.AddCoins(ctx, targetID, amount)
	if err != nil {
		return err
	}

	log.Info().
		Str("admin_id", inv.SenderID).
		Str("target_id", targetID).
		Int64("amount", amount).
		Str("operation", service.OpAddCoins).
		Msg("Admin operation executed")

	return inv.Replyf(ctx, "✅ %s now has %d coins.", h.deps.Accounts.DisplayName(ctx, targetID), row.Coins)
}

// HandleSetCoins sets the target's coins.
func (h *AdminHandler) HandleSetCoins(ctx context.Context, inv *command.Invocation) error {
	targetID, amount, reply, err := h.parseAdminArgs(ctx, inv)
	if err != nil {
		return err
	}
	if reply != "" {
		return inv.Reply(ctx, reply)
	}
	if amount < 0 {
		return inv.Reply(ctx, "❌ Coins cannot be negative.")
	}

	row, err := h.deps.Ledger.SetCoins(ctx, targetID, amount)
	if err != nil {
		return err
	}

	log.Info().
		Str("admin_id", inv.SenderID).
		Str("target_id", targetID).
		Int64("new_balance", row.Coins).
		Str("operation", service.OpSetCoins).
		Msg("Admin operation executed")

	return inv.Replyf(ctx, "✅ %s now has %d coins.", h.deps.Accounts.DisplayName(ctx, targetID), row.Coins)
}

// HandleAddXP grants experience and reports level-ups.
func (h *AdminHandler) HandleAddXP(ctx context.Context, inv *command.Invocation) error {
	targetID, amount, reply, err := h.parseAdminArgs(ctx, inv)
	if err != nil {
		return err
	}
	if reply != "" {
		return inv.Reply(ctx, reply)
	}
	if amount <= 0 {
		return inv.Reply(ctx, "❌ The amount must be a positive whole number.")
	}

	row, gained, err := h.deps.Ledger.AddXP(ctx, targetID, amount)
	if err != nil {
		return err
	}

	log.Info().
		Str("admin_id", inv.SenderID).
		Str("target_id", targetID).
		Int64("amount", amount).
		Int("levels", gained).
		Str("operation", service.OpAddXP).
		Msg("Admin operation executed")

	name := h.deps.Accounts.DisplayName(ctx, targetID)
	if gained > 0 {
		return inv.Replyf(ctx, "⭐ %s gained %d xp and reached level %d!", name, amount, row.Level)
	}
	return inv.Replyf(ctx, "✅ %s gained %d xp (%d/%d).", name, amount, row.XP, service.XPToNextLevel(row.Level))
}
