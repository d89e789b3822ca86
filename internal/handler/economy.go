package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"rpg-chat-bot/internal/command"
	"rpg-chat-bot/internal/model"
	"rpg-chat-bot/internal/service"
)

// EconomyHandler handles coin commands.
type EconomyHandler struct {
	deps Deps
}

// NewEconomyHandler creates a new EconomyHandler.
func NewEconomyHandler(d Deps) *EconomyHandler {
	return &EconomyHandler{deps: d}
}

// Commands returns the economy commands.
func (h *EconomyHandler) Commands() []command.Command {
	return []command.Command{
		&command.Func{M: command.Meta{
			Name:        "balance",
			Aliases:     []string{"bal", "coins", "dinheiro"},
			Category:    CategoryEconomy,
			Description: "Shows your or someone else's coins",
			Usage:       "[user]",
		}, Fn: h.HandleBalance},
		&command.Func{M: command.Meta{
			Name:        "pay",
			Aliases:     []string{"transfer", "give"},
			Category:    CategoryEconomy,
			Description: "Sends coins to another user",
			Usage:       "<user> <amount>",
			Args:        2,
		}, Fn: h.HandlePay},
		&command.Func{M: command.Meta{
			Name:        "deposit",
			Aliases:     []string{"dep"},
			Category:    CategoryEconomy,
			Description: "Moves coins into the bank",
			Usage:       "<amount|all>",
			Args:        1,
		}, Fn: h.HandleDeposit},
		&command.Func{M: command.Meta{
			Name:        "withdraw",
			Aliases:     []string{"wd"},
			Category:    CategoryEconomy,
			Description: "Moves coins out of the bank",
			Usage:       "<amount|all>",
			Args:        1,
		}, Fn: h.HandleWithdraw},
		&command.Func{M: command.Meta{
			Name:        "history",
			Aliases:     []string{"txs"},
			Category:    CategoryEconomy,
			Description: "Shows your latest coin movements",
		}, Fn: h.HandleHistory},
	}
}

// HandleBalance shows liquid, banked and total coins.
func (h *EconomyHandler) HandleBalance(ctx context.Context, inv *command.Invocation) error {
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

	if targetID == inv.SenderID {
		return inv.Replyf(ctx, "You have %d coins and %d coins in the bank.\nYour total is %d coins",
			row.Coins, row.Bank, row.Total())
	}
	name := h.deps.Accounts.DisplayName(ctx, targetID)
	return inv.Replyf(ctx, "%s has %d coins and %d coins in the bank.\nTheir total is %d coins",
		name, row.Coins, row.Bank, row.Total())
}

// HandlePay transfers coins: pay <user> <amount>.
func (h *EconomyHandler) HandlePay(ctx context.Context, inv *command.Invocation) error {
	amount, err := parseAmount(inv.Args[len(inv.Args)-1])
	if err != nil || amount <= 0 {
		return inv.Reply(ctx, "❌ The amount must be a positive whole number.")
	}

	targetID, err := h.deps.target(ctx, inv, strings.Join(inv.Args[:len(inv.Args)-1], " "))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return inv.Reply(ctx, "❌ User not found.")
		}
		return err
	}
	if targetID == inv.SenderID {
		return inv.Reply(ctx, "❌ You cannot pay yourself.")
	}

	from, _, err := h.deps.Ledger.Transfer(ctx, inv.SenderID, targetID, amount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientBalance):
			return inv.Reply(ctx, "❌ Insufficient balance.")
		case errors.Is(err, service.ErrBalanceOverflow):
			return inv.Reply(ctx, "❌ That would exceed the maximum balance.")
		}
		return err
	}

	log.Info().
		Str("from", inv.SenderID).
		Str("to", targetID).
		Int64("amount", amount).
		Msg("Transfer completed")

	return inv.Replyf(ctx, "✅ Sent %d coins to %s.\n💰 Your balance: %d coins",
		amount, h.deps.Accounts.DisplayName(ctx, targetID), from.Coins)
}

// HandleDeposit moves coins into the bank.
func (h *EconomyHandler) HandleDeposit(ctx context.Context, inv *command.Invocation) error {
	return h.moveBank(ctx, inv, true)
}

// HandleWithdraw moves coins out of the bank.
func (h *EconomyHandler) HandleWithdraw(ctx context.Context, inv *command.Invocation) error {
	return h.moveBank(ctx, inv, false)
}

func (h *EconomyHandler) moveBank(ctx context.Context, inv *command.Invocation, deposit bool) error {
	var amount int64
	if isAll(inv.Args[0]) {
		row, err := h.deps.Ledger.GetOrCreate(ctx, inv.SenderID)
		if err != nil {
			return err
		}
		amount = row.Bank
		if deposit {
			amount = row.Coins
		}
		if amount == 0 {
			return inv.Reply(ctx, "❌ Nothing to move.")
		}
	} else {
		var err error
		amount, err = parseAmount(inv.Args[0])
		if err != nil || amount <= 0 {
			return inv.Reply(ctx, "❌ The amount must be a positive whole number.")
		}
	}

	var (
		row *model.PlayerStats
		err error
	)
	if deposit {
		row, err = h.deps.Ledger.Deposit(ctx, inv.SenderID, amount)
	} else {
		row, err = h.deps.Ledger.Withdraw(ctx, inv.SenderID, amount)
	}
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientFunds):
			return inv.Reply(ctx, "❌ Insufficient funds.")
		case errors.Is(err, service.ErrBalanceOverflow):
			return inv.Reply(ctx, "❌ That would exceed the maximum balance.")
		}
		return err
	}

	verb := "Withdrew"
	if deposit {
		verb = "Deposited"
	}
	return inv.Replyf(ctx, "🏦 %s %d coins.\n💰 Coins: %d | Bank: %d", verb, amount, row.Coins, row.Bank)
}

// HandleHistory lists the latest journal entries of the sender.
func (h *EconomyHandler) HandleHistory(ctx context.Context, inv *command.Invocation) error {
	entries, err := h.deps.Ledger.History(ctx, inv.SenderID, HistoryLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return inv.Reply(ctx, "No coin movements yet.")
	}

	var b strings.Builder
	b.WriteString("📜 Latest movements\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %+d (%s)\n", e.CreatedAt.Format("02/01 15:04"), e.Amount, e.Type)
	}
	return inv.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}
