// Package handler provides the built-in chat commands.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"rpg-chat-bot/internal/command"
	"rpg-chat-bot/internal/identity"
	"rpg-chat-bot/internal/service"
)

// Command categories.
const (
	CategoryEconomy = "economy"
	CategoryProfile = "profile"
	CategoryAdmin   = "admin"
	CategoryGroup   = "group"
	CategoryCore    = "core"
)

// HistoryLimit is the number of journal entries shown by the history command.
const HistoryLimit = 5

var errBadAmount = errors.New("bad amount")

// Deps are the services the commands run against.
type Deps struct {
	Accounts *service.AccountService
	Ledger   *service.Ledger
	Groups   *service.GroupService
	Ranking  *service.RankingService
	Resolver *identity.Resolver
	Registry *command.Registry
}

// All returns every built-in command.
func All(d Deps) []command.Command {
	var cmds []command.Command
	cmds = append(cmds, NewEconomyHandler(d).Commands()...)
	cmds = append(cmds, NewRankingHandler(d).Commands()...)
	cmds = append(cmds, NewProfileHandler(d).Commands()...)
	cmds = append(cmds, NewAdminHandler(d).Commands()...)
	cmds = append(cmds, NewGroupHandler(d).Commands()...)
	cmds = append(cmds, NewHelpHandler(d).Commands()...)
	return cmds
}

// Register adds every built-in command to d.Registry.
func Register(d Deps) {
	d.Registry.MustRegister(All(d)...)
}

// target resolves the user an invocation refers to: the first mention if
// any, else the query typed in chat.
func (d Deps) target(ctx context.Context, inv *command.Invocation, query string) (string, error) {
	for _, raw := range inv.Mentions() {
		id := d.Resolver.Resolve(ctx, raw)
		if d.Resolver.IsCanonical(id) {
			return id, nil
		}
		// An unresolved alias may still match a known display name.
		if d.Resolver.IsAlias(id) {
			if found, err := d.Accounts.FindUser(ctx, "@"+identity.LocalPart(id)); err == nil {
				return found, nil
			}
		}
	}
	if query == "" {
		return "", service.ErrUserNotFound
	}
	return d.Accounts.FindUser(ctx, query)
}

// parseAmount parses a positive or negative integer amount.
func parseAmount(s string) (int64, error) {
	amount, err := strconv.ParseInt(strings.ReplaceAll(s, "_", ""), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errBadAmount, s)
	}
	return amount, nil
}

// isAll reports whether s asks for the whole balance.
func isAll(s string) bool {
	switch strings.ToLower(s) {
	case "all", "max", "tudo":
		return true
	}
	return false
}

func usage(prefix string, meta command.Meta) string {
	if meta.Usage == "" {
		return prefix + meta.Name
	}
	return prefix + meta.Name + " " + meta.Usage
}
