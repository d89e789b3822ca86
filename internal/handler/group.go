package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"rpg-chat-bot/internal/command"
	"rpg-chat-bot/internal/service"
)

// GroupHandler handles per-group settings.
type GroupHandler struct {
	deps Deps
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(d Deps) *GroupHandler {
	return &GroupHandler{deps: d}
}

// Commands returns the group commands.
func (h *GroupHandler) Commands() []command.Command {
	return []command.Command{
		&command.Func{M: command.Meta{
			Name:        "setprefix",
			Aliases:     []string{"prefix"},
			Category:    CategoryGroup,
			Description: "Changes the prefix used in this group",
			Usage:       "<prefix>",
			Args:        1,
			GroupAdmin:  true,
		}, Fn: h.HandleSetPrefix},
		&command.Func{M: command.Meta{
			Name:        "autosticker",
			Aliases:     []string{"autofig"},
			Category:    CategoryGroup,
			Description: "Turns automatic stickers on or off in this group",
			Usage:       "<on|off>",
			Args:        1,
			GroupAdmin:  true,
		}, Fn: h.HandleAutosticker},
	}
}

// HandleSetPrefix stores a new command prefix for the conversation.
func (h *GroupHandler) HandleSetPrefix(ctx context.Context, inv *command.Invocation) error {
	cfg, err := h.deps.Groups.SetPrefix(ctx, inv.ConversationID, inv.Args[0])
	if err != nil {
		if errors.Is(err, service.ErrInvalidPrefix) {
			return inv.Replyf(ctx, "❌ A prefix is 1 to %d characters without spaces.", service.MaxPrefixLen)
		}
		return err
	}

	log.Info().
		Str("group", inv.ConversationID).
		Str("sender", inv.SenderID).
		Str("prefix", cfg.Prefix).
		Msg("Prefix updated")

	return inv.Replyf(ctx, "Prefix updated to: %s", cfg.Prefix)
}

// HandleAutosticker stores the autosticker flag of the conversation.
func (h *GroupHandler) HandleAutosticker(ctx context.Context, inv *command.Invocation) error {
	var enabled bool
	switch strings.ToLower(inv.Args[0]) {
	case "on", "1", "true":
		enabled = true
	case "off", "0", "false":
	default:
		return inv.Reply(ctx, "❌ Use on or off.")
	}

	cfg, err := h.deps.Groups.SetAutosticker(ctx, inv.ConversationID, enabled)
	if err != nil {
		return err
	}

	log.Info().
		Str("group", inv.ConversationID).
		Str("sender", inv.SenderID).
		Bool("autosticker", cfg.Autosticker).
		Msg("Autosticker updated")

	if cfg.Autosticker {
		return inv.Reply(ctx, "Autosticker enabled.")
	}
	return inv.Reply(ctx, "Autosticker disabled.")
}
