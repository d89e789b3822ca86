package handler

import (
	"context"
	"strings"

	"rpg-chat-bot/internal/command"
)

// HelpHandler lists commands.
type HelpHandler struct {
	deps Deps
}

// NewHelpHandler creates a new HelpHandler.
func NewHelpHandler(d Deps) *HelpHandler {
	return &HelpHandler{deps: d}
}

// Commands returns the help command.
func (h *HelpHandler) Commands() []command.Command {
	return []command.Command{
		&command.Func{M: command.Meta{
			Name:        "help",
			Aliases:     []string{"commands", "h"},
			Category:    CategoryCore,
			Description: "Lists commands or explains one",
			Usage:       "[command]",
		}, Fn: h.HandleHelp},
	}
}

// HandleHelp lists the registered commands grouped by category, or the
// details of one command.
func (h *HelpHandler) HandleHelp(ctx context.Context, inv *command.Invocation) error {
	prefix := h.prefix(ctx, inv.ConversationID)

	if len(inv.Args) > 0 {
		name := strings.TrimPrefix(inv.Args[0], prefix)
		cmd, ok := h.deps.Registry.Get(name)
		if !ok {
			return inv.Replyf(ctx, "❌ Unknown command: %s", name)
		}
		return inv.Reply(ctx, describe(prefix, cmd.Meta()))
	}

	var b strings.Builder
	b.WriteString("📖 Commands")
	category := ""
	for _, cmd := range h.deps.Registry.List() {
		meta := cmd.Meta()
		if meta.Category != category {
			category = meta.Category
			b.WriteString("\n\n[" + category + "]")
		}
		b.WriteString("\n" + usage(prefix, meta))
		if meta.Description != "" {
			b.WriteString(" - " + meta.Description)
		}
	}
	return inv.Reply(ctx, b.String())
}

func (h *HelpHandler) prefix(ctx context.Context, conversationID string) string {
	prefix, err := h.deps.Groups.Prefix(ctx, conversationID)
	if err != nil {
		return h.deps.Groups.DefaultPrefix()
	}
	return prefix
}

func describe(prefix string, meta command.Meta) string {
	var b strings.Builder
	b.WriteString(usage(prefix, meta))
	if meta.Description != "" {
		b.WriteString("\n" + meta.Description)
	}
	if len(meta.Aliases) > 0 {
		b.WriteString("\nAliases: " + strings.Join(meta.Aliases, ", "))
	}
	switch {
	case meta.GroupAdmin:
		b.WriteString("\nGroup admins only.")
	case meta.BotAdmin:
		b.WriteString("\nBot admins only.")
	}
	return b.String()
}
