// Package command defines chat commands, their registry, the permission gate
// and the dispatcher that runs them.
package command

import (
	"context"
	"fmt"
	"strings"

	"rpg-chat-bot/internal/model"
)

// Meta describes a command and its requirements.
type Meta struct {
	// Name is the canonical command name.
	Name        string
	Aliases     []string
	Category    string
	Description string
	// Usage lists the arguments, e.g. "<target> <amount>".
	Usage string
	// Args is the minimum number of argument tokens.
	Args int
	// GroupAdmin requires the sender to administer the conversation.
	GroupAdmin bool
	// BotAdmin requires the sender's user row to be admin or owner.
	BotAdmin bool
}

// Command is a chat command.
type Command interface {
	Meta() Meta
	Execute(ctx context.Context, inv *Invocation) error
}

// MessageSender delivers text to a conversation. It is implemented by the
// transport.
type MessageSender interface {
	SendText(ctx context.Context, conversationID, text string) error
}

// Invocation is the context a command body runs with.
type Invocation struct {
	ConversationID string
	// SenderID is the canonical identity of the sender.
	SenderID   string
	SenderName string
	// Text is the message body after the prefix.
	Text string
	// Command is the token the command was invoked with, lower-cased.
	Command string
	Args    []string
	Event   *model.InboundEvent

	sender MessageSender
}

// NewInvocation builds an invocation that replies through sender.
func NewInvocation(sender MessageSender, conversationID, senderID, senderName, text string, event *model.InboundEvent) *Invocation {
	tokens := strings.Fields(text)
	inv := &Invocation{
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		Text:           text,
		Event:          event,
		sender:         sender,
	}
	if len(tokens) > 0 {
		inv.Command = strings.ToLower(tokens[0])
		inv.Args = tokens[1:]
	}
	return inv
}

// Reply sends text to the invocation's conversation.
func (inv *Invocation) Reply(ctx context.Context, text string) error {
	if inv.sender == nil {
		return fmt.Errorf("no message sender for conversation %s", inv.ConversationID)
	}
	return inv.sender.SendText(ctx, inv.ConversationID, text)
}

// Replyf formats and sends a reply.
func (inv *Invocation) Replyf(ctx context.Context, format string, args ...any) error {
	return inv.Reply(ctx, fmt.Sprintf(format, args...))
}

// Mentions returns the raw identifiers referenced by the message.
func (inv *Invocation) Mentions() []string {
	if inv.Event == nil {
		return nil
	}
	return inv.Event.Mentions
}

// Func adapts a function to the Command interface.
type Func struct {
	M  Meta
	Fn func(ctx context.Context, inv *Invocation) error
}

// Meta returns the command metadata.
func (f *Func) Meta() Meta { return f.M }

// Execute runs the function.
func (f *Func) Execute(ctx context.Context, inv *Invocation) error { return f.Fn(ctx, inv) }
