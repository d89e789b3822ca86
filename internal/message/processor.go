// Package message runs the per-event pipeline: identity resolution, name
// directory update, user bookkeeping, chat log and command dispatch.
package message

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rpg-chat-bot/internal/chatlog"
	"rpg-chat-bot/internal/command"
	"rpg-chat-bot/internal/identity"
	"rpg-chat-bot/internal/model"
	"rpg-chat-bot/internal/names"
)

// Resolver maps raw identifiers to canonical identities.
type Resolver interface {
	Resolve(ctx context.Context, raw string) string
	IsGroup(conversationID string) bool
}

// Accounts keeps user rows current.
type Accounts interface {
	EnsureUser(ctx context.Context, id, name string) (*model.User, error)
}

// Prefixes returns a group's command prefix.
type Prefixes interface {
	Prefix(ctx context.Context, groupID string) (string, error)
}

// Dispatcher runs a command request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req command.Request) command.Outcome
}

// ChatLog records observed messages.
type ChatLog interface {
	Write(e chatlog.Entry) error
}

// EventObserver counts processed events. *metrics.Metrics implements it.
type EventObserver interface {
	EventProcessed(kind string)
}

// Deps are the collaborators of a Processor. ChatLog and Observer are
// optional.
type Deps struct {
	Resolver   Resolver
	Names      *names.Directory
	Accounts   Accounts
	Prefixes   Prefixes
	Dispatcher Dispatcher
	ChatLog    ChatLog
	Observer   EventObserver
}

// Processor handles batches taken from the event queue.
type Processor struct {
	deps Deps
	now  func() time.Time
}

// NewProcessor creates a new Processor.
func NewProcessor(deps Deps) *Processor {
	return &Processor{deps: deps, now: time.Now}
}

// HandleBatch processes every event of a live batch. Replayed batches are
// ignored. A failing event does not stop the rest; all failures are joined.
func (p *Processor) HandleBatch(ctx context.Context, batch model.Batch) error {
	logger := log.With().Str("request_id", batch.RequestID).Logger()
	ctx = logger.WithContext(ctx)

	if batch.Type != model.DeliveryNotify {
		logger.Debug().Str("type", string(batch.Type)).Int("events", len(batch.Events)).Msg("Ignoring non-live batch")
		return nil
	}

	var errs []error
	for i := range batch.Events {
		if err := p.ProcessEvent(ctx, &batch.Events[i]); err != nil {
			logger.Error().Err(err).Str("event", batch.Events[i].ID).Msg("Failed to process event")
			errs = append(errs, fmt.Errorf("event %s: %w", batch.Events[i].ID, err))
		}
	}
	return errors.Join(errs...)
}

// ProcessEvent runs the pipeline for one event.
func (p *Processor) ProcessEvent(ctx context.Context, ev *model.InboundEvent) error {
	logger := zerolog.Ctx(ctx)

	if ev.ConversationID == "" {
		logger.Warn().Str("event", ev.ID).Msg("Event without conversation, skipping")
		return nil
	}

	if p.deps.Observer != nil {
		p.deps.Observer.EventProcessed(ev.Kind.String())
	}

	sender := p.deps.Resolver.Resolve(ctx, ev.SenderID)
	senderName := p.displayName(sender, ev.PushName)
	isGroup := p.deps.Resolver.IsGroup(ev.ConversationID)

	if isGroup && sender != identity.Unknown {
		if _, err := p.deps.Accounts.EnsureUser(ctx, sender, ev.PushName); err != nil {
			logger.Error().Err(err).Str("sender", sender).Msg("Failed to ensure user")
		}
	}

	action := ev.Kind.Action()
	text := ev.Text
	if ev.Kind == model.KindDeleted {
		text = ""
	}

	at := ev.ReceivedAt
	if at.IsZero() {
		at = p.now()
	}
	if p.deps.ChatLog != nil {
		entry := chatlog.Entry{At: at, SenderName: senderName, SenderID: sender, Action: action, Text: text}
		if err := p.deps.ChatLog.Write(entry); err != nil {
			logger.Error().Err(err).Msg("Failed to write to log file")
		}
	}

	logger.Info().
		Str("from", ev.ConversationID).
		Str("sender", sender).
		Str("sender_name", senderName).
		Str("kind", ev.Kind.String()).
		Str("text", text).
		Msg("Message")

	if !isGroup || action != model.ActionSent || text == "" {
		return nil
	}
	return p.dispatch(ctx, ev, sender, senderName, text)
}

func (p *Processor) displayName(sender, pushName string) string {
	if pushName != "" {
		if sender != identity.Unknown {
			p.deps.Names.Set(sender, pushName)
		}
		return pushName
	}
	if name, ok := p.deps.Names.Get(sender); ok {
		return name
	}
	return sender
}

func (p *Processor) dispatch(ctx context.Context, ev *model.InboundEvent, sender, senderName, text string) error {
	prefix, err := p.deps.Prefixes.Prefix(ctx, ev.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to get prefix: %w", err)
	}

	body, ok := CommandBody(text, prefix)
	if !ok {
		return nil
	}

	p.deps.Dispatcher.Dispatch(ctx, command.Request{
		ConversationID: ev.ConversationID,
		SenderID:       sender,
		SenderName:     senderName,
		Text:           body,
		Event:          ev,
	})
	return nil
}

// CommandBody strips prefix from text. It reports false when text does not
// start with prefix or nothing but spaces follows it.
func CommandBody(text, prefix string) (string, bool) {
	if prefix == "" {
		return "", false
	}
	rest, ok := strings.CutPrefix(text, prefix)
	if !ok {
		return "", false
	}
	body := strings.TrimSpace(rest)
	return body, body != ""
}
