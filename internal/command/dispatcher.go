package command

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"rpg-chat-bot/internal/model"
)

// Outcome is the result of one dispatch.
type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeDenied
	OutcomeExecuted
	OutcomeFailed
)

// UnknownCommand is the metrics label of every unregistered command token.
const UnknownCommand = "unknown"

// String returns the outcome name used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeDenied:
		return "denied"
	case OutcomeExecuted:
		return "executed"
	case OutcomeFailed:
		return "failed"
	default:
		return "not_found"
	}
}

// NotEnoughArgs returns the denial shown when fewer than n arguments are given.
func NotEnoughArgs(n int) string {
	return fmt.Sprintf("Not enough arguments. This command requires at least %d argument(s).", n)
}

// FailedMessage returns the reply sent when a command body fails.
func FailedMessage(name string) string {
	return "❌ Failed to execute command: " + name
}

// Request is one command candidate extracted from a message.
type Request struct {
	ConversationID string
	SenderID       string
	SenderName     string
	// Text is the message body after the prefix.
	Text  string
	Event *model.InboundEvent
}

// DispatchObserver receives dispatch outcomes. *metrics.Metrics implements it.
type DispatchObserver interface {
	CommandDispatched(command, outcome string)
}

// Dispatcher runs commands: permission gate, argument check, execution.
// It contains every failure of a command body and never returns an error.
type Dispatcher struct {
	registry *Registry
	gate     Checker
	sender   MessageSender
	obs      DispatchObserver
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(registry *Registry, gate Checker, sender MessageSender) *Dispatcher {
	return &Dispatcher{registry: registry, gate: gate, sender: sender}
}

// WithObserver reports outcomes to obs.
func (d *Dispatcher) WithObserver(obs DispatchObserver) *Dispatcher {
	d.obs = obs
	return d
}

// Registry returns the dispatcher's registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch tokenizes req.Text and runs the matching command.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Outcome {
	inv := NewInvocation(d.sender, req.ConversationID, req.SenderID, req.SenderName, req.Text, req.Event)
	if inv.Command == "" {
		return OutcomeNotFound
	}

	logger := log.With().
		Str("command", inv.Command).
		Str("sender", inv.SenderID).
		Str("conversation", inv.ConversationID).
		Logger()

	cmd, ok := d.registry.Get(inv.Command)
	if !ok {
		logger.Debug().Msg("Unknown command")
		d.observe(UnknownCommand, OutcomeNotFound)
		return OutcomeNotFound
	}
	meta := cmd.Meta()

	if decision := d.gate.Check(ctx, meta, inv); !decision.Allowed {
		logger.Info().Str("reason", decision.Reason).Msg("Command denied")
		if decision.Reason != "" {
			d.reply(ctx, inv, "❌ "+decision.Reason)
		}
		d.observe(meta.Name, OutcomeDenied)
		return OutcomeDenied
	}

	if len(inv.Args) < meta.Args {
		logger.Info().Int("args", len(inv.Args)).Int("required", meta.Args).Msg("Command denied")
		d.reply(ctx, inv, "❌ "+NotEnoughArgs(meta.Args))
		d.observe(meta.Name, OutcomeDenied)
		return OutcomeDenied
	}

	if err := execute(ctx, cmd, inv); err != nil {
		logger.Error().Err(err).Str("name", meta.Name).Msg("Command failed")
		d.reply(ctx, inv, FailedMessage(meta.Name))
		d.observe(meta.Name, OutcomeFailed)
		return OutcomeFailed
	}

	logger.Debug().Msg("Command executed")
	d.observe(meta.Name, OutcomeExecuted)
	return OutcomeExecuted
}

func execute(ctx context.Context, cmd Command, inv *Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Recovered from panic in command")
			err = fmt.Errorf("command panicked: %v", r)
		}
	}()
	return cmd.Execute(ctx, inv)
}

func (d *Dispatcher) reply(ctx context.Context, inv *Invocation, text string) {
	if err := inv.Reply(ctx, text); err != nil {
		log.Error().Err(err).Str("conversation", inv.ConversationID).Msg("Failed to send reply")
	}
}

func (d *Dispatcher) observe(command string, outcome Outcome) {
	if d.obs != nil {
		d.obs.CommandDispatched(command, outcome.String())
	}
}
