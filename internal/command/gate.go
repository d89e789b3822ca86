package command

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"rpg-chat-bot/internal/model"
)

// Denial messages.
const (
	MsgGroupAdminRequired = "You must be a group admin to run this command."
	MsgBotAdminRequired   = "You must be a bot admin to run this command."
)

// Participant roles reported by the transport.
const (
	RoleMember     = "member"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// Participant is one member of a conversation. ID is the raw transport
// identifier.
type Participant struct {
	ID   string
	Role string
}

// IsAdmin reports whether the role administers the conversation.
func (p Participant) IsAdmin() bool {
	return p.Role == RoleAdmin || p.Role == RoleSuperAdmin
}

// ParticipantFetcher lists a conversation's participants and roles. It is
// implemented by the transport.
type ParticipantFetcher interface {
	FetchParticipants(ctx context.Context, conversationID string) ([]Participant, error)
}

// UserLookup returns a user row by canonical identity.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// Resolver maps raw identifiers to canonical identities.
type Resolver interface {
	Resolve(ctx context.Context, raw string) string
}

// Decision is the result of a permission check.
type Decision struct {
	Allowed bool
	// Reason is shown to the sender when non-empty.
	Reason string
}

// Allow is the decision that lets a command run.
var Allow = Decision{Allowed: true}

// Deny returns a denial carrying reason.
func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Checker decides whether an invocation may run.
type Checker interface {
	Check(ctx context.Context, meta Meta, inv *Invocation) Decision
}

// Gate enforces group-admin and bot-admin requirements. It keeps no state.
type Gate struct {
	participants ParticipantFetcher
	users        UserLookup
	resolver     Resolver
}

// NewGate creates a new Gate.
func NewGate(participants ParticipantFetcher, users UserLookup, resolver Resolver) *Gate {
	return &Gate{participants: participants, users: users, resolver: resolver}
}

// Check evaluates the group-admin requirement first and stops at the first
// failure.
func (g *Gate) Check(ctx context.Context, meta Meta, inv *Invocation) Decision {
	if meta.GroupAdmin && !g.isGroupAdmin(ctx, inv) {
		return Deny(MsgGroupAdminRequired)
	}
	if meta.BotAdmin && !g.isBotAdmin(ctx, inv.SenderID) {
		return Deny(MsgBotAdminRequired)
	}
	return Allow
}

func (g *Gate) isGroupAdmin(ctx context.Context, inv *Invocation) bool {
	participants, err := g.participants.FetchParticipants(ctx, inv.ConversationID)
	if err != nil {
		log.Warn().
			Err(err).
			Str("conversation", inv.ConversationID).
			Msg("Failed to fetch participants")
		return false
	}

	for _, p := range participants {
		if g.resolver.Resolve(ctx, p.ID) == inv.SenderID {
			return p.IsAdmin()
		}
	}
	return false
}

// isBotAdmin allows admins and owners alike.
func (g *Gate) isBotAdmin(ctx context.Context, senderID string) bool {
	user, err := g.users.GetUser(ctx, senderID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			log.Warn().Err(err).Str("sender", senderID).Msg("Failed to look up sender")
		}
		return false
	}
	return user.IsAdmin || user.IsOwner
}
