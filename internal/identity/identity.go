// Package identity maps the raw sender identifiers reported by the chat
// transport onto one canonical identity per person.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
)

// Unknown is the identity of an event whose sender cannot be determined.
const Unknown = "unknown"

// ErrAliasUnresolved is returned by alias resolvers that have no mapping.
var ErrAliasUnresolved = errors.New("alias has no canonical mapping")

// Scheme describes the identifier domains of the deployed transport.
type Scheme struct {
	// UserSuffix marks the canonical phone-session form.
	UserSuffix string
	// AliasSuffix marks the privacy-preserving alias form.
	AliasSuffix string
	// GroupSuffix marks group conversations.
	GroupSuffix string
}

// DefaultScheme is the scheme used when none is configured.
var DefaultScheme = Scheme{
	UserSuffix:  "@user",
	AliasSuffix: "@alias",
	GroupSuffix: "@group",
}

// AliasResolver maps an alias identifier to its canonical form. It is
// implemented by the transport.
type AliasResolver interface {
	ResolveAlias(ctx context.Context, alias string) (string, error)
}

// Resolver turns raw identifiers into canonical identities.
type Resolver struct {
	scheme  Scheme
	aliases AliasResolver
}

// New creates a Resolver. aliases may be nil, in which case aliases are kept
// in their stripped form.
func New(scheme Scheme, aliases AliasResolver) *Resolver {
	return &Resolver{scheme: scheme, aliases: aliases}
}

// Scheme returns the resolver's identifier scheme.
func (r *Resolver) Scheme() Scheme {
	return r.scheme
}

// Resolve returns the canonical identity for raw. It never fails: a failed
// alias lookup degrades to the stripped alias, and input without any digits
// becomes Unknown.
func (r *Resolver) Resolve(ctx context.Context, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == Unknown {
		return Unknown
	}

	id := StripDevice(raw)
	if r.IsCanonical(id) {
		return id
	}

	if r.IsAlias(id) {
		return r.resolveAlias(ctx, id)
	}

	digits := onlyDigits(id)
	if digits == "" {
		return Unknown
	}
	return digits + r.scheme.UserSuffix
}

func (r *Resolver) resolveAlias(ctx context.Context, alias string) string {
	if r.aliases == nil {
		return alias
	}

	resolved, err := r.aliases.ResolveAlias(ctx, alias)
	if err == nil {
		resolved = StripDevice(strings.TrimSpace(resolved))
		if r.IsCanonical(resolved) {
			return resolved
		}
		err = ErrAliasUnresolved
	}

	log.Warn().
		Err(err).
		Str("alias", alias).
		Msg("Identity resolution failed, keeping alias")
	return alias
}

// FromPhone builds the canonical identity for a phone number or numeric
// user id.
func (r *Resolver) FromPhone(phone string) string {
	digits := onlyDigits(phone)
	if digits == "" {
		return Unknown
	}
	return digits + r.scheme.UserSuffix
}

// Alias builds the alias identifier for a handle, with or without a leading @.
func (r *Resolver) Alias(handle string) string {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	return strings.ToLower(handle) + r.scheme.AliasSuffix
}

// Group builds the conversation identifier of a group.
func (r *Resolver) Group(id string) string {
	return id + r.scheme.GroupSuffix
}

// IsCanonical reports whether id is in the phone-session form.
func (r *Resolver) IsCanonical(id string) bool {
	local, ok := strings.CutSuffix(id, r.scheme.UserSuffix)
	return ok && local != ""
}

// IsAlias reports whether id is in the alias form.
func (r *Resolver) IsAlias(id string) bool {
	local, ok := strings.CutSuffix(id, r.scheme.AliasSuffix)
	return ok && local != ""
}

// IsGroup reports whether a conversation id names a group.
func (r *Resolver) IsGroup(conversationID string) bool {
	return strings.HasSuffix(conversationID, r.scheme.GroupSuffix)
}

// LocalPart returns the part of id before its domain.
func LocalPart(id string) string {
	if i := strings.LastIndex(id, "@"); i >= 0 {
		return id[:i]
	}
	return id
}

// StripDevice removes a device suffix (":N") from the local part of id,
// so "123:4@user" becomes "123@user" and "123:4" becomes "123".
func StripDevice(id string) string {
	local, domain := id, ""
	if i := strings.LastIndex(id, "@"); i >= 0 {
		local, domain = id[:i], id[i:]
	}
	if i := strings.IndexByte(local, ':'); i >= 0 {
		local = local[:i]
	}
	return local + domain
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}
