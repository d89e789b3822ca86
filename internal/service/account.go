package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"rpg-chat-bot/internal/identity"
	"rpg-chat-bot/internal/model"
	"rpg-chat-bot/internal/names"
)

// AccountService handles user rows and user lookup.
type AccountService struct {
	users    UserStore
	ledger   *Ledger
	resolver *identity.Resolver
	dir      *names.Directory
	now      func() time.Time
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(users UserStore, ledger *Ledger, resolver *identity.Resolver, dir *names.Directory) *AccountService {
	return &AccountService{
		users:    users,
		ledger:   ledger,
		resolver: resolver,
		dir:      dir,
		now:      time.Now,
	}
}

// EnsureUser records the user's name and activity and makes sure a ledger
// row exists.
func (s *AccountService) EnsureUser(ctx context.Context, id, name string) (*model.User, error) {
	if err := s.users.Touch(ctx, id, name, s.now()); err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	if _, err := s.ledger.GetOrCreate(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	return s.users.Get(ctx, id)
}

// GetUser retrieves a user by canonical identity.
func (s *AccountService) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.users.Get(ctx, id)
}

// DisplayName returns the best known name of id, falling back to the
// identity's local part.
func (s *AccountService) DisplayName(ctx context.Context, id string) string {
	if name, ok := s.dir.Get(id); ok {
		return name
	}
	if user, err := s.users.Get(ctx, id); err == nil && user.Name != "" {
		return user.Name
	}
	return identity.LocalPart(id)
}

// FindUser resolves a user reference typed in chat. It accepts "@handle"
// (a known display name, else an alias), a full identifier, a phone number
// or a display name. Only canonical identities are returned, so an
// unresolved alias or a group id is reported as ErrUserNotFound.
func (s *AccountService) FindUser(ctx context.Context, query string) (string, error) {
	id, err := s.findUser(ctx, query)
	if err != nil {
		return "", err
	}
	if !s.resolver.IsCanonical(id) {
		return "", ErrUserNotFound
	}
	return id, nil
}

func (s *AccountService) findUser(ctx context.Context, query string) (string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", ErrUserNotFound
	}

	if handle, ok := strings.CutPrefix(q, "@"); ok {
		if id, found := s.dir.LookupByName(handle); found {
			return id, nil
		}
		if id := s.resolver.Resolve(ctx, s.resolver.Alias(handle)); s.resolver.IsCanonical(id) {
			return id, nil
		}
		q = handle
	} else if strings.Contains(q, "@") {
		if s.resolver.IsGroup(q) {
			return "", ErrUserNotFound
		}
		return s.resolver.Resolve(ctx, q), nil
	}

	if isPhone(q) {
		return s.resolver.FromPhone(q), nil
	}

	if id, found := s.dir.LookupByName(q); found {
		return id, nil
	}
	user, err := s.users.FindByName(ctx, q)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

func isPhone(s string) bool {
	digits := 0
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '+' || c == ' ' || c == '-' || c == '(' || c == ')':
		default:
			return false
		}
	}
	return digits > 0
}

// SeedOwners flags the configured identities as owners, keeping their admin
// flag.
func (s *AccountService) SeedOwners(ctx context.Context, raw []string) error {
	var errs []error
	for _, r := range raw {
		id := s.resolver.Resolve(ctx, r)
		if id == identity.Unknown {
			log.Warn().Str("owner", r).Msg("Skipping owner with unusable identifier")
			continue
		}

		isAdmin := false
		user, err := s.users.Get(ctx, id)
		switch {
		case err == nil:
			isAdmin = user.IsAdmin
		case !errors.Is(err, ErrUserNotFound):
			errs = append(errs, fmt.Errorf("failed to get owner %s: %w", id, err))
			continue
		}

		if err := s.users.SetRoles(ctx, id, isAdmin, true); err != nil {
			errs = append(errs, err)
			continue
		}
		log.Info().Str("owner", id).Msg("Owner seeded")
	}
	return errors.Join(errs...)
}

// RebuildDirectory loads every stored user name into dir.
func (s *AccountService) RebuildDirectory(ctx context.Context, dir *names.Directory) (int, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to rebuild name directory: %w", err)
	}
	return dir.Rebuild(users), nil
}
