package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"rpg-chat-bot/internal/model"
)

// MaxPrefixLen is the longest accepted command prefix, in characters.
const MaxPrefixLen = 5

// ErrInvalidPrefix is returned for empty, long or whitespace prefixes.
var ErrInvalidPrefix = errors.New("invalid prefix")

// GroupService handles per-conversation settings.
type GroupService struct {
	groups        GroupStore
	defaultPrefix string
}

// NewGroupService creates a new GroupService instance. An empty
// defaultPrefix falls back to model.DefaultPrefix.
func NewGroupService(groups GroupStore, defaultPrefix string) *GroupService {
	if defaultPrefix == "" {
		defaultPrefix = model.DefaultPrefix
	}
	return &GroupService{groups: groups, defaultPrefix: defaultPrefix}
}

// DefaultPrefix returns the prefix of unconfigured groups.
func (s *GroupService) DefaultPrefix() string {
	return s.defaultPrefix
}

// Config returns the effective configuration of a group.
func (s *GroupService) Config(ctx context.Context, groupID string) (*model.GroupConfig, error) {
	cfg, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get group config: %w", err)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = s.defaultPrefix
	}
	return cfg, nil
}

// Prefix returns the command prefix of a group.
func (s *GroupService) Prefix(ctx context.Context, groupID string) (string, error) {
	cfg, err := s.Config(ctx, groupID)
	if err != nil {
		return "", err
	}
	return cfg.Prefix, nil
}

// ValidatePrefix checks a candidate prefix.
func ValidatePrefix(prefix string) error {
	if prefix == "" || utf8.RuneCountInString(prefix) > MaxPrefixLen {
		return fmt.Errorf("%w: must be 1 to %d characters", ErrInvalidPrefix, MaxPrefixLen)
	}
	if strings.IndexFunc(prefix, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: must not contain spaces", ErrInvalidPrefix)
	}
	return nil
}

// SetPrefix stores a new command prefix for a group.
func (s *GroupService) SetPrefix(ctx context.Context, groupID, prefix string) (*model.GroupConfig, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return nil, err
	}
	cfg, err := s.groups.Upsert(ctx, groupID, model.GroupConfigUpdate{Prefix: &prefix})
	if err != nil {
		return nil, fmt.Errorf("failed to set prefix: %w", err)
	}
	return cfg, nil
}

// SetAutosticker turns automatic sticker replies of a group on or off.
func (s *GroupService) SetAutosticker(ctx context.Context, groupID string, enabled bool) (*model.GroupConfig, error) {
	cfg, err := s.groups.Upsert(ctx, groupID, model.GroupConfigUpdate{Autosticker: &enabled})
	if err != nil {
		return nil, fmt.Errorf("failed to set autosticker: %w", err)
	}
	return cfg, nil
}
