package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpg-chat-bot/internal/identity"
	"rpg-chat-bot/internal/names"
	"rpg-chat-bot/internal/repository/memstore"
)

type stubAliases map[string]string

func (s stubAliases) ResolveAlias(_ context.Context, alias string) (string, error) {
	if id, ok := s[alias]; ok {
		return id, nil
	}
	return "", errors.New("unknown alias")
}

func newTestAccounts() (*AccountService, *memstore.Store, *names.Directory) {
	ledger, store := newTestLedger()
	dir := names.NewDirectory()
	resolver := identity.New(identity.DefaultScheme, stubAliases{"zed@alias": "777@user"})
	return NewAccountService(store.Users(), ledger, resolver, dir), store, dir
}

func TestAccountService_EnsureUser(t *testing.T) {
	accounts, store, _ := newTestAccounts()
	ctx := context.Background()

	user, err := accounts.EnsureUser(ctx, "1@user", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)

	_, err = store.Stats().Get(ctx, "1@user")
	require.NoError(t, err)

	// An empty name keeps the stored one.
	user, err = accounts.EnsureUser(ctx, "1@user", "")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)
}

func TestAccountService_FindUser(t *testing.T) {
	accounts, store, dir := newTestAccounts()
	ctx := context.Background()

	dir.Set("1@user", "Alice")
	require.NoError(t, store.Users().Touch(ctx, "2@user", "Bruno", accounts.now()))

	tests := []struct {
		query string
		want  string
	}{
		{"@alice", "1@user"},
		{"ALICE", "1@user"},
		{"@zed", "777@user"},
		{"+55 11 4444-5555", "551144445555@user"},
		{"123:4@user", "123@user"},
		{"bruno", "2@user"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := accounts.FindUser(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := accounts.FindUser(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = accounts.FindUser(ctx, "  ")
	assert.ErrorIs(t, err, ErrUserNotFound)

	// Identifiers that are not canonical users never come back.
	for _, query := range []string{"ghost@alias", "-100@group", "@ghost"} {
		_, err = accounts.FindUser(ctx, query)
		assert.ErrorIs(t, err, ErrUserNotFound, query)
	}
}

func TestAccountService_SeedOwners(t *testing.T) {
	accounts, store, _ := newTestAccounts()
	ctx := context.Background()
	require.NoError(t, store.Users().SetRoles(ctx, "2@user", true, false))

	require.NoError(t, accounts.SeedOwners(ctx, []string{"1", "2@user", "not-a-number"}))

	u1, err := store.Users().Get(ctx, "1@user")
	require.NoError(t, err)
	assert.True(t, u1.IsOwner)
	assert.False(t, u1.IsAdmin)

	u2, err := store.Users().Get(ctx, "2@user")
	require.NoError(t, err)
	assert.True(t, u2.IsOwner)
	assert.True(t, u2.IsAdmin)
}

func TestAccountService_RebuildDirectoryAndDisplayName(t *testing.T) {
	accounts, store, _ := newTestAccounts()
	ctx := context.Background()
	require.NoError(t, store.Users().Touch(ctx, "1@user", "Alice", accounts.now()))

	dir := names.NewDirectory()
	n, err := accounts.RebuildDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	id, ok := dir.LookupByName("alice")
	require.True(t, ok)
	assert.Equal(t, "1@user", id)

	assert.Equal(t, "Alice", accounts.DisplayName(ctx, "1@user"))
	assert.Equal(t, "99", accounts.DisplayName(ctx, "99@user"))
}

func TestGroupService_Prefix(t *testing.T) {
	store := memstore.New()
	groups := NewGroupService(store.Groups(), "")
	ctx := context.Background()

	prefix, err := groups.Prefix(ctx, "-1@group")
	require.NoError(t, err)
	assert.Equal(t, "!", prefix)

	_, err = groups.SetPrefix(ctx, "-1@group", "#")
	require.NoError(t, err)
	prefix, err = groups.Prefix(ctx, "-1@group")
	require.NoError(t, err)
	assert.Equal(t, "#", prefix)

	for _, bad := range []string{"", "toolong", "a b"} {
		_, err := groups.SetPrefix(ctx, "-1@group", bad)
		assert.ErrorIs(t, err, ErrInvalidPrefix, bad)
	}
}

func TestGroupService_SetAutosticker(t *testing.T) {
	groups := NewGroupService(memstore.New().Groups(), "")
	ctx := context.Background()

	cfg, err := groups.Config(ctx, "-1@group")
	require.NoError(t, err)
	assert.False(t, cfg.Autosticker)

	_, err = groups.SetAutosticker(ctx, "-1@group", true)
	require.NoError(t, err)
	cfg, err = groups.Config(ctx, "-1@group")
	require.NoError(t, err)
	assert.True(t, cfg.Autosticker)
	assert.Equal(t, "!", cfg.Prefix)
}

func TestGroupService_ConfiguredDefault(t *testing.T) {
	groups := NewGroupService(memstore.New().Groups(), ".")
	prefix, err := groups.Prefix(context.Background(), "-2@group")
	require.NoError(t, err)
	assert.Equal(t, ".", prefix)
	assert.Equal(t, ".", groups.DefaultPrefix())
}
