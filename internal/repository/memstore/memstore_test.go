package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"rpg-chat-bot/internal/model"
	"rpg-chat-bot/internal/repository"
)

func TestUsers(t *testing.T) {
	s := New()
	users := s.Users()
	ctx := context.Background()
	base := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, users.Ensure(ctx, "1@user", "Alice"))
	require.NoError(t, users.Ensure(ctx, "1@user", "Other"))
	require.NoError(t, users.Touch(ctx, "2@user", "sam", base))
	require.NoError(t, users.Touch(ctx, "3@user", "Sam", base.Add(time.Minute)))
	require.NoError(t, users.Touch(ctx, "1@user", "", base))

	alice, err := users.Get(ctx, "1@user")
	require.NoError(t, err)
	assert.Equal(t, "Alice", alice.Name)

	found, err := users.FindByName(ctx, "SAM")
	require.NoError(t, err)
	assert.Equal(t, "3@user", found.ID)

	_, err = users.Get(ctx, "404@user")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	_, err = users.FindByName(ctx, "nobody")
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, users.SetRoles(ctx, "9@user", false, true))
	list, err := users.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, "1@user", list[0].ID)
	assert.Equal(t, "9@user", list[3].ID)
	assert.True(t, list[3].IsOwner)

	// Returned rows are copies.
	alice.Name = "mutated"
	again, err := users.Get(ctx, "1@user")
	require.NoError(t, err)
	assert.Equal(t, "Alice", again.Name)
}

func TestStats(t *testing.T) {
	s := New()
	ctx := context.Background()
	stats := s.Stats()

	assert.Error(t, stats.Create(ctx, model.NewPlayerStats("1@user")), "user row required")

	require.NoError(t, s.Users().Ensure(ctx, "1@user", "Alice"))
	require.NoError(t, stats.Create(ctx, model.NewPlayerStats("1@user")))

	row, err := stats.GetForUpdate(ctx, "1@user")
	require.NoError(t, err)
	row.Coins = 40
	row.Bank = 2
	require.NoError(t, stats.Save(ctx, row))
	require.NoError(t, stats.Create(ctx, model.NewPlayerStats("1@user")))

	total, err := stats.TotalCoins(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), total)

	row.Coins = -1
	assert.Error(t, stats.Save(ctx, row))

	_, err = stats.Get(ctx, "2@user")
	assert.ErrorIs(t, err, repository.ErrStatsNotFound)
}

func TestGroups(t *testing.T) {
	s := New()
	groups := s.Groups()
	ctx := context.Background()

	cfg, err := groups.Get(ctx, "-1@group")
	require.NoError(t, err)
	assert.Empty(t, cfg.Prefix)

	prefix := "?"
	cfg, err = groups.Upsert(ctx, "-1@group", model.GroupConfigUpdate{Prefix: &prefix})
	require.NoError(t, err)
	assert.Equal(t, "?", cfg.Prefix)

	cfg, err = groups.Upsert(ctx, "-1@group", model.GroupConfigUpdate{})
	require.NoError(t, err)
	assert.Equal(t, "?", cfg.Prefix)
	assert.False(t, cfg.Autosticker)

	on := true
	cfg, err = groups.Upsert(ctx, "-1@group", model.GroupConfigUpdate{Autosticker: &on})
	require.NoError(t, err)
	assert.True(t, cfg.Autosticker)
	assert.Equal(t, "?", cfg.Prefix)
}

func TestEntries(t *testing.T) {
	s := New()
	entries := s.Entries()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		_, err := entries.Create(ctx, "1@user", i, model.TxTypeAdjust, nil)
		require.NoError(t, err)
	}
	_, err := entries.Create(ctx, "2@user", 99, model.TxTypeAdjust, nil)
	require.NoError(t, err)

	txs, err := entries.GetByUserID(ctx, "1@user", 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(3), txs[0].Amount)
	assert.Equal(t, int64(2), txs[1].Amount)
}

func TestWithinTx_RollsBack(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Users().Ensure(ctx, "1@user", "Alice"))

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Users().Ensure(ctx, "2@user", "Bob"))
		_, err := s.Entries().Create(ctx, "2@user", 5, model.TxTypeAdjust, nil)
		require.NoError(t, err)
		prefix := "#"
		_, err = s.Groups().Upsert(ctx, "-1@group", model.GroupConfigUpdate{Prefix: &prefix})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Users().Get(ctx, "2@user")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	txs, err := s.Entries().GetByUserID(ctx, "2@user", 0)
	require.NoError(t, err)
	assert.Empty(t, txs)
	cfg, err := s.Groups().Get(ctx, "-1@group")
	require.NoError(t, err)
	assert.Empty(t, cfg.Prefix)
}

// Property: a failed transaction leaves every balance exactly as it was.
func TestWithinTx_RollbackProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := New()
		ctx := context.Background()
		ids := []string{"1@user", "2@user", "3@user"}
		for _, id := range ids {
			require.NoError(t, s.Users().Ensure(ctx, id, id))
			row := model.NewPlayerStats(id)
			row.Coins = rapid.Int64Range(0, 1000).Draw(t, "coins_"+id)
			require.NoError(t, s.Stats().Save(ctx, row))
		}
		before, err := s.Stats().TotalCoins(ctx)
		require.NoError(t, err)

		writes := rapid.IntRange(1, 10).Draw(t, "writes")
		err = s.WithinTx(ctx, func(ctx context.Context) error {
			for i := 0; i < writes; i++ {
				id := rapid.SampledFrom(ids).Draw(t, "id")
				row, err := s.Stats().GetForUpdate(ctx, id)
				if err != nil {
					return err
				}
				row.Coins += rapid.Int64Range(0, 500).Draw(t, "delta")
				if err := s.Stats().Save(ctx, row); err != nil {
					return err
				}
			}
			return errors.New("abort")
		})
		require.Error(t, err)

		after, err := s.Stats().TotalCoins(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}
