package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mt5dash/internal/domain"
	"mt5dash/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopLogger struct{}

func (noopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (noopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: noopLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleDeal(ticket int64, at time.Time) domain.Deal {
	return domain.Deal{
		ID:         ticket,
		PositionID: ticket,
		OrderID:    ticket * 2,
		Time:       at,
		Symbol:     "EURUSD",
		Strategy:   7,
		Type:       domain.DealBuy,
		Entry:      domain.EntryIn,
		Volume:     0.5,
		Price:      1.1,
		Profit:     12.5,
		Commission: -0.7,
		Swap:       -0.1,
	}
}

func TestRepository(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	const login = int64(12345)

	t.Run("round trip preserves all fields", func(t *testing.T) {
		repo := newTestRepo(t)
		want := sampleDeal(1, base)
		require.NoError(t, repo.UpsertDeals(ctx, login, []domain.Deal{want}))

		got, err := repo.DealsInRange(ctx, login, base.Add(-time.Hour), base.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, want, got[0])
	})

	t.Run("upsert replay is idempotent", func(t *testing.T) {
		repo := newTestRepo(t)
		deals := []domain.Deal{sampleDeal(1, base), sampleDeal(2, base.Add(time.Minute))}
		require.NoError(t, repo.UpsertDeals(ctx, login, deals))
		require.NoError(t, repo.UpsertDeals(ctx, login, deals))

		got, err := repo.DealsInRange(ctx, login, base.Add(-time.Hour), base.Add(time.Hour))
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("range bounds are inclusive and ordered ascending", func(t *testing.T) {
		repo := newTestRepo(t)
		deals := []domain.Deal{
			sampleDeal(3, base.Add(2*time.Hour)),
			sampleDeal(1, base),
			sampleDeal(2, base.Add(time.Hour)),
		}
		require.NoError(t, repo.UpsertDeals(ctx, login, deals))

		got, err := repo.DealsInRange(ctx, login, base, base.Add(2*time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, int64(1), got[0].ID)
		assert.Equal(t, int64(2), got[1].ID)
		assert.Equal(t, int64(3), got[2].ID)

		got, err = repo.DealsInRange(ctx, login, base.Add(time.Minute), base.Add(90*time.Minute))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(2), got[0].ID)
	})

	t.Run("accounts are isolated", func(t *testing.T) {
		repo := newTestRepo(t)
		require.NoError(t, repo.UpsertDeals(ctx, login, []domain.Deal{sampleDeal(1, base)}))
		require.NoError(t, repo.UpsertDeals(ctx, 99999, []domain.Deal{sampleDeal(1, base)}))

		got, err := repo.DealsInRange(ctx, login, base.Add(-time.Hour), base.Add(time.Hour))
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("first deal time", func(t *testing.T) {
		repo := newTestRepo(t)

		_, err := repo.FirstDealTime(ctx, login)
		assert.ErrorIs(t, err, ports.ErrNoHistory)

		deals := []domain.Deal{sampleDeal(2, base.Add(time.Hour)), sampleDeal(1, base)}
		require.NoError(t, repo.UpsertDeals(ctx, login, deals))

		first, err := repo.FirstDealTime(ctx, login)
		require.NoError(t, err)
		assert.Equal(t, base, first)
	})

	t.Run("empty upsert is a no-op", func(t *testing.T) {
		repo := newTestRepo(t)
		require.NoError(t, repo.UpsertDeals(ctx, login, nil))
	})
}
