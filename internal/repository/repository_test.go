package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"subscription-bridge/internal/client"
	"subscription-bridge/internal/model"
)

var dbSeq atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return openTestDB(t, fmt.Sprintf("file:repo_test_%d?mode=memory&cache=shared", dbSeq.Add(1)))
}

// newFileTestDB backs the database with a file so concurrent tests do not
// rely on the in-memory shared cache.
func newFileTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return openTestDB(t, filepath.Join(t.TempDir(), "repo.db")+"?_busy_timeout=5000")
}

func openTestDB(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	db, err := client.InitDB("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

const day = int64(24 * time.Hour / time.Millisecond)

func TestWebhookEventMarkProcessed(t *testing.T) {
	ctx := context.Background()
	repo := NewWebhookEventRepository(newTestDB(t))

	first, err := repo.MarkProcessed(ctx, nil, "prodamus", "E1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := repo.MarkProcessed(ctx, nil, "prodamus", "E1")
	require.NoError(t, err)
	assert.False(t, again)

	other, err := repo.MarkProcessed(ctx, nil, "other", "E1")
	require.NoError(t, err)
	assert.True(t, other, "event ids are scoped per provider")

	exists, err := repo.Exists(ctx, "prodamus", "E1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(ctx, "prodamus", "E2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWebhookEventConcurrentMarkHasOneWinner(t *testing.T) {
	ctx := context.Background()
	repo := NewWebhookEventRepository(newTestDB(t))

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := repo.MarkProcessed(ctx, nil, "prodamus", "race")
			if err == nil && first {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestWebhookEventRolledBackMarkIsForgotten(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewWebhookEventRepository(db)

	err := db.Transaction(func(tx *gorm.DB) error {
		first, err := repo.MarkProcessed(ctx, tx, "prodamus", "E9")
		require.NoError(t, err)
		require.True(t, first)
		return fmt.Errorf("grant failed")
	})
	require.Error(t, err)

	first, err := repo.MarkProcessed(ctx, nil, "prodamus", "E9")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestSubscriptionExtendAdditive(t *testing.T) {
	ctx := context.Background()
	repo := NewSubscriptionRepository(newTestDB(t))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	sub, err := repo.Extend(ctx, nil, 10, now, 30*day)
	require.NoError(t, err)
	assert.Equal(t, now+30*day, sub.ExpiresAtMillis)

	// still active ten days later: the new period stacks on the old expiry
	sub, err = repo.Extend(ctx, nil, 10, now+10*day, 30*day)
	require.NoError(t, err)
	assert.Equal(t, now+60*day, sub.ExpiresAtMillis)

	// lapsed: the period restarts from now
	later := now + 100*day
	sub, err = repo.Extend(ctx, nil, 10, later, 7*day)
	require.NoError(t, err)
	assert.Equal(t, later+7*day, sub.ExpiresAtMillis)

	got, err := repo.Get(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, later+7*day, got.ExpiresAtMillis)
}

func TestSubscriptionExtendConcurrentNoLostUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewSubscriptionRepository(newFileTestDB(t))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	const n = 8
	var (
		wg     sync.WaitGroup
		failed atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Extend(ctx, nil, 10, now, 30*day); err != nil {
				failed.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Zero(t, failed.Load())
	got, err := repo.Get(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, now+n*30*day, got.ExpiresAtMillis)
}

func TestSubscriptionGetDeleteAndExpired(t *testing.T) {
	ctx := context.Background()
	repo := NewSubscriptionRepository(newTestDB(t))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	_, err := repo.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Extend(ctx, nil, 3, now-10*day, 5*day) // expired
	require.NoError(t, err)
	_, err = repo.Extend(ctx, nil, 1, now-40*day, 30*day) // expired
	require.NoError(t, err)
	_, err = repo.Extend(ctx, nil, 2, now, 30*day) // active
	require.NoError(t, err)

	ids, err := repo.ListExpiredSince(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)

	deleted, err := repo.Delete(ctx, 1)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, 1)
	require.NoError(t, err)
	assert.False(t, deleted)

	ids, err = repo.ListExpiredSince(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids)
}

func TestOrderCreateFindMarkPaid(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(newTestDB(t))

	order := &model.Order{
		OrderID:  "ord-1",
		UserID:   5,
		Plan:     "month",
		Days:     30,
		Amount:   decimal.NewFromInt(1299),
		Currency: "rub",
		Token:    "swb:5:30:abc",
	}
	require.NoError(t, repo.Create(ctx, nil, order))

	got, err := repo.FindByOrderID(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.UserID)
	assert.True(t, decimal.NewFromInt(1299).Equal(got.Amount))
	assert.Nil(t, got.PaidAt)

	_, err = repo.FindByOrderID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	paidAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	changed, err := repo.MarkPaid(ctx, nil, "ord-1", paidAt)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkPaid(ctx, nil, "ord-1", paidAt.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	got, err = repo.FindByOrderID(ctx, "ord-1")
	require.NoError(t, err)
	require.NotNil(t, got.PaidAt)
	assert.True(t, paidAt.Equal(*got.PaidAt))
}

func TestSettingGetSet(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingRepository(newTestDB(t))

	_, err := repo.Get(ctx, model.SettingGroupInviteURL)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Set(ctx, model.SettingGroupInviteURL, "https://t.me/+a"))
	require.NoError(t, repo.Set(ctx, model.SettingGroupInviteURL, "https://t.me/+b"))

	v, err := repo.Get(ctx, model.SettingGroupInviteURL)
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/+b", v)
}
