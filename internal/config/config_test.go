package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "subscription-bridge/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_LINK_SECRET", "link")
	t.Setenv("PRODAMUS_SECRET", "provider")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.SignatureStrict())
	assert.Equal(t, "success", cfg.Prodamus.SuccessStatus)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, "@every 30m", cfg.Enforcer.Schedule)
	assert.Equal(t, 60*time.Second, cfg.Enforcer.BanDuration)
	assert.Equal(t, 80*time.Millisecond, cfg.Enforcer.Pause)
	assert.Equal(t, []string{"prodamus"}, cfg.WebhookProviders)

	prices, err := cfg.PriceDaysTable()
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1299: 30, 3599: 90, 12900: 365}, prices)
	assert.Equal(t, 30, cfg.NameUnitsTable()["месяца"])

	require.Len(t, cfg.Tariffs, 3)
	quarter, ok := cfg.Tariff("QUARTER")
	require.True(t, ok)
	assert.Equal(t, 90, quarter.Days)
	assert.True(t, decimal.NewFromInt(3599).Equal(quarter.Price))
	assert.Contains(t, quarter.ProductName, "3 месяца")
}

func TestLoadRequiresLinkSecret(t *testing.T) {
	t.Setenv("BOT_LINK_SECRET", "")
	t.Setenv("PRODAMUS_SECRET", "provider")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
	assert.Contains(t, err.Error(), "BOT_LINK_SECRET")
}

func TestLoadProviderSecretNeedsExplicitInsecureMode(t *testing.T) {
	t.Setenv("BOT_LINK_SECRET", "link")
	t.Setenv("PRODAMUS_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))

	t.Setenv("PRODAMUS_INSECURE_SKIP_SIGNATURE", "true")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Prodamus.Secret)
}

func TestLoadLenientAndBadMode(t *testing.T) {
	t.Setenv("BOT_LINK_SECRET", "link")
	t.Setenv("PRODAMUS_SECRET", "provider")
	t.Setenv("PRODAMUS_SIGNATURE_MODE", "lenient")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.SignatureStrict())

	t.Setenv("PRODAMUS_SIGNATURE_MODE", "maybe")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRODAMUS_SIGNATURE_MODE")
}

func TestLoadCustomTables(t *testing.T) {
	t.Setenv("BOT_LINK_SECRET", "link")
	t.Setenv("PRODAMUS_SECRET", "provider")
	t.Setenv("RECONCILE_PRICE_DAYS", "100:7,250.00:14")
	t.Setenv("TARIFFS", "week|7|100|Week pass")

	cfg, err := Load()
	require.NoError(t, err)

	prices, err := cfg.PriceDaysTable()
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{100: 7, 250: 14}, prices)
	require.Len(t, cfg.Tariffs, 1)
	assert.Equal(t, "week", cfg.Tariffs[0].Code)

	t.Setenv("RECONCILE_PRICE_DAYS", "100:0")
	_, err = Load()
	require.Error(t, err)
}

func TestTariffUnmarshalText(t *testing.T) {
	var tr Tariff
	require.NoError(t, tr.UnmarshalText([]byte(" month | 30 | 1299.50 | Name | with pipe")))
	assert.Equal(t, "month", tr.Code)
	assert.Equal(t, 30, tr.Days)
	assert.Equal(t, "1299.5", tr.Price.String())
	assert.Equal(t, "Name | with pipe", tr.ProductName)

	assert.Error(t, tr.UnmarshalText([]byte("month|30|1299")))
	assert.Error(t, tr.UnmarshalText([]byte("month|x|1299|n")))
	assert.Error(t, tr.UnmarshalText([]byte("month|30|abc|n")))
}
