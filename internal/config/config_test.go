package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
env: test
http_server:
  port: "9090"
ledger_db:
  driver: postgres
  dsn: postgres://ledger@localhost/ledger
settlement:
  default_currency: usd
  payin_ttl: 2h
providers:
  shoplink:
    base_url: https://pay.example.com
    private_key: secret
    fee_percent: "2.5"
    aliases: [shop-link]
methods:
  - id: card-rub
    provider: ShopLink
    direction: payin
    min_amount: "100"
    max_amount: "50000"
    enabled: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "9090", cfg.HTTPServer.Port)
	assert.Equal(t, "postgres", cfg.LedgerDB.Driver)
	assert.Equal(t, 2*time.Hour, cfg.Settlement.PayinTTL)
	assert.Equal(t, 15*time.Second, cfg.Settlement.GatewayTimeout)
	assert.Equal(t, "info", cfg.LogConfig.LogLevel)
	assert.False(t, cfg.KafkaService.Enabled())

	settings, err := cfg.Providers["shoplink"].Settings()
	require.NoError(t, err)
	assert.Equal(t, "secret", settings.PrivateKey)
	assert.True(t, settings.FeePercent.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, []string{"shop-link"}, cfg.Providers["shoplink"].Aliases)

	require.Len(t, cfg.Methods, 1)
	m, err := cfg.Methods[0].PaymentMethod()
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionPayin, m.Direction)
	assert.True(t, m.MaxAmount.Equal(decimal.NewFromInt(50000)))
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LEDGER_DB_DRIVER", "dynamodb")
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "dynamodb", cfg.LedgerDB.Driver)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestMethodConfig_Invalid(t *testing.T) {
	_, err := MethodConfig{ID: "x", MinAmount: "ten"}.PaymentMethod()
	assert.Error(t, err)
	_, err = MethodConfig{}.PaymentMethod()
	assert.Error(t, err)
}
