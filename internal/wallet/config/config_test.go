package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopherwallet.com/internal/wallet/domain"
	pkgconfig "gopherwallet.com/pkg/config"
)

const sample = `
mysql:
  dsn: "root:pw@tcp(127.0.0.1:3306)/w"
vault:
  scrypt_n: 16384
transfer:
  settle_timeout: 5s
ledger:
  lock_ttl: 15s
sentinel:
  flow:
    enabled: true
    rules:
      - resource: "POST:/api/transfers"
        threshold: 10
        stat_interval_ms: 500
tokens:
  seed:
    - { symbol: usdt, network: Ethereum, decimals: 6, active: true, contract_address: "0xdAC17F958D2ee523a2206206994597C13D831ec7" }
    - { symbol: BTC, network: bitcoin, active: false }
`

func load(t *testing.T, body string) *Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ServiceName+".yaml"), []byte(body), 0o644))
	var c Config
	_, err := pkgconfig.Load(ServiceName, &c, dir)
	require.NoError(t, err)
	c.ApplyDefaults()
	return &c
}

func TestLoad_WithDefaults(t *testing.T) {
	c := load(t, sample)
	require.NoError(t, c.Validate())

	assert.Equal(t, ServiceName, c.Name)
	assert.Equal(t, ":8102", c.HTTP.Addr)
	assert.Equal(t, 5*time.Second, c.Transfer.SettleTimeout)
	assert.Equal(t, 15*time.Second, c.Ledger.LockTTL)
	assert.Equal(t, 16384, c.Vault.ScryptN)
	assert.Equal(t, uint32(5), c.Transfer.Breaker.ConsecutiveFailures)
	assert.Equal(t, "wallet.audit", c.Nats.SubjectPrefix)
	require.Len(t, c.Sentinel.Flow.Rules, 1)
	assert.Equal(t, uint32(500), c.Sentinel.Flow.Rules[0].StatIntervalMs)
}

func TestSeedTokens(t *testing.T) {
	c := load(t, sample)
	tokens := c.SeedTokens()
	require.Len(t, tokens, 2)
	assert.Equal(t, domain.NetworkEthereum, tokens[0].Network)
	assert.Equal(t, 6, tokens[0].Decimals)
	require.NotNil(t, tokens[0].ContractAddress)
	assert.True(t, tokens[0].IsActive)
	assert.Nil(t, tokens[1].ContractAddress)
	assert.False(t, tokens[1].IsActive)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mut  func(c *Config)
	}{
		{"缺少 dsn", func(c *Config) { c.MySQL.DSN = "" }},
		{"scrypt_n 不是 2 的幂", func(c *Config) { c.Vault.ScryptN = 1000 }},
		{"不支持的网络", func(c *Config) { c.Tokens.Seed[0].Network = "tron" }},
		{"缺少 symbol", func(c *Config) { c.Tokens.Seed[0].Symbol = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := load(t, sample)
			tt.mut(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestShippedConfigParses(t *testing.T) {
	var c Config
	_, err := pkgconfig.Load(ServiceName, &c, filepath.Join("..", "..", "..", "config"))
	require.NoError(t, err)
	c.ApplyDefaults()
	require.NoError(t, c.Validate())
	assert.NotEmpty(t, c.Tokens.Seed)
	assert.Equal(t, "otlp", c.Trace.Exporter)
}
