package config

import (
	"fmt"
	"time"

	"gopherwallet.com/internal/wallet/domain"
	"gopherwallet.com/pkg/bootstrap"
	"gopherwallet.com/pkg/orm"
	"gopherwallet.com/pkg/trace"
	"gopherwallet.com/pkg/xredis"
)

const ServiceName = "wallet-service"

type Config struct {
	Name      string                `yaml:"name" mapstructure:"name"`
	Env       string                `yaml:"env" mapstructure:"env"`
	Log       Log                   `yaml:"log" mapstructure:"log"`
	HTTP      Listen                `yaml:"http" mapstructure:"http"`
	GRPC      Listen                `yaml:"grpc" mapstructure:"grpc"`
	Metrics   Listen                `yaml:"metrics" mapstructure:"metrics"`
	Pprof     Listen                `yaml:"pprof" mapstructure:"pprof"`
	MySQL     orm.Config            `yaml:"mysql" mapstructure:"mysql"`
	Redis     xredis.Config         `yaml:"redis" mapstructure:"redis"` // addr 为空则用进程内锁
	Nats      Nats                  `yaml:"nats" mapstructure:"nats"`   // url 为空则只写库
	Etcd      bootstrap.EtcdCfg     `yaml:"etcd" mapstructure:"etcd"`
	Trace     trace.Config          `yaml:"trace" mapstructure:"trace"`
	Vault     Vault                 `yaml:"vault" mapstructure:"vault"`
	Ledger    Ledger                `yaml:"ledger" mapstructure:"ledger"`
	Transfer  Transfer              `yaml:"transfer" mapstructure:"transfer"`
	RateLimit RateLimit             `yaml:"rate_limit" mapstructure:"rate_limit"`
	Sentinel  bootstrap.SentinelCfg `yaml:"sentinel" mapstructure:"sentinel"`
	Tokens    TokenCatalog          `yaml:"tokens" mapstructure:"tokens"`
}

type Log struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
}

type Listen struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

type Nats struct {
	URL           string `yaml:"url" mapstructure:"url"`
	SubjectPrefix string `yaml:"subject_prefix" mapstructure:"subject_prefix"`
}

// Vault scrypt 成本参数，N 必须是 2 的幂
type Vault struct {
	ScryptN int `yaml:"scrypt_n" mapstructure:"scrypt_n"`
	ScryptR int `yaml:"scrypt_r" mapstructure:"scrypt_r"`
	ScryptP int `yaml:"scrypt_p" mapstructure:"scrypt_p"`
}

type Ledger struct {
	LockPrefix string        `yaml:"lock_prefix" mapstructure:"lock_prefix"`
	LockTTL    time.Duration `yaml:"lock_ttl" mapstructure:"lock_ttl"`
}

type Transfer struct {
	SettleTimeout time.Duration `yaml:"settle_timeout" mapstructure:"settle_timeout"`
	// 模拟结算耗时
	SettleDelay time.Duration `yaml:"settle_delay" mapstructure:"settle_delay"`
	Breaker     Breaker       `yaml:"breaker" mapstructure:"breaker"`
}

type Breaker struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" mapstructure:"consecutive_failures"`
	FailureRate         float64       `yaml:"failure_rate" mapstructure:"failure_rate"`
	MinRequests         uint32        `yaml:"min_requests" mapstructure:"min_requests"`
	OpenTimeout         time.Duration `yaml:"open_timeout" mapstructure:"open_timeout"`
}

type RateLimit struct {
	RPS   float64       `yaml:"rps" mapstructure:"rps"`
	Burst int           `yaml:"burst" mapstructure:"burst"`
	TTL   time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

type TokenCatalog struct {
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	Seed     []TokenSeed   `yaml:"seed" mapstructure:"seed"`
}

type TokenSeed struct {
	Symbol          string `yaml:"symbol" mapstructure:"symbol"`
	Network         string `yaml:"network" mapstructure:"network"`
	Name            string `yaml:"name" mapstructure:"name"`
	ContractAddress string `yaml:"contract_address" mapstructure:"contract_address"`
	Decimals        int    `yaml:"decimals" mapstructure:"decimals"`
	Active          bool   `yaml:"active" mapstructure:"active"`
	LogoURL         string `yaml:"logo_url" mapstructure:"logo_url"`
}

// ApplyDefaults 文件里没写的项补默认值
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = ServiceName
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8102"
	}
	if c.GRPC.Addr == "" {
		c.GRPC.Addr = ":9102"
	}
	if c.MySQL.MaxOpen == 0 {
		c.MySQL.MaxOpen = 50
	}
	if c.MySQL.MaxIdle == 0 {
		c.MySQL.MaxIdle = 10
	}
	if c.MySQL.MaxLifetime == 0 {
		c.MySQL.MaxLifetime = 1800
	}
	if c.Ledger.LockTTL <= 0 {
		c.Ledger.LockTTL = 30 * time.Second
	}
	if c.Transfer.SettleTimeout <= 0 {
		c.Transfer.SettleTimeout = 30 * time.Second
	}
	if c.Transfer.Breaker.ConsecutiveFailures == 0 && c.Transfer.Breaker.FailureRate == 0 {
		c.Transfer.Breaker.ConsecutiveFailures = 5
	}
	if c.Transfer.Breaker.OpenTimeout <= 0 {
		c.Transfer.Breaker.OpenTimeout = 10 * time.Second
	}
	if c.RateLimit.RPS <= 0 {
		c.RateLimit.RPS = 50
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 100
	}
	if c.RateLimit.TTL <= 0 {
		c.RateLimit.TTL = 10 * time.Minute
	}
	if c.Tokens.CacheTTL <= 0 {
		c.Tokens.CacheTTL = 5 * time.Minute
	}
	if c.Nats.SubjectPrefix == "" {
		c.Nats.SubjectPrefix = "wallet.audit"
	}
}

func (c *Config) Validate() error {
	if c.MySQL.DSN == "" {
		return fmt.Errorf("mysql.dsn is required")
	}
	if n := c.Vault.ScryptN; n != 0 && n&(n-1) != 0 {
		return fmt.Errorf("vault.scrypt_n must be a power of two, got %d", n)
	}
	for i, t := range c.Tokens.Seed {
		if t.Symbol == "" {
			return fmt.Errorf("tokens.seed[%d]: symbol is required", i)
		}
		if !domain.ParseNetwork(t.Network).Supported() {
			return fmt.Errorf("tokens.seed[%d]: unsupported network %q", i, t.Network)
		}
	}
	return nil
}

// SeedTokens 转成 tokens.Directory.Seed 的入参
func (c *Config) SeedTokens() []domain.Token {
	out := make([]domain.Token, 0, len(c.Tokens.Seed))
	for _, s := range c.Tokens.Seed {
		t := domain.Token{
			Symbol:   s.Symbol,
			Network:  domain.ParseNetwork(s.Network),
			Name:     s.Name,
			Decimals: s.Decimals,
			IsActive: s.Active,
			LogoURL:  s.LogoURL,
		}
		if s.ContractAddress != "" {
			addr := s.ContractAddress
			t.ContractAddress = &addr
		}
		out = append(out, t)
	}
	return out
}
