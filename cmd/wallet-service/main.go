package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	userRepo "gopherwallet.com/internal/user/repo"
	"gopherwallet.com/internal/wallet/audit"
	"gopherwallet.com/internal/wallet/config"
	"gopherwallet.com/internal/wallet/domain"
	"gopherwallet.com/internal/wallet/keyvault"
	"gopherwallet.com/internal/wallet/ledger"
	"gopherwallet.com/internal/wallet/registry"
	"gopherwallet.com/internal/wallet/repo"
	"gopherwallet.com/internal/wallet/server"
	"gopherwallet.com/internal/wallet/tokens"
	"gopherwallet.com/internal/wallet/transfer"
	"gopherwallet.com/pkg/bootstrap"
	pkgconfig "gopherwallet.com/pkg/config"
	"gopherwallet.com/pkg/logger"
	"gopherwallet.com/pkg/metrics"
	"gopherwallet.com/pkg/orm"
	"gopherwallet.com/pkg/ratelimit"
	"gopherwallet.com/pkg/trace"
	"gopherwallet.com/pkg/xredis"
)

var (
	configDir = flag.String("c", "./config", "config directory, loads {dir}/wallet-service.yaml")
	healthAddr = flag.String("healthcheck", "", "grpc health check target, e.g. 127.0.0.1:9102")
)

func main() {
	flag.Parse()

	if *healthAddr != "" {
		os.Exit(healthcheck(*healthAddr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Error(context.Background(), "❌ wallet-service 退出", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

// healthcheck 容器健康检查用：SERVING 返回 0
func healthcheck(addr string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	breakers := ratelimit.NewManager(config.ServiceName+"-healthcheck", ratelimit.Rule{}, nil)
	status, err := server.CheckHealth(ctx, addr, config.ServiceName, breakers)
	if err != nil {
		fmt.Fprintln(os.Stderr, "health check failed:", err)
		return 1
	}
	fmt.Println(status.String())
	if status.String() != "SERVING" {
		return 1
	}
	return 0
}

func run(ctx context.Context) error {
	var cfg config.Config
	watcher, err := pkgconfig.LoadAndWatch(config.ServiceName, &cfg, *configDir, ".")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.InitWithFile(cfg.Name, cfg.Log.Level, cfg.Log.File)
	logger.Info(ctx, "🚀 wallet-service 启动中", zap.String("env", cfg.Env), zap.String("config", watcher.File()))

	// 热更新只影响 sentinel 规则，其余配置需要重启
	watcher.OnChange(func() {
		if err := bootstrap.LoadSentinelRules(&cfg.Sentinel); err != nil {
			logger.Warn(context.Background(), "⚠️ Sentinel 规则热更新失败", zap.Error(err))
		}
	})
	watcher.OnError(func(err error) {
		logger.Warn(context.Background(), "⚠️ 配置热更新解析失败", zap.Error(err))
	})

	shutdownTrace, err := trace.InitTrace(cfg.Name, cfg.Trace)
	if err != nil {
		return fmt.Errorf("init trace: %w", err)
	}
	metrics.MustRegister()

	db, err := orm.NewMySQL(&cfg.MySQL)
	if err != nil {
		return fmt.Errorf("connect mysql: %w", err)
	}
	if err := userRepo.Migrate(db); err != nil {
		return fmt.Errorf("migrate users: %w", err)
	}
	if err := repo.Migrate(db); err != nil {
		return fmt.Errorf("migrate wallet tables: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	var (
		rdb    *redis.Client
		locker ledger.Locker = ledger.NewKeyedMutex()
	)
	if cfg.Redis.Addr != "" {
		rdb, err = xredis.NewRedis(&cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		locker = ledger.NewRedisLocker(rdb, ledger.RedisLockerConfig{
			Prefix: cfg.Ledger.LockPrefix,
			TTL:    cfg.Ledger.LockTTL,
		})
	} else {
		logger.Warn(ctx, "⚠️ 未配置 redis，余额锁仅在本进程内生效")
	}
	metrics.StartPoolCollector(ctx, sqlDB, rdb, 15*time.Second)

	store := repo.New(db)
	sinks := audit.Multi{audit.NewDBSink(store)}
	var nc *nats.Conn
	if cfg.Nats.URL != "" {
		nc, err = audit.ConnectNats(cfg.Nats.URL, cfg.Name)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		sinks = append(sinks, audit.NewNatsSink(nc, cfg.Nats.SubjectPrefix))
	}

	app, err := wire(ctx, &cfg, db, store, locker, sinks)
	if err != nil {
		return err
	}

	limiter := ratelimit.NewStore(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst, cfg.RateLimit.TTL)
	limiter.StartJanitor(ctx, time.Minute)

	if err := bootstrap.InitSentinel(&cfg.Sentinel); err != nil {
		return err
	}

	router := server.NewRouter(app, server.RouterOptions{
		ServiceName: cfg.Name,
		RateLimit:   limiter,
		Sentinel:    cfg.Sentinel.Enabled,
		// 独立 metrics 端口时 gin 上不再挂 /metrics
		Metrics: cfg.Metrics.Addr == "",
	})

	checks := []server.Check{{Name: "mysql", Fn: sqlDB.PingContext}}
	if rdb != nil {
		checks = append(checks, server.Check{Name: "redis", Fn: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	health := server.NewHealth(cfg.Name, checks...)
	health.Run(ctx, 10*time.Second)

	opt := server.GRPCOptions(cfg.Name, limiter)
	opt.GRPCAddr = cfg.GRPC.Addr
	opt.HTTPAddr = cfg.HTTP.Addr
	opt.HTTPHandler = router
	opt.RegisterGRPC = health.Register
	opt.MetricsAddr = cfg.Metrics.Addr
	opt.PprofAddr = cfg.Pprof.Addr
	opt.MetaData = map[string]string{"env": cfg.Env}
	if len(cfg.Etcd.Endpoints) > 0 {
		opt.Etcd = &cfg.Etcd
	}
	opt.OnShutdown = []func(context.Context) error{
		shutdownTrace,
		func(context.Context) error {
			if nc != nil {
				return nc.Drain()
			}
			return nil
		},
		func(context.Context) error {
			if rdb != nil {
				return rdb.Close()
			}
			return nil
		},
		func(context.Context) error { return sqlDB.Close() },
	}

	return bootstrap.Run(ctx, opt)
}

// wire 组装 KeyVault -> WalletRegistry -> BalanceLedger -> TransferEngine
func wire(ctx context.Context, cfg *config.Config, db *gorm.DB, store *repo.Repo, locker ledger.Locker, sink domain.AuditSink) (*server.Handler, error) {
	var vaultOpts []keyvault.Option
	if cfg.Vault.ScryptN > 0 {
		vaultOpts = append(vaultOpts, keyvault.WithScrypt(cfg.Vault.ScryptN, cfg.Vault.ScryptR, cfg.Vault.ScryptP))
	}
	vault := keyvault.New(vaultOpts...)

	dir := tokens.NewDirectory(store, cfg.Tokens.CacheTTL)
	if err := dir.Seed(ctx, cfg.SeedTokens()); err != nil {
		return nil, fmt.Errorf("seed tokens: %w", err)
	}

	reg := registry.New(store, userRepo.New(db), vault, sink)
	led := ledger.New(store, locker)

	b := cfg.Transfer.Breaker
	breakers := ratelimit.NewManager(cfg.Name, ratelimit.Rule{
		Timeout:                 b.OpenTimeout,
		TripConsecutiveFailures: b.ConsecutiveFailures,
		TripFailureRate:         b.FailureRate,
		TripMinRequests:         b.MinRequests,
	}, nil)
	exec := transfer.NewBreakerExecutor(transfer.NewSimulatedExecutor(vault, cfg.Transfer.SettleDelay), breakers)

	engine := transfer.NewEngine(store, reg, led, dir, vault, exec,
		transfer.WithSettleTimeout(cfg.Transfer.SettleTimeout),
		transfer.WithAudit(sink),
	)
	logger.Info(ctx, "✅ 钱包组件装配完成", zap.Int("seed_tokens", len(cfg.Tokens.Seed)))
	return server.NewHandler(reg, engine, vault), nil
}
