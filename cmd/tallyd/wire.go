package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/grove/driver"

	"github.com/xraph/tally"
	"github.com/xraph/tally/internal/config"
	"github.com/xraph/tally/internal/logger"
	"github.com/xraph/tally/lock"
	redislock "github.com/xraph/tally/lock/redis"
	"github.com/xraph/tally/observability"
	"github.com/xraph/tally/proof"
	"github.com/xraph/tally/proof/local"
	proofmem "github.com/xraph/tally/proof/memory"
	"github.com/xraph/tally/proof/s3"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/store/mongo"
	"github.com/xraph/tally/store/postgres"
	"github.com/xraph/tally/store/sqlite"
)

// app is everything a subcommand needs, built from config.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *tally.Engine
	redis  *goredis.Client
}

func loadApp(ctx context.Context, flags *rootFlags, reg prometheus.Registerer, extra ...tally.Option) (*app, error) {
	cfg, err := config.Load(flags.configPath, envOr(flags.env))
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.Log, os.Stderr)
	slog.SetDefault(log)

	a := &app{cfg: cfg, logger: log}
	engine, err := a.buildEngine(ctx, reg, extra...)
	if err != nil {
		a.close()
		return nil, err
	}
	a.engine = engine
	return a, nil
}

func envOr(env string) string {
	if env != "" {
		return env
	}
	return os.Getenv("ENV")
}

func (a *app) buildEngine(ctx context.Context, reg prometheus.Registerer, extra ...tally.Option) (*tally.Engine, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}

	proofs, err := openProofs(ctx, a.cfg.Proof)
	if err != nil {
		return nil, err
	}

	s, err := openStore(ctx, a.cfg.Database)
	if err != nil {
		return nil, err
	}

	opts := []tally.Option{
		tally.WithLogger(a.logger),
		tally.WithLocation(loc),
		tally.WithCurrency(a.cfg.Ledger.Currency),
		tally.WithProofStore(proofs),
		tally.WithSettleInterval(a.cfg.Settle.Interval),
		tally.WithSettleConcurrency(a.cfg.Settle.Concurrency),
		tally.WithSettleOnStart(a.cfg.Settle.OnStart),
	}
	if l := a.openLocker(); l != nil {
		opts = append(opts, tally.WithLocker(l))
	}
	if reg != nil {
		factory := observability.NewPrometheusFactory(reg, "")
		opts = append(opts, tally.WithPlugin(observability.NewMetricsExtension(factory)))
	}
	opts = append(opts, extra...)

	return tally.New(s, opts...), nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "postgres":
		return postgres.Open(ctx, cfg.DSN, driver.WithPoolSize(cfg.PoolSize))
	case "sqlite":
		return sqlite.Open(ctx, cfg.DSN)
	case "mongo":
		return mongo.Open(ctx, cfg.DSN, cfg.Name)
	default:
		return nil, fmt.Errorf("tallyd: unknown database driver %q", cfg.Driver)
	}
}

func openProofs(ctx context.Context, cfg config.ProofConfig) (proof.Store, error) {
	switch cfg.Backend {
	case "local":
		return local.New(cfg.Dir), nil
	case "memory":
		return proofmem.New(), nil
	case "s3":
		return s3.Open(ctx, s3.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
			PathStyle: cfg.S3.PathStyle,
		})
	default:
		return nil, fmt.Errorf("tallyd: unknown proof backend %q", cfg.Backend)
	}
}

// openLocker returns nil when no redis address is configured.
func (a *app) openLocker() lock.Locker {
	if a.cfg.Redis.Addr == "" {
		return nil
	}
	a.redis = goredis.NewClient(&goredis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	return redislock.New(a.redis)
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
