package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/zipbob/edge"
	"github.com/zipbob/edge/internal/httpapi"
	"github.com/zipbob/edge/internal/members"
	"github.com/zipbob/edge/internal/notify"
	"github.com/zipbob/edge/internal/rate"
	"github.com/zipbob/edge/internal/recipes"
	"github.com/zipbob/edge/internal/routing"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := edge.MustLoadConfig(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting edge", "env", cfg.Env)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	if err := run(rootCtx, cfg, log); err != nil {
		log.Error("edge_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	log.Info("service_stopped")
}

func run(ctx context.Context, cfg *edge.Config, log *slog.Logger) error {
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:       []string{cfg.Redis.Addr},
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("redis_close_failed", slog.String("err", err.Error()))
		}
	}()

	primary, replica, err := openPools(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer primary.Close()
	if replica != nil {
		defer replica.Close()
	}
	log.Info("postgres_connected", slog.Bool("replica", replica != nil))

	if !cfg.Postgres.SkipMigrations {
		if err := members.RunMigrations(ctx, cfg.Postgres.PrimaryDSN); err != nil {
			return err
		}
		log.Info("migrations_applied")
	}

	var router *routing.Router
	if replica != nil {
		router = routing.New(primary, replica)
	} else {
		router = routing.New(primary, nil)
	}

	metrics := edge.NewMetrics()

	memberOpts := []members.Option{
		members.WithCache(members.NewCache(rdb, cfg.Redis.Prefix, cfg.Members.CacheTTL)),
	}
	if !cfg.Notify.Disabled {
		dispatcher := notify.NewDispatcher(
			notify.Config{BufferSize: cfg.Notify.BufferSize},
			notify.NewRedisStreamSink(rdb, cfg.Notify.Stream, cfg.Notify.MaxLen),
			log,
		)
		defer dispatcher.Close()
		metrics.MustRegister(dispatcher.Collectors()...)
		memberOpts = append(memberOpts, members.WithNotifier(dispatcher))
	}
	memberSvc := members.NewService(members.NewPostgresRepository(router), memberOpts...)

	engine, err := edge.New().
		WithConfig(*cfg).
		WithRedis(rdb).
		WithMembers(memberSvc).
		WithMetrics(metrics).
		Build()
	if err != nil {
		return err
	}

	var limiter *rate.Limiter
	if !cfg.RateLimit.Disabled {
		limiter = rate.New(rdb, rate.Config{
			Limit:  cfg.RateLimit.Limit,
			Window: cfg.RateLimit.Window,
			Prefix: cfg.RateLimit.Prefix,
		})
	}

	opts := httpapi.Options{
		Logger:   log,
		Config:   *cfg,
		Sessions: engine,
		Members:  memberSvc,
		Metrics:  metrics,
		Recipes:  recipes.NewRelay(rdb, cfg.Recipes.Channel, cfg.Recipes.Heartbeat),
		Checks: []httpapi.HealthCheck{
			{Name: "redis", Check: engine.Ping},
			{Name: "postgres", Check: primary.Ping},
		},
	}
	if limiter != nil {
		opts.Limiter = limiter
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           httpapi.NewRouter(opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	log.Info("http_listen_start", slog.String("addr", srv.Addr))

	serveErrCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}
	return nil
}

// openPools connects the primary pool and, when configured, the replica pool.
func openPools(ctx context.Context, cfg edge.PostgresConfig) (*pgxpool.Pool, *pgxpool.Pool, error) {
	if cfg.PrimaryDSN == "" {
		return nil, nil, errors.New("postgres primary dsn is required")
	}
	primary, err := openPool(ctx, cfg.PrimaryDSN, cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.ReplicaDSN == "" {
		return primary, nil, nil
	}
	replica, err := openPool(ctx, cfg.ReplicaDSN, cfg)
	if err != nil {
		primary.Close()
		return nil, nil, err
	}
	return primary, replica, nil
}

func openPool(ctx context.Context, dsn string, cfg edge.PostgresConfig) (*pgxpool.Pool, error) {
	const op = "main.openPool"

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pool, nil
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
