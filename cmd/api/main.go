package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"authservice/internal/bootstrap"
	"authservice/internal/config"
	"authservice/internal/handler"
	"authservice/internal/infra/db"
	"authservice/internal/infra/logger"
	"authservice/internal/infra/observability"
	infraRedis "authservice/internal/infra/redis"
	"authservice/internal/middleware"
	"authservice/internal/server"
	"authservice/internal/worker"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// .env は無くてもよい（本番は環境変数）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	lg, err := logger.New(cfg.GoEnv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := observability.InitSentry(cfg.SentryDSN, cfg.GoEnv); err != nil {
		lg.Warn("sentry disabled", zap.Error(err))
	}
	defer observability.FlushSentry()

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(gormDB); err != nil {
		return err
	}

	//Repository（GORM実装）+ Usecase生成
	uc, err := bootstrap.NewAuthUsecase(cfg, bootstrap.GormRepositories(gormDB), lg)
	if err != nil {
		return err
	}

	// Redis はログイン回数制限だけに使う。未設定なら制限なし
	var limiter *middleware.LoginRateLimiter
	if cfg.RedisAddr != "" {
		rdb, err := infraRedis.NewClient(ctx, infraRedis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, lg)
		if err != nil {
			return err
		}
		defer func(c *redis.Client) { _ = c.Close() }(rdb)
		limiter = middleware.NewLoginRateLimiter(rdb, cfg.LoginRateLimit, cfg.LoginRateWindow, lg)
	}

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return err
	}

	//期限切れリフレッシュトークンの掃除
	cleanup := worker.NewTokenCleanup(uc.Ledger(), cfg.TokenSweepInterval, prometheus.DefaultRegisterer, lg)
	go cleanup.Run(ctx)

	//Handler生成
	handlers := server.Handlers{
		Auth:  handler.NewAuthHandler(uc, lg, cfg.RefreshTokenTTL, cfg.CookieSecure),
		Admin: handler.NewAdminAccountHandler(uc, lg),
	}
	e := server.New(handlers, server.RouteDeps{
		Verifier:       uc,
		Accounts:       uc,
		LoginLimiter:   limiter,
		MetricsHandler: promhttp.Handler(),
	}, metrics, lg)

	//Server起動
	return server.Start(ctx, e, ":"+cfg.Port, lg)
}
