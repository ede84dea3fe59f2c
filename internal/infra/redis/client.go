package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Options struct {
	Addr     string
	Password string
	DB       int
}

// 接続して PING で疎通確認
func NewClient(ctx context.Context, opts Options, lg *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,

		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	lg.Info("redis connection established",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
	)
	return client, nil
}
