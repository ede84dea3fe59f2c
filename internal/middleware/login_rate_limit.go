package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"authservice/internal/infra/logger"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrRateLimited = errors.New("rate limited")

// IPごとのログイン試行回数を固定窓で数える
type LoginRateLimiter struct {
	redis  redis.UniversalClient
	limit  int
	window time.Duration
	logger *zap.Logger
}

// client が nil なら制限しない
func NewLoginRateLimiter(client redis.UniversalClient, limit int, window time.Duration, log *zap.Logger) *LoginRateLimiter {
	if client == nil || limit <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LoginRateLimiter{redis: client, limit: limit, window: window, logger: log}
}

// 上限を超えたら ErrRateLimited と残り時間
func (l *LoginRateLimiter) Allow(ctx context.Context, ip string) (time.Duration, error) {
	key := loginIPKey(ip)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	// 窓の最初の1回だけ TTL を付ける
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return 0, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	if count <= int64(l.limit) {
		return 0, nil
	}

	ttl, err := l.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}
	return ttl, ErrRateLimited
}

func (l *LoginRateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if l == nil {
			return next
		}
		return func(c echo.Context) error {
			ip := c.RealIP()
			retryAfter, err := l.Allow(c.Request().Context(), ip)
			switch {
			case errors.Is(err, ErrRateLimited):
				l.logger.Warn("login rate limited", zap.String("client_ip", logger.MaskIP(ip)))
				secs := int(retryAfter.Round(time.Second).Seconds())
				if secs < 1 {
					secs = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, errorJSON("TOO_MANY_REQUESTS"))
			case err != nil:
				// Redis が落ちていてもログイン自体は止めない
				l.logger.Warn("login rate limiter unavailable", zap.Error(err))
			}
			return next(c)
		}
	}
}

func loginIPKey(ip string) string {
	return "auth:login:ip:" + ip
}
