package middleware

import (
	"time"

	"authservice/internal/infra/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// アクセスログ（IPはマスクする）
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			fields := []zap.Field{
				zap.Int("status", c.Response().Status),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Duration("latency", time.Since(start)),
				zap.String("client_ip", logger.MaskIP(c.RealIP())),
			}
			if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}
			if ua := req.UserAgent(); ua != "" {
				fields = append(fields, zap.String("user_agent", ua))
			}

			if c.Response().Status >= 500 {
				log.Error("request failed", fields...)
			} else {
				log.Info("request completed", fields...)
			}
			return nil
		}
	}
}
