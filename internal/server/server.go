package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"authservice/internal/middleware"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// 共通ミドルウェアを付けた echo を作る
func New(h Handlers, deps RouteDeps, metrics *middleware.HTTPMetrics, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(metrics.Middleware())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.BodyLimit("64K"))

	RegisterRoutes(e, h, deps)
	return e
}

// ctx がキャンセルされたら graceful shutdown
func Start(ctx context.Context, e *echo.Echo, addr string, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("http server shutting down")
	return e.Shutdown(shutdownCtx)
}
