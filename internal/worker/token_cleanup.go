package worker

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// 期限切れトークンを消す約束（RefreshTokenLedger が満たす）
type ExpiredTokenSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type TokenCleanup struct {
	sweeper  ExpiredTokenSweeper
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger

	deleted prometheus.Counter
	failed  prometheus.Counter
}

func NewTokenCleanup(sweeper ExpiredTokenSweeper, interval time.Duration, reg prometheus.Registerer, logger *zap.Logger) *TokenCleanup {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &TokenCleanup{
		sweeper:  sweeper,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authservice",
			Subsystem: "token_cleanup",
			Name:      "deleted_total",
			Help:      "Expired refresh tokens deleted by the cleanup worker.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authservice",
			Subsystem: "token_cleanup",
			Name:      "failures_total",
			Help:      "Cleanup runs that returned an error.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{w.deleted, w.failed} {
			if err := reg.Register(c); err != nil {
				logger.Warn("token cleanup metrics not registered", zap.Error(err))
			}
		}
	}
	return w
}

// 1回分の掃除。失敗してもログだけ残して次の tick で再試行する
func (w *TokenCleanup) RunOnce(ctx context.Context) (int64, error) {
	n, err := w.sweeper.SweepExpired(ctx, w.now())
	if err != nil {
		w.failed.Inc()
		w.logger.Error("token cleanup failed", zap.Error(err))
		return 0, err
	}
	w.deleted.Add(float64(n))
	if n > 0 {
		w.logger.Info("expired refresh tokens deleted", zap.Int64("count", n))
	}
	return n, nil
}

// ctx がキャンセルされるまで interval ごとに掃除する
func (w *TokenCleanup) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("token cleanup started", zap.Duration("interval", w.interval))
	_, _ = w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("token cleanup stopped")
			return
		case <-ticker.C:
			_, _ = w.RunOnce(ctx)
		}
	}
}
