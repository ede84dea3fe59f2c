package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

type HTTPMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Subsystem  string
	Buckets    []float64
}

type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

func NewHTTPMetrics(opts HTTPMetricsOptions) (*HTTPMetrics, error) {
	if opts.Namespace == "" {
		opts.Namespace = "authservice"
	}
	if opts.Subsystem == "" {
		opts.Subsystem = "http"
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if len(opts.Buckets) == 0 {
		opts.Buckets = prometheus.DefBuckets
	}

	requests, err := register(opts.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"}))
	if err != nil {
		return nil, err
	}

	duration, err := register(opts.Registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method, route and status.",
		Buckets:   opts.Buckets,
	}, []string{"method", "route", "status"}))
	if err != nil {
		return nil, err
	}

	inFlight, err := register(opts.Registerer, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      "in_flight_requests",
		Help:      "HTTP requests currently being served.",
	}))
	if err != nil {
		return nil, err
	}

	return &HTTPMetrics{Requests: requests, Duration: duration, InFlight: inFlight}, nil
}

// 登録済みなら既存のコレクタを使う（テストで複数回作るため）
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return c, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if m == nil {
			return next
		}
		return func(c echo.Context) error {
			start := time.Now()
			m.InFlight.Inc()
			defer m.InFlight.Dec()

			err := next(c)

			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			labels := prometheus.Labels{
				"method": c.Request().Method,
				"route":  route,
				"status": strconv.Itoa(status),
			}
			m.Requests.With(labels).Inc()
			m.Duration.With(labels).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
