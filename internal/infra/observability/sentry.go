package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// DSN が空なら何もしない（CaptureException も no-op になる）
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// 内部エラーを送る
func CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}
