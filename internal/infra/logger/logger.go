package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 本番は JSON、それ以外は色付きの開発用出力
func New(env string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if env != "prod" && env != "production" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg.Build()
}

// john.doe@example.com -> joh***@example.com
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return "***"
	}
	local, domain := email[:at], email[at:]
	if len(local) > 3 {
		local = local[:3]
	}
	return local + "***" + domain
}

// 192.168.1.100 -> 192.168.*.*
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}
	if parts := strings.Split(ip, "."); len(parts) == 4 {
		return parts[0] + "." + parts[1] + ".*.*"
	}
	if parts := strings.Split(ip, ":"); len(parts) >= 4 {
		return strings.Join(parts[:4], ":") + ":*:*:*:*"
	}
	return "***"
}
