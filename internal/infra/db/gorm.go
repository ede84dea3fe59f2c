package db

import (
	"fmt"
	"time"

	"authservice/internal/config"
	"authservice/internal/domain/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect はDBに接続して *gorm.DB を返す。
func Connect(cfg config.Config) (*gorm.DB, error) {
	logLevel := logger.Warn
	if cfg.GoEnv == "dev" {
		logLevel = logger.Info
	}

	gormDB, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxOpenConns / 2)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return gormDB, nil
}

// テーブル作成（accounts / refresh_tokens / audit_logs）
func Migrate(gormDB *gorm.DB) error {
	if err := gormDB.AutoMigrate(
		&model.Account{},
		&model.RefreshToken{},
		&model.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
