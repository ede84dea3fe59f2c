// Package bootstrap は main と結合テストで共有する組み立て処理。
package bootstrap

import (
	"errors"

	"authservice/internal/config"
	infraRepo "authservice/internal/infra/repository"
	"authservice/internal/repository"
	auth "authservice/internal/usecase/auth_usecase"
	"authservice/internal/validator"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// usecase が必要とする保存先一式
type Repositories struct {
	Accounts      repository.AccountRepository
	RefreshTokens repository.RefreshTokenRepository
	AuditLogs     repository.AuditLogRepository
	Tx            repository.TransactionManager
}

// GORM実装で一式を作る
func GormRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Accounts:      infraRepo.NewAccountGormRepository(db),
		RefreshTokens: infraRepo.NewRefreshTokenRepository(db),
		AuditLogs:     infraRepo.NewAuditLogGormRepository(db),
		Tx:            infraRepo.NewTxManagerGorm(db),
	}
}

func (r Repositories) validate() error {
	if r.Accounts == nil || r.RefreshTokens == nil || r.AuditLogs == nil || r.Tx == nil {
		return errors.New("bootstrap: every repository must be set")
	}
	return nil
}

// 設定からJWT issuer と AuthUsecase を組み立てる
func NewAuthUsecase(cfg config.Config, repos Repositories, lg *zap.Logger) (*auth.AuthUsecase, error) {
	if err := repos.validate(); err != nil {
		return nil, err
	}

	issuer, err := auth.NewJWTIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.AccessTokenTTL, lg)
	if err != nil {
		return nil, err
	}

	return auth.NewAuthUsecase(auth.Settings{
		RefreshTTL:       cfg.RefreshTokenTTL,
		LockoutThreshold: cfg.LockoutThreshold,
		LockoutCooldown:  cfg.LockoutCooldown,
	}, auth.Dependencies{
		Accounts:  repos.Accounts,
		Tokens:    repos.RefreshTokens,
		AuditLogs: repos.AuditLogs,
		Tx:        repos.Tx,
		Validator: validator.NewAuthValidator(),
		Hasher:    auth.NewBcryptPasswordHasher(cfg.BcryptCost),
		Verifier:  auth.NewBcryptPasswordVerifier(),
		Issuer:    issuer,
		Logger:    lg,
	})
}
