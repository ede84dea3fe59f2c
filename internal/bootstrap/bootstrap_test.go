package bootstrap

import (
	"context"
	"testing"
	"time"

	"authservice/internal/config"
	"authservice/internal/infra/memstore"
	auth "authservice/internal/usecase/auth_usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:        "0123456789abcdef0123456789abcdef",
		JWTIssuer:        "authservice-test",
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  7 * 24 * time.Hour,
		LockoutThreshold: 5,
		LockoutCooldown:  time.Hour,
		BcryptCost:       bcrypt.MinCost,
	}
}

func memRepositories(s *memstore.Store) Repositories {
	return Repositories{
		Accounts:      s.Accounts(),
		RefreshTokens: s.RefreshTokens(),
		AuditLogs:     s.AuditLogs(),
		Tx:            s.TxManager(),
	}
}

// main と同じ組み立てで usecase が作れること（DB接続はしない）
func TestGormRepositories_AllSet(t *testing.T) {
	repos := GormRepositories(&gorm.DB{})
	assert.NotNil(t, repos.Accounts)
	assert.NotNil(t, repos.RefreshTokens)
	assert.NotNil(t, repos.AuditLogs)
	assert.NotNil(t, repos.Tx)

	uc, err := NewAuthUsecase(testConfig(), repos, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotNil(t, uc)
}

func TestNewAuthUsecase_MissingRepository(t *testing.T) {
	repos := memRepositories(memstore.New())
	repos.AuditLogs = nil

	_, err := NewAuthUsecase(testConfig(), repos, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestNewAuthUsecase_WeakSecret(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = "short"

	_, err := NewAuthUsecase(cfg, memRepositories(memstore.New()), zaptest.NewLogger(t))
	assert.ErrorIs(t, err, auth.ErrWeakSigningKey)
}

func TestNewAuthUsecase_RegisterLoginRefresh(t *testing.T) {
	uc, err := NewAuthUsecase(testConfig(), memRepositories(memstore.New()), zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = uc.Register(ctx, auth.RegisterInput{
		Email: "ana@example.com", Password: "password123", Name: "Ana", Surname: "Lopez", Role: "CLIENTE",
	})
	require.NoError(t, err)

	res, err := uc.Login(ctx, auth.LoginInput{Email: "ana@example.com", Password: "password123"})
	require.NoError(t, err)

	claims, err := uc.VerifyAccessToken(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "authservice-test", claims.Issuer)

	_, err = uc.Refresh(ctx, auth.RefreshInput{RefreshToken: res.Tokens.RefreshToken})
	assert.NoError(t, err)
}
