package auth

import (
	"context"
	"errors"
	"time"

	"authservice/internal/domain/model"
	"authservice/internal/repository"

	"go.uber.org/zap"
)

// usecaseがValidatorInterfaceに依存する約束
type AuthValidator interface {
	ValidateRegister(ctx context.Context, in RegisterInput) error
	ValidateLogin(ctx context.Context, in LoginInput) error
	ValidateUpdateAccount(ctx context.Context, in UpdateAccountInput) error
}

// 返却用（パスワードハッシュやロック状態は含めない）
type AccountSummary struct {
	ID          string              `json:"id"`
	Email       string              `json:"email"`
	Name        string              `json:"name"`
	Surname     string              `json:"surname"`
	FullName    string              `json:"fullName"`
	Phone       string              `json:"phone,omitempty"`
	Role        model.Role          `json:"role"`
	Status      model.AccountStatus `json:"status"`
	FleetType   model.FleetType     `json:"fleetType"`
	ZoneID      *string             `json:"zoneId,omitempty"`
	LastLoginAt *time.Time          `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
}

type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	ExpiresIn    int       `json:"expiresIn"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type AuthResult struct {
	Tokens  TokenPair      `json:"tokens"`
	Account AccountSummary `json:"account"`
}

// 組み立てに必要なもの。Clock/IDs/Logger は nil ならデフォルト
type Dependencies struct {
	Accounts  repository.AccountRepository
	Tokens    repository.RefreshTokenRepository
	AuditLogs repository.AuditLogRepository
	Tx        repository.TransactionManager
	Validator AuthValidator
	Hasher    PasswordHasher
	Verifier  PasswordVerifier
	Issuer    AccessTokenIssuer
	Clock     Clock
	IDs       IDGenerator
	Logger    *zap.Logger
}

type AuthUsecase struct {
	accounts  repository.AccountRepository
	audits    repository.AuditLogRepository
	tx        repository.TransactionManager
	validator AuthValidator
	hasher    PasswordHasher
	verifier  PasswordVerifier
	issuer    AccessTokenIssuer
	lockout   LockoutPolicy
	ledger    *RefreshTokenLedger
	clock     Clock
	ids       IDGenerator
	logger    *zap.Logger

	// メール不明時にも bcrypt 比較を1回行うためのハッシュ
	dummyHash string
}

func NewAuthUsecase(settings Settings, deps Dependencies) (*AuthUsecase, error) {
	if deps.Accounts == nil || deps.Tokens == nil || deps.AuditLogs == nil || deps.Tx == nil {
		return nil, errors.New("auth: repositories are required")
	}
	if deps.Validator == nil || deps.Hasher == nil || deps.Verifier == nil || deps.Issuer == nil {
		return nil, errors.New("auth: validator, hasher, verifier and issuer are required")
	}
	settings = settings.withDefaults()

	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.IDs == nil {
		deps.IDs = UUIDGenerator{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	dummy, err := deps.Hasher.Hash("dummy-password-for-timing")
	if err != nil {
		return nil, err
	}

	return &AuthUsecase{
		accounts:  deps.Accounts,
		audits:    deps.AuditLogs,
		tx:        deps.Tx,
		validator: deps.Validator,
		hasher:    deps.Hasher,
		verifier:  deps.Verifier,
		issuer:    deps.Issuer,
		lockout:   NewLockoutPolicy(settings.LockoutThreshold, settings.LockoutCooldown),
		ledger:    NewRefreshTokenLedger(deps.Tokens, deps.Tx, deps.IDs, settings.RefreshTTL, deps.Logger),
		clock:     deps.Clock,
		ids:       deps.IDs,
		logger:    deps.Logger,
		dummyHash: dummy,
	}, nil
}

// 掃除ワーカーなどが使う
func (u *AuthUsecase) Ledger() *RefreshTokenLedger {
	return u.ledger
}

// アクセストークンの検証（ミドルウェアから呼ぶ）
func (u *AuthUsecase) VerifyAccessToken(ctx context.Context, token string) (*AccessClaims, error) {
	return u.issuer.Verify(token, u.clock.Now())
}

// アクセス + リフレッシュを発行してまとめる
func (u *AuthUsecase) issueSession(ctx context.Context, account *model.Account, ip, userAgent string, now time.Time) (AuthResult, error) {
	access, expiresAt, err := u.issuer.Issue(account, now)
	if err != nil {
		return AuthResult{}, internalError("sign access token", err)
	}

	refresh, err := u.ledger.Issue(ctx, account.ID, ip, userAgent, now)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		Tokens:  newTokenPair(access, expiresAt, refresh.Plain, now),
		Account: toAccountSummary(account),
	}, nil
}

func newTokenPair(access string, expiresAt time.Time, refresh string, now time.Time) TokenPair {
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(expiresAt.Sub(now.Truncate(time.Second)).Seconds()),
		ExpiresAt:    expiresAt,
	}
}

func toAccountSummary(a *model.Account) AccountSummary {
	return AccountSummary{
		ID:          a.ID,
		Email:       a.Email,
		Name:        a.Name,
		Surname:     a.Surname,
		FullName:    a.FullName(),
		Phone:       a.Phone,
		Role:        a.Role,
		Status:      a.Status,
		FleetType:   a.FleetType,
		ZoneID:      a.ZoneID,
		LastLoginAt: a.LastLoginAt,
		CreatedAt:   a.Timestamps.CreatedAt,
	}
}
