package auth

import (
	"context"
	"errors"
	"strings"

	"authservice/internal/domain/model"
	"authservice/internal/repository"

	"go.uber.org/zap"
)

// 会員登録の入力
type RegisterInput struct {
	Email     string
	Password  string
	Name      string
	Surname   string
	Phone     string
	Address   string
	Role      string
	FleetType string
	ZoneID    string

	IP        string
	UserAgent string
}

// 会員登録。アカウントと最初のリフレッシュトークンは同じtxで保存する
func (u *AuthUsecase) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	//入力検証（validatorに寄せる）
	if err := u.validator.ValidateRegister(ctx, in); err != nil {
		return AuthResult{}, err
	}

	role, ok := model.ParseRole(in.Role)
	if !ok {
		return AuthResult{}, ErrInvalidRole
	}
	fleet, ok := model.ParseFleetType(in.FleetType)
	if !ok {
		return AuthResult{}, &ValidationError{Fields: []FieldError{
			{Field: "fleetType", Tag: "oneof", Message: "unknown fleet type"},
		}}
	}
	//配達ロールはフリート必須。それ以外は NONE に固定
	if role.IsOperational() {
		if !fleet.CanDeliver() {
			return AuthResult{}, ErrMissingFleetInfo
		}
	} else {
		fleet = model.FleetNone
	}

	email := model.NormalizeEmail(in.Email)

	// email重複チェック（最終的には一意制約で守る）
	if _, err := u.accounts.FindByEmail(ctx, email); err == nil {
		return AuthResult{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return AuthResult{}, internalError("find account", err)
	}

	//パスワードは必ずハッシュ化して保存（平文保存しない）
	hashed, err := u.hasher.Hash(in.Password)
	if err != nil {
		return AuthResult{}, internalError("hash password", err)
	}

	now := u.clock.Now()
	account := &model.Account{
		ID:           u.ids.NewID(),
		Email:        email,
		PasswordHash: hashed,
		Name:         strings.TrimSpace(in.Name),
		Surname:      strings.TrimSpace(in.Surname),
		Phone:        strings.TrimSpace(in.Phone),
		Address:      strings.TrimSpace(in.Address),
		Role:         role,
		Status:       model.AccountStatusActive,
		FleetType:    fleet,
		Timestamps: model.Timestamp{
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if zone := strings.TrimSpace(in.ZoneID); zone != "" {
		account.ZoneID = &zone
	}

	// 署名はtx前に済ませる（失敗したら何も保存しない）
	access, expiresAt, err := u.issuer.Issue(account, now)
	if err != nil {
		return AuthResult{}, internalError("sign access token", err)
	}

	writeCtx := context.WithoutCancel(ctx)
	var refresh IssuedRefreshToken
	err = u.tx.WithinTx(writeCtx, func(r repository.TxRepos) error {
		if err := r.Accounts().Create(writeCtx, account); err != nil {
			return err
		}
		var err error
		refresh, err = u.ledger.issueWith(writeCtx, r.RefreshTokens(), account.ID, in.IP, in.UserAgent, now)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return AuthResult{}, ErrEmailTaken
		}
		if errors.Is(err, ErrInternal) {
			return AuthResult{}, err
		}
		return AuthResult{}, internalError("create account", err)
	}

	u.logger.Info("account registered",
		zap.String("account_id", account.ID),
		zap.String("role", string(role)),
	)

	return AuthResult{
		Tokens:  newTokenPair(access, expiresAt, refresh.Plain, now),
		Account: toAccountSummary(account),
	}, nil
}
