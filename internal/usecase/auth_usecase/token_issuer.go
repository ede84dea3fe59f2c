package auth

import (
	"errors"
	"fmt"
	"time"

	"authservice/internal/domain/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HS256 の鍵は 256bit 以上
const MinSigningKeyLen = 32

var ErrWeakSigningKey = fmt.Errorf("signing key must be at least %d bytes", MinSigningKeyLen)

// アクセストークンのクレーム。sub は email
type AccessClaims struct {
	AccountID string     `json:"userId"`
	Role      model.Role `json:"role"`
	Scope     string     `json:"scope"`
	ZoneID    string     `json:"zone_id,omitempty"`
	FleetType string     `json:"fleet_type,omitempty"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) Email() string {
	return c.Subject
}

// JWTを発行・検証する約束
type AccessTokenIssuer interface {
	Issue(account *model.Account, now time.Time) (token string, expiresAt time.Time, err error)
	Verify(token string, now time.Time) (*AccessClaims, error)
}

type JWTIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	logger *zap.Logger
}

func NewJWTIssuer(secret []byte, issuer string, ttl time.Duration, logger *zap.Logger) (*JWTIssuer, error) {
	if len(secret) < MinSigningKeyLen {
		return nil, ErrWeakSigningKey
	}
	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// 鍵は起動後に変えない（呼び出し側のスライス変更も反映させない）
	key := make([]byte, len(secret))
	copy(key, secret)

	return &JWTIssuer{secret: key, issuer: issuer, ttl: ttl, logger: logger}, nil
}

// exp = iat + ttl（秒単位にそろえる）
func (i *JWTIssuer) Issue(account *model.Account, now time.Time) (string, time.Time, error) {
	if account == nil {
		return "", time.Time{}, errors.New("account is nil")
	}

	iat := now.Truncate(time.Second)
	exp := iat.Add(i.ttl)

	claims := AccessClaims{
		AccountID: account.ID,
		Role:      account.Role,
		Scope:     account.Role.Scope(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.Email,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	if account.ZoneID != nil {
		claims.ZoneID = *account.ZoneID
	}
	if account.FleetType.CanDeliver() {
		claims.FleetType = string(account.FleetType)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// 形式不正・署名不正・期限切れはすべて ErrInvalidToken（理由は debug ログのみ）
func (i *JWTIssuer) Verify(token string, now time.Time) (*AccessClaims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		i.logger.Debug("access token rejected", zap.Error(err))
		return nil, ErrInvalidToken
	}

	if claims.ExpiresAt == nil || !now.Before(claims.ExpiresAt.Time) {
		i.logger.Debug("access token rejected", zap.String("reason", "expired"))
		return nil, ErrInvalidToken
	}
	if claims.AccountID == "" || !claims.Role.Valid() {
		i.logger.Debug("access token rejected", zap.String("reason", "missing claims"))
		return nil, ErrInvalidToken
	}
	return claims, nil
}
