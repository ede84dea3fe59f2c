package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"
	"unicode/utf8"

	"authservice/internal/domain/model"
	"authservice/internal/repository"

	"go.uber.org/zap"
)

// 平文は32バイトの乱数
const refreshTokenBytes = 32

// 発行直後のリフレッシュトークン。Plain は一度だけ返す
type IssuedRefreshToken struct {
	Plain  string
	Record *model.RefreshToken
}

// リフレッシュトークンの発行・検証・ローテーション・失効
type RefreshTokenLedger struct {
	tokens repository.RefreshTokenRepository
	tx     repository.TransactionManager
	ids    IDGenerator
	ttl    time.Duration
	logger *zap.Logger
}

func NewRefreshTokenLedger(
	tokens repository.RefreshTokenRepository,
	tx repository.TransactionManager,
	ids IDGenerator,
	ttl time.Duration,
	logger *zap.Logger,
) *RefreshTokenLedger {
	if ttl <= 0 {
		ttl = DefaultRefreshTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshTokenLedger{tokens: tokens, tx: tx, ids: ids, ttl: ttl, logger: logger}
}

func (l *RefreshTokenLedger) Issue(ctx context.Context, accountID, ip, userAgent string, now time.Time) (IssuedRefreshToken, error) {
	return l.issueWith(ctx, l.tokens, accountID, ip, userAgent, now)
}

// tx 内でも使えるように保存先を受け取る
func (l *RefreshTokenLedger) issueWith(ctx context.Context, tokens repository.RefreshTokenRepository, accountID, ip, userAgent string, now time.Time) (IssuedRefreshToken, error) {
	plain, hash, err := newRefreshTokenAndHash()
	if err != nil {
		return IssuedRefreshToken{}, internalError("generate refresh token", err)
	}

	rt := &model.RefreshToken{
		ID:        l.ids.NewID(),
		AccountID: accountID,
		TokenHash: hash,
		ExpiresAt: now.Add(l.ttl),
		IPAddress: truncate(ip, 45),
		UserAgent: truncate(userAgent, 255),
		Timestamps: model.Timestamp{
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if err := tokens.Create(ctx, rt); err != nil {
		return IssuedRefreshToken{}, internalError("save refresh token", err)
	}
	return IssuedRefreshToken{Plain: plain, Record: rt}, nil
}

// 有効なら行を返す。無効理由はログにだけ残し、呼び出し側には ErrInvalidToken
func (l *RefreshTokenLedger) Validate(ctx context.Context, plain string, now time.Time) (*model.RefreshToken, error) {
	if plain == "" {
		return nil, ErrInvalidToken
	}

	rt, err := l.tokens.FindByTokenHash(ctx, hashToken(plain))
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			l.logger.Info("refresh token rejected", zap.String("reason", "not_found"))
			return nil, ErrInvalidToken
		}
		return nil, internalError("find refresh token", err)
	}

	if reason := rejectReason(rt, now); reason != "" {
		l.logger.Info("refresh token rejected",
			zap.String("reason", reason),
			zap.String("token_id", rt.ID),
			zap.String("account_id", rt.AccountID),
		)
		return nil, ErrInvalidToken
	}
	return rt, nil
}

// 旧トークンを失効させて後継を発行する。
// 1つのtxで 行ロック → 再検証 → 後継INSERT → 旧を条件付きUPDATE（revoked=false の行だけ）
func (l *RefreshTokenLedger) Rotate(ctx context.Context, plain, ip, userAgent string, now time.Time) (IssuedRefreshToken, error) {
	if plain == "" {
		return IssuedRefreshToken{}, ErrInvalidToken
	}
	hash := hashToken(plain)

	var issued IssuedRefreshToken
	err := l.tx.WithinTx(ctx, func(r repository.TxRepos) error {
		old, err := r.RefreshTokens().FindByTokenHashForUpdate(ctx, hash)
		if err != nil {
			if errors.Is(err, repository.ErrRefreshTokenNotFound) {
				return ErrInvalidToken
			}
			return internalError("lock refresh token", err)
		}
		if reason := rejectReason(old, now); reason != "" {
			l.logger.Info("refresh rotation rejected",
				zap.String("reason", reason),
				zap.String("token_id", old.ID),
			)
			return ErrInvalidToken
		}

		issued, err = l.issueWith(ctx, r.RefreshTokens(), old.AccountID, ip, userAgent, now)
		if err != nil {
			return err
		}

		successor := issued.Record.ID
		if err := r.RefreshTokens().Revoke(ctx, old.ID, now, &successor); err != nil {
			if errors.Is(err, repository.ErrRefreshTokenNotFound) {
				// 同時ローテーションに負けた
				l.logger.Info("refresh rotation lost race", zap.String("token_id", old.ID))
				return ErrInvalidToken
			}
			return internalError("revoke refresh token", err)
		}
		return nil
	})
	if err != nil {
		return IssuedRefreshToken{}, l.wrapTxError("rotate refresh token", err)
	}
	return issued, nil
}

// ログアウト。既に失効済みなら何もしない。
// 期限切れでも行が残っていれば失効させて成功、掃除で消えた後は ErrInvalidToken
func (l *RefreshTokenLedger) Revoke(ctx context.Context, plain string, now time.Time) error {
	if plain == "" {
		return ErrInvalidToken
	}

	rt, err := l.tokens.FindByTokenHash(ctx, hashToken(plain))
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return ErrInvalidToken
		}
		return internalError("find refresh token", err)
	}
	if rt.IsDeleted() {
		return ErrInvalidToken
	}
	if rt.Revoked {
		return nil
	}

	if err := l.tokens.Revoke(ctx, rt.ID, now, nil); err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			// 同時に別リクエストが失効させた
			return nil
		}
		return internalError("revoke refresh token", err)
	}
	return nil
}

// アカウントの有効なトークンをすべて失効
func (l *RefreshTokenLedger) RevokeAll(ctx context.Context, accountID string, now time.Time) (int64, error) {
	return l.revokeAllWith(ctx, l.tokens, accountID, now)
}

func (l *RefreshTokenLedger) revokeAllWith(ctx context.Context, tokens repository.RefreshTokenRepository, accountID string, now time.Time) (int64, error) {
	n, err := tokens.RevokeAllByAccountID(ctx, accountID, now)
	if err != nil {
		return 0, internalError("revoke all refresh tokens", err)
	}
	if n > 0 {
		l.logger.Info("refresh tokens revoked", zap.String("account_id", accountID), zap.Int64("count", n))
	}
	return n, nil
}

// 有効なセッション（未失効・未期限切れ）の数
func (l *RefreshTokenLedger) CountActive(ctx context.Context, accountID string, now time.Time) (int64, error) {
	n, err := l.tokens.CountActiveByAccountID(ctx, accountID, now)
	if err != nil {
		return 0, internalError("count active refresh tokens", err)
	}
	return n, nil
}

// 期限切れの行を物理削除する
func (l *RefreshTokenLedger) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := l.tokens.DeleteExpired(ctx, now)
	if err != nil {
		return 0, internalError("delete expired refresh tokens", err)
	}
	return n, nil
}

// ローテーション済みのトークンが再提出されたら、そのアカウントの全トークンを失効させる。
// 判定できたかどうかを返す
func (l *RefreshTokenLedger) RevokeFamilyOnReuse(ctx context.Context, plain string, now time.Time) bool {
	if plain == "" {
		return false
	}
	rt, err := l.tokens.FindByTokenHash(ctx, hashToken(plain))
	if err != nil || !rt.Revoked || rt.ReplacedByID == nil {
		return false
	}

	l.logger.Warn("rotated refresh token reused",
		zap.String("token_id", rt.ID),
		zap.String("account_id", rt.AccountID),
	)
	if _, err := l.RevokeAll(ctx, rt.AccountID, now); err != nil {
		l.logger.Error("revoke after reuse failed", zap.Error(err))
	}
	return true
}

// tx の中から返ったエラーで分類済みのものはそのまま
func (l *RefreshTokenLedger) wrapTxError(op string, err error) error {
	if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrInternal) {
		return err
	}
	return internalError(op, err)
}

// 有効なら ""。期限切れ判定はここだけで行う
func rejectReason(rt *model.RefreshToken, now time.Time) string {
	switch {
	case rt.IsDeleted():
		return "deleted"
	case rt.Revoked:
		return "revoked"
	case rt.IsExpiredAt(now):
		return "expired"
	default:
		return ""
	}
}

// refresh token生成（平文 + DB保存hash）
func newRefreshTokenAndHash() (plain string, hash string, err error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	plain = base64.RawURLEncoding.EncodeToString(b)
	return plain, hashToken(plain), nil
}

func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// n バイト以内に切る。マルチバイト文字の途中では切らない
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
