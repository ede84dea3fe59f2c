package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"authservice/internal/domain/model"
	"authservice/internal/repository"

	"go.uber.org/zap"
)

// me / 管理者用の参照
func (u *AuthUsecase) GetAccount(ctx context.Context, accountID string) (AccountSummary, error) {
	account, err := u.findAccount(ctx, accountID)
	if err != nil {
		return AccountSummary{}, err
	}
	return toAccountSummary(account), nil
}

// ロック解除（失敗回数も0に戻す）
func (u *AuthUsecase) UnlockAccount(ctx context.Context, actorID, accountID string) error {
	now := u.clock.Now()
	writeCtx := context.WithoutCancel(ctx)
	err := u.tx.WithinTx(writeCtx, func(r repository.TxRepos) error {
		before, err := r.Accounts().FindByID(writeCtx, accountID)
		if err != nil {
			return err
		}
		if err := u.lockout.Reset(writeCtx, r.Accounts(), accountID, now); err != nil {
			return err
		}
		return writeAudit(writeCtx, r.AuditLogs(), actorID, accountID, model.AuditActionUnlockAccount,
			lockoutSnapshot{FailedLoginAttempts: before.FailedLoginAttempts, LockedUntil: before.LockedUntil},
			lockoutSnapshot{},
			now)
	})
	if err != nil {
		return mapAccountError("unlock account", err)
	}

	u.logger.Info("account unlocked", zap.String("account_id", accountID), zap.String("actor_id", actorID))
	return nil
}

// ACTIVE 以外にしたらセッションも全部失効させる
func (u *AuthUsecase) UpdateStatus(ctx context.Context, actorID, accountID string, status string) error {
	st := model.AccountStatus(strings.ToUpper(strings.TrimSpace(status)))
	if !st.Valid() {
		return &ValidationError{Fields: []FieldError{
			{Field: "status", Tag: "oneof", Message: "unknown account status"},
		}}
	}

	now := u.clock.Now()
	writeCtx := context.WithoutCancel(ctx)
	err := u.tx.WithinTx(writeCtx, func(r repository.TxRepos) error {
		before, err := r.Accounts().FindByID(writeCtx, accountID)
		if err != nil {
			return err
		}
		if err := r.Accounts().UpdateStatus(writeCtx, accountID, st, now); err != nil {
			return err
		}

		after := statusSnapshot{Status: st}
		if st != model.AccountStatusActive {
			n, err := u.ledger.revokeAllWith(writeCtx, r.RefreshTokens(), accountID, now)
			if err != nil {
				return err
			}
			after.RevokedSessions = n
		}
		return writeAudit(writeCtx, r.AuditLogs(), actorID, accountID, model.AuditActionUpdateAccountStatus,
			statusSnapshot{Status: before.Status}, after, now)
	})
	if err != nil {
		return mapAccountError("update account status", err)
	}

	u.logger.Info("account status changed",
		zap.String("account_id", accountID),
		zap.String("actor_id", actorID),
		zap.String("status", string(st)),
	)
	return nil
}

// 管理者によるプロフィールの部分更新。nil の項目は変えない
type UpdateAccountInput struct {
	Name      *string
	Surname   *string
	Phone     *string
	Address   *string
	FleetType *string
	// 空文字はゾーン解除
	ZoneID *string
}

func (u *AuthUsecase) UpdateAccount(ctx context.Context, actorID, accountID string, in UpdateAccountInput) (AccountSummary, error) {
	if err := u.validator.ValidateUpdateAccount(ctx, in); err != nil {
		return AccountSummary{}, err
	}
	update := repository.AccountProfileUpdate{
		Name:    trimmedPtr(in.Name),
		Surname: trimmedPtr(in.Surname),
		Phone:   trimmedPtr(in.Phone),
		Address: trimmedPtr(in.Address),
		ZoneID:  trimmedPtr(in.ZoneID),
	}
	if in.FleetType != nil {
		fleet, ok := model.ParseFleetType(*in.FleetType)
		if !ok {
			return AccountSummary{}, &ValidationError{Fields: []FieldError{
				{Field: "fleetType", Tag: "oneof", Message: "unknown fleet type"},
			}}
		}
		update.FleetType = &fleet
	}
	if update.IsEmpty() {
		return AccountSummary{}, &ValidationError{Fields: []FieldError{
			{Field: "body", Tag: "required", Message: "nothing to update"},
		}}
	}

	now := u.clock.Now()
	writeCtx := context.WithoutCancel(ctx)
	var updated *model.Account
	err := u.tx.WithinTx(writeCtx, func(r repository.TxRepos) error {
		before, err := r.Accounts().FindByID(writeCtx, accountID)
		if err != nil {
			return err
		}
		// 配達ロールはフリート必須、それ以外は NONE のまま
		if update.FleetType != nil {
			if before.Role.IsOperational() && !update.FleetType.CanDeliver() {
				return ErrMissingFleetInfo
			}
			if !before.Role.IsOperational() && *update.FleetType != model.FleetNone {
				return &ValidationError{Fields: []FieldError{
					{Field: "fleetType", Tag: "excluded_unless", Message: "fleet type applies only to delivery roles"},
				}}
			}
		}
		if err := r.Accounts().UpdateProfile(writeCtx, accountID, update, now); err != nil {
			return err
		}
		after, err := r.Accounts().FindByID(writeCtx, accountID)
		if err != nil {
			return err
		}
		updated = after
		return writeAudit(writeCtx, r.AuditLogs(), actorID, accountID, model.AuditActionUpdateAccount,
			toProfileSnapshot(before), toProfileSnapshot(after), now)
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return AccountSummary{}, err
		}
		return AccountSummary{}, mapAccountError("update account", err)
	}

	u.logger.Info("account updated", zap.String("account_id", accountID), zap.String("actor_id", actorID))
	return toAccountSummary(updated), nil
}

// 論理削除 + 全セッション失効
func (u *AuthUsecase) DeleteAccount(ctx context.Context, actorID, accountID string) error {
	now := u.clock.Now()
	writeCtx := context.WithoutCancel(ctx)
	err := u.tx.WithinTx(writeCtx, func(r repository.TxRepos) error {
		before, err := r.Accounts().FindByID(writeCtx, accountID)
		if err != nil {
			return err
		}
		if err := r.Accounts().SoftDelete(writeCtx, accountID, now); err != nil {
			return err
		}
		n, err := u.ledger.revokeAllWith(writeCtx, r.RefreshTokens(), accountID, now)
		if err != nil {
			return err
		}
		return writeAudit(writeCtx, r.AuditLogs(), actorID, accountID, model.AuditActionDeleteAccount,
			statusSnapshot{Status: before.Status},
			statusSnapshot{Status: before.Status, Deleted: true, RevokedSessions: n},
			now)
	})
	if err != nil {
		return mapAccountError("delete account", err)
	}

	u.logger.Info("account deleted", zap.String("account_id", accountID), zap.String("actor_id", actorID))
	return nil
}

// 強制ログアウト。失効させた件数を返す
func (u *AuthUsecase) RevokeAllSessions(ctx context.Context, actorID, accountID string) (int64, error) {
	now := u.clock.Now()
	writeCtx := context.WithoutCancel(ctx)

	var revoked int64
	err := u.tx.WithinTx(writeCtx, func(r repository.TxRepos) error {
		if _, err := r.Accounts().FindByID(writeCtx, accountID); err != nil {
			return err
		}
		n, err := u.ledger.revokeAllWith(writeCtx, r.RefreshTokens(), accountID, now)
		if err != nil {
			return err
		}
		revoked = n
		return writeAudit(writeCtx, r.AuditLogs(), actorID, accountID, model.AuditActionRevokeSessions,
			nil, statusSnapshot{RevokedSessions: n}, now)
	})
	if err != nil {
		return 0, mapAccountError("revoke sessions", err)
	}

	u.logger.Info("sessions revoked",
		zap.String("account_id", accountID),
		zap.String("actor_id", actorID),
		zap.Int64("count", revoked),
	)
	return revoked, nil
}

// 管理者操作ログの検索条件（handler から渡す）
type AuditLogQuery struct {
	ActorAccountID string
	AccountID      string
	Action         string
	From           *time.Time
	To             *time.Time
	Limit          int
	Offset         int
}

func (u *AuthUsecase) ListAuditLogs(ctx context.Context, q AuditLogQuery) ([]model.AuditLog, error) {
	filter := repository.AuditLogFilter{
		CreatedFrom: q.From,
		CreatedTo:   q.To,
		Limit:       q.Limit,
		Offset:      q.Offset,
	}
	if v := strings.TrimSpace(q.ActorAccountID); v != "" {
		filter.ActorAccountID = &v
	}
	if v := strings.TrimSpace(q.AccountID); v != "" {
		filter.ResourceID = &v
	}
	if v := strings.TrimSpace(q.Action); v != "" {
		action := model.AuditAction(strings.ToUpper(v))
		if !action.Valid() {
			return nil, &ValidationError{Fields: []FieldError{
				{Field: "action", Tag: "oneof", Message: "unknown audit action"},
			}}
		}
		filter.Action = &action
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return nil, &ValidationError{Fields: []FieldError{
			{Field: "from", Tag: "ltefield", Message: "from must not be after to"},
		}}
	}

	logs, err := u.audits.List(ctx, filter)
	if err != nil {
		return nil, internalError("list audit logs", err)
	}
	return logs, nil
}

type lockoutSnapshot struct {
	FailedLoginAttempts int        `json:"failedLoginAttempts"`
	LockedUntil         *time.Time `json:"lockedUntil"`
}

type profileSnapshot struct {
	Name      string          `json:"name"`
	Surname   string          `json:"surname"`
	Phone     string          `json:"phone"`
	Address   string          `json:"address"`
	FleetType model.FleetType `json:"fleetType"`
	ZoneID    *string         `json:"zoneId"`
}

func toProfileSnapshot(a *model.Account) profileSnapshot {
	return profileSnapshot{
		Name:      a.Name,
		Surname:   a.Surname,
		Phone:     a.Phone,
		Address:   a.Address,
		FleetType: a.FleetType,
		ZoneID:    a.ZoneID,
	}
}

func trimmedPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

type statusSnapshot struct {
	Status          model.AccountStatus `json:"status,omitempty"`
	Deleted         bool                `json:"deleted,omitempty"`
	RevokedSessions int64               `json:"revokedSessions,omitempty"`
}

// before/after は JSON 文字列で残す。nil なら空
func writeAudit(ctx context.Context, logs repository.AuditLogRepository, actorID, accountID string, action model.AuditAction, before, after any, now time.Time) error {
	beforeJSON, err := marshalSnapshot(before)
	if err != nil {
		return err
	}
	afterJSON, err := marshalSnapshot(after)
	if err != nil {
		return err
	}
	return logs.Create(ctx, &model.AuditLog{
		ActorAccountID: actorID,
		Action:         action,
		ResourceType:   model.AuditResourceAccount,
		ResourceID:     accountID,
		BeforeJSON:     beforeJSON,
		AfterJSON:      afterJSON,
		CreatedAt:      now,
	})
}

func marshalSnapshot(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (u *AuthUsecase) findAccount(ctx context.Context, accountID string) (*model.Account, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, ErrAccountNotFound
	}
	account, err := u.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, mapAccountError("find account", err)
	}
	return account, nil
}

func mapAccountError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrAccountNotFound):
		return ErrAccountNotFound
	case errors.Is(err, ErrInternal):
		return err
	default:
		return internalError(op, err)
	}
}
