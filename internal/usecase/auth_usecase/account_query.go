package auth

import (
	"context"
	"strings"

	"authservice/internal/domain/model"
	"authservice/internal/repository"
)

// 管理者用の一覧条件（handler から渡す）。空の項目は絞り込まない
type AccountQuery struct {
	Role      string
	Status    string
	ZoneID    string
	FleetType string
	Term      string
	Limit     int
	Offset    int
}

// 条件付きのアカウント一覧（ロール別・ゾーン別・名前検索を兼ねる）
func (u *AuthUsecase) ListAccounts(ctx context.Context, q AccountQuery) ([]AccountSummary, error) {
	filter, err := q.toFilter()
	if err != nil {
		return nil, err
	}
	return u.listAccounts(ctx, filter)
}

// ゾーンとフリートが一致する ACTIVE な配達員
func (u *AuthUsecase) ListAvailableRepartidores(ctx context.Context, zoneID, fleetType string) ([]AccountSummary, error) {
	var fields []FieldError
	zone := strings.TrimSpace(zoneID)
	if zone == "" {
		fields = append(fields, FieldError{Field: "zoneId", Tag: "required", Message: "This field is required"})
	}
	fleet, ok := model.ParseFleetType(fleetType)
	switch {
	case strings.TrimSpace(fleetType) == "":
		fields = append(fields, FieldError{Field: "fleetType", Tag: "required", Message: "This field is required"})
	case !ok || !fleet.CanDeliver():
		fields = append(fields, FieldError{Field: "fleetType", Tag: "oneof", Message: "unknown fleet type"})
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	role := model.RoleRepartidor
	status := model.AccountStatusActive
	return u.listAccounts(ctx, repository.AccountFilter{
		Role:      &role,
		Status:    &status,
		ZoneID:    &zone,
		FleetType: &fleet,
		Limit:     repository.MaxAccountListLimit,
	})
}

func (u *AuthUsecase) GetAccountByEmail(ctx context.Context, email string) (AccountSummary, error) {
	normalized := model.NormalizeEmail(email)
	if normalized == "" {
		return AccountSummary{}, &ValidationError{Fields: []FieldError{
			{Field: "email", Tag: "required", Message: "This field is required"},
		}}
	}
	account, err := u.accounts.FindByEmail(ctx, normalized)
	if err != nil {
		return AccountSummary{}, mapAccountError("find account by email", err)
	}
	return toAccountSummary(account), nil
}

// 全ロールを 0 埋めして返す
func (u *AuthUsecase) CountAccountsByRole(ctx context.Context) (map[model.Role]int64, error) {
	counts, err := u.accounts.CountByRole(ctx)
	if err != nil {
		return nil, internalError("count accounts by role", err)
	}
	out := make(map[model.Role]int64, len(model.AllRoles()))
	for _, r := range model.AllRoles() {
		out[r] = counts[r]
	}
	return out, nil
}

// ログイン中（有効なリフレッシュトークンを持つ）セッション数
func (u *AuthUsecase) CountActiveSessions(ctx context.Context, accountID string) (int64, error) {
	if _, err := u.findAccount(ctx, accountID); err != nil {
		return 0, err
	}
	return u.ledger.CountActive(ctx, accountID, u.clock.Now())
}

func (u *AuthUsecase) listAccounts(ctx context.Context, filter repository.AccountFilter) ([]AccountSummary, error) {
	accounts, err := u.accounts.List(ctx, filter)
	if err != nil {
		return nil, internalError("list accounts", err)
	}
	out := make([]AccountSummary, 0, len(accounts))
	for i := range accounts {
		out = append(out, toAccountSummary(&accounts[i]))
	}
	return out, nil
}

func (q AccountQuery) toFilter() (repository.AccountFilter, error) {
	filter := repository.AccountFilter{
		Term:   strings.TrimSpace(q.Term),
		Limit:  q.Limit,
		Offset: q.Offset,
	}

	var fields []FieldError
	if v := strings.TrimSpace(q.Role); v != "" {
		role, ok := model.ParseRole(v)
		if !ok {
			fields = append(fields, FieldError{Field: "role", Tag: "oneof", Message: "unknown role"})
		}
		filter.Role = &role
	}
	if v := strings.TrimSpace(q.Status); v != "" {
		status := model.AccountStatus(strings.ToUpper(v))
		if !status.Valid() {
			fields = append(fields, FieldError{Field: "status", Tag: "oneof", Message: "unknown account status"})
		}
		filter.Status = &status
	}
	if v := strings.TrimSpace(q.ZoneID); v != "" {
		filter.ZoneID = &v
	}
	if v := strings.TrimSpace(q.FleetType); v != "" {
		fleet, ok := model.ParseFleetType(v)
		if !ok {
			fields = append(fields, FieldError{Field: "fleetType", Tag: "oneof", Message: "unknown fleet type"})
		}
		filter.FleetType = &fleet
	}
	if len(filter.Term) > 100 {
		fields = append(fields, FieldError{Field: "q", Tag: "max", Message: "Value is too long"})
	}

	if len(fields) > 0 {
		return repository.AccountFilter{}, &ValidationError{Fields: fields}
	}
	return filter, nil
}
