package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"authservice/internal/domain/model"
	domainrepo "authservice/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Postgres unique_violation
const pgUniqueViolation = "23505"

type accountGormRepository struct {
	db *gorm.DB
}

// DI
// main.goでこれをnewしてusecaseに注入します。
func NewAccountGormRepository(db *gorm.DB) domainrepo.AccountRepository {
	return &accountGormRepository{db: db}
}

// アカウントを新規作成。email重複は ErrEmailTaken
func (r *accountGormRepository) Create(ctx context.Context, account *model.Account) error {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		if isUniqueViolation(err) {
			return domainrepo.ErrEmailTaken
		}
		return err
	}
	return nil
}

// IDで1件取得（論理削除済みは除外）
func (r *accountGormRepository) FindByID(ctx context.Context, accountID string) (*model.Account, error) {
	var a model.Account

	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", accountID).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainrepo.ErrAccountNotFound
		}
		return nil, err
	}

	return &a, nil
}

// emailで1件取得（論理削除済みは除外）
func (r *accountGormRepository) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	var a model.Account

	err := r.db.WithContext(ctx).
		Where("email = ? AND deleted_at IS NULL", email).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainrepo.ErrAccountNotFound
		}
		return nil, err
	}

	return &a, nil
}

// 失敗回数を+1。読み取り→書き込みにせず、1本のUPDATEで済ませる
func (r *accountGormRepository) RegisterFailedLogin(
	ctx context.Context,
	accountID string,
	threshold int,
	lockUntil time.Time,
	now time.Time,
) (domainrepo.LockoutState, error) {
	var a model.Account

	// SET句の右辺は更新前の値を参照する
	res := r.db.WithContext(ctx).
		Model(&a).
		Clauses(clause.Returning{Columns: []clause.Column{
			{Name: "failed_login_attempts"},
			{Name: "locked_until"},
		}}).
		Where("id = ? AND deleted_at IS NULL", accountID).
		Updates(map[string]any{
			"failed_login_attempts": gorm.Expr("failed_login_attempts + 1"),
			"locked_until": gorm.Expr(
				"CASE WHEN failed_login_attempts + 1 >= ? THEN ?::timestamptz ELSE locked_until END",
				threshold, lockUntil,
			),
			"updated_at": now,
		})
	if res.Error != nil {
		return domainrepo.LockoutState{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domainrepo.LockoutState{}, domainrepo.ErrAccountNotFound
	}

	return domainrepo.LockoutState{
		FailedAttempts: a.FailedLoginAttempts,
		LockedUntil:    a.LockedUntil,
	}, nil
}

// ログイン成功時のリセット。チェック後に別リクエストがロックした場合は上書きしない
func (r *accountGormRepository) RecordSuccessfulLogin(ctx context.Context, accountID string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND deleted_at IS NULL", accountID).
		Where("locked_until IS NULL OR locked_until <= ?", at).
		Updates(map[string]any{
			"failed_login_attempts": 0,
			"locked_until":          nil,
			"last_login_at":         at,
			"updated_at":            at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// 0件: 削除済みかロック中かを切り分ける
	if _, err := r.FindByID(ctx, accountID); err != nil {
		return err
	}
	return domainrepo.ErrAccountLocked
}

func (r *accountGormRepository) ResetLockout(ctx context.Context, accountID string, now time.Time) error {
	return r.updateLive(ctx, accountID, map[string]any{
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"updated_at":            now,
	})
}

func (r *accountGormRepository) UpdateStatus(ctx context.Context, accountID string, status model.AccountStatus, now time.Time) error {
	return r.updateLive(ctx, accountID, map[string]any{
		"status":     status,
		"updated_at": now,
	})
}

func (r *accountGormRepository) SoftDelete(ctx context.Context, accountID string, now time.Time) error {
	return r.updateLive(ctx, accountID, map[string]any{
		"deleted_at": now,
		"updated_at": now,
	})
}

// nil でない項目だけ更新する
func (r *accountGormRepository) UpdateProfile(ctx context.Context, accountID string, update domainrepo.AccountProfileUpdate, now time.Time) error {
	values := map[string]any{"updated_at": now}
	if update.Name != nil {
		values["name"] = *update.Name
	}
	if update.Surname != nil {
		values["surname"] = *update.Surname
	}
	if update.Phone != nil {
		values["phone"] = *update.Phone
	}
	if update.Address != nil {
		values["address"] = *update.Address
	}
	if update.FleetType != nil {
		values["fleet_type"] = *update.FleetType
	}
	if update.ZoneID != nil {
		// 空文字はゾーン解除
		if *update.ZoneID == "" {
			values["zone_id"] = nil
		} else {
			values["zone_id"] = *update.ZoneID
		}
	}
	return r.updateLive(ctx, accountID, values)
}

func (r *accountGormRepository) List(ctx context.Context, filter domainrepo.AccountFilter) ([]model.Account, error) {
	filter = filter.Normalize()
	q := r.db.WithContext(ctx).Model(&model.Account{}).Where("deleted_at IS NULL")

	if filter.Role != nil {
		q = q.Where("role = ?", *filter.Role)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.ZoneID != nil {
		q = q.Where("zone_id = ?", *filter.ZoneID)
	}
	if filter.FleetType != nil {
		q = q.Where("fleet_type = ?", *filter.FleetType)
	}
	if filter.Term != "" {
		like := "%" + escapeLike(strings.ToLower(filter.Term)) + "%"
		q = q.Where("(LOWER(name) LIKE ? OR LOWER(surname) LIKE ?)", like, like)
	}

	var accounts []model.Account
	if err := q.Order("created_at ASC, id ASC").Limit(filter.Limit).Offset(filter.Offset).Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *accountGormRepository) CountByRole(ctx context.Context) (map[model.Role]int64, error) {
	var rows []struct {
		Role  model.Role
		Count int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Select("role, COUNT(*) AS count").
		Where("deleted_at IS NULL").
		Group("role").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[model.Role]int64, len(rows))
	for _, row := range rows {
		out[row.Role] = row.Count
	}
	return out, nil
}

// 論理削除されていない行だけ更新。0件は「対象がない」
func (r *accountGormRepository) updateLive(ctx context.Context, accountID string, values map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND deleted_at IS NULL", accountID).
		Updates(values)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domainrepo.ErrAccountNotFound
	}
	return nil
}

// LIKE のワイルドカードを文字として扱う（Postgres の既定エスケープは \）
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
