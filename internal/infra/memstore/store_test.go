package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"authservice/internal/domain/model"
	"authservice/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store, id, email string) {
	t.Helper()
	require.NoError(t, s.Accounts().Create(context.Background(), &model.Account{
		ID:     id,
		Email:  email,
		Role:   model.RoleCliente,
		Status: model.AccountStatusActive,
	}))
}

func TestAccounts_EmailUniqueAmongLiveRows(t *testing.T) {
	s := New()
	seed(t, s, "a1", "a@b.com")

	err := s.Accounts().Create(context.Background(), &model.Account{ID: "a2", Email: "a@b.com"})
	assert.ErrorIs(t, err, repository.ErrEmailTaken)

	require.NoError(t, s.Accounts().SoftDelete(context.Background(), "a1", t0))
	seed(t, s, "a2", "a@b.com")
	assert.Equal(t, 2, s.CountAccounts())
}

func TestAccounts_ConcurrentFailures(t *testing.T) {
	s := New()
	seed(t, s, "a1", "a@b.com")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Accounts().RegisterFailedLogin(context.Background(), "a1", 5, t0.Add(time.Hour), t0)
		}()
	}
	wg.Wait()

	a, ok := s.Account("a1")
	require.True(t, ok)
	assert.Equal(t, 20, a.FailedLoginAttempts)
	require.NotNil(t, a.LockedUntil)
	assert.Equal(t, t0.Add(time.Hour), *a.LockedUntil)
}

func TestAccounts_RecordSuccessfulLoginKeepsLock(t *testing.T) {
	s := New()
	seed(t, s, "a1", "a@b.com")
	for i := 0; i < 5; i++ {
		_, err := s.Accounts().RegisterFailedLogin(context.Background(), "a1", 5, t0.Add(time.Hour), t0)
		require.NoError(t, err)
	}

	err := s.Accounts().RecordSuccessfulLogin(context.Background(), "a1", t0)
	assert.ErrorIs(t, err, repository.ErrAccountLocked)
	a, _ := s.Account("a1")
	assert.Equal(t, 5, a.FailedLoginAttempts)
	assert.Nil(t, a.LastLoginAt)

	// 期限後は解除できる
	require.NoError(t, s.Accounts().RecordSuccessfulLogin(context.Background(), "a1", t0.Add(time.Hour)))
	a, _ = s.Account("a1")
	assert.Equal(t, 0, a.FailedLoginAttempts)
	assert.Nil(t, a.LockedUntil)

	assert.ErrorIs(t, s.Accounts().RecordSuccessfulLogin(context.Background(), "missing", t0), repository.ErrAccountNotFound)
}

func TestTxManager_RollsBackEveryTable(t *testing.T) {
	s := New()
	seed(t, s, "a1", "a@b.com")

	err := s.TxManager().WithinTx(context.Background(), func(r repository.TxRepos) error {
		require.NoError(t, r.Accounts().UpdateStatus(context.Background(), "a1", model.AccountStatusBlocked, t0))
		require.NoError(t, r.RefreshTokens().Create(context.Background(), &model.RefreshToken{ID: "t1", AccountID: "a1", TokenHash: "h1"}))
		require.NoError(t, r.AuditLogs().Create(context.Background(), &model.AuditLog{ResourceID: "a1"}))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	a, _ := s.Account("a1")
	assert.Equal(t, model.AccountStatusActive, a.Status)
	assert.Empty(t, s.TokensOf("a1"))

	logs, err := s.AuditLogs().List(context.Background(), repository.AuditLogFilter{})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestTxManager_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.TxManager().WithinTx(ctx, func(r repository.TxRepos) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestAccounts_ListFiltersAndOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	zone := "NORTE"
	for i, a := range []model.Account{
		{ID: "c1", Email: "c1@b.com", Name: "Ana", Role: model.RoleCliente, Status: model.AccountStatusActive},
		{ID: "d1", Email: "d1@b.com", Name: "Mario", Role: model.RoleRepartidor, Status: model.AccountStatusActive, FleetType: model.FleetCamion, ZoneID: &zone},
		{ID: "d2", Email: "d2@b.com", Name: "Marta", Role: model.RoleRepartidor, Status: model.AccountStatusBlocked, FleetType: model.FleetCamion, ZoneID: &zone},
		{ID: "d3", Email: "d3@b.com", Name: "Luis", Surname: "Del_Mar", Role: model.RoleRepartidor, Status: model.AccountStatusActive, FleetType: model.FleetMotorizado},
	} {
		a.Timestamps.CreatedAt = t0.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Accounts().Create(ctx, &a))
	}
	require.NoError(t, s.Accounts().SoftDelete(ctx, "c1", t0))

	ids := func(f repository.AccountFilter) []string {
		got, err := s.Accounts().List(ctx, f)
		require.NoError(t, err)
		out := []string{}
		for _, a := range got {
			out = append(out, a.ID)
		}
		return out
	}

	role := model.RoleRepartidor
	active := model.AccountStatusActive
	camion := model.FleetCamion
	assert.Equal(t, []string{"d1", "d2", "d3"}, ids(repository.AccountFilter{Role: &role}))
	assert.Equal(t, []string{"d1"}, ids(repository.AccountFilter{Role: &role, Status: &active, ZoneID: &zone, FleetType: &camion}))
	assert.Equal(t, []string{"d1", "d2", "d3"}, ids(repository.AccountFilter{Term: "mar"}))
	assert.Equal(t, []string{"d2"}, ids(repository.AccountFilter{Limit: 1, Offset: 1}))
	assert.Empty(t, ids(repository.AccountFilter{Offset: 10}))

	counts, err := s.Accounts().CountByRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[model.Role]int64{model.RoleRepartidor: 3}, counts)
}

func TestAccounts_UpdateProfileOnlyTouchesSetFields(t *testing.T) {
	s := New()
	ctx := context.Background()
	zone := "NORTE"
	require.NoError(t, s.Accounts().Create(ctx, &model.Account{
		ID: "d1", Email: "d1@b.com", Name: "Mario", Surname: "Ruiz", Phone: "0991234567",
		Role: model.RoleRepartidor, FleetType: model.FleetCamion, ZoneID: &zone,
	}))

	name := "Mateo"
	none := ""
	require.NoError(t, s.Accounts().UpdateProfile(ctx, "d1", repository.AccountProfileUpdate{Name: &name, ZoneID: &none}, t0))

	a, ok := s.Account("d1")
	require.True(t, ok)
	assert.Equal(t, "Mateo", a.Name)
	assert.Equal(t, "Ruiz", a.Surname)
	assert.Equal(t, "0991234567", a.Phone)
	assert.Equal(t, model.FleetCamion, a.FleetType)
	assert.Nil(t, a.ZoneID)
	assert.Equal(t, t0, a.Timestamps.UpdatedAt)

	err := s.Accounts().UpdateProfile(ctx, "missing", repository.AccountProfileUpdate{Name: &name}, t0)
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)
}

func TestRefreshTokens_CountActive(t *testing.T) {
	s := New()
	ctx := context.Background()
	deleted := t0
	for _, rt := range []model.RefreshToken{
		{ID: "t1", AccountID: "a1", TokenHash: "h1", ExpiresAt: t0.Add(time.Hour)},
		{ID: "t2", AccountID: "a1", TokenHash: "h2", ExpiresAt: t0.Add(time.Hour), Revoked: true},
		{ID: "t3", AccountID: "a1", TokenHash: "h3", ExpiresAt: t0},
		{ID: "t4", AccountID: "a1", TokenHash: "h4", ExpiresAt: t0.Add(time.Hour), DeletedAt: &deleted},
		{ID: "t5", AccountID: "a2", TokenHash: "h5", ExpiresAt: t0.Add(time.Hour)},
	} {
		require.NoError(t, s.RefreshTokens().Create(ctx, &rt))
	}

	n, err := s.RefreshTokens().CountActiveByAccountID(ctx, "a1", t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
