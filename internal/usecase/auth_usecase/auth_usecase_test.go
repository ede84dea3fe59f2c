package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"authservice/internal/domain/model"
	"authservice/internal/infra/memstore"
	"authservice/internal/repository"
	auth "authservice/internal/usecase/auth_usecase"
	"authservice/internal/validator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "password123"
)

type testEnv struct {
	store *memstore.Store
	clock *auth.StepClock
	uc    *auth.AuthUsecase
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	return newEnvWith(t, nil)
}

// wrap で AccountRepository に割り込める
func newEnvWith(t *testing.T, wrap func(s *memstore.Store, r repository.AccountRepository) repository.AccountRepository) *testEnv {
	t.Helper()

	store := memstore.New()
	var accounts repository.AccountRepository = store.Accounts()
	if wrap != nil {
		accounts = wrap(store, accounts)
	}
	clock := auth.NewStepClock()
	logger := zaptest.NewLogger(t)

	issuer, err := auth.NewJWTIssuer([]byte(testSecret), "authservice-test", 15*time.Minute, logger)
	require.NoError(t, err)

	uc, err := auth.NewAuthUsecase(auth.Settings{
		RefreshTTL:       7 * 24 * time.Hour,
		LockoutThreshold: 5,
		LockoutCooldown:  time.Hour,
	}, auth.Dependencies{
		Accounts:  accounts,
		Tokens:    store.RefreshTokens(),
		AuditLogs: store.AuditLogs(),
		Tx:        store.TxManager(),
		Validator: validator.NewAuthValidator(),
		Hasher:    auth.NewBcryptPasswordHasher(bcrypt.MinCost),
		Verifier:  auth.NewBcryptPasswordVerifier(),
		Issuer:    issuer,
		Clock:     clock,
		Logger:    logger,
	})
	require.NoError(t, err)

	return &testEnv{store: store, clock: clock, uc: uc}
}

func registerInput(email, role string) auth.RegisterInput {
	return auth.RegisterInput{
		Email:    email,
		Password: testPassword,
		Name:     "Ana",
		Surname:  "Lopez",
		Role:     role,
	}
}

func (e *testEnv) register(t *testing.T, email string) auth.AuthResult {
	t.Helper()
	res, err := e.uc.Register(context.Background(), registerInput(email, "CLIENTE"))
	require.NoError(t, err)
	return res
}

func (e *testEnv) login(email, password string) (auth.AuthResult, error) {
	return e.uc.Login(context.Background(), auth.LoginInput{Email: email, Password: password, IP: "10.0.0.1"})
}

func (e *testEnv) account(t *testing.T, id string) model.Account {
	t.Helper()
	a, ok := e.store.Account(id)
	require.True(t, ok)
	return a
}

// A
func TestRegister_Cliente(t *testing.T) {
	env := newEnv(t)

	res, err := env.uc.Register(context.Background(), registerInput("a@b.com", "CLIENTE"))
	require.NoError(t, err)

	assert.Equal(t, model.AccountStatusActive, res.Account.Status)
	assert.Equal(t, model.FleetNone, res.Account.FleetType)
	assert.Nil(t, res.Account.ZoneID)
	assert.Equal(t, "Ana Lopez", res.Account.FullName)
	assert.NotEmpty(t, res.Tokens.AccessToken)
	assert.NotEmpty(t, res.Tokens.RefreshToken)
	assert.Equal(t, "Bearer", res.Tokens.TokenType)
	assert.Equal(t, 900, res.Tokens.ExpiresIn)

	claims, err := env.uc.VerifyAccessToken(context.Background(), res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.Account.ID, claims.AccountID)
	assert.Equal(t, "a@b.com", claims.Email())
	assert.Equal(t, model.RoleCliente, claims.Role)
	assert.Equal(t, "customer:read customer:write", claims.Scope)
	assert.Empty(t, claims.FleetType)

	stored := env.account(t, res.Account.ID)
	assert.NotEqual(t, testPassword, stored.PasswordHash)
	assert.Len(t, env.store.TokensOf(res.Account.ID), 1)
}

// B
func TestRegister_RepartidorWithoutFleet(t *testing.T) {
	env := newEnv(t)

	_, err := env.uc.Register(context.Background(), registerInput("driver@b.com", "REPARTIDOR"))
	assert.ErrorIs(t, err, auth.ErrMissingFleetInfo)
	assert.ErrorIs(t, err, auth.ErrValidation)
	assert.Equal(t, 0, env.store.CountAccounts())
}

func TestRegister_RepartidorWithFleet(t *testing.T) {
	env := newEnv(t)

	in := registerInput("driver@b.com", "repartidor")
	in.FleetType = "motorizado"
	in.ZoneID = "ZONA-SUR"

	res, err := env.uc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, model.RoleRepartidor, res.Account.Role)
	assert.Equal(t, model.FleetMotorizado, res.Account.FleetType)

	claims, err := env.uc.VerifyAccessToken(context.Background(), res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "MOTORIZADO", claims.FleetType)
	assert.Equal(t, "ZONA-SUR", claims.ZoneID)
	assert.Equal(t, "delivery:read delivery:write", claims.Scope)
}

func TestRegister_NonOperationalRoleDropsFleet(t *testing.T) {
	env := newEnv(t)

	in := registerInput("boss@b.com", "GERENTE")
	in.FleetType = "CAMION"

	res, err := env.uc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, model.FleetNone, res.Account.FleetType)
}

func TestRegister_Rejections(t *testing.T) {
	cases := []struct {
		name string
		in   auth.RegisterInput
		want error
	}{
		{"unknown role", registerInput("x@b.com", "SUPERHERO"), auth.ErrInvalidRole},
		{"unknown fleet", func() auth.RegisterInput {
			in := registerInput("x@b.com", "REPARTIDOR")
			in.FleetType = "BICICLETA"
			return in
		}(), auth.ErrValidation},
		{"bad email", registerInput("nope", "CLIENTE"), auth.ErrValidation},
		{"short password", func() auth.RegisterInput {
			in := registerInput("x@b.com", "CLIENTE")
			in.Password = "short"
			return in
		}(), auth.ErrValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newEnv(t)
			_, err := env.uc.Register(context.Background(), tc.in)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, 0, env.store.CountAccounts())
		})
	}
}

func TestRegister_DuplicateEmailIsCaseInsensitive(t *testing.T) {
	env := newEnv(t)

	res := env.register(t, "  Ana@Example.COM ")
	assert.Equal(t, "ana@example.com", res.Account.Email)

	_, err := env.uc.Register(context.Background(), registerInput("ana@example.com", "CLIENTE"))
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
	assert.ErrorIs(t, err, auth.ErrConflict)
	assert.Equal(t, 1, env.store.CountAccounts())
}

func TestRegister_RollsBackWhenTokenCannotBeStored(t *testing.T) {
	env := newEnv(t)
	env.store.FailNextTokenCreate(errors.New("connection reset"))

	_, err := env.uc.Register(context.Background(), registerInput("a@b.com", "CLIENTE"))
	assert.ErrorIs(t, err, auth.ErrInternal)
	assert.Equal(t, 0, env.store.CountAccounts())
}

func TestLogin_Success(t *testing.T) {
	env := newEnv(t)
	reg := env.register(t, "a@b.com")

	res, err := env.login("A@B.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, res.Account.ID)
	require.NotNil(t, res.Account.LastLoginAt)
	assert.Equal(t, env.clock.Now(), *res.Account.LastLoginAt)

	_, err = env.uc.VerifyAccessToken(context.Background(), res.Tokens.AccessToken)
	assert.NoError(t, err)
}

func TestLogin_GenericFailures(t *testing.T) {
	env := newEnv(t)
	reg := env.register(t, "a@b.com")

	_, err := env.login("ghost@b.com", testPassword)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.ErrorIs(t, err, auth.ErrAuthentication)

	_, err = env.login("a@b.com", "wrong-password")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	require.NoError(t, env.uc.UpdateStatus(context.Background(), adminID, reg.Account.ID, "INACTIVE"))
	_, err = env.login("a@b.com", testPassword)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

// C
func TestLogin_LockoutAfterFiveFailures(t *testing.T) {
	env := newEnv(t)
	reg := env.register(t, "a@b.com")

	for i := 1; i <= 5; i++ {
		_, err := env.login("a@b.com", "wrong-password")
		require.ErrorIs(t, err, auth.ErrInvalidCredentials, "attempt %d", i)
	}

	locked := env.account(t, reg.Account.ID)
	assert.Equal(t, 5, locked.FailedLoginAttempts)
	require.NotNil(t, locked.LockedUntil)
	assert.Equal(t, env.clock.Now().Add(time.Hour), *locked.LockedUntil)

	// 正しいパスワードでもクールダウン中は失敗、回数も増えない
	_, err := env.login("a@b.com", testPassword)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	env.clock.Advance(59 * time.Minute)
	_, err = env.login("a@b.com", testPassword)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.Equal(t, 5, env.account(t, reg.Account.ID).FailedLoginAttempts)

	env.clock.Advance(time.Minute)
	_, err = env.login("a@b.com", testPassword)
	require.NoError(t, err)

	after := env.account(t, reg.Account.ID)
	assert.Equal(t, 0, after.FailedLoginAttempts)
	assert.Nil(t, after.LockedUntil)
}

func TestLogin_SuccessResetsCounter(t *testing.T) {
	env := newEnv(t)
	reg := env.register(t, "a@b.com")

	for i := 0; i < 4; i++ {
		_, err := env.login("a@b.com", "wrong-password")
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	}
	assert.Equal(t, 4, env.account(t, reg.Account.ID).FailedLoginAttempts)

	_, err := env.login("a@b.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, 0, env.account(t, reg.Account.ID).FailedLoginAttempts)

	// リセット後はまた5回まで許される
	for i := 0; i < 4; i++ {
		_, _ = env.login("a@b.com", "wrong-password")
	}
	_, err = env.login("a@b.com", testPassword)
	assert.NoError(t, err)
}

func TestLogin_ConcurrentFailuresAreAllCounted(t *testing.T) {
	env := newEnv(t)
	reg := env.register(t, "a@b.com")

	const attempts = 4
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.login("a@b.com", "wrong-password")
		}()
	}
	wg.Wait()

	assert.Equal(t, attempts, env.account(t, reg.Account.ID).FailedLoginAttempts)
}

func TestLogin_ConcurrentFailuresLockAccount(t *testing.T) {
	env := newEnv(t)
	reg := env.register(t, "a@b.com")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.login("a@b.com", "wrong-password")
		}()
	}
	wg.Wait()

	a := env.account(t, reg.Account.ID)
	assert.GreaterOrEqual(t, a.FailedLoginAttempts, 5)
	assert.True(t, a.IsLockedAt(env.clock.Now()))

	_, err := env.login("a@b.com", testPassword)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

// 読み取り直後に別リクエストがロックした状態を再現する
type lockAfterReadRepo struct {
	repository.AccountRepository
	store *memstore.Store
	until time.Time
}

func (r *lockAfterReadRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	a, err := r.AccountRepository.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	r.store.UpdateAccount(a.ID, func(row *model.Account) {
		row.FailedLoginAttempts = 5
		row.LockedUntil = &r.until
	})
	return a, nil
}

func TestLogin_SuccessDoesNotClearConcurrentLock(t *testing.T) {
	until := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	env := newEnvWith(t, func(s *memstore.Store, r repository.AccountRepository) repository.AccountRepository {
		return &lockAfterReadRepo{AccountRepository: r, store: s, until: until}
	})
	reg := env.register(t, "a@b.com")

	// 読み取った時点ではロックされていないが、成功の記録はロックを上書きしない
	_, err := env.login("a@b.com", testPassword)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	a := env.account(t, reg.Account.ID)
	assert.Equal(t, 5, a.FailedLoginAttempts)
	require.NotNil(t, a.LockedUntil)
	assert.Equal(t, until, *a.LockedUntil)
	assert.Nil(t, a.LastLoginAt)
	assert.Len(t, env.store.TokensOf(reg.Account.ID), 1)
}

// D
func TestRefresh_RotatesAndRejectsReuse(t *testing.T) {
	env := newEnv(t)
	env.register(t, "a@b.com")

	login, err := env.login("a@b.com", testPassword)
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	pair, err := env.uc.Refresh(context.Background(), auth.RefreshInput{RefreshToken: login.Tokens.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEqual(t, login.Tokens.AccessToken, pair.AccessToken)
	assert.NotEqual(t, login.Tokens.RefreshToken, pair.RefreshToken)

	claims, err := env.uc.VerifyAccessToken(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, login.Account.ID, claims.AccountID)

	_, err = env.uc.Refresh(context.Background(), auth.RefreshInput{RefreshToken: login.Tokens.RefreshToken})
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestRefresh_ReuseRevokesWholeFamily(t *testing.T) {
	env := newEnv(t)
	env.register(t, "a@b.com")

	login, err := env.login("a@b.com", testPassword)
	require.NoError(t, err)

	pair, err := env.uc.Refresh(context.Background(), auth.RefreshInput{RefreshToken: login.Tokens.RefreshToken})
	require.NoError(t, err)

	_, err = env.uc.Refresh(context.Background(), auth.RefreshInput{RefreshToken: login.Tokens.RefreshToken})
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = env.uc.Refresh(context.Background(), auth.RefreshInput{RefreshToken: pair.RefreshToken})
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

// E
func TestLogout_ThenRefreshFails(t *testing.T) {
	env := newEnv(t)
	env.register(t, "a@b.com")

	login, err := env.login("a@b.com", testPassword)
	require.NoError(t, err)

	require.NoError(t, env.uc.Logout(context.Background(), login.Tokens.RefreshToken))

	_, err = env.uc.Refresh(context.Background(), auth.RefreshInput{RefreshToken: login.Tokens.RefreshToken})
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	// 2回目のログアウトも成功
	assert.NoError(t, env.uc.Logout(context.Background(), login.Tokens.RefreshToken))
	assert.ErrorIs(t, env.uc.Logout(context.Background(), "unknown-token"), auth.ErrInvalidToken)
	assert.ErrorIs(t, env.uc.Logout(context.Background(), "  "), auth.ErrInvalidToken)
}

func TestLogout_ExpiredToken(t *testing.T) {
	env := newEnv(t)
	reg := env.register(t, "a@b.com")

	env.clock.Advance(8 * 24 * time.Hour)

	// 掃除前なら失効済みにして成功
	require.NoError(t, env.uc.Logout(context.Background(), reg.Tokens.RefreshToken))
	tokens := env.store.TokensOf(reg.Account.ID)
	require.Len(t, tokens, 1)
	assert.True(t, tokens[0].Revoked)
	assert.Equal(t, env.clock.Now(), *tokens[0].RevokedAt)

	// 掃除で消えた後は未知のトークン扱い
	n, err := env.uc.Ledger().SweepExpired(context.Background(), env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.ErrorIs(t, env.uc.Logout(context.Background(), reg.Tokens.RefreshToken), auth.ErrInvalidToken)
}

func TestRefresh_Rejections(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		env := newEnv(t)
		_, err := env.uc.Refresh(context.Background(), auth.RefreshInput{})
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		env := newEnv(t)
		reg := env.register(t, "a@b.com")
		env.clock.Advance(7 * 24 * time.Hour)
		_, err := env.uc.Refresh(context.Background(), auth.RefreshInput{RefreshToken: reg.Tokens.RefreshToken})
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("locked account", func(t *testing.T) {
		env := newEnv(t)
		reg := env.register(t, "a@b.com")
		until := env.clock.Now().Add(time.Hour)
		env.store.UpdateAccount(reg.Account.ID, func(a *model.Account) { a.LockedUntil = &until })

		_, err := env.uc.Refresh(context.Background(), auth.RefreshInput{RefreshToken: reg.Tokens.RefreshToken})
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("deleted account", func(t *testing.T) {
		env := newEnv(t)
		reg := env.register(t, "a@b.com")
		require.NoError(t, env.uc.DeleteAccount(context.Background(), adminID, reg.Account.ID))

		_, err := env.uc.Refresh(context.Background(), auth.RefreshInput{RefreshToken: reg.Tokens.RefreshToken})
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})
}

func TestVerifyAccessToken_Expires(t *testing.T) {
	env := newEnv(t)
	reg := env.register(t, "a@b.com")

	env.clock.Advance(15*time.Minute - time.Second)
	_, err := env.uc.VerifyAccessToken(context.Background(), reg.Tokens.AccessToken)
	assert.NoError(t, err)

	env.clock.Advance(time.Second)
	_, err = env.uc.VerifyAccessToken(context.Background(), reg.Tokens.AccessToken)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
