package auth_test

import (
	"context"
	"testing"
	"time"

	"authservice/internal/domain/model"
	auth "authservice/internal/usecase/auth_usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminID = "00000000-0000-0000-0000-00000000a001"

func TestUnlockAccount(t *testing.T) {
	env := newEnv(t)
	reg := env.register(t, "a@b.com")

	for i := 0; i < 5; i++ {
		_, _ = env.login("a@b.com", "wrong-password")
	}
	_, err := env.login("a@b.com", testPassword)
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	require.NoError(t, env.uc.UnlockAccount(context.Background(), adminID, reg.Account.ID))

	a := env.account(t, reg.Account.ID)
	assert.Equal(t, 0, a.FailedLoginAttempts)
	assert.Nil(t, a.LockedUntil)

	_, err = env.login("a@b.com", testPassword)
	assert.NoError(t, err)

	logs, err := env.uc.ListAuditLogs(context.Background(), auth.AuditLogQuery{AccountID: reg.Account.ID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditActionUnlockAccount, logs[0].Action)
	assert.Equal(t, adminID, logs[0].ActorAccountID)
	assert.Contains(t, logs[0].BeforeJSON, `"failedLoginAttempts":5`)
	assert.JSONEq(t, `{"failedLoginAttempts":0,"lockedUntil":null}`, logs[0].AfterJSON)

	assert.ErrorIs(t, env.uc.UnlockAccount(context.Background(), adminID, "missing"), auth.ErrAccountNotFound)
}

func TestUpdateStatus_RevokesSessions(t *testing.T) {
	env := newEnv(t)
	reg := env.register(t, "a@b.com")

	require.NoError(t, env.uc.UpdateStatus(context.Background(), adminID, reg.Account.ID, "blocked"))

	for _, rt := range env.store.TokensOf(reg.Account.ID) {
		assert.True(t, rt.Revoked)
	}
	_, err := env.uc.Refresh(context.Background(), auth.RefreshInput{RefreshToken: reg.Tokens.RefreshToken})
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	// ACTIVE に戻してもトークンは戻らないがログインはできる
	require.NoError(t, env.uc.UpdateStatus(context.Background(), adminID, reg.Account.ID, "ACTIVE"))
	_, err = env.login("a@b.com", testPassword)
	assert.NoError(t, err)

	logs, err := env.uc.ListAuditLogs(context.Background(), auth.AuditLogQuery{Action: "update_account_status"})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	// 新しい順
	assert.JSONEq(t, `{"status":"ACTIVE"}`, logs[0].AfterJSON)
	assert.JSONEq(t, `{"status":"BLOCKED","revokedSessions":1}`, logs[1].AfterJSON)
	assert.JSONEq(t, `{"status":"ACTIVE"}`, logs[1].BeforeJSON)
}

func TestUpdateStatus_Rejections(t *testing.T) {
	env := newEnv(t)
	reg := env.register(t, "a@b.com")

	err := env.uc.UpdateStatus(context.Background(), adminID, reg.Account.ID, "FROZEN")
	assert.ErrorIs(t, err, auth.ErrValidation)

	err = env.uc.UpdateStatus(context.Background(), adminID, "missing", "ACTIVE")
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	logs, err := env.uc.ListAuditLogs(context.Background(), auth.AuditLogQuery{})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestDeleteAccount(t *testing.T) {
	env := newEnv(t)
	reg := env.register(t, "a@b.com")

	require.NoError(t, env.uc.DeleteAccount(context.Background(), adminID, reg.Account.ID))

	_, err := env.uc.GetAccount(context.Background(), reg.Account.ID)
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)

	_, err = env.login("a@b.com", testPassword)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	assert.ErrorIs(t, env.uc.DeleteAccount(context.Background(), adminID, reg.Account.ID), auth.ErrAccountNotFound)

	// 削除済みのメールは再登録できる
	_, err = env.uc.Register(context.Background(), registerInput("a@b.com", "CLIENTE"))
	assert.NoError(t, err)

	logs, err := env.uc.ListAuditLogs(context.Background(), auth.AuditLogQuery{ActorAccountID: adminID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditActionDeleteAccount, logs[0].Action)
	assert.JSONEq(t, `{"status":"ACTIVE","deleted":true,"revokedSessions":1}`, logs[0].AfterJSON)
}

func TestRevokeAllSessions(t *testing.T) {
	env := newEnv(t)
	reg := env.register(t, "a@b.com")
	_, err := env.login("a@b.com", testPassword)
	require.NoError(t, err)

	n, err := env.uc.RevokeAllSessions(context.Background(), adminID, reg.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = env.uc.RevokeAllSessions(context.Background(), adminID, "missing")
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)

	logs, err := env.uc.ListAuditLogs(context.Background(), auth.AuditLogQuery{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditActionRevokeSessions, logs[0].Action)
	assert.Empty(t, logs[0].BeforeJSON)
}

func TestListAuditLogs_Filters(t *testing.T) {
	env := newEnv(t)
	a := env.register(t, "a@b.com")
	b := env.register(t, "b@b.com")

	require.NoError(t, env.uc.UnlockAccount(context.Background(), adminID, a.Account.ID))
	env.clock.Advance(time.Minute)
	require.NoError(t, env.uc.UnlockAccount(context.Background(), adminID, b.Account.ID))
	_, err := env.uc.RevokeAllSessions(context.Background(), "other-admin", b.Account.ID)
	require.NoError(t, err)

	logs, err := env.uc.ListAuditLogs(context.Background(), auth.AuditLogQuery{AccountID: b.Account.ID})
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	logs, err = env.uc.ListAuditLogs(context.Background(), auth.AuditLogQuery{ActorAccountID: "other-admin"})
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	logs, err = env.uc.ListAuditLogs(context.Background(), auth.AuditLogQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditActionUnlockAccount, logs[0].Action)
	assert.Equal(t, b.Account.ID, logs[0].ResourceID)

	from := env.clock.Now()
	logs, err = env.uc.ListAuditLogs(context.Background(), auth.AuditLogQuery{From: &from})
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	_, err = env.uc.ListAuditLogs(context.Background(), auth.AuditLogQuery{Action: "DROP_TABLE"})
	assert.ErrorIs(t, err, auth.ErrValidation)

	to := from.Add(-1)
	_, err = env.uc.ListAuditLogs(context.Background(), auth.AuditLogQuery{From: &from, To: &to})
	assert.ErrorIs(t, err, auth.ErrValidation)
}

func TestGetAccount(t *testing.T) {
	env := newEnv(t)
	reg := env.register(t, "a@b.com")

	got, err := env.uc.GetAccount(context.Background(), reg.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", got.Email)
	assert.Equal(t, env.clock.Now(), got.CreatedAt)

	_, err = env.uc.GetAccount(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)
}
