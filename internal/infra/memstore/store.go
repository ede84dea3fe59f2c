// Package memstore はリポジトリの約束をメモリ上で満たす実装。
// usecase / server のテストで Postgres の代わりに使う。
package memstore

import (
	"context"
	"sync"
	"time"

	"authservice/internal/domain/model"
	"authservice/internal/repository"
)

type Store struct {
	mu       sync.Mutex
	accounts map[string]model.Account
	tokens   map[string]model.RefreshToken
	audits   []model.AuditLog

	// 次の RefreshToken 作成を失敗させる（ロールバック確認用）
	failTokenCreate error
}

func New() *Store {
	return &Store{
		accounts: map[string]model.Account{},
		tokens:   map[string]model.RefreshToken{},
	}
}

func (s *Store) Accounts() repository.AccountRepository {
	return &accountRepo{s: s}
}

func (s *Store) RefreshTokens() repository.RefreshTokenRepository {
	return &refreshTokenRepo{s: s}
}

func (s *Store) AuditLogs() repository.AuditLogRepository {
	return &auditLogRepo{s: s}
}

func (s *Store) TxManager() repository.TransactionManager {
	return &txManager{s: s}
}

func (s *Store) FailNextTokenCreate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failTokenCreate = err
}

// テスト用: 現在の行をそのまま返す
func (s *Store) Account(id string) (model.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	return a, ok
}

func (s *Store) TokensOf(accountID string) []model.RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RefreshToken
	for _, t := range s.tokens {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) CountAccounts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

// テスト用: 行を直接書き換える
func (s *Store) UpdateAccount(id string, fn func(a *model.Account)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return false
	}
	fn(&a)
	s.accounts[id] = a
	return true
}

type storeSnapshot struct {
	accounts map[string]model.Account
	tokens   map[string]model.RefreshToken
	audits   int
}

func (s *Store) snapshot() storeSnapshot {
	accounts := make(map[string]model.Account, len(s.accounts))
	for k, v := range s.accounts {
		accounts[k] = v
	}
	tokens := make(map[string]model.RefreshToken, len(s.tokens))
	for k, v := range s.tokens {
		tokens[k] = v
	}
	return storeSnapshot{accounts: accounts, tokens: tokens, audits: len(s.audits)}
}

func (s *Store) restore(snap storeSnapshot) {
	s.accounts = snap.accounts
	s.tokens = snap.tokens
	s.audits = s.audits[:snap.audits]
}

// locked が true のときは呼び出し側（tx）がロック済み
func (s *Store) lock(locked bool) func() {
	if locked {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type txRepos struct {
	s *Store
}

func (r txRepos) Accounts() repository.AccountRepository {
	return &accountRepo{s: r.s, locked: true}
}

func (r txRepos) RefreshTokens() repository.RefreshTokenRepository {
	return &refreshTokenRepo{s: r.s, locked: true}
}

func (r txRepos) AuditLogs() repository.AuditLogRepository {
	return &auditLogRepo{s: r.s, locked: true}
}

// tx 全体でストアを排他し、エラーならスナップショットに戻す
type txManager struct {
	s *Store
}

func (m *txManager) WithinTx(ctx context.Context, fn func(r repository.TxRepos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	snap := m.s.snapshot()
	if err := fn(txRepos{s: m.s}); err != nil {
		m.s.restore(snap)
		return err
	}
	return nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
