package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// 平文パスワードからハッシュへ
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// 入力パスワードと保存したハッシュを比べる約束
type PasswordVerifier interface {
	Verify(plain string, hashed string) bool
}

// bcryptハッシュ化
type BcryptPasswordHasher struct {
	cost int
}

// DI
func NewBcryptPasswordHasher(cost int) *BcryptPasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptPasswordHasher{cost: cost}
}

func (h *BcryptPasswordHasher) Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// bcryptハッシュと平文を比較
type BcryptPasswordVerifier struct{}

func NewBcryptPasswordVerifier() *BcryptPasswordVerifier {
	return &BcryptPasswordVerifier{}
}

// 壊れたハッシュも false（エラーにはしない）
func (v *BcryptPasswordVerifier) Verify(plain string, hashed string) bool {
	if hashed == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
