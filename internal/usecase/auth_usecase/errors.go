package auth

import (
	"errors"
	"fmt"
	"strings"
)

// 呼び出し側（handler）はこの5分類だけを見る
var (
	// 400 入力不正
	ErrValidation = errors.New("validation error")
	// 401 認証失敗（理由は区別しない）
	ErrAuthentication = errors.New("authentication failed")
	// 409 競合
	ErrConflict = errors.New("conflict")
	// 404 管理系のみ
	ErrNotFound = errors.New("not found")
	// 500 詳細はログにだけ出す
	ErrInternal = errors.New("internal error")
)

var (
	// メール不明・ロック中・パスワード違いはすべてこれ
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrAuthentication)
	// 形式不正・署名不正・期限切れ・失効済みはすべてこれ
	ErrInvalidToken = fmt.Errorf("%w: invalid token", ErrAuthentication)

	ErrEmailTaken      = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrAccountNotFound = fmt.Errorf("%w: account not found", ErrNotFound)

	ErrInvalidRole      = fmt.Errorf("%w: invalid role", ErrValidation)
	ErrMissingFleetInfo = fmt.Errorf("%w: fleet type is required for delivery roles", ErrValidation)
)

// 項目ごとの入力エラー
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return "validation error: " + strings.Join(names, ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// 永続化・署名などの失敗を ErrInternal に包む（原因も残す）
func internalError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
}
