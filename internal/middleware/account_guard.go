package middleware

import (
	"context"
	"net/http"

	"authservice/internal/domain/model"
	auth "authservice/internal/usecase/auth_usecase"

	"github.com/labstack/echo/v4"
)

type AccountLookup interface {
	GetAccount(ctx context.Context, accountID string) (auth.AccountSummary, error)
}

// JWTの持ち主がまだ ACTIVE か DB で確認する。
// 停止・削除されたアカウントのアクセストークンは期限前でもここで止める
func AccountStatusGuard(lookup AccountLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			//AuthJWTが入れたaccount_idを取得する
			accountID, ok := c.Get(CtxAccountIDKey).(string)
			if !ok || accountID == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("UNAUTHORIZED"))
			}

			account, err := lookup.GetAccount(c.Request().Context(), accountID)
			if err != nil || account.Status != model.AccountStatusActive {
				return c.JSON(http.StatusUnauthorized, errorJSON("UNAUTHORIZED"))
			}

			return next(c)
		}
	}
}
