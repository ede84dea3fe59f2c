package middleware

import (
	"context"
	"net/http"
	"strings"

	auth "authservice/internal/usecase/auth_usecase"

	"github.com/labstack/echo/v4"
)

const (
	CtxAccountIDKey = "account_id"   // string
	CtxRoleKey      = "account_role" // model.Role
	CtxClaimsKey    = "access_claims"
)

// アクセストークンを検証する約束（AuthUsecase が満たす）
type AccessTokenVerifier interface {
	VerifyAccessToken(ctx context.Context, token string) (*auth.AccessClaims, error)
}

// bearerAuth用のJWT検証ミドルウェア。
func AuthJWT(verifier AccessTokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			//Bearer形式か確認してtokenを抜く
			rawToken, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("UNAUTHORIZED"))
			}

			claims, err := verifier.VerifyAccessToken(c.Request().Context(), rawToken)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorJSON("UNAUTHORIZED"))
			}

			//contextへ保存
			c.Set(CtxAccountIDKey, claims.AccountID)
			c.Set(CtxRoleKey, claims.Role)
			c.Set(CtxClaimsKey, claims)

			return next(c)
		}
	}
}

// AuthJWT が保存したクレーム
func ClaimsFrom(c echo.Context) (*auth.AccessClaims, bool) {
	claims, ok := c.Get(CtxClaimsKey).(*auth.AccessClaims)
	return claims, ok && claims != nil
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(code string) errorResponse {
	return errorResponse{Error: code}
}
