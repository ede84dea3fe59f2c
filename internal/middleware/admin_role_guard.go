package middleware

import (
	"net/http"

	"authservice/internal/domain/model"

	"github.com/labstack/echo/v4"
)

// contextに入っているroleの権限レベルが min 以上か確認します。
func RequireAuthority(min model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(CtxRoleKey).(model.Role)
			if !ok || !role.Valid() {
				return c.JSON(http.StatusUnauthorized, errorJSON("UNAUTHORIZED"))
			}

			if role.AuthorityLevel() < min.AuthorityLevel() {
				return c.JSON(http.StatusForbidden, errorJSON("FORBIDDEN"))
			}

			return next(c)
		}
	}
}

// ADMINだけ許可
func AdminRoleGuard() echo.MiddlewareFunc {
	return RequireAuthority(model.RoleAdmin)
}
