package server

import (
	"net/http"

	"authservice/internal/handler"
	"authservice/internal/middleware"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Auth  *handler.AuthHandler
	Admin *handler.AdminAccountHandler
}

// ルーティングに必要なミドルウェアの部品
type RouteDeps struct {
	Verifier       middleware.AccessTokenVerifier
	Accounts       middleware.AccountLookup
	LoginLimiter   *middleware.LoginRateLimiter // nil なら制限なし
	MetricsHandler http.Handler                 // nil なら /metrics なし
}

func RegisterRoutes(e *echo.Echo, h Handlers, deps RouteDeps) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.MetricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(deps.MetricsHandler))
	}

	api := e.Group("/api/v1")

	authG := api.Group("/auth")
	authG.POST("/register", h.Auth.Register)
	authG.POST("/login", h.Auth.Login, deps.LoginLimiter.Middleware())
	authG.POST("/refresh", h.Auth.Refresh)
	authG.POST("/logout", h.Auth.Logout)
	authG.GET("/me", h.Auth.Me, middleware.AuthJWT(deps.Verifier))

	// /admin 配下は全部「JWT必須 + アカウント有効 + ADMIN限定」
	admin := api.Group(
		"/admin",
		middleware.AuthJWT(deps.Verifier),
		middleware.AccountStatusGuard(deps.Accounts),
		middleware.AdminRoleGuard(),
	)
	admin.GET("/accounts", h.Admin.List)
	admin.GET("/accounts/by-email", h.Admin.GetByEmail)
	admin.GET("/accounts/:id", h.Admin.Get)
	admin.PATCH("/accounts/:id", h.Admin.Update)
	admin.GET("/accounts/:id/sessions/count", h.Admin.CountSessions)
	admin.POST("/accounts/:id/unlock", h.Admin.Unlock)
	admin.PATCH("/accounts/:id/status", h.Admin.UpdateStatus)
	admin.DELETE("/accounts/:id", h.Admin.Delete)
	admin.POST("/accounts/:id/revoke-sessions", h.Admin.RevokeSessions)
	admin.GET("/repartidores/available", h.Admin.ListAvailableRepartidores)
	admin.GET("/stats/roles", h.Admin.RoleStats)
	admin.GET("/audit-logs", h.Admin.ListAuditLogs)
}
