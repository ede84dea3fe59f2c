package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"authservice/internal/middleware"
	auth "authservice/internal/usecase/auth_usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const refreshCookieName = "refresh"

// handlerが使う usecase の約束
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (auth.AuthResult, error)
	Login(ctx context.Context, in auth.LoginInput) (auth.AuthResult, error)
	Refresh(ctx context.Context, in auth.RefreshInput) (auth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	GetAccount(ctx context.Context, accountID string) (auth.AccountSummary, error)
}

type AuthHandler struct {
	uc           AuthService
	logger       *zap.Logger
	refreshTTL   time.Duration // refresh cookie の有効期限
	cookieSecure bool
}

// DIコンストラクタ
func NewAuthHandler(uc AuthService, logger *zap.Logger, refreshTTL time.Duration, cookieSecure bool) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{uc: uc, logger: logger, refreshTTL: refreshTTL, cookieSecure: cookieSecure}
}

// /auth/register のリクエストボディ。
type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	Surname   string `json:"surname"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	Role      string `json:"role"`
	FleetType string `json:"fleetType"`
	ZoneID    string `json:"zoneId"`
}

// /auth/login のリクエストボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// /auth/refresh と /auth/logout。空ならCookieを使う
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// POST /auth/register
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := decodeJSON(c.Request(), &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON("VALIDATION_ERROR", "malformed JSON body"))
	}

	res, err := h.uc.Register(c.Request().Context(), auth.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		Name:      req.Name,
		Surname:   req.Surname,
		Phone:     req.Phone,
		Address:   req.Address,
		Role:      req.Role,
		FleetType: req.FleetType,
		ZoneID:    req.ZoneID,
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}

	h.setRefreshCookie(c, res.Tokens.RefreshToken)
	return c.JSON(http.StatusCreated, res)
}

// POST /auth/login
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := decodeJSON(c.Request(), &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON("VALIDATION_ERROR", "malformed JSON body"))
	}

	res, err := h.uc.Login(c.Request().Context(), auth.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}

	h.setRefreshCookie(c, res.Tokens.RefreshToken)
	return c.JSON(http.StatusOK, res)
}

// POST /auth/refresh
func (h *AuthHandler) Refresh(c echo.Context) error {
	token, err := h.refreshTokenFrom(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON("VALIDATION_ERROR", "malformed JSON body"))
	}

	pair, err := h.uc.Refresh(c.Request().Context(), auth.RefreshInput{
		RefreshToken: token,
		IP:           c.RealIP(),
		UserAgent:    c.Request().UserAgent(),
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	return c.JSON(http.StatusOK, pair)
}

// POST /auth/logout
func (h *AuthHandler) Logout(c echo.Context) error {
	token, err := h.refreshTokenFrom(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON("VALIDATION_ERROR", "malformed JSON body"))
	}

	if err := h.uc.Logout(c.Request().Context(), token); err != nil {
		return respondError(c, h.logger, err)
	}

	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, messageResponse{Message: "logout success"})
}

// GET /auth/me（AuthJWT の後ろ）
func (h *AuthHandler) Me(c echo.Context) error {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorJSON("UNAUTHORIZED", ""))
	}

	account, err := h.uc.GetAccount(c.Request().Context(), claims.AccountID)
	if err != nil {
		if errors.Is(err, auth.ErrAccountNotFound) {
			return c.JSON(http.StatusUnauthorized, errorJSON("UNAUTHORIZED", ""))
		}
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, account)
}

// ボディ優先、なければ refresh Cookie
func (h *AuthHandler) refreshTokenFrom(c echo.Context) (string, error) {
	var req refreshRequest
	if err := decodeJSON(c.Request(), &req); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if req.RefreshToken != "" {
		return req.RefreshToken, nil
	}
	if cookie, err := c.Cookie(refreshCookieName); err == nil {
		return cookie.Value, nil
	}
	return "", nil
}

// refreshtoken をCookieにセット。
func (h *AuthHandler) setRefreshCookie(c echo.Context, plainRefresh string) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    plainRefresh,
		Path:     "/api/v1/auth",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(h.refreshTTL),
	})
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/api/v1/auth",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// リクエストボディのJSONを読み取り。
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
