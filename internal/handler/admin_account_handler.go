package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"authservice/internal/domain/model"
	"authservice/internal/middleware"
	auth "authservice/internal/usecase/auth_usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type AdminAccountService interface {
	GetAccount(ctx context.Context, accountID string) (auth.AccountSummary, error)
	UnlockAccount(ctx context.Context, actorID, accountID string) error
	UpdateStatus(ctx context.Context, actorID, accountID string, status string) error
	DeleteAccount(ctx context.Context, actorID, accountID string) error
	RevokeAllSessions(ctx context.Context, actorID, accountID string) (int64, error)
	ListAuditLogs(ctx context.Context, q auth.AuditLogQuery) ([]model.AuditLog, error)

	ListAccounts(ctx context.Context, q auth.AccountQuery) ([]auth.AccountSummary, error)
	ListAvailableRepartidores(ctx context.Context, zoneID, fleetType string) ([]auth.AccountSummary, error)
	GetAccountByEmail(ctx context.Context, email string) (auth.AccountSummary, error)
	UpdateAccount(ctx context.Context, actorID, accountID string, in auth.UpdateAccountInput) (auth.AccountSummary, error)
	CountAccountsByRole(ctx context.Context) (map[model.Role]int64, error)
	CountActiveSessions(ctx context.Context, accountID string) (int64, error)
}

type AdminAccountHandler struct {
	uc     AdminAccountService
	logger *zap.Logger
}

func NewAdminAccountHandler(uc AdminAccountService, logger *zap.Logger) *AdminAccountHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminAccountHandler{uc: uc, logger: logger}
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type revokeSessionsResponse struct {
	AccountID string `json:"accountId"`
	Revoked   int64  `json:"revoked"`
}

// 省略された項目は変更しない
type updateAccountRequest struct {
	Name      *string `json:"name"`
	Surname   *string `json:"surname"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
	FleetType *string `json:"fleetType"`
	ZoneID    *string `json:"zoneId"`
}

type accountListResponse struct {
	Items []auth.AccountSummary `json:"items"`
}

type roleStatsResponse struct {
	Counts map[model.Role]int64 `json:"counts"`
	Total  int64                `json:"total"`
}

type activeSessionsResponse struct {
	AccountID string `json:"accountId"`
	Active    int64  `json:"active"`
}

type auditLogListResponse struct {
	Items []model.AuditLog `json:"items"`
}

// GET /admin/accounts/:id
func (h *AdminAccountHandler) Get(c echo.Context) error {
	account, err := h.uc.GetAccount(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, account)
}

// POST /admin/accounts/:id/unlock
func (h *AdminAccountHandler) Unlock(c echo.Context) error {
	if err := h.uc.UnlockAccount(c.Request().Context(), actorID(c), c.Param("id")); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "account unlocked"})
}

// PATCH /admin/accounts/:id/status
func (h *AdminAccountHandler) UpdateStatus(c echo.Context) error {
	var req updateStatusRequest
	if err := decodeJSON(c.Request(), &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON("VALIDATION_ERROR", "malformed JSON body"))
	}

	if err := h.uc.UpdateStatus(c.Request().Context(), actorID(c), c.Param("id"), req.Status); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "status updated"})
}

// DELETE /admin/accounts/:id
func (h *AdminAccountHandler) Delete(c echo.Context) error {
	if err := h.uc.DeleteAccount(c.Request().Context(), actorID(c), c.Param("id")); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// POST /admin/accounts/:id/revoke-sessions（強制ログアウト）
func (h *AdminAccountHandler) RevokeSessions(c echo.Context) error {
	id := c.Param("id")
	n, err := h.uc.RevokeAllSessions(c.Request().Context(), actorID(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, revokeSessionsResponse{AccountID: id, Revoked: n})
}

// GET /admin/audit-logs?accountId=&actorId=&action=&from=&to=&limit=&offset=
func (h *AdminAccountHandler) ListAuditLogs(c echo.Context) error {
	q := auth.AuditLogQuery{
		AccountID:      c.QueryParam("accountId"),
		ActorAccountID: c.QueryParam("actorId"),
		Action:         c.QueryParam("action"),
	}

	var fields []auth.FieldError
	var ok bool
	if q.Limit, ok = queryInt(c, "limit", 0); !ok {
		fields = append(fields, auth.FieldError{Field: "limit", Tag: "number", Message: "limit must be a number"})
	}
	if q.Offset, ok = queryInt(c, "offset", 0); !ok {
		fields = append(fields, auth.FieldError{Field: "offset", Tag: "number", Message: "offset must be a number"})
	}
	if q.From, ok = queryTime(c, "from"); !ok {
		fields = append(fields, auth.FieldError{Field: "from", Tag: "datetime", Message: "from must be RFC3339"})
	}
	if q.To, ok = queryTime(c, "to"); !ok {
		fields = append(fields, auth.FieldError{Field: "to", Tag: "datetime", Message: "to must be RFC3339"})
	}
	if len(fields) > 0 {
		return respondError(c, h.logger, &auth.ValidationError{Fields: fields})
	}

	logs, err := h.uc.ListAuditLogs(c.Request().Context(), q)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	return c.JSON(http.StatusOK, auditLogListResponse{Items: logs})
}

// GET /admin/accounts?role=&status=&zoneId=&fleetType=&q=&limit=&offset=
func (h *AdminAccountHandler) List(c echo.Context) error {
	q := auth.AccountQuery{
		Role:      c.QueryParam("role"),
		Status:    c.QueryParam("status"),
		ZoneID:    c.QueryParam("zoneId"),
		FleetType: c.QueryParam("fleetType"),
		Term:      c.QueryParam("q"),
	}

	var fields []auth.FieldError
	var ok bool
	if q.Limit, ok = queryInt(c, "limit", 0); !ok {
		fields = append(fields, auth.FieldError{Field: "limit", Tag: "number", Message: "limit must be a number"})
	}
	if q.Offset, ok = queryInt(c, "offset", 0); !ok {
		fields = append(fields, auth.FieldError{Field: "offset", Tag: "number", Message: "offset must be a number"})
	}
	if len(fields) > 0 {
		return respondError(c, h.logger, &auth.ValidationError{Fields: fields})
	}

	accounts, err := h.uc.ListAccounts(c.Request().Context(), q)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, accountListResponse{Items: accounts})
}

// GET /admin/accounts/by-email?email=
func (h *AdminAccountHandler) GetByEmail(c echo.Context) error {
	account, err := h.uc.GetAccountByEmail(c.Request().Context(), c.QueryParam("email"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, account)
}

// GET /admin/repartidores/available?zoneId=&fleetType=
func (h *AdminAccountHandler) ListAvailableRepartidores(c echo.Context) error {
	accounts, err := h.uc.ListAvailableRepartidores(c.Request().Context(), c.QueryParam("zoneId"), c.QueryParam("fleetType"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, accountListResponse{Items: accounts})
}

// PATCH /admin/accounts/:id
func (h *AdminAccountHandler) Update(c echo.Context) error {
	var req updateAccountRequest
	if err := decodeJSON(c.Request(), &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON("VALIDATION_ERROR", "malformed JSON body"))
	}

	account, err := h.uc.UpdateAccount(c.Request().Context(), actorID(c), c.Param("id"), auth.UpdateAccountInput{
		Name:      req.Name,
		Surname:   req.Surname,
		Phone:     req.Phone,
		Address:   req.Address,
		FleetType: req.FleetType,
		ZoneID:    req.ZoneID,
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, account)
}

// GET /admin/stats/roles
func (h *AdminAccountHandler) RoleStats(c echo.Context) error {
	counts, err := h.uc.CountAccountsByRole(c.Request().Context())
	if err != nil {
		return respondError(c, h.logger, err)
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return c.JSON(http.StatusOK, roleStatsResponse{Counts: counts, Total: total})
}

// GET /admin/accounts/:id/sessions/count
func (h *AdminAccountHandler) CountSessions(c echo.Context) error {
	id := c.Param("id")
	n, err := h.uc.CountActiveSessions(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, activeSessionsResponse{AccountID: id, Active: n})
}

// AuthJWT を通った後なので claims は必ずある
func actorID(c echo.Context) string {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return ""
	}
	return claims.AccountID
}

func queryInt(c echo.Context, key string, def int) (int, bool) {
	v := strings.TrimSpace(c.QueryParam(key))
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// 空なら nil
func queryTime(c echo.Context, key string) (*time.Time, bool) {
	v := strings.TrimSpace(c.QueryParam(key))
	if v == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, false
	}
	return &t, true
}
