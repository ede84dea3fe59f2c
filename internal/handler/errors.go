package handler

import (
	"errors"
	"net/http"

	"authservice/internal/infra/observability"
	auth "authservice/internal/usecase/auth_usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  []auth.FieldError `json:"fields,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func errorJSON(code string, msg string) errorResponse {
	return errorResponse{Error: code, Message: msg}
}

// usecase のエラーをHTTPに変換する。500 だけ詳細をログと Sentry に送る
func respondError(c echo.Context, log *zap.Logger, err error) error {
	var verr *auth.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "VALIDATION_ERROR", Fields: verr.Fields})
	case errors.Is(err, auth.ErrInvalidRole):
		return c.JSON(http.StatusBadRequest, errorJSON("VALIDATION_ERROR", "invalid role"))
	case errors.Is(err, auth.ErrMissingFleetInfo):
		return c.JSON(http.StatusBadRequest, errorJSON("VALIDATION_ERROR", "fleet type is required for this role"))
	case errors.Is(err, auth.ErrValidation):
		return c.JSON(http.StatusBadRequest, errorJSON("VALIDATION_ERROR", ""))
	case errors.Is(err, auth.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, errorJSON("INVALID_CREDENTIALS", "invalid email or password"))
	case errors.Is(err, auth.ErrAuthentication):
		return c.JSON(http.StatusUnauthorized, errorJSON("INVALID_TOKEN", ""))
	case errors.Is(err, auth.ErrConflict):
		return c.JSON(http.StatusConflict, errorJSON("CONFLICT", "email already registered"))
	case errors.Is(err, auth.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorJSON("NOT_FOUND", ""))
	default:
		log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		observability.CaptureError(err)
		return c.JSON(http.StatusInternalServerError, errorJSON("INTERNAL", ""))
	}
}
