package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/chatauth/internal/domain/account"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get("request_id")

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondUnauthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

// RespondServiceError maps the account error kinds onto HTTP. Anything
// unrecognised is reported as an opaque 500; the service has already
// logged the cause.
func RespondServiceError(ctx *gin.Context, err error) {
	var verr *account.ValidationError

	switch {
	case errors.As(err, &verr):
		RespondBadRequest(ctx, "Request validation failed", gin.H{"fields": verr.Fields})
	case errors.Is(err, account.ErrValidation):
		RespondBadRequest(ctx, "Request validation failed", nil)
	case errors.Is(err, account.ErrConflict):
		RespondError(ctx, http.StatusConflict, "email_taken", "Email is already in use.", nil)
	case errors.Is(err, account.ErrNotFound):
		RespondError(ctx, http.StatusNotFound, "account_not_found", "No account matches this request.", nil)
	case errors.Is(err, account.ErrInvalidCredentials):
		RespondUnauthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
	case errors.Is(err, account.ErrUnauthenticated):
		RespondUnauthorized(ctx, "unauthorized", "Invalid or expired access token")
	case errors.Is(err, account.ErrUpload):
		RespondError(ctx, http.StatusBadGateway, "upload_failed", "Avatar upload failed, please try again.", nil)
	default:
		if !errors.Is(err, account.ErrInternal) {
			slog.Default().ErrorContext(ctx.Request.Context(), "unmapped_error", "err", err, "request_id", requestIDFrom(ctx))
		}
		RespondInternal(ctx, "Something went wrong")
	}
}
