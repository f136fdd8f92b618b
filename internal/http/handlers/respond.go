package handlers

import (
	"net/http"

	"github.com/geocoder89/accountcore/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

// APIError is the body of every non-2xx response, wrapped as {"error": ...}.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError aborts the chain, so nothing registered after the handler
// can write a second body.
func RespondError(ctx *gin.Context, status int, code, message string, details any) {
	id := middlewares.RequestIDFromContext(ctx)
	if id == "" {
		id = ctx.GetHeader(middlewares.RequestIDHeader)
	}

	ctx.AbortWithStatusJSON(status, errorEnvelope{Error: APIError{
		Code:      code,
		Message:   message,
		RequestID: id,
		Details:   details,
	}})
}

func RespondBadRequest(ctx *gin.Context, message string, details any) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondUnauthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

func RespondForbidden(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusForbidden, "forbidden", message, nil)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondConflict(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusConflict, code, message, nil)
}

// RespondUnprocessable is for a well-formed request naming a target that
// cannot take the operation, such as an adjust with neither id nor email.
func RespondUnprocessable(ctx *gin.Context, message string, details any) {
	RespondError(ctx, http.StatusUnprocessableEntity, "invalid_target", message, details)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}
