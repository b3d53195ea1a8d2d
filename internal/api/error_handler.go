package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/zenspa/identity-service/internal/core/domain"
)

// Stable error codes returned in the envelope.
const (
	CodeUnauthorized        = "unauthorized"
	CodeTokenExpired        = "token_expired"
	CodeInvalidToken        = "invalid_token"
	CodeForbidden           = "forbidden"
	CodeInvalidRole         = "invalid_role"
	CodeUserNotFound        = "user_not_found"
	CodeNotFound            = "not_found"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeSignatureInvalid    = "signature_invalid"
	CodeValidationFailed    = "validation_failed"
	CodeInternal            = "internal_error"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to a status and a stable code.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Adds the raw error as detail only when debug is on.
func NewHTTPErrorHandler(log zerolog.Logger, debug bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := resolveError(err)
		if status >= http.StatusInternalServerError {
			log.Error().
				Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Msg("request failed")
		}
		if debug {
			body.Detail = err.Error()
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, errorResponse{Error: body})
	}
}

func resolveError(err error) (int, errorBody) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorBody{Code: httpCode(he.Code), Message: fmt.Sprintf("%v", he.Message)}
	}

	if kind, ok := domain.AuthErrorKindOf(err); ok {
		switch kind {
		case domain.AuthNoToken:
			return http.StatusUnauthorized, errorBody{Code: CodeUnauthorized, Message: "authentication required"}
		case domain.AuthExpired:
			return http.StatusUnauthorized, errorBody{Code: CodeTokenExpired, Message: "token expired"}
		case domain.AuthKeyUnavailable:
			return http.StatusUnauthorized, errorBody{Code: CodeUnauthorized, Message: "token could not be verified"}
		default:
			return http.StatusUnauthorized, errorBody{Code: CodeInvalidToken, Message: "invalid token"}
		}
	}

	// Known domain errors → deterministic HTTP codes.
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, errorBody{Code: CodeUnauthorized, Message: "authentication required"}
	case errors.Is(err, domain.ErrSignatureInvalid):
		return http.StatusUnauthorized, errorBody{Code: CodeSignatureInvalid, Message: "invalid webhook signature"}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, errorBody{Code: CodeForbidden, Message: "access forbidden"}
	case errors.Is(err, domain.ErrInvalidRole):
		return http.StatusBadRequest, errorBody{Code: CodeInvalidRole, Message: err.Error()}
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusBadRequest, errorBody{Code: CodeUserNotFound, Message: "target user not found"}
	case errors.Is(err, domain.ErrNoRoles):
		return http.StatusNotFound, errorBody{Code: CodeNotFound, Message: "no roles assigned"}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorBody{Code: CodeNotFound, Message: "resource not found"}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, errorBody{Code: CodeValidationFailed, Message: err.Error()}
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, errorBody{Code: CodeUpstreamUnavailable, Message: "service temporarily unavailable"}
	}

	return http.StatusInternalServerError, errorBody{Code: CodeInternal, Message: "internal server error"}
}

func httpCode(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeValidationFailed
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusServiceUnavailable:
		return CodeUpstreamUnavailable
	}
	if status >= http.StatusInternalServerError {
		return CodeInternal
	}
	return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}
