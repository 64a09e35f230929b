package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Prakash8999/focusboard-pro/ai"
	"github.com/Prakash8999/focusboard-pro/domain"
	"github.com/Prakash8999/focusboard-pro/upload"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func jsonError(c echo.Context, status int, code string, err error) error {
	return c.JSON(status, errorResponse{Error: err.Error(), Code: code})
}

// writeError maps domain and client errors onto HTTP responses. Anything
// unrecognized is treated as a storage failure.
func writeError(c echo.Context, err error) error {
	var verr domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return jsonError(c, http.StatusBadRequest, "validation", err)
	case errors.Is(err, domain.ErrMissingReason):
		return jsonError(c, http.StatusBadRequest, "reason_required", err)
	case errors.Is(err, domain.ErrLimitExceeded):
		return jsonError(c, http.StatusConflict, "limit_exceeded", err)
	case errors.Is(err, domain.ErrNotFound):
		return jsonError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, upload.ErrNotImage), errors.Is(err, upload.ErrTooLarge):
		return jsonError(c, http.StatusBadRequest, "upload_rejected", err)
	case isUploadEndpointError(err):
		return jsonError(c, http.StatusBadGateway, "upload_failed", err)
	case isAssistantError(err):
		return jsonError(c, http.StatusBadGateway, "assistant_failed", err)
	default:
		c.Logger().Error(err)
		return jsonError(c, http.StatusInternalServerError, "storage", err)
	}
}

func isUploadEndpointError(err error) bool {
	var endpointErr *upload.EndpointError
	return errors.As(err, &endpointErr)
}

func isAssistantError(err error) bool {
	var statusErr *ai.StatusError
	if errors.As(err, &statusErr) {
		return true
	}
	return errors.Is(err, ai.ErrMissingAPIKey) ||
		errors.Is(err, ai.ErrNoContent) ||
		errors.Is(err, ai.ErrInvalidJSON)
}
