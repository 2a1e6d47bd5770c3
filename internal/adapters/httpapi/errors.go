package httpapi

import (
	"errors"
	"net/http"

	"benchcore/internal/core"
	"benchcore/pkg/domain"

	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error      string             `json:"error"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var rv core.RuleViolationError
	switch {
	case errors.As(err, &rv):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEditNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidReference):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvariantViolation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err error) error {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	var rv core.RuleViolationError
	if errors.As(err, &rv) {
		resp.Violations = rv.Result.Violations
	}
	if status == http.StatusInternalServerError {
		resp.Error = "internal error"
	}
	return c.JSON(status, resp)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}
