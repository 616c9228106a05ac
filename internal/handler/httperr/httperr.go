// Package httperr maps service errors onto HTTP responses.
package httperr

import (
	"errors"
	"net/http"

	"github.com/scaipass/ai-pass/backend/internal/auth"
	"github.com/scaipass/ai-pass/backend/internal/live"
	"github.com/scaipass/ai-pass/backend/internal/service/application"
	"github.com/scaipass/ai-pass/backend/internal/service/chat"
	"github.com/scaipass/ai-pass/backend/internal/service/session"
	"github.com/scaipass/ai-pass/backend/pkg/utils"
)

// Status returns the response code for err.
func Status(err error) int {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, application.ErrInvalidForm),
		errors.Is(err, application.ErrInvalidDecision):
		return http.StatusBadRequest
	// ErrNotOwner wraps ErrAuthRequired, so it is matched first
	case errors.Is(err, session.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, application.ErrApplicationNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrBusy),
		errors.Is(err, application.ErrAlreadyReviewed):
		return http.StatusConflict
	case errors.Is(err, live.ErrSubscriptionFailed),
		errors.Is(err, chat.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Write responds with the status for err. Internal errors are not echoed.
func Write(w http.ResponseWriter, err error) {
	status := Status(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	utils.RespondError(w, status, message)
}
