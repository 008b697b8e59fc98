package handler

import (
	"errors"
	"log/slog"

	"github.com/chilli-trade-ledger/internal/api_gateway/middleware"
	"github.com/chilli-trade-ledger/internal/api_gateway/service"
	"github.com/chilli-trade-ledger/internal/data/redis"
	"github.com/chilli-trade-ledger/internal/domain/session"
	"github.com/chilli-trade-ledger/internal/domain/trade"
	"github.com/chilli-trade-ledger/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// principalOrAbort returns the signed-in caller. Routes behind the auth
// middleware always carry one; a missing principal is answered with 401.
func principalOrAbort(c *gin.Context) (service.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		RespondUnauthorized(c, "")
		return service.Principal{}, false
	}
	return p, true
}

// respondServiceError maps the errors a service call can return onto the
// response envelope. Unknown errors are logged and answered with 500.
func respondServiceError(c *gin.Context, logger *slog.Logger, op string, err error) {
	var recordNotFound service.ErrRecordNotFound
	var duplicateEmail user.ErrDuplicateEmail

	switch {
	case errors.Is(err, trade.ErrValidation):
		RespondValidationFailed(c, err.Error())
	case errors.Is(err, user.ErrEmptyEmail), errors.Is(err, user.ErrEmptyPassword), errors.Is(err, user.ErrEmptyDisplayName),
		errors.Is(err, user.ErrPasswordTooLong):
		RespondValidationFailed(c, err.Error())
	case errors.Is(err, session.ErrSessionNotFound{}):
		RespondNotFound(c, "Trade session not found")
	case errors.As(err, &recordNotFound):
		RespondNotFound(c, recordNotFound.Error())
	case errors.Is(err, user.ErrUserNotFound{}):
		RespondNotFound(c, "User not found")
	case errors.Is(err, session.ErrSaveInProgress):
		RespondConflict(c, "A save is already in progress")
	case errors.As(err, &duplicateEmail):
		logger.Warn("Sign-up with an address that is taken", "email", duplicateEmail.Email)
		RespondConflict(c, "A user with this email already exists")
	case errors.Is(err, redis.ErrWorkspaceConflict):
		RespondConflict(c, "The workspace changed concurrently, retry the request")
	case errors.Is(err, user.ErrInvalidCredential):
		RespondUnauthorized(c, "Invalid email or password")
	default:
		logger.Error("Request failed", "operation", op, "error", err)
		RespondInternalError(c)
	}
}
