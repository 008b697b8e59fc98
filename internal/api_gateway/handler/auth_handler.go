package handler

import (
	"log/slog"
	"time"

	"github.com/chilli-trade-ledger/internal/api_gateway/service"
	"github.com/chilli-trade-ledger/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// AuthHandler handles sign-up, sign-in and sign-out
type AuthHandler struct {
	authService service.AuthService
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(logger *slog.Logger, authService service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// SignUp registers a user. The caller still has to sign in afterwards.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid sign-up request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	u, err := h.authService.SignUp(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		respondServiceError(c, h.logger, "sign_up", err)
		return
	}

	RespondCreated(c, mapUserToResponse(u))
}

func (h *AuthHandler) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid sign-in request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	res, err := h.authService.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(c, h.logger, "sign_in", err)
		return
	}

	RespondOK(c, SignInResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt.UTC().Format(time.RFC3339),
		User:      mapUserToResponse(res.User),
	})
}

// SignOut revokes the caller's token and clears their workspace
func (h *AuthHandler) SignOut(c *gin.Context) {
	p, ok := principalOrAbort(c)
	if !ok {
		return
	}

	if err := h.authService.SignOut(c.Request.Context(), p); err != nil {
		respondServiceError(c, h.logger, "sign_out", err)
		return
	}

	RespondNoContent(c)
}

func (h *AuthHandler) Me(c *gin.Context) {
	p, ok := principalOrAbort(c)
	if !ok {
		return
	}

	u, err := h.authService.CurrentUser(c.Request.Context(), p.UserID)
	if err != nil {
		respondServiceError(c, h.logger, "current_user", err)
		return
	}

	RespondOK(c, mapUserToResponse(u))
}

func mapUserToResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:          u.ID.String(),
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt.Format(time.RFC3339),
	}
}
