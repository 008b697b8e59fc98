package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chilli-trade-ledger/internal/data/redis"
	"github.com/chilli-trade-ledger/internal/domain/user"
	"github.com/chilli-trade-ledger/internal/platform/auth"
	"github.com/google/uuid"
)

// AuthServiceImpl implements the AuthService interface
type AuthServiceImpl struct {
	users     user.Repository
	sessions  AuthSessionRepository
	workspace WorkspaceRepository
	feed      FeedDisconnector
	tokens    TokenManager
	tokenTTL  time.Duration
	logger    *slog.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	logger *slog.Logger,
	users user.Repository,
	sessions AuthSessionRepository,
	workspace WorkspaceRepository,
	feed FeedDisconnector,
	tokens TokenManager,
	tokenTTL time.Duration,
) AuthService {
	return &AuthServiceImpl{
		users:     users,
		sessions:  sessions,
		workspace: workspace,
		feed:      feed,
		tokens:    tokens,
		tokenTTL:  tokenTTL,
		logger:    logger,
	}
}

func (s *AuthServiceImpl) SignUp(ctx context.Context, email, password, displayName string) (*user.User, error) {
	u, err := user.NewUser(email, password, displayName)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("User signed up", "user_id", u.ID.String())
	return u, nil
}

func (s *AuthServiceImpl) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound{}) {
			return nil, user.ErrInvalidCredential
		}
		return nil, err
	}

	if err := u.CheckPassword(password); err != nil {
		if errors.Is(err, user.ErrInvalidCredential) {
			s.logger.Warn("Sign-in with wrong password", "user_id", u.ID.String())
		}
		return nil, err
	}

	as, err := s.sessions.Create(ctx, u.ID, s.tokenTTL)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(u.ID, u.Email, as.ID, as.ExpiresAt)
	if err != nil {
		if rErr := s.sessions.Revoke(ctx, as.ID); rErr != nil {
			s.logger.Warn("Failed to revoke auth session after token error", "auth_session_id", as.ID, "error", rErr)
		}
		return nil, err
	}

	s.logger.Info("User signed in", "user_id", u.ID.String(), "auth_session_id", as.ID)
	return &SignInResult{Token: token, ExpiresAt: as.ExpiresAt, User: u}, nil
}

func (s *AuthServiceImpl) SignOut(ctx context.Context, p Principal) error {
	if err := s.sessions.Revoke(ctx, p.SessionID); err != nil {
		return err
	}
	s.feed.DisconnectSession(p.SessionID)
	if err := s.workspace.Delete(ctx, p.UserID); err != nil {
		return err
	}

	s.logger.Info("User signed out", "user_id", p.UserID.String(), "auth_session_id", p.SessionID)
	return nil
}

func (s *AuthServiceImpl) Authenticate(ctx context.Context, token string) (*Principal, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	as, err := s.sessions.Get(ctx, claims.SessionID())
	if err != nil {
		if errors.Is(err, redis.ErrAuthSessionNotFound) {
			return nil, fmt.Errorf("%w: session revoked", auth.ErrInvalidToken)
		}
		return nil, err
	}
	if as.UserID != claims.UserID {
		s.logger.Warn("Token user does not match auth session",
			"auth_session_id", as.ID,
			"token_user_id", claims.UserID.String(),
		)
		return nil, auth.ErrInvalidToken
	}

	if err := s.sessions.Touch(ctx, as.ID); err != nil {
		s.logger.Warn("Failed to record activity", "auth_session_id", as.ID, "error", err)
	}

	return &Principal{UserID: claims.UserID, Email: claims.Email, SessionID: as.ID}, nil
}

func (s *AuthServiceImpl) CurrentUser(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *AuthServiceImpl) RevokeAllSessions(ctx context.Context) (int, error) {
	n, err := s.sessions.RevokeAll(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Revoked all auth sessions", "count", n)
	return n, nil
}
