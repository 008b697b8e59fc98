package service

import (
	"context"
	"time"

	"github.com/chilli-trade-ledger/internal/data/redis"
	"github.com/chilli-trade-ledger/internal/domain/session"
	"github.com/chilli-trade-ledger/internal/domain/trade"
	"github.com/chilli-trade-ledger/internal/domain/user"
	"github.com/chilli-trade-ledger/internal/platform/auth"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Principal is the signed-in caller resolved from a bearer token
type Principal struct {
	UserID    uuid.UUID
	Email     string
	SessionID string
}

// SignInResult carries the issued token and the user it was issued for
type SignInResult struct {
	Token     string
	ExpiresAt time.Time
	User      *user.User
}

// AuthService defines the identity operations
type AuthService interface {
	// SignUp registers a user. It does not sign the user in.
	// Returns user.ErrDuplicateEmail if the address is taken
	SignUp(ctx context.Context, email, password, displayName string) (*user.User, error)

	// SignIn checks credentials and opens an auth session.
	// Returns user.ErrInvalidCredential on unknown email or wrong password
	SignIn(ctx context.Context, email, password string) (*SignInResult, error)

	// SignOut revokes the caller's auth session, closes the change-feed
	// connections opened under it and resets their workspace
	SignOut(ctx context.Context, p Principal) error

	// Authenticate resolves a token to a live auth session and records activity.
	// Returns auth.ErrInvalidToken when the token or its session is no longer valid
	Authenticate(ctx context.Context, token string) (*Principal, error)

	CurrentUser(ctx context.Context, userID uuid.UUID) (*user.User, error)

	// RevokeAllSessions signs every user out
	RevokeAllSessions(ctx context.Context) (int, error)
}

// WorkspaceService edits the signed-in user's in-progress ledger.
// Every mutation returns the workspace as stored afterwards.
type WorkspaceService interface {
	Get(ctx context.Context, userID uuid.UUID) (session.Workspace, error)
	Reset(ctx context.Context, userID uuid.UUID) (session.Workspace, error)
	Rename(ctx context.Context, userID uuid.UUID, name string) (session.Workspace, error)
	EditDraft(ctx context.Context, userID uuid.UUID, side trade.Side, edit trade.DraftEdit) (session.Workspace, error)
	AddDraftEntry(ctx context.Context, userID uuid.UUID, side trade.Side, in trade.EntryInput) (session.Workspace, error)
	RemoveDraftEntry(ctx context.Context, userID uuid.UUID, side trade.Side, entryID string) (session.Workspace, error)
	// FinalizeDraft turns the draft into a record. trade.ErrNoEntries leaves the workspace unchanged
	FinalizeDraft(ctx context.Context, userID uuid.UUID, side trade.Side) (session.Workspace, error)
	RemoveRecord(ctx context.Context, userID uuid.UUID, side trade.Side, recordID string) (session.Workspace, error)
	// UpdatePayment returns ErrRecordNotFound when no record on side has recordID
	UpdatePayment(ctx context.Context, userID uuid.UUID, side trade.Side, recordID string, amount decimal.Decimal, mode trade.PaymentMode) (session.Workspace, error)
}

// SessionService manages persisted trade sessions
type SessionService interface {
	// List returns the user's sessions, newest first, filtered by query
	List(ctx context.Context, userID uuid.UUID, query string) ([]*session.TradeSession, error)

	// RefreshList reloads the list from the row store into the cache
	RefreshList(ctx context.Context, userID uuid.UUID) ([]*session.TradeSession, error)

	// Save inserts or updates the workspace as a session and resets the workspace.
	// Returns session.ErrSaveInProgress while another save for the user runs
	Save(ctx context.Context, userID uuid.UUID, correlationID string) (*session.TradeSession, error)

	// Load replaces the workspace with a stored session.
	// Returns session.ErrSessionNotFound if the user has no such session
	Load(ctx context.Context, userID, sessionID uuid.UUID) (session.Workspace, error)

	Delete(ctx context.Context, userID, sessionID uuid.UUID, correlationID string) error
}

// WorkspaceRepository stores one workspace per user
type WorkspaceRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (session.Workspace, error)
	Put(ctx context.Context, userID uuid.UUID, ws session.Workspace) error
	Update(ctx context.Context, userID uuid.UUID, fn func(session.Workspace) (session.Workspace, error)) (session.Workspace, error)
	Delete(ctx context.Context, userID uuid.UUID) error
}

// AuthSessionRepository stores the server-side half of issued tokens
type AuthSessionRepository interface {
	Create(ctx context.Context, userID uuid.UUID, ttl time.Duration) (*redis.AuthSession, error)
	Get(ctx context.Context, id string) (*redis.AuthSession, error)
	Touch(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string) error
	RevokeAll(ctx context.Context) (int, error)
}

// SessionListCache holds the last fetched session list per user
type SessionListCache interface {
	Get(ctx context.Context, userID uuid.UUID) ([]*session.TradeSession, bool, error)
	Set(ctx context.Context, userID uuid.UUID, sessions []*session.TradeSession) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// SaveLocker guards against a second save while one is outstanding
type SaveLocker interface {
	Acquire(ctx context.Context, userID uuid.UUID) (func(context.Context) error, error)
}

// TxExecutor runs fn inside a database transaction
type TxExecutor interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// FeedDisconnector closes change-feed connections of a revoked auth session
type FeedDisconnector interface {
	DisconnectSession(authSessionID string) int
}

// TokenManager issues and verifies bearer tokens
type TokenManager interface {
	Issue(userID uuid.UUID, email, sessionID string, expiresAt time.Time) (string, error)
	Parse(tokenString string) (*auth.Claims, error)
}

var (
	_ WorkspaceRepository   = (*redis.WorkspaceStore)(nil)
	_ AuthSessionRepository = (*redis.AuthSessionStore)(nil)
	_ SessionListCache      = (*redis.SessionListCache)(nil)
	_ SaveLocker            = (*redis.SaveLock)(nil)
	_ TokenManager          = (*auth.TokenService)(nil)
)
