package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/chilli-trade-ledger/internal/api_gateway/middleware"
	"github.com/chilli-trade-ledger/internal/api_gateway/service"
	"github.com/chilli-trade-ledger/internal/domain/session"
	"github.com/chilli-trade-ledger/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ChangeFeed attaches a websocket connection to a user's change stream
type ChangeFeed interface {
	Serve(w http.ResponseWriter, r *http.Request, userID uuid.UUID, authSessionID string) error
}

// SessionHandler handles HTTP requests for saved trade sessions
type SessionHandler struct {
	sessionService service.SessionService
	feed           ChangeFeed
	logger         *slog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(logger *slog.Logger, sessionService service.SessionService, feed ChangeFeed) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		feed:           feed,
		logger:         logger,
	}
}

// List returns the caller's sessions, newest first, optionally filtered by ?q=
func (h *SessionHandler) List(c *gin.Context) {
	p, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var params SessionQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	sessions, err := h.sessionService.List(c.Request.Context(), p.UserID, params.Query)
	if err != nil {
		respondServiceError(c, h.logger, "list_sessions", err)
		return
	}

	RespondOK(c, MapSessionList(sessions))
}

// Save stores the workspace as a new session, or over the loaded one
func (h *SessionHandler) Save(c *gin.Context) {
	p, ok := principalOrAbort(c)
	if !ok {
		return
	}

	saved, err := h.sessionService.Save(c.Request.Context(), p.UserID, middleware.GetCorrelationID(c))
	if err != nil {
		respondServiceError(c, h.logger, "save_session", err)
		return
	}

	RespondOK(c, mapSessionToResponse(saved))
}

// Load replaces the workspace with the stored session
func (h *SessionHandler) Load(c *gin.Context) {
	p, id, ok := h.principalAndID(c)
	if !ok {
		return
	}

	ws, err := h.sessionService.Load(c.Request.Context(), p.UserID, id)
	if err != nil {
		respondServiceError(c, h.logger, "load_session", err)
		return
	}

	RespondOK(c, MapWorkspace(ws))
}

func (h *SessionHandler) Delete(c *gin.Context) {
	p, id, ok := h.principalAndID(c)
	if !ok {
		return
	}

	if err := h.sessionService.Delete(c.Request.Context(), p.UserID, id, middleware.GetCorrelationID(c)); err != nil {
		respondServiceError(c, h.logger, "delete_session", err)
		return
	}

	RespondNoContent(c)
}

// Changes upgrades to a websocket that receives the refreshed session list
// whenever one of the caller's sessions changes.
func (h *SessionHandler) Changes(c *gin.Context) {
	p, ok := principalOrAbort(c)
	if !ok {
		return
	}

	if err := h.feed.Serve(c.Writer, c.Request, p.UserID, p.SessionID); err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Warn("Websocket upgrade failed", "user_id", p.UserID.String(), "error", err)
	}
}

func (h *SessionHandler) principalAndID(c *gin.Context) (service.Principal, uuid.UUID, bool) {
	p, ok := principalOrAbort(c)
	if !ok {
		return service.Principal{}, uuid.Nil, false
	}
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		RespondBadRequest(c, "Invalid session ID")
		return service.Principal{}, uuid.Nil, false
	}
	return p, id, true
}

// SessionChangedMessage is pushed over the change feed
type SessionChangedMessage struct {
	Type      string            `json:"type"`
	Change    string            `json:"change"`
	SessionID string            `json:"session_id"`
	Sessions  []SessionResponse `json:"sessions"`
}

// RenderSessionChange builds the change feed message for a refreshed list
func RenderSessionChange(change *shared.SessionChange, sessions []*session.TradeSession) interface{} {
	return SessionChangedMessage{
		Type:      "sessions_changed",
		Change:    string(change.Type),
		SessionID: change.SessionID.String(),
		Sessions:  MapSessionList(sessions).Sessions,
	}
}

// MapSessionList maps stored sessions to list rows
func MapSessionList(sessions []*session.TradeSession) SessionListResponse {
	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, mapSessionToResponse(s))
	}
	return SessionListResponse{Sessions: out}
}

func mapSessionToResponse(s *session.TradeSession) SessionResponse {
	return SessionResponse{
		ID:                  s.ID.String(),
		SessionName:         s.SessionName,
		CreatedAt:           s.CreatedAt.Format(time.RFC3339),
		TotalPurchaseAmount: currency(s.TotalPurchaseAmount),
		TotalSaleAmount:     currency(s.TotalSaleAmount),
		NetProfit:           currency(s.NetProfit),
		IsProfit:            !s.NetProfit.IsNegative(),
		PurchaseCount:       len(s.Purchases),
		SaleCount:           len(s.Sales),
	}
}
