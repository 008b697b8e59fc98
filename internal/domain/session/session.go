// Package session maps the in-memory trading workspace to and from the
// persisted trade_sessions rows.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chilli-trade-ledger/internal/domain/trade"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyLedger    = fmt.Errorf("%w: add at least one purchase or sale before saving", trade.ErrValidation)
	ErrSaveInProgress = errors.New("a save for this user is already in progress")
)

// DefaultNameLayout renders the save date in the default session name.
const DefaultNameLayout = "02/01/2006"

// TradeSession is a named snapshot of a ledger owned by one user.
type TradeSession struct {
	ID                  uuid.UUID         `json:"id"`
	CreatedAt           time.Time         `json:"created_at"`
	UserID              uuid.UUID         `json:"user_id"`
	SessionName         string            `json:"session_name"`
	TotalPurchaseAmount decimal.Decimal   `json:"total_purchase_amount"`
	TotalSaleAmount     decimal.Decimal   `json:"total_sale_amount"`
	NetProfit           decimal.Decimal   `json:"net_profit"`
	Purchases           []PersistedRecord `json:"purchases"`
	Sales               []PersistedRecord `json:"sales"`
}

// IsNew reports whether the session has not been stored yet.
func (s *TradeSession) IsNew() bool {
	return s.ID == uuid.Nil
}

// RecomputeTotals derives the portfolio columns from the stored records.
// Stored totals are never trusted on read.
func (s *TradeSession) RecomputeTotals() {
	totals := trade.ComputeTotals(MigrateRecords(s.Purchases, trade.SidePurchase), MigrateRecords(s.Sales, trade.SideSale))
	s.TotalPurchaseAmount = totals.TotalPurchaseAmount
	s.TotalSaleAmount = totals.TotalSaleAmount
	s.NetProfit = totals.NetProfit
}

// Workspace is the owned application state for one signed-in user.
type Workspace struct {
	Ledger          trade.Ledger `json:"ledger"`
	SessionName     string       `json:"sessionName"`
	ActiveSessionID *uuid.UUID   `json:"activeSessionId,omitempty"`
}

// NewWorkspace returns an empty workspace with no active session.
func NewWorkspace() Workspace {
	return Workspace{Ledger: trade.NewLedger()}
}

// Reset clears both record sequences, the drafts and the active session id
// so that the next save inserts a new row.
func Reset() Workspace {
	return NewWorkspace()
}

// DefaultName is the name given to a session saved without one.
func DefaultName(now time.Time) string {
	return "Session " + now.Format(DefaultNameLayout)
}

// ToPersisted packages the workspace into a row. When the workspace has an
// active session the row carries its id and the caller updates in place;
// otherwise the id is zero and the caller inserts.
func ToPersisted(ws Workspace, owner uuid.UUID, now time.Time) (*TradeSession, error) {
	if ws.Ledger.IsEmpty() {
		return nil, ErrEmptyLedger
	}

	name := strings.TrimSpace(ws.SessionName)
	if name == "" {
		name = DefaultName(now)
	}

	totals := ws.Ledger.Totals()
	s := &TradeSession{
		UserID:              owner,
		SessionName:         name,
		TotalPurchaseAmount: totals.TotalPurchaseAmount,
		TotalSaleAmount:     totals.TotalSaleAmount,
		NetProfit:           totals.NetProfit,
		Purchases:           PersistRecords(ws.Ledger.Purchases),
		Sales:               PersistRecords(ws.Ledger.Sales),
	}
	if ws.ActiveSessionID != nil {
		s.ID = *ws.ActiveSessionID
	}
	return s, nil
}

// FromPersisted loads a stored session into a fresh workspace. Older rows
// are brought up to the current record shape, drafts are discarded and the
// session becomes the target of later saves.
func FromPersisted(s *TradeSession) Workspace {
	ws := NewWorkspace()
	ws.Ledger.Purchases = MigrateRecords(s.Purchases, trade.SidePurchase)
	ws.Ledger.Sales = MigrateRecords(s.Sales, trade.SideSale)
	ws.SessionName = s.SessionName
	id := s.ID
	ws.ActiveSessionID = &id
	return ws
}

// Search keeps the sessions whose name or any trader name contains query,
// ignoring case. An empty query returns sessions as given.
func Search(sessions []*TradeSession, query string) []*TradeSession {
	if query == "" {
		return sessions
	}
	q := strings.ToLower(query)

	matches := make([]*TradeSession, 0, len(sessions))
	for _, s := range sessions {
		if s.matches(q) {
			matches = append(matches, s)
		}
	}
	return matches
}

func (s *TradeSession) matches(lowerQuery string) bool {
	if strings.Contains(strings.ToLower(s.SessionName), lowerQuery) {
		return true
	}
	for _, records := range [][]PersistedRecord{s.Purchases, s.Sales} {
		for _, r := range records {
			if strings.Contains(strings.ToLower(r.TraderName), lowerQuery) {
				return true
			}
		}
	}
	return false
}
