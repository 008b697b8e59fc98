package handler

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/chilli-trade-ledger/internal/api_gateway/service"
	"github.com/chilli-trade-ledger/internal/domain/session"
	"github.com/chilli-trade-ledger/internal/domain/trade"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// WorkspaceHandler exposes the signed-in user's in-progress ledger
type WorkspaceHandler struct {
	workspaceService service.WorkspaceService
	logger           *slog.Logger
}

// NewWorkspaceHandler creates a new workspace handler
func NewWorkspaceHandler(logger *slog.Logger, workspaceService service.WorkspaceService) *WorkspaceHandler {
	return &WorkspaceHandler{
		workspaceService: workspaceService,
		logger:           logger,
	}
}

// Get returns both record lists, the drafts and the portfolio totals
func (h *WorkspaceHandler) Get(c *gin.Context) {
	p, ok := principalOrAbort(c)
	if !ok {
		return
	}
	ws, err := h.workspaceService.Get(c.Request.Context(), p.UserID)
	h.respond(c, "get_workspace", ws, err)
}

// Reset discards the workspace, including the link to a loaded session
func (h *WorkspaceHandler) Reset(c *gin.Context) {
	p, ok := principalOrAbort(c)
	if !ok {
		return
	}
	ws, err := h.workspaceService.Reset(c.Request.Context(), p.UserID)
	h.respond(c, "reset_workspace", ws, err)
}

func (h *WorkspaceHandler) Rename(c *gin.Context) {
	p, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	ws, err := h.workspaceService.Rename(c.Request.Context(), p.UserID, req.Name)
	h.respond(c, "rename_workspace", ws, err)
}

func (h *WorkspaceHandler) EditDraft(c *gin.Context) {
	p, side, ok := h.principalAndSide(c)
	if !ok {
		return
	}
	var req EditDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	edit := trade.DraftEdit{
		TraderName:  req.TraderName,
		Payment:     req.Payment.ptr(),
		BardhanRate: req.BardhanRate.ptr(),
		KantaRate:   req.KantaRate.ptr(),
	}
	ws, err := h.workspaceService.EditDraft(c.Request.Context(), p.UserID, side, edit)
	h.respond(c, "edit_draft", ws, err)
}

// AddEntry runs the calculator on one weighed lot and appends it to the draft
func (h *WorkspaceHandler) AddEntry(c *gin.Context) {
	p, side, ok := h.principalAndSide(c)
	if !ok {
		return
	}
	var req AddEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	in := trade.EntryInput{Bags: string(req.Bags), Weight: string(req.Weight), Rate: string(req.Rate)}
	ws, err := h.workspaceService.AddDraftEntry(c.Request.Context(), p.UserID, side, in)
	h.respond(c, "add_entry", ws, err)
}

func (h *WorkspaceHandler) RemoveEntry(c *gin.Context) {
	p, side, ok := h.principalAndSide(c)
	if !ok {
		return
	}
	ws, err := h.workspaceService.RemoveDraftEntry(c.Request.Context(), p.UserID, side, c.Param("entryId"))
	h.respond(c, "remove_entry", ws, err)
}

// FinalizeDraft aggregates the draft into a record on that side
func (h *WorkspaceHandler) FinalizeDraft(c *gin.Context) {
	p, side, ok := h.principalAndSide(c)
	if !ok {
		return
	}
	ws, err := h.workspaceService.FinalizeDraft(c.Request.Context(), p.UserID, side)
	if err != nil {
		respondServiceError(c, h.logger, "finalize_draft", err)
		return
	}
	RespondCreated(c, MapWorkspace(ws))
}

func (h *WorkspaceHandler) RemoveRecord(c *gin.Context) {
	p, side, ok := h.principalAndSide(c)
	if !ok {
		return
	}
	ws, err := h.workspaceService.RemoveRecord(c.Request.Context(), p.UserID, side, c.Param("recordId"))
	h.respond(c, "remove_record", ws, err)
}

func (h *WorkspaceHandler) UpdatePayment(c *gin.Context) {
	p, side, ok := h.principalAndSide(c)
	if !ok {
		return
	}
	var req UpdatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(string(req.Amount)))
	if err != nil {
		RespondValidationFailed(c, "amount is not a number")
		return
	}
	mode, err := trade.ParsePaymentMode(req.Mode)
	if err != nil {
		RespondValidationFailed(c, err.Error())
		return
	}
	ws, err := h.workspaceService.UpdatePayment(c.Request.Context(), p.UserID, side, c.Param("recordId"), amount, mode)
	h.respond(c, "update_payment", ws, err)
}

func (h *WorkspaceHandler) principalAndSide(c *gin.Context) (service.Principal, trade.Side, bool) {
	p, ok := principalOrAbort(c)
	if !ok {
		return service.Principal{}, "", false
	}
	side, err := trade.ParseSide(c.Param("side"))
	if err != nil {
		RespondValidationFailed(c, err.Error())
		return service.Principal{}, "", false
	}
	return p, side, true
}

func (h *WorkspaceHandler) respond(c *gin.Context, op string, ws session.Workspace, err error) {
	if err != nil {
		respondServiceError(c, h.logger, op, err)
		return
	}
	RespondOK(c, MapWorkspace(ws))
}

// MapWorkspace renders a workspace with its derived totals and draft summaries
func MapWorkspace(ws session.Workspace) WorkspaceResponse {
	resp := WorkspaceResponse{
		SessionName:   ws.SessionName,
		Purchases:     mapRecords(ws.Ledger.Purchases, trade.SidePurchase),
		Sales:         mapRecords(ws.Ledger.Sales, trade.SideSale),
		PurchaseDraft: mapDraft(ws.Ledger.PurchaseDraft),
		SaleDraft:     mapDraft(ws.Ledger.SaleDraft),
		Totals:        mapTotals(ws.Ledger.Totals()),
	}
	if ws.ActiveSessionID != nil {
		resp.ActiveSessionID = ws.ActiveSessionID.String()
	}
	return resp
}

func currency(d decimal.Decimal) json.Number {
	return json.Number(trade.FormatCurrency(d))
}

func quintals(d decimal.Decimal) json.Number {
	return json.Number(trade.FormatQuintals(d))
}

func mapEntries(entries []trade.LedgerEntry) []EntryResponse {
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryResponse{
			ID:               e.ID,
			Bags:             json.Number(e.Bags.String()),
			Weight:           json.Number(e.Weight.String()),
			WeightInQuintals: quintals(e.WeightInQuintals),
			RatePerQuintal:   currency(e.RatePerQuintal),
			TotalAmount:      currency(e.TotalAmount),
		})
	}
	return out
}

func mapRecords(records []trade.TradeRecord, side trade.Side) []RecordResponse {
	out := make([]RecordResponse, 0, len(records))
	for _, r := range records {
		settled := r.AmountPaid
		if side == trade.SideSale {
			settled = r.AmountReceived
		}
		rec := RecordResponse{
			ID:                    r.ID,
			TraderName:            r.TraderName,
			Entries:               mapEntries(r.Entries),
			TotalBags:             json.Number(r.TotalBags.String()),
			TotalWeightInQuintals: quintals(r.TotalWeightInQuintals),
			TotalAmount:           currency(r.TotalAmount),
			AmountPaid:            currency(r.AmountPaid),
			AmountReceived:        currency(r.AmountReceived),
			Pending:               currency(r.TotalAmount.Sub(settled)),
			BardhanRate:           currency(r.BardhanRate),
			BardhanAmount:         currency(r.BardhanAmount),
		}
		if r.KantaRate != nil {
			rate := currency(*r.KantaRate)
			rec.KantaRate = &rate
		}
		if r.KantaAmount != nil {
			amount := currency(*r.KantaAmount)
			rec.KantaAmount = &amount
		}
		out = append(out, rec)
	}
	return out
}

func mapDraft(d trade.Draft) DraftResponse {
	s := d.Summary()
	return DraftResponse{
		TraderName:  d.TraderName,
		Entries:     mapEntries(d.Entries),
		Payment:     d.Payment,
		BardhanRate: d.BardhanRate,
		KantaRate:   d.KantaRate,
		Summary: DraftSummary{
			Bags:     json.Number(s.Bags.String()),
			Quintals: quintals(s.Quintals),
			Amount:   currency(s.Amount),
			Pending:  currency(s.Pending),
		},
	}
}

func mapTotals(t trade.Totals) TotalsResponse {
	return TotalsResponse{
		TotalPurchaseAmount:  currency(t.TotalPurchaseAmount),
		TotalSaleAmount:      currency(t.TotalSaleAmount),
		NetProfit:            currency(t.NetProfit),
		IsProfit:             t.IsProfit(),
		TotalBagsPurchased:   json.Number(t.TotalBagsPurchased.String()),
		TotalBagsSold:        json.Number(t.TotalBagsSold.String()),
		RemainingBags:        json.Number(t.RemainingBags.String()),
		TotalAmountToPay:     currency(t.TotalAmountToPay),
		TotalAmountPaid:      currency(t.TotalAmountPaid),
		PendingPayment:       currency(t.PendingPayment),
		TotalAmountToReceive: currency(t.TotalAmountToReceive),
		TotalAmountReceived:  currency(t.TotalAmountReceived),
		PendingReceivable:    currency(t.PendingReceivable),
	}
}
