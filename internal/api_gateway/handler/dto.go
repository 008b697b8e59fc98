package handler

import (
	"bytes"
	"encoding/json"
	"strings"
)

// NumberInput accepts a form value sent either as a JSON string or a JSON number
type NumberInput string

func (n *NumberInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = NumberInput(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*n = NumberInput(num.String())
	return nil
}

func (n *NumberInput) ptr() *string {
	if n == nil {
		return nil
	}
	s := strings.TrimSpace(string(*n))
	return &s
}

// SignUpRequest represents a request to register a new user
type SignUpRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6,max=72"`
	DisplayName string `json:"display_name" binding:"required"`
}

// SignInRequest represents a request to sign in
type SignInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
}

// SignInResponse carries the bearer token for subsequent requests
type SignInResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// RenameRequest sets the name the workspace will be saved under. Blank picks the dated default.
type RenameRequest struct {
	Name string `json:"name"`
}

// EditDraftRequest changes draft form fields; omitted fields are left as they are
type EditDraftRequest struct {
	TraderName  *string      `json:"trader_name"`
	Payment     *NumberInput `json:"payment"`
	BardhanRate *NumberInput `json:"bardhan_rate"`
	KantaRate   *NumberInput `json:"kanta_rate"`
}

// AddEntryRequest is one weighed lot. Missing values are reported by the calculator.
type AddEntryRequest struct {
	Bags   NumberInput `json:"bags"`
	Weight NumberInput `json:"weight"`
	Rate   NumberInput `json:"rate"`
}

// UpdatePaymentRequest sets or adds to a record's paid (purchase) or received (sale) amount
type UpdatePaymentRequest struct {
	Amount NumberInput `json:"amount" binding:"required"`
	Mode   string      `json:"mode" binding:"required,oneof=absolute incremental"`
}

// EntryResponse represents a ledger entry in API responses
type EntryResponse struct {
	ID               string      `json:"id"`
	Bags             json.Number `json:"bags"`
	Weight           json.Number `json:"weight"`
	WeightInQuintals json.Number `json:"weight_in_quintals"`
	RatePerQuintal   json.Number `json:"rate_per_quintal"`
	TotalAmount      json.Number `json:"total_amount"`
}

// RecordResponse represents a finalized purchase or sale in API responses
type RecordResponse struct {
	ID                    string          `json:"id"`
	TraderName            string          `json:"trader_name"`
	Entries               []EntryResponse `json:"entries"`
	TotalBags             json.Number     `json:"total_bags"`
	TotalWeightInQuintals json.Number     `json:"total_weight_in_quintals"`
	TotalAmount           json.Number     `json:"total_amount"`
	AmountPaid            json.Number     `json:"amount_paid"`
	AmountReceived        json.Number     `json:"amount_received"`
	Pending               json.Number     `json:"pending"`
	BardhanRate           json.Number     `json:"bardhan_rate"`
	BardhanAmount         json.Number     `json:"bardhan_amount"`
	KantaRate             *json.Number    `json:"kanta_rate,omitempty"`
	KantaAmount           *json.Number    `json:"kanta_amount,omitempty"`
}

// DraftResponse represents the record being composed on one side
type DraftResponse struct {
	TraderName  string          `json:"trader_name"`
	Entries     []EntryResponse `json:"entries"`
	Payment     string          `json:"payment"`
	BardhanRate string          `json:"bardhan_rate"`
	KantaRate   string          `json:"kanta_rate,omitempty"`
	Summary     DraftSummary    `json:"summary"`
}

// DraftSummary is the running total of a draft
type DraftSummary struct {
	Bags     json.Number `json:"bags"`
	Quintals json.Number `json:"quintals"`
	Amount   json.Number `json:"amount"`
	Pending  json.Number `json:"pending"`
}

// TotalsResponse represents the portfolio totals of the workspace
type TotalsResponse struct {
	TotalPurchaseAmount  json.Number `json:"total_purchase_amount"`
	TotalSaleAmount      json.Number `json:"total_sale_amount"`
	NetProfit            json.Number `json:"net_profit"`
	IsProfit             bool        `json:"is_profit"`
	TotalBagsPurchased   json.Number `json:"total_bags_purchased"`
	TotalBagsSold        json.Number `json:"total_bags_sold"`
	RemainingBags        json.Number `json:"remaining_bags"`
	TotalAmountToPay     json.Number `json:"total_amount_to_pay"`
	TotalAmountPaid      json.Number `json:"total_amount_paid"`
	PendingPayment       json.Number `json:"pending_payment"`
	TotalAmountToReceive json.Number `json:"total_amount_to_receive"`
	TotalAmountReceived  json.Number `json:"total_amount_received"`
	PendingReceivable    json.Number `json:"pending_receivable"`
}

// WorkspaceResponse represents the signed-in user's in-progress ledger
type WorkspaceResponse struct {
	SessionName     string           `json:"session_name"`
	ActiveSessionID string           `json:"active_session_id,omitempty"`
	Purchases       []RecordResponse `json:"purchases"`
	Sales           []RecordResponse `json:"sales"`
	PurchaseDraft   DraftResponse    `json:"purchase_draft"`
	SaleDraft       DraftResponse    `json:"sale_draft"`
	Totals          TotalsResponse   `json:"totals"`
}

// SessionResponse represents a saved trade session in list responses
type SessionResponse struct {
	ID                  string      `json:"id"`
	SessionName         string      `json:"session_name"`
	CreatedAt           string      `json:"created_at"`
	TotalPurchaseAmount json.Number `json:"total_purchase_amount"`
	TotalSaleAmount     json.Number `json:"total_sale_amount"`
	NetProfit           json.Number `json:"net_profit"`
	IsProfit            bool        `json:"is_profit"`
	PurchaseCount       int         `json:"purchase_count"`
	SaleCount           int         `json:"sale_count"`
}

// SessionListResponse represents a list of sessions in API responses
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

// SessionQueryParams filters the session list
type SessionQueryParams struct {
	Query string `form:"q"`
}
