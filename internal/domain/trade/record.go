package trade

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// Side tells which half of the ledger a record belongs to.
type Side string

const (
	SidePurchase Side = "purchase"
	SideSale     Side = "sale"
)

// ParseSide accepts the singular and plural spellings used by the API.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "purchase", "purchases":
		return SidePurchase, nil
	case "sale", "sales":
		return SideSale, nil
	}
	return "", ErrInvalidSide
}

// Default charges and placeholders applied when finalizing a record.
var (
	DefaultBardhanRate = decimal.NewFromInt(28)
	DefaultKantaRate   = decimal.RequireFromString("7.5")
)

const (
	UnknownSeller = "Unknown Seller"
	UnknownBuyer  = "Unknown Buyer"
)

// TradeRecord is a finalized purchase (from a seller) or sale (to a buyer).
// Only AmountPaid and AmountReceived change after creation.
type TradeRecord struct {
	ID                    string           `json:"id"`
	TraderName            string           `json:"traderName"`
	Entries               []LedgerEntry    `json:"entries"`
	TotalBags             decimal.Decimal  `json:"totalBags"`
	TotalWeightInQuintals decimal.Decimal  `json:"totalWeightInQuintals"`
	TotalAmount           decimal.Decimal  `json:"totalAmount"`
	AmountPaid            decimal.Decimal  `json:"amountPaid"`
	AmountReceived        decimal.Decimal  `json:"amountReceived"`
	BardhanRate           decimal.Decimal  `json:"bardhanRate"`
	BardhanAmount         decimal.Decimal  `json:"bardhanAmount"`
	KantaRate             *decimal.Decimal `json:"kantaRate,omitempty"`
	KantaAmount           *decimal.Decimal `json:"kantaAmount,omitempty"`
}

// RecordInput carries the draft values a record is finalized from. Payment
// and rates are raw user input; blank or unparseable values fall back to
// their defaults.
type RecordInput struct {
	TraderName  string
	Entries     []LedgerEntry
	Payment     string
	BardhanRate string
	KantaRate   string
}

// Finalize folds a non-empty entry list into a trade record for side.
func Finalize(side Side, in RecordInput) (TradeRecord, error) {
	if side != SidePurchase && side != SideSale {
		return TradeRecord{}, ErrInvalidSide
	}
	if len(in.Entries) == 0 {
		return TradeRecord{}, ErrNoEntries
	}

	var entriesAmount decimal.Decimal
	rec := TradeRecord{
		ID:         newID(),
		TraderName: strings.TrimSpace(in.TraderName),
		Entries:    slices.Clone(in.Entries),
	}
	for _, e := range in.Entries {
		rec.TotalBags = rec.TotalBags.Add(e.Bags)
		rec.TotalWeightInQuintals = rec.TotalWeightInQuintals.Add(e.WeightInQuintals)
		entriesAmount = entriesAmount.Add(e.TotalAmount)
	}

	payment := parseOr(in.Payment, decimal.Zero)
	rec.BardhanRate = parseOr(in.BardhanRate, DefaultBardhanRate)
	rec.BardhanAmount = rec.TotalBags.Mul(rec.BardhanRate)
	rec.TotalAmount = entriesAmount.Add(rec.BardhanAmount)

	switch side {
	case SidePurchase:
		if rec.TraderName == "" {
			rec.TraderName = UnknownSeller
		}
		rec.AmountPaid = payment
	case SideSale:
		if rec.TraderName == "" {
			rec.TraderName = UnknownBuyer
		}
		rec.AmountReceived = payment
		kantaRate := parseOr(in.KantaRate, DefaultKantaRate)
		kantaAmount := rec.TotalBags.Mul(kantaRate)
		rec.KantaRate = &kantaRate
		rec.KantaAmount = &kantaAmount
		rec.TotalAmount = rec.TotalAmount.Add(kantaAmount)
	}

	return rec, nil
}

// PaymentMode selects how UpdatePayment treats the amount.
type PaymentMode string

const (
	PaymentAbsolute    PaymentMode = "absolute"
	PaymentIncremental PaymentMode = "incremental"
)

// ParsePaymentMode validates a mode string.
func ParsePaymentMode(s string) (PaymentMode, error) {
	switch PaymentMode(strings.ToLower(strings.TrimSpace(s))) {
	case PaymentAbsolute:
		return PaymentAbsolute, nil
	case PaymentIncremental:
		return PaymentIncremental, nil
	}
	return "", ErrInvalidPaymentMode
}

// UpdatePayment returns a copy of rec with the side's payment field replaced
// or incremented. rec itself is left untouched.
func UpdatePayment(rec TradeRecord, side Side, amount decimal.Decimal, mode PaymentMode) TradeRecord {
	out := rec
	out.Entries = slices.Clone(rec.Entries)

	current := &out.AmountPaid
	if side == SideSale {
		current = &out.AmountReceived
	}
	if mode == PaymentIncremental {
		*current = current.Add(amount)
	} else {
		*current = amount
	}
	return out
}

// DeleteRecord returns records without the one carrying id.
func DeleteRecord(records []TradeRecord, id string) []TradeRecord {
	out := make([]TradeRecord, 0, len(records))
	for _, r := range records {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

// parseOr mirrors the lenient form handling: blank or unparseable input
// yields def.
func parseOr(raw string, def decimal.Decimal) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return def
	}
	return d
}
