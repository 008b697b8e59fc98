// Package trade holds the chilli trading arithmetic: entries, finalized
// purchase/sale records, portfolio totals and the reducer functions that
// move a ledger from one state to the next.
package trade

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Persisted records are numeric JSON documents.
	decimal.MarshalJSONWithoutQuotes = true
}

// Validation errors. All of them wrap ErrValidation.
var (
	ErrValidation         = errors.New("validation failed")
	ErrMissingEntryFields = fmt.Errorf("%w: bags, weight and rate are required", ErrValidation)
	ErrInvalidNumber      = fmt.Errorf("%w: value is not a number", ErrValidation)
	ErrNoEntries          = fmt.Errorf("%w: add at least one entry", ErrValidation)
	ErrInvalidSide        = fmt.Errorf("%w: side must be purchases or sales", ErrValidation)
	ErrInvalidPaymentMode = fmt.Errorf("%w: payment mode must be absolute or incremental", ErrValidation)
)

var hundred = decimal.NewFromInt(100)

// LedgerEntry is one weighed lot: a number of bags, their combined weight and
// the agreed rate per quintal.
type LedgerEntry struct {
	ID               string          `json:"id"`
	Bags             decimal.Decimal `json:"bags"`
	Weight           decimal.Decimal `json:"weight"`
	WeightInQuintals decimal.Decimal `json:"weightInQuintals"`
	RatePerQuintal   decimal.Decimal `json:"ratePerQuintal"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
}

// EntryInput is the raw form input for a new entry.
type EntryInput struct {
	Bags   string
	Weight string
	Rate   string
}

// QuintalsFromWeight converts the combined quintal.kilogram notation into
// decimal quintals. 528.5 is 5 quintals and 28.5 kg, i.e. 5.285 quintals.
func QuintalsFromWeight(weight decimal.Decimal) decimal.Decimal {
	quintals := weight.Div(hundred).Floor()
	kilograms := weight.Mod(hundred)
	return quintals.Add(kilograms.Div(hundred))
}

// NewEntry validates raw input and derives the quintal weight and amount.
// Bounds are not checked: zero and negative values pass through.
func NewEntry(in EntryInput) (LedgerEntry, error) {
	bagsRaw := strings.TrimSpace(in.Bags)
	weightRaw := strings.TrimSpace(in.Weight)
	rateRaw := strings.TrimSpace(in.Rate)
	if bagsRaw == "" || weightRaw == "" || rateRaw == "" {
		return LedgerEntry{}, ErrMissingEntryFields
	}

	bags, err := decimal.NewFromString(bagsRaw)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("%w: bags %q", ErrInvalidNumber, in.Bags)
	}
	weight, err := decimal.NewFromString(weightRaw)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("%w: weight %q", ErrInvalidNumber, in.Weight)
	}
	rate, err := decimal.NewFromString(rateRaw)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("%w: rate %q", ErrInvalidNumber, in.Rate)
	}

	return NewEntryFromValues(bags, weight, rate), nil
}

// NewEntryFromValues builds an entry from already parsed values.
func NewEntryFromValues(bags, weight, rate decimal.Decimal) LedgerEntry {
	quintals := QuintalsFromWeight(weight)
	return LedgerEntry{
		ID:               newID(),
		Bags:             bags,
		Weight:           weight,
		WeightInQuintals: quintals,
		RatePerQuintal:   rate,
		TotalAmount:      quintals.Mul(rate),
	}
}

// newID returns a time-ordered identifier.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// RemoveEntry returns entries without the one carrying id.
func RemoveEntry(entries []LedgerEntry, id string) []LedgerEntry {
	out := make([]LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

// FormatCurrency renders an amount with two decimals.
func FormatCurrency(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatQuintals renders a weight in quintals with three decimals.
func FormatQuintals(d decimal.Decimal) string {
	return d.StringFixed(3)
}
