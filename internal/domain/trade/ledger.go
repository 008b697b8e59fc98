package trade

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Draft is the unsaved state of one side while a record is being composed.
// Payment and rates stay as typed so a half-filled form round-trips.
type Draft struct {
	TraderName  string        `json:"traderName"`
	Entries     []LedgerEntry `json:"entries"`
	Payment     string        `json:"payment"`
	BardhanRate string        `json:"bardhanRate"`
	KantaRate   string        `json:"kantaRate,omitempty"`
}

// NewDraft returns an empty draft carrying the default charge rates.
func NewDraft(side Side) Draft {
	d := Draft{
		Entries:     []LedgerEntry{},
		BardhanRate: DefaultBardhanRate.String(),
	}
	if side == SideSale {
		d.KantaRate = DefaultKantaRate.String()
	}
	return d
}

// DraftEdit holds optional changes to the draft's form fields. Nil leaves
// the field as it is.
type DraftEdit struct {
	TraderName  *string
	Payment     *string
	BardhanRate *string
	KantaRate   *string
}

// DraftSummary is the running total shown while composing a record.
type DraftSummary struct {
	Bags     decimal.Decimal
	Quintals decimal.Decimal
	Amount   decimal.Decimal
	Pending  decimal.Decimal
}

// Summary totals the draft entries. Charges are not included until the
// record is finalized.
func (d Draft) Summary() DraftSummary {
	var s DraftSummary
	for _, e := range d.Entries {
		s.Bags = s.Bags.Add(e.Bags)
		s.Quintals = s.Quintals.Add(e.WeightInQuintals)
		s.Amount = s.Amount.Add(e.TotalAmount)
	}
	s.Pending = s.Amount.Sub(parseOr(d.Payment, decimal.Zero))
	return s
}

// Ledger is the in-memory trading state: both record sequences and a draft
// per side. The functions below never modify their input ledger.
type Ledger struct {
	Purchases     []TradeRecord `json:"purchases"`
	Sales         []TradeRecord `json:"sales"`
	PurchaseDraft Draft         `json:"purchaseDraft"`
	SaleDraft     Draft         `json:"saleDraft"`
}

// NewLedger returns an empty ledger with fresh drafts.
func NewLedger() Ledger {
	return Ledger{
		Purchases:     []TradeRecord{},
		Sales:         []TradeRecord{},
		PurchaseDraft: NewDraft(SidePurchase),
		SaleDraft:     NewDraft(SideSale),
	}
}

// IsEmpty reports whether neither side holds a finalized record.
func (l Ledger) IsEmpty() bool {
	return len(l.Purchases) == 0 && len(l.Sales) == 0
}

// Totals computes the portfolio figures for the finalized records.
func (l Ledger) Totals() Totals {
	return ComputeTotals(l.Purchases, l.Sales)
}

// Records returns the sequence for side.
func (l Ledger) Records(side Side) []TradeRecord {
	if side == SideSale {
		return l.Sales
	}
	return l.Purchases
}

// Draft returns the draft for side.
func (l Ledger) Draft(side Side) Draft {
	if side == SideSale {
		return l.SaleDraft
	}
	return l.PurchaseDraft
}

func (l Ledger) withDraft(side Side, d Draft) Ledger {
	if side == SideSale {
		l.SaleDraft = d
	} else {
		l.PurchaseDraft = d
	}
	return l
}

func (l Ledger) withRecords(side Side, records []TradeRecord) Ledger {
	if side == SideSale {
		l.Sales = records
	} else {
		l.Purchases = records
	}
	return l
}

// AddDraftEntry validates the input and appends the entry to side's draft.
func AddDraftEntry(l Ledger, side Side, in EntryInput) (Ledger, LedgerEntry, error) {
	entry, err := NewEntry(in)
	if err != nil {
		return l, LedgerEntry{}, err
	}
	d := l.Draft(side)
	d.Entries = append(slices.Clone(d.Entries), entry)
	return l.withDraft(side, d), entry, nil
}

// RemoveDraftEntry drops an entry from side's draft. Unknown ids are ignored.
func RemoveDraftEntry(l Ledger, side Side, entryID string) Ledger {
	d := l.Draft(side)
	d.Entries = RemoveEntry(d.Entries, entryID)
	return l.withDraft(side, d)
}

// EditDraft applies the non-nil fields of edit to side's draft.
func EditDraft(l Ledger, side Side, edit DraftEdit) Ledger {
	d := l.Draft(side)
	if edit.TraderName != nil {
		d.TraderName = *edit.TraderName
	}
	if edit.Payment != nil {
		d.Payment = *edit.Payment
	}
	if edit.BardhanRate != nil {
		d.BardhanRate = *edit.BardhanRate
	}
	if edit.KantaRate != nil && side == SideSale {
		d.KantaRate = *edit.KantaRate
	}
	return l.withDraft(side, d)
}

// SaveDraft finalizes side's draft, appends the record and clears the draft.
// On error the ledger is returned unchanged.
func SaveDraft(l Ledger, side Side) (Ledger, TradeRecord, error) {
	d := l.Draft(side)
	rec, err := Finalize(side, RecordInput{
		TraderName:  d.TraderName,
		Entries:     d.Entries,
		Payment:     d.Payment,
		BardhanRate: d.BardhanRate,
		KantaRate:   d.KantaRate,
	})
	if err != nil {
		return l, TradeRecord{}, err
	}
	records := append(slices.Clone(l.Records(side)), rec)
	return l.withRecords(side, records).withDraft(side, NewDraft(side)), rec, nil
}

// RemoveRecord deletes a finalized record from side. Unknown ids are ignored.
func RemoveRecord(l Ledger, side Side, recordID string) Ledger {
	return l.withRecords(side, DeleteRecord(l.Records(side), recordID))
}

// ApplyPayment updates the payment on one record of side. The bool reports
// whether the record was found; when it is not the ledger is unchanged.
func ApplyPayment(l Ledger, side Side, recordID string, amount decimal.Decimal, mode PaymentMode) (Ledger, bool) {
	records := l.Records(side)
	idx := slices.IndexFunc(records, func(r TradeRecord) bool { return r.ID == recordID })
	if idx < 0 {
		return l, false
	}
	updated := slices.Clone(records)
	updated[idx] = UpdatePayment(records[idx], side, amount, mode)
	return l.withRecords(side, updated), true
}
