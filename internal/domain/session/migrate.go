package session

import (
	"slices"

	"github.com/chilli-trade-ledger/internal/domain/trade"
	"github.com/shopspring/decimal"
)

// PersistedRecord is a trade record as stored in a session row. Fields added
// after the first release are pointers so a row written by an older client
// can be told apart from one holding an explicit zero.
type PersistedRecord struct {
	ID                    string              `json:"id"`
	TraderName            string              `json:"traderName"`
	Entries               []trade.LedgerEntry `json:"entries"`
	TotalBags             decimal.Decimal     `json:"totalBags"`
	TotalWeightInQuintals decimal.Decimal     `json:"totalWeightInQuintals"`
	TotalAmount           decimal.Decimal     `json:"totalAmount"`
	AmountPaid            *decimal.Decimal    `json:"amountPaid,omitempty"`
	AmountReceived        *decimal.Decimal    `json:"amountReceived,omitempty"`
	BardhanRate           *decimal.Decimal    `json:"bardhanRate,omitempty"`
	BardhanAmount         *decimal.Decimal    `json:"bardhanAmount,omitempty"`
	KantaRate             *decimal.Decimal    `json:"kantaRate,omitempty"`
	KantaAmount           *decimal.Decimal    `json:"kantaAmount,omitempty"`
}

// recordMigration fills in one generation of fields.
type recordMigration struct {
	name  string
	apply func(r *PersistedRecord, side trade.Side)
}

// recordMigrations run in order on every loaded record. Each step only
// fills absent fields, so running the chain twice is harmless.
var recordMigrations = []recordMigration{
	{
		name: "payment-tracking",
		apply: func(r *PersistedRecord, _ trade.Side) {
			setIfAbsent(&r.AmountPaid, decimal.Zero)
			setIfAbsent(&r.AmountReceived, decimal.Zero)
		},
	},
	{
		name: "bardhan-charge",
		apply: func(r *PersistedRecord, _ trade.Side) {
			setIfAbsent(&r.BardhanRate, trade.DefaultBardhanRate)
			setIfAbsent(&r.BardhanAmount, decimal.Zero)
		},
	},
	{
		name: "kanta-charge",
		apply: func(r *PersistedRecord, side trade.Side) {
			if side != trade.SideSale {
				return
			}
			setIfAbsent(&r.KantaRate, trade.DefaultKantaRate)
			setIfAbsent(&r.KantaAmount, decimal.Zero)
		},
	},
}

func setIfAbsent(field **decimal.Decimal, def decimal.Decimal) {
	if *field == nil {
		v := def
		*field = &v
	}
}

// MigrateRecord brings a stored record of any vintage up to the current
// TradeRecord shape.
func MigrateRecord(r PersistedRecord, side trade.Side) trade.TradeRecord {
	for _, m := range recordMigrations {
		m.apply(&r, side)
	}

	return trade.TradeRecord{
		ID:                    r.ID,
		TraderName:            r.TraderName,
		Entries:               slices.Clone(r.Entries),
		TotalBags:             r.TotalBags,
		TotalWeightInQuintals: r.TotalWeightInQuintals,
		TotalAmount:           r.TotalAmount,
		AmountPaid:            *r.AmountPaid,
		AmountReceived:        *r.AmountReceived,
		BardhanRate:           *r.BardhanRate,
		BardhanAmount:         *r.BardhanAmount,
		KantaRate:             r.KantaRate,
		KantaAmount:           r.KantaAmount,
	}
}

// MigrateRecords applies MigrateRecord to a whole sequence.
func MigrateRecords(records []PersistedRecord, side trade.Side) []trade.TradeRecord {
	out := make([]trade.TradeRecord, 0, len(records))
	for _, r := range records {
		out = append(out, MigrateRecord(r, side))
	}
	return out
}

// PersistRecords converts current records to their stored shape with every
// field present.
func PersistRecords(records []trade.TradeRecord) []PersistedRecord {
	out := make([]PersistedRecord, 0, len(records))
	for _, r := range records {
		out = append(out, persistRecord(r))
	}
	return out
}

func persistRecord(r trade.TradeRecord) PersistedRecord {
	paid, received := r.AmountPaid, r.AmountReceived
	bardhanRate, bardhanAmount := r.BardhanRate, r.BardhanAmount
	return PersistedRecord{
		ID:                    r.ID,
		TraderName:            r.TraderName,
		Entries:               slices.Clone(r.Entries),
		TotalBags:             r.TotalBags,
		TotalWeightInQuintals: r.TotalWeightInQuintals,
		TotalAmount:           r.TotalAmount,
		AmountPaid:            &paid,
		AmountReceived:        &received,
		BardhanRate:           &bardhanRate,
		BardhanAmount:         &bardhanAmount,
		KantaRate:             r.KantaRate,
		KantaAmount:           r.KantaAmount,
	}
}
