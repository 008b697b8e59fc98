package trade

import "github.com/shopspring/decimal"

// Totals are the portfolio figures derived from both sides of a ledger.
// They are recomputed from the records on every read.
type Totals struct {
	TotalPurchaseAmount decimal.Decimal
	TotalSaleAmount     decimal.Decimal
	NetProfit           decimal.Decimal

	TotalBagsPurchased decimal.Decimal
	TotalBagsSold      decimal.Decimal
	RemainingBags      decimal.Decimal

	TotalAmountToPay decimal.Decimal
	TotalAmountPaid  decimal.Decimal
	PendingPayment   decimal.Decimal

	TotalAmountToReceive decimal.Decimal
	TotalAmountReceived  decimal.Decimal
	PendingReceivable    decimal.Decimal
}

// ComputeTotals reduces purchases and sales into portfolio totals.
// RemainingBags goes negative when more bags were sold than bought.
func ComputeTotals(purchases, sales []TradeRecord) Totals {
	var t Totals
	for _, p := range purchases {
		t.TotalPurchaseAmount = t.TotalPurchaseAmount.Add(p.TotalAmount)
		t.TotalBagsPurchased = t.TotalBagsPurchased.Add(p.TotalBags)
		t.TotalAmountPaid = t.TotalAmountPaid.Add(p.AmountPaid)
	}
	for _, s := range sales {
		t.TotalSaleAmount = t.TotalSaleAmount.Add(s.TotalAmount)
		t.TotalBagsSold = t.TotalBagsSold.Add(s.TotalBags)
		t.TotalAmountReceived = t.TotalAmountReceived.Add(s.AmountReceived)
	}

	t.NetProfit = t.TotalSaleAmount.Sub(t.TotalPurchaseAmount)
	t.RemainingBags = t.TotalBagsPurchased.Sub(t.TotalBagsSold)

	t.TotalAmountToPay = t.TotalPurchaseAmount
	t.PendingPayment = t.TotalAmountToPay.Sub(t.TotalAmountPaid)

	t.TotalAmountToReceive = t.TotalSaleAmount
	t.PendingReceivable = t.TotalAmountToReceive.Sub(t.TotalAmountReceived)

	return t
}

// IsProfit reports whether the net figure is a profit (zero counts as one).
func (t Totals) IsProfit() bool {
	return !t.NetProfit.IsNegative()
}
