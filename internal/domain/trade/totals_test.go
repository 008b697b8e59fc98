package trade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTotals(t *testing.T) {
	purchase, err := Finalize(SidePurchase, RecordInput{
		Entries: []LedgerEntry{NewEntryFromValues(dec("10"), dec("1000"), dec("100"))},
		Payment: "500",
	})
	require.NoError(t, err)
	// 1000 + 280 = 1280

	sale, err := Finalize(SideSale, RecordInput{
		Entries: []LedgerEntry{NewEntryFromValues(dec("4"), dec("500"), dec("400"))},
		Payment: "1000",
	})
	require.NoError(t, err)
	// 2000 + 112 + 30 = 2142

	totals := ComputeTotals([]TradeRecord{purchase}, []TradeRecord{sale})

	assertDecimal(t, "1280", totals.TotalPurchaseAmount)
	assertDecimal(t, "2142", totals.TotalSaleAmount)
	assertDecimal(t, "862", totals.NetProfit)
	assert.True(t, totals.IsProfit())

	assertDecimal(t, "10", totals.TotalBagsPurchased)
	assertDecimal(t, "4", totals.TotalBagsSold)
	assertDecimal(t, "6", totals.RemainingBags)

	assertDecimal(t, "1280", totals.TotalAmountToPay)
	assertDecimal(t, "500", totals.TotalAmountPaid)
	assertDecimal(t, "780", totals.PendingPayment)

	assertDecimal(t, "2142", totals.TotalAmountToReceive)
	assertDecimal(t, "1000", totals.TotalAmountReceived)
	assertDecimal(t, "1142", totals.PendingReceivable)
}

func TestComputeTotals_OversoldAndLoss(t *testing.T) {
	sale, err := Finalize(SideSale, RecordInput{
		Entries: []LedgerEntry{NewEntryFromValues(dec("3"), dec("100"), dec("10"))},
	})
	require.NoError(t, err)

	totals := ComputeTotals(nil, []TradeRecord{sale})
	assertDecimal(t, "-3", totals.RemainingBags)

	purchase, err := Finalize(SidePurchase, RecordInput{
		Entries: []LedgerEntry{NewEntryFromValues(dec("1"), dec("1000"), dec("1000"))},
	})
	require.NoError(t, err)
	totals = ComputeTotals([]TradeRecord{purchase}, nil)
	assert.False(t, totals.IsProfit())
	assert.Equal(t, "-10028.00", FormatCurrency(totals.NetProfit))
}

func TestComputeTotals_Empty(t *testing.T) {
	totals := ComputeTotals(nil, nil)
	assert.True(t, totals.IsProfit())
	assert.Equal(t, "0.00", FormatCurrency(totals.PendingPayment))
}
