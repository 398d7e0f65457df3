package farm_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockfarm/internal/database"
	"stockfarm/internal/farm"
)

const ownerID = "owner-1"

func newLedger(t *testing.T) (*farm.Ledger, *database.Memory) {
	t.Helper()
	mem := database.NewMemory()
	logger := logrus.New()
	return farm.NewLedger(mem, logger), mem
}

func mustSecurity(t *testing.T, mem *database.Memory, ticker string) farm.Security {
	t.Helper()
	sec, err := mem.UpsertSecurity(context.Background(), ownerID, ticker, ticker+" Inc.")
	require.NoError(t, err)
	return sec
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestRecordBuy_CreatesOneLotPerShare(t *testing.T) {
	ledger, mem := newLedger(t)
	ctx := context.Background()
	sec := mustSecurity(t, mem, "AAPL")

	at := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, ledger.RecordBuy(ctx, sec, at, d("100"), 3, "first buy"))

	open, err := ledger.OpenLots(ctx, sec)
	require.NoError(t, err)
	require.Len(t, open, 3)
	for i, l := range open {
		assert.Equal(t, farm.LotOpen, l.Status)
		assert.True(t, l.BuyPrice.Equal(d("100")))
		assert.True(t, l.BuyAt.Equal(at))
		if i > 0 {
			assert.Greater(t, l.ID, open[i-1].ID, "natural order is buy time then id")
		}
	}

	txs, err := ledger.Transactions(ctx, ownerID, sec.ID, 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, farm.TxBuy, txs[0].Type)
	assert.Equal(t, 3, txs[0].Quantity)
}

func TestRecordBuy_RejectsNonPositiveQuantity(t *testing.T) {
	ledger, mem := newLedger(t)
	sec := mustSecurity(t, mem, "AAPL")

	err := ledger.RecordBuy(context.Background(), sec, time.Now().UTC(), d("100"), 0, "")
	assert.ErrorIs(t, err, farm.ErrInvalidQuantity)
	err = ledger.RecordBuy(context.Background(), sec, time.Now().UTC(), d("100"), -2, "")
	assert.ErrorIs(t, err, farm.ErrInvalidQuantity)
}

func TestRecordSell_RejectsEmptySelection(t *testing.T) {
	ledger, mem := newLedger(t)
	sec := mustSecurity(t, mem, "AAPL")

	_, err := ledger.RecordSell(context.Background(), sec, nil, time.Now().UTC(), d("110"), "")
	assert.ErrorIs(t, err, farm.ErrNoLotsSelected)
}

func TestRecordSell_ClosesSelectedLots(t *testing.T) {
	ledger, mem := newLedger(t)
	ctx := context.Background()
	sec := mustSecurity(t, mem, "AAPL")

	buyAt := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, ledger.RecordBuy(ctx, sec, buyAt, d("100"), 3, ""))

	open, err := ledger.OpenLots(ctx, sec)
	require.NoError(t, err)
	ids := farm.SelectLots(open, farm.RuleFIFO, nil)[:2]

	sellAt := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	closed, err := ledger.RecordSell(ctx, sec, ids, sellAt, d("110"), "harvest")
	require.NoError(t, err)
	assert.Equal(t, 2, closed)

	open, err = ledger.OpenLots(ctx, sec)
	require.NoError(t, err)
	require.Len(t, open, 1)

	history, err := ledger.ClosedLots(ctx, sec, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, l := range history {
		require.NotNil(t, l.SellPrice)
		assert.True(t, l.SellPrice.Equal(d("110")))
		require.NotNil(t, l.SellAt)
		assert.True(t, l.SellAt.Equal(sellAt))
	}
}

func TestRecordSell_SkipsAlreadyClosedLots(t *testing.T) {
	ledger, mem := newLedger(t)
	ctx := context.Background()
	sec := mustSecurity(t, mem, "AAPL")

	require.NoError(t, ledger.RecordBuy(ctx, sec, time.Now().UTC(), d("100"), 2, ""))
	open, err := ledger.OpenLots(ctx, sec)
	require.NoError(t, err)

	closed, err := ledger.RecordSell(ctx, sec, []int64{open[0].ID}, time.Now().UTC(), d("110"), "")
	require.NoError(t, err)
	require.Equal(t, 1, closed)

	// Replaying the same id alongside a live one is a short fill, not an error.
	closed, err = ledger.RecordSell(ctx, sec, []int64{open[0].ID, open[1].ID}, time.Now().UTC(), d("115"), "")
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	remaining, err := ledger.OpenLots(ctx, sec)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRecordSell_IgnoresLotsOfOtherSecurities(t *testing.T) {
	ledger, mem := newLedger(t)
	ctx := context.Background()
	aapl := mustSecurity(t, mem, "AAPL")
	msft := mustSecurity(t, mem, "MSFT")

	require.NoError(t, ledger.RecordBuy(ctx, aapl, time.Now().UTC(), d("100"), 1, ""))
	require.NoError(t, ledger.RecordBuy(ctx, msft, time.Now().UTC(), d("200"), 1, ""))

	aaplLots, err := ledger.OpenLots(ctx, aapl)
	require.NoError(t, err)

	closed, err := ledger.RecordSell(ctx, msft, []int64{aaplLots[0].ID}, time.Now().UTC(), d("210"), "")
	require.NoError(t, err)
	assert.Zero(t, closed)

	aaplLots, err = ledger.OpenLots(ctx, aapl)
	require.NoError(t, err)
	assert.Len(t, aaplLots, 1, "the foreign lot stays open")
}

func TestSummary_RealizedAndUnrealized(t *testing.T) {
	ledger, mem := newLedger(t)
	ctx := context.Background()
	sec := mustSecurity(t, mem, "AAPL")

	buyAt := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, ledger.RecordBuy(ctx, sec, buyAt, d("100"), 3, ""))

	open, err := ledger.OpenLots(ctx, sec)
	require.NoError(t, err)
	_, err = ledger.RecordSell(ctx, sec, []int64{open[0].ID, open[1].ID}, buyAt.AddDate(0, 0, 8), d("110"), "")
	require.NoError(t, err)

	require.NoError(t, mem.SetQuote(ctx, sec.ID, d("120"), buyAt.AddDate(0, 0, 9)))

	sum, err := ledger.Summary(ctx, ownerID)
	require.NoError(t, err)
	assert.True(t, sum.Realized.Equal(d("20")), "realized = %s", sum.Realized)
	assert.True(t, sum.Unrealized.Equal(d("20")), "unrealized = %s", sum.Unrealized)
	assert.True(t, sum.Total.Equal(d("40")), "total = %s", sum.Total)
	assert.Zero(t, sum.MissingQuotes)
}

func TestSummary_UnpricedSecurityIsExcludedAndCounted(t *testing.T) {
	ledger, mem := newLedger(t)
	ctx := context.Background()
	priced := mustSecurity(t, mem, "AAPL")
	unpriced := mustSecurity(t, mem, "MSFT")

	now := time.Now().UTC()
	require.NoError(t, ledger.RecordBuy(ctx, priced, now, d("100"), 1, ""))
	require.NoError(t, ledger.RecordBuy(ctx, unpriced, now, d("200"), 2, ""))
	require.NoError(t, mem.SetQuote(ctx, priced.ID, d("105"), now))

	sum, err := ledger.Summary(ctx, ownerID)
	require.NoError(t, err)
	assert.True(t, sum.Unrealized.Equal(d("5")), "unpriced lots contribute nothing, got %s", sum.Unrealized)
	assert.Equal(t, 1, sum.MissingQuotes)
}

func TestSummary_IsScopedToOwner(t *testing.T) {
	ledger, mem := newLedger(t)
	ctx := context.Background()
	sec := mustSecurity(t, mem, "AAPL")

	other, err := mem.UpsertSecurity(ctx, "owner-2", "AAPL", "")
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, ledger.RecordBuy(ctx, sec, now, d("100"), 1, ""))
	require.NoError(t, ledger.RecordBuy(ctx, other, now, d("100"), 5, ""))
	require.NoError(t, mem.SetQuote(ctx, sec.ID, d("110"), now))
	require.NoError(t, mem.SetQuote(ctx, other.ID, d("110"), now))

	sum, err := ledger.Summary(ctx, ownerID)
	require.NoError(t, err)
	assert.True(t, sum.Unrealized.Equal(d("10")), "got %s", sum.Unrealized)
}

func TestValidateSelection(t *testing.T) {
	assert.NoError(t, farm.ValidateSelection(2, []int64{1, 2}))

	err := farm.ValidateSelection(3, []int64{1, 2})
	var mismatch *farm.SelectionCountError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 3, mismatch.Requested)
	assert.Equal(t, 2, mismatch.Selected)
}

func TestRoundTrip_BuySellAllLeavesEmptyFarm(t *testing.T) {
	ledger, mem := newLedger(t)
	ctx := context.Background()
	sec := mustSecurity(t, mem, "AAPL")

	buyAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, ledger.RecordBuy(ctx, sec, buyAt, d("50"), 5, ""))

	open, err := ledger.OpenLots(ctx, sec)
	require.NoError(t, err)
	ids := farm.SelectLots(open, farm.RuleLIFO, nil)

	closed, err := ledger.RecordSell(ctx, sec, ids, buyAt.AddDate(0, 1, 0), d("55"), "")
	require.NoError(t, err)
	require.Equal(t, 5, closed)

	open, err = ledger.OpenLots(ctx, sec)
	require.NoError(t, err)
	assert.Empty(t, open)

	sum, err := ledger.Summary(ctx, ownerID)
	require.NoError(t, err)
	assert.True(t, sum.Realized.Equal(d("25")), "got %s", sum.Realized)
	assert.True(t, sum.Unrealized.IsZero())
}
