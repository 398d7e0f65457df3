package farm

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReport_WithQuote(t *testing.T) {
	sec := Security{ID: 1, Ticker: "AAPL", Name: "Apple Inc."}
	buyAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)

	open := []Lot{
		{ID: 1, SecurityID: 1, BuyAt: buyAt, BuyPrice: decimal.NewFromInt(100), Status: LotOpen},
		{ID: 2, SecurityID: 1, BuyAt: buyAt, BuyPrice: decimal.NewFromInt(100), Status: LotOpen},
	}
	batches := []Batch{{BuyAt: buyAt, BuyPrice: decimal.NewFromInt(100), Quantity: 2, FirstLotID: 1, LastLotID: 2}}
	quote := &PriceQuote{SecurityID: 1, AsOf: now, Price: decimal.NewFromInt(120)}

	rep := BuildReport(sec, open, batches, quote, now)

	assert.Equal(t, "AAPL", rep.Ticker)
	assert.Equal(t, 2, rep.OpenCount)
	assert.True(t, rep.TotalCost.Equal(decimal.NewFromInt(200)))
	require.NotNil(t, rep.Unrealized)
	assert.True(t, rep.Unrealized.Equal(decimal.NewFromInt(40)), "got %s", rep.Unrealized)
	require.NotNil(t, rep.AvgReturnPct)
	assert.True(t, rep.AvgReturnPct.Equal(decimal.NewFromInt(20)), "got %s", rep.AvgReturnPct)
	assert.Equal(t, "bloom", rep.AvgStage.Name)

	require.Len(t, rep.Batches, 1)
	bv := rep.Batches[0]
	assert.Equal(t, 10, bv.DaysHeld)
	require.NotNil(t, bv.PnL)
	assert.True(t, bv.PnL.Equal(decimal.NewFromInt(40)), "got %s", bv.PnL)
	require.NotNil(t, bv.DailyReturnPct)
	assert.True(t, bv.DailyReturnPct.Equal(decimal.NewFromInt(2)), "20%% over 10 days, got %s", bv.DailyReturnPct)

	require.Len(t, rep.Lots, 2)
	assert.Equal(t, "bloom", rep.Lots[0].Stage.Name)
}

func TestBuildReport_MissingQuoteDegrades(t *testing.T) {
	sec := Security{ID: 1, Ticker: "MSFT"}
	buyAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	open := []Lot{{ID: 1, SecurityID: 1, BuyAt: buyAt, BuyPrice: decimal.NewFromInt(100), Status: LotOpen}}
	batches := []Batch{{BuyAt: buyAt, BuyPrice: decimal.NewFromInt(100), Quantity: 1, FirstLotID: 1, LastLotID: 1}}

	rep := BuildReport(sec, open, batches, nil, buyAt.AddDate(0, 0, 5))

	assert.Nil(t, rep.Unrealized)
	assert.Nil(t, rep.AvgBuyPrice)
	assert.Equal(t, "no price", rep.AvgStage.Name)
	require.Len(t, rep.Batches, 1)
	assert.Nil(t, rep.Batches[0].PnL)
	assert.Equal(t, "no price", rep.Batches[0].Stage.Name)
	assert.Equal(t, 5, rep.Batches[0].DaysHeld)
	require.Len(t, rep.Lots, 1)
	assert.Equal(t, "no price", rep.Lots[0].Stage.Name)
}

func TestBuildReport_SameDayBuyUsesOneDayForDailyReturn(t *testing.T) {
	sec := Security{ID: 1, Ticker: "AAPL"}
	at := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	open := []Lot{{ID: 1, SecurityID: 1, BuyAt: at, BuyPrice: decimal.NewFromInt(100), Status: LotOpen}}
	batches := []Batch{{BuyAt: at, BuyPrice: decimal.NewFromInt(100), Quantity: 1, FirstLotID: 1, LastLotID: 1}}
	quote := &PriceQuote{SecurityID: 1, AsOf: at, Price: decimal.NewFromInt(105)}

	rep := BuildReport(sec, open, batches, quote, at.Add(2*time.Hour))

	require.Len(t, rep.Batches, 1)
	assert.Equal(t, 0, rep.Batches[0].DaysHeld)
	require.NotNil(t, rep.Batches[0].DailyReturnPct)
	assert.True(t, rep.Batches[0].DailyReturnPct.Equal(decimal.NewFromInt(5)), "got %s", rep.Batches[0].DailyReturnPct)
}

func TestBuildClosedLotViews(t *testing.T) {
	buyAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sellAt := buyAt.AddDate(0, 0, 30)
	sellPrice := decimal.NewFromInt(90)

	views := BuildClosedLotViews([]Lot{
		{ID: 1, BuyAt: buyAt, BuyPrice: decimal.NewFromInt(100), Status: LotClosed, SellAt: &sellAt, SellPrice: &sellPrice},
		{ID: 2, BuyAt: buyAt, BuyPrice: decimal.NewFromInt(100), Status: LotOpen},
	})

	require.Len(t, views, 1, "lots without sell data are dropped")
	v := views[0]
	assert.Equal(t, int64(1), v.LotID)
	assert.Equal(t, 30, v.HoldDays)
	assert.True(t, v.PnL.Equal(decimal.NewFromInt(-10)), "got %s", v.PnL)
	assert.True(t, v.ReturnPct.Equal(decimal.NewFromInt(-10)), "got %s", v.ReturnPct)
}
