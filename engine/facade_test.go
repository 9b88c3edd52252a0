package engine

import (
	"context"
	"testing"
	"time"

	"github.com/lattice-exchange/matchcore/coretypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spotSymbol(name string) *coretypes.Symbol {
	return &coretypes.Symbol{
		Name:       name,
		BaseAsset:  "BTC",
		QuoteAsset: "USD",
		Tick:       coretypes.MustPrice("0.01"),
		Lot:        coretypes.MustPrice("0.001"),
		MinQty:     coretypes.MustPrice("0.001"),
		MaxQty:     coretypes.MustPrice("1000"),
	}
}

func perpSymbol(name string) *coretypes.Symbol {
	return &coretypes.Symbol{
		Name:                  name,
		BaseAsset:             "BTC",
		QuoteAsset:            "USD",
		Tick:                  coretypes.MustPrice("0.01"),
		Lot:                   coretypes.MustPrice("0.001"),
		MinQty:                coretypes.MustPrice("0.001"),
		MaxQty:                coretypes.MustPrice("1000"),
		ContractType:          coretypes.ContractLinearPerpetual,
		MaxLeverage:           20,
		InitialMarginRate:     0.05,
		MaintenanceMarginRate: 0.025,
		FundingInterval:       8 * 3600,
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(DefaultConfig())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e
}

func limitOrder(owner, symbol string, side coretypes.Side, price, qty string) *coretypes.Order {
	return &coretypes.Order{
		Owner:    owner,
		Symbol:   symbol,
		Side:     side,
		Type:     coretypes.Limit,
		TIF:      coretypes.GTC,
		Price:    coretypes.MustPrice(price),
		Quantity: coretypes.MustPrice(qty),
	}
}

func TestEngine_CreateMarketRejectsDuplicate(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateMarket(spotSymbol("BTC-USD")))
	assert.ErrorIs(t, e.CreateMarket(spotSymbol("BTC-USD")), ErrMarketExists)
}

func TestEngine_SubmitUnknownSymbolIsRejected(t *testing.T) {
	e := newTestEngine(t)
	_, rej := e.Submit(limitOrder("alice", "NOPE-USD", coretypes.Buy, "100", "1"))
	require.NotNil(t, rej)
	assert.Equal(t, coretypes.RejectUnknownSymbol, rej.Reason)
}

func TestEngine_SubmitCrossesAndUpdatesStats(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateMarket(spotSymbol("BTC-USD")))
	e.Ledger.Deposit("alice", "BTC", coretypes.MustPrice("10"))
	e.Ledger.Deposit("bob", "USD", coretypes.MustPrice("100000"))

	_, rej := e.Submit(limitOrder("alice", "BTC-USD", coretypes.Sell, "100", "1"))
	require.Nil(t, rej)
	taker, rej := e.Submit(limitOrder("bob", "BTC-USD", coretypes.Buy, "105", "1"))
	require.Nil(t, rej)
	assert.Equal(t, coretypes.StatusFilled, taker.Status)

	stats := e.Stats()
	assert.Equal(t, uint64(2), stats.OrdersProcessed)
	assert.Equal(t, uint64(1), stats.TradesExecuted)
}

func TestEngine_SuspendedMarketRejectsNewOrders(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateMarket(spotSymbol("BTC-USD")))
	require.NoError(t, e.SuspendMarket("BTC-USD"))

	_, rej := e.Submit(limitOrder("alice", "BTC-USD", coretypes.Buy, "100", "1"))
	require.NotNil(t, rej)
	assert.Equal(t, coretypes.RejectMarketSuspended, rej.Reason)

	require.NoError(t, e.ResumeMarket("BTC-USD"))
	e.Ledger.Deposit("alice", "USD", coretypes.MustPrice("100000"))
	_, rej = e.Submit(limitOrder("alice", "BTC-USD", coretypes.Buy, "100", "1"))
	assert.Nil(t, rej)
}

func TestEngine_CancelAndAmendRouteToTheRightMarket(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateMarket(spotSymbol("BTC-USD")))
	e.Ledger.Deposit("alice", "USD", coretypes.MustPrice("100000"))

	o, rej := e.Submit(limitOrder("alice", "BTC-USD", coretypes.Buy, "100", "1"))
	require.Nil(t, rej)

	amended, rej := e.Amend("BTC-USD", o.ID, coretypes.MustPrice("100"), coretypes.MustPrice("2"))
	require.Nil(t, rej)
	assert.True(t, amended.Quantity.Equal(coretypes.MustPrice("2")))

	canceled, rej := e.Cancel("BTC-USD", o.ID, "alice")
	require.Nil(t, rej)
	assert.Equal(t, coretypes.StatusCancelled, canceled.Status)
}

func TestEngine_UpdateIndexPriceAndMarkFallsBackToLastTrade(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateMarket(spotSymbol("BTC-USD")))
	e.Ledger.Deposit("alice", "BTC", coretypes.MustPrice("10"))
	e.Ledger.Deposit("bob", "USD", coretypes.MustPrice("100000"))

	_, rej := e.Submit(limitOrder("alice", "BTC-USD", coretypes.Sell, "100", "1"))
	require.Nil(t, rej)
	_, rej = e.Submit(limitOrder("bob", "BTC-USD", coretypes.Buy, "100", "1"))
	require.Nil(t, rej)

	mark, ok := e.Mark("BTC-USD")
	require.True(t, ok)
	assert.InDelta(t, 100, mark, 1e-9)
}

func TestEngine_HealthCheckReflectsShutdown(t *testing.T) {
	e := New(DefaultConfig())
	health := e.HealthCheck()
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, Version, health.Version)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))
	assert.Equal(t, "shutting_down", e.HealthCheck().Status)

	_, rej := e.Submit(limitOrder("alice", "BTC-USD", coretypes.Buy, "100", "1"))
	require.NotNil(t, rej)
	assert.Equal(t, coretypes.RejectOverloaded, rej.Reason)
}

func TestEngine_AccountPositionsTracksPerpetualFills(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateMarket(perpSymbol("BTC-PERP")))
	e.Ledger.Deposit("alice", "USD", coretypes.MustPrice("100000"))
	e.Ledger.Deposit("bob", "USD", coretypes.MustPrice("100000"))

	_, rej := e.Submit(limitOrder("alice", "BTC-PERP", coretypes.Sell, "100", "1"))
	require.Nil(t, rej)
	_, rej = e.Submit(limitOrder("bob", "BTC-PERP", coretypes.Buy, "100", "1"))
	require.Nil(t, rej)

	positions := e.AccountPositions("bob")
	require.Len(t, positions, 1)
	assert.Equal(t, coretypes.Buy, positions[0].Side)
}

func TestEngine_ClosePositionSizesToLivePosition(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateMarket(perpSymbol("BTC-PERP")))
	e.Ledger.Deposit("alice", "USD", coretypes.MustPrice("100000"))
	e.Ledger.Deposit("bob", "USD", coretypes.MustPrice("100000"))
	e.Ledger.Deposit("carol", "USD", coretypes.MustPrice("100000"))

	_, rej := e.Submit(limitOrder("alice", "BTC-PERP", coretypes.Sell, "100", "2"))
	require.Nil(t, rej)
	_, rej = e.Submit(limitOrder("bob", "BTC-PERP", coretypes.Buy, "100", "2"))
	require.Nil(t, rej)

	// Liquidity for bob's close to cross against.
	_, rej = e.Submit(limitOrder("carol", "BTC-PERP", coretypes.Buy, "100", "2"))
	require.Nil(t, rej)

	closeOrder := &coretypes.Order{
		Owner:         "bob",
		Symbol:        "BTC-PERP",
		Type:          coretypes.Market,
		TIF:           coretypes.IOC,
		ClosePosition: true,
	}
	res, rej := e.Submit(closeOrder)
	require.Nil(t, rej)
	assert.Equal(t, coretypes.Sell, res.Side, "closing a long sells")
	assert.True(t, res.Quantity.Equal(coretypes.MustPrice("2")), "sized to the live position at admission")
	assert.Equal(t, coretypes.StatusFilled, res.Status)

	assert.Empty(t, e.AccountPositions("bob"), "the position is flat after the close")
}

func TestEngine_ClosePositionWithNothingOpenRejects(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateMarket(perpSymbol("BTC-PERP")))

	_, rej := e.Submit(&coretypes.Order{Owner: "ghost", Symbol: "BTC-PERP", Type: coretypes.Market, TIF: coretypes.IOC, ClosePosition: true})
	require.NotNil(t, rej)
	assert.Equal(t, coretypes.RejectReduceOnlyViolation, rej.Reason)
}

func TestEngine_MarginAccountForAggregatesPositionsAndOrders(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateMarket(perpSymbol("BTC-PERP")))
	e.Ledger.Deposit("alice", "USD", coretypes.MustPrice("1000"))
	e.Ledger.Deposit("bob", "USD", coretypes.MustPrice("1000"))

	short := limitOrder("alice", "BTC-PERP", coretypes.Sell, "100", "1")
	short.Leverage = 10
	_, rej := e.Submit(short)
	require.Nil(t, rej)
	long := limitOrder("bob", "BTC-PERP", coretypes.Buy, "100", "1")
	long.Leverage = 10
	_, rej = e.Submit(long)
	require.Nil(t, rej)

	ma := e.MarginAccountFor("bob", "USD")
	assert.True(t, ma.Wallet.Equal(coretypes.MustPrice("1000")), "wallet is gross of margin holds")
	assert.True(t, ma.PositionInitialMargin.Equal(coretypes.MustPrice("10")), "1 @ 100 at 10x")
	assert.True(t, ma.OrderInitialMargin.IsZero(), "no resting orders left")
	assert.True(t, ma.Available().Equal(coretypes.MustPrice("990")))
}

func TestEngine_MarketStatsIncludesOpenInterest(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateMarket(perpSymbol("BTC-PERP")))
	e.Ledger.Deposit("alice", "USD", coretypes.MustPrice("100000"))
	e.Ledger.Deposit("bob", "USD", coretypes.MustPrice("100000"))

	_, rej := e.Submit(limitOrder("alice", "BTC-PERP", coretypes.Sell, "100", "2"))
	require.Nil(t, rej)
	_, rej = e.Submit(limitOrder("bob", "BTC-PERP", coretypes.Buy, "100", "2"))
	require.Nil(t, rej)

	ov, err := e.MarketStats("BTC-PERP")
	require.NoError(t, err)
	assert.True(t, ov.OpenInterest.Equal(coretypes.MustPrice("2")), "one 2-contract long/short pair is 2 of open interest")
	assert.True(t, ov.Volume24h.Equal(coretypes.MustPrice("2")))
	assert.True(t, ov.High24h.Equal(coretypes.MustPrice("100")))
	assert.True(t, ov.Low24h.Equal(coretypes.MustPrice("100")))
}
