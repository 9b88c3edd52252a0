package engine

import (
	"testing"
	"time"

	"github.com/lattice-exchange/matchcore/coretypes"
	"github.com/lattice-exchange/matchcore/derivatives"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextFundingIn_AlignsToIntervalBoundary(t *testing.T) {
	epoch := time.Unix(0, 0).UTC()
	assert.Equal(t, int64(8*3600), nextFundingIn(epoch, 8*3600))

	halfway := time.Unix(4*3600, 0).UTC()
	assert.Equal(t, int64(4*3600), nextFundingIn(halfway, 8*3600))
}

func TestQuoteAssetOf(t *testing.T) {
	assert.Equal(t, "USD", quoteAssetOf("BTC-USD"))
	assert.Equal(t, "USDT", quoteAssetOf("ETH-PERP-USDT"))
	assert.Equal(t, "USD", quoteAssetOf("BARETICKER"))
}

func TestEngine_TickMarkPricesSkipsStaleIndex(t *testing.T) {
	e := newTestEngine(t)
	e.RegisterPerpetual("BTC-PERP", derivatives.DefaultFundingConfig(8*3600), 0.025)

	now := time.Now()
	e.UpdateIndexPrice("BTC-PERP", coretypes.MustPrice("100"), now.Add(-time.Hour), time.Minute)

	e.tickMarkPrices(now)

	_, ok := e.markPrices.Load("BTC-PERP")
	assert.False(t, ok, "a stale index must freeze the mark price")
}

func TestEngine_TickMarkPricesComputesFreshIndex(t *testing.T) {
	e := newTestEngine(t)
	e.RegisterPerpetual("BTC-PERP", derivatives.DefaultFundingConfig(8*3600), 0.025)

	now := time.Now()
	e.UpdateIndexPrice("BTC-PERP", coretypes.MustPrice("100"), now, time.Minute)

	e.tickMarkPrices(now)

	v, ok := e.markPrices.Load("BTC-PERP")
	require.True(t, ok)
	assert.True(t, v.(coretypes.Price).GreaterThan(coretypes.Zero))
}

func TestEngine_SettleFundingDepositsPaymentIntoLedger(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateMarket(perpSymbol("BTC-PERP")))
	e.RegisterPerpetual("BTC-PERP", derivatives.DefaultFundingConfig(8*3600), 0.025)
	e.Ledger.Deposit("alice", "USD", coretypes.MustPrice("100000"))
	e.Ledger.Deposit("bob", "USD", coretypes.MustPrice("100000"))

	_, rej := e.Submit(limitOrder("alice", "BTC-PERP", coretypes.Sell, "100", "1"))
	require.Nil(t, rej)
	_, rej = e.Submit(limitOrder("bob", "BTC-PERP", coretypes.Buy, "100", "1"))
	require.Nil(t, rej)

	e.markPrices.Store("BTC-PERP", coretypes.MustPrice("100"))
	e.fundingRate.Store("BTC-PERP", 0.001)

	before := e.Ledger.Balance("bob", "USD").Free
	e.settleFunding("BTC-PERP")
	after := e.Ledger.Balance("bob", "USD").Free

	assert.False(t, before.Equal(after), "a long's funding settlement must move its USD balance")
}

func TestEngine_TickPositionMonitorRecordsLiquidationPrice(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateMarket(perpSymbol("BTC-PERP")))
	e.RegisterPerpetual("BTC-PERP", derivatives.DefaultFundingConfig(8*3600), 0.05)
	e.Ledger.Deposit("alice", "USD", coretypes.MustPrice("100000"))
	e.Ledger.Deposit("bob", "USD", coretypes.MustPrice("6"))

	_, rej := e.Submit(limitOrder("alice", "BTC-PERP", coretypes.Sell, "100", "1"))
	require.Nil(t, rej)
	long := limitOrder("bob", "BTC-PERP", coretypes.Buy, "100", "1")
	long.Leverage = 20
	_, rej = e.Submit(long)
	require.Nil(t, rej)

	now := time.Now()
	e.UpdateIndexPrice("BTC-PERP", coretypes.MustPrice("80"), now, time.Minute)
	e.markPrices.Store("BTC-PERP", coretypes.MustPrice("80"))

	e.tickPositionMonitor(now)

	select {
	case loss := <-e.Liquidator.Losses():
		t.Fatalf("did not expect an insurance-fund loss yet, got %+v", loss)
	default:
	}

	positions := e.AccountPositions("bob")
	require.Len(t, positions, 1)
	assert.False(t, positions[0].LiquidationPx.IsZero(), "position monitor records the liquidation price even before the worker drains the queue")
}

func TestEngine_TickFundingRatesIsDecoupledFromMarkTicks(t *testing.T) {
	e := newTestEngine(t)
	e.RegisterPerpetual("BTC-PERP", derivatives.DefaultFundingConfig(8*3600), 0.025)

	now := time.Now()
	e.UpdateIndexPrice("BTC-PERP", coretypes.MustPrice("100"), now, time.Minute)

	// Mark ticks alone never touch the funding rate.
	e.tickMarkPrices(now)
	_, ok := e.fundingRate.Load("BTC-PERP")
	assert.False(t, ok, "the per-second mark loop must not recompute the funding rate")

	e.tickFundingRates(now)
	v, ok := e.fundingRate.Load("BTC-PERP")
	require.True(t, ok)
	cfg := derivatives.DefaultFundingConfig(8 * 3600)
	assert.InDelta(t, cfg.InterestRate, v.(float64), 1e-9, "zero premium leaves the rate at the interest rate")
}

func TestEngine_TickFundingRatesSkipsStaleIndex(t *testing.T) {
	e := newTestEngine(t)
	e.RegisterPerpetual("BTC-PERP", derivatives.DefaultFundingConfig(8*3600), 0.025)

	now := time.Now()
	e.UpdateIndexPrice("BTC-PERP", coretypes.MustPrice("100"), now.Add(-time.Hour), time.Minute)

	e.tickFundingRates(now)
	_, ok := e.fundingRate.Load("BTC-PERP")
	assert.False(t, ok, "a stale index freezes the funding rate too")
}
