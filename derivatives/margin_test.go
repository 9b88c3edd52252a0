package derivatives

import (
	"testing"

	"github.com/lattice-exchange/matchcore/coretypes"
	"github.com/stretchr/testify/assert"
)

func TestEvaluate_HealthyPositionNotLiquidatable(t *testing.T) {
	p := &Position{Side: coretypes.Buy, Size: coretypes.MustPrice("1"), EntryPrice: coretypes.MustPrice("100"), Leverage: 10}
	margin := Evaluate(p, coretypes.MustPrice("105"), coretypes.MustPrice("50"), 0.05)

	assert.False(t, margin.IsLiquidatable(0.05))
	assert.True(t, margin.UnrealizedPnL.Equal(coretypes.MustPrice("5")))
}

func TestEvaluate_UnderwaterPositionLiquidatable(t *testing.T) {
	p := &Position{Side: coretypes.Buy, Size: coretypes.MustPrice("1"), EntryPrice: coretypes.MustPrice("100"), Leverage: 10}
	// wallet too small to absorb the loss at this mark.
	margin := Evaluate(p, coretypes.MustPrice("80"), coretypes.MustPrice("2"), 0.05)

	assert.True(t, margin.IsLiquidatable(0.05))
}

func TestEvaluate_LiquidationPriceBelowEntryForLong(t *testing.T) {
	p := &Position{Side: coretypes.Buy, Size: coretypes.MustPrice("1"), EntryPrice: coretypes.MustPrice("100"), Leverage: 10}
	margin := Evaluate(p, coretypes.MustPrice("100"), coretypes.MustPrice("20"), 0.05)

	assert.True(t, margin.LiquidationPrice.LessThan(p.EntryPrice), "a long's liquidation price sits below its entry")
}

func TestEvaluate_LiquidationPriceAboveEntryForShort(t *testing.T) {
	p := &Position{Side: coretypes.Sell, Size: coretypes.MustPrice("1"), EntryPrice: coretypes.MustPrice("100"), Leverage: 10}
	margin := Evaluate(p, coretypes.MustPrice("100"), coretypes.MustPrice("20"), 0.05)

	assert.True(t, margin.LiquidationPrice.GreaterThan(p.EntryPrice), "a short's liquidation price sits above its entry")
}

func TestEvaluate_FlatPositionHasZeroLiquidationPrice(t *testing.T) {
	p := &Position{}
	margin := Evaluate(p, coretypes.MustPrice("100"), coretypes.MustPrice("20"), 0.05)
	assert.True(t, margin.LiquidationPrice.IsZero())
}

func TestMarginAccount_Available(t *testing.T) {
	ma := MarginAccount{
		Owner:                 "alice",
		Wallet:                coretypes.MustPrice("1000"),
		PositionInitialMargin: coretypes.MustPrice("200"),
		OrderInitialMargin:    coretypes.MustPrice("50"),
		CrossUnrealizedPnL:    coretypes.MustPrice("-100"),
	}
	assert.True(t, ma.Available().Equal(coretypes.MustPrice("650")))
}
