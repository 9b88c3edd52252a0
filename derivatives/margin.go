package derivatives

import "github.com/lattice-exchange/matchcore/coretypes"

// MarginAccount aggregates one owner's wallet against their whole book:
// wallet balance, the initial margin locked by open positions, the
// initial margin reserved by open orders, and the cross unrealized P&L.
type MarginAccount struct {
	Owner                 string
	Wallet                coretypes.Price
	PositionInitialMargin coretypes.Price
	OrderInitialMargin    coretypes.Price
	CrossUnrealizedPnL    coretypes.Price
	Mode                  MarginMode
}

// Available is the balance left to admit new orders against:
// wallet + cross UPL - (position IM + order IM).
func (ma MarginAccount) Available() coretypes.Price {
	return ma.Wallet.
		Add(ma.CrossUnrealizedPnL).
		Sub(ma.PositionInitialMargin).
		Sub(ma.OrderInitialMargin)
}

// PositionMargin is one position's margin figures at a given mark price,
// used both for the liquidation-price formula and for the position
// monitor's margin-ratio check.
type PositionMargin struct {
	InitialMargin     coretypes.Price
	MaintenanceMargin coretypes.Price
	UnrealizedPnL     coretypes.Price
	LiquidationPrice  coretypes.Price
	MarginRatio       float64 // equity / notional; falling to or below MMR triggers liquidation
}

// Evaluate computes PositionMargin for p at mark, given the owner's
// wallet balance and the symbol's maintenance margin rate.
func Evaluate(p *Position, mark coretypes.Price, wallet coretypes.Price, mmr float64) PositionMargin {
	upl := p.UnrealizedPnL(mark)
	im := p.InitialMargin(mark)
	mm := p.MaintenanceMargin(mark, mmr)

	usedMargin := im
	liq := liquidationPrice(p, wallet, upl, usedMargin, mmr)

	equity := coretypes.ToFloat64(wallet) + coretypes.ToFloat64(upl)
	notional := coretypes.ToFloat64(p.Notional(mark))
	ratio := 1.0
	if notional > 0 {
		ratio = equity / notional
	}

	return PositionMargin{
		InitialMargin:     im,
		MaintenanceMargin: mm,
		UnrealizedPnL:     upl,
		LiquidationPrice:  liq,
		MarginRatio:       ratio,
	}
}

// liquidationPrice is entry - (wallet + UPL - used_margin*MMR) / size for
// a long; a short's cushion is added back instead, since a short loses
// money as price rises.
func liquidationPrice(p *Position, wallet, upl, usedMargin coretypes.Price, mmr float64) coretypes.Price {
	if p.IsFlat() {
		return coretypes.Zero
	}
	cushion := wallet.Add(upl).Sub(coretypes.FromFloat64(coretypes.ToFloat64(usedMargin) * mmr))
	perUnit := coretypes.Div(cushion, p.Size)
	if p.Side == coretypes.Buy {
		return p.EntryPrice.Sub(perUnit)
	}
	return p.EntryPrice.Add(perUnit)
}

// IsLiquidatable reports margin_ratio <= mmr. A negative ratio (equity
// already underwater) is very much liquidatable, not excluded by this
// check.
func (pm PositionMargin) IsLiquidatable(mmr float64) bool {
	return pm.MarginRatio <= mmr
}
