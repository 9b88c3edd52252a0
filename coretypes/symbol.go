package coretypes

import "fmt"

// ContractType distinguishes spot markets from linear perpetual futures.
type ContractType int8

const (
	ContractSpot            ContractType = 0
	ContractLinearPerpetual ContractType = 1
)

func (c ContractType) String() string {
	switch c {
	case ContractSpot:
		return "spot"
	case ContractLinearPerpetual:
		return "linear_perpetual"
	default:
		return "unknown"
	}
}

// MarkPriceRecipe selects how a symbol's mark price is derived.
type MarkPriceRecipe int8

const (
	MarkFromIndexOnly        MarkPriceRecipe = 0
	MarkFromIndexPlusPremium MarkPriceRecipe = 1
)

// SelfTradePolicy is the deterministic resolution applied when a taker
// would cross against its own resting order.
type SelfTradePolicy int8

const (
	SelfTradeAllow       SelfTradePolicy = 0
	SelfTradeCancelTaker SelfTradePolicy = 1
	SelfTradeCancelMaker SelfTradePolicy = 2
	SelfTradeCancelBoth  SelfTradePolicy = 3
)

// FeeSchedule carries a symbol's maker/taker fee rates, expressed as
// fractions (e.g. 0.001 for 10bps).
type FeeSchedule struct {
	MakerRate float64
	TakerRate float64
}

// Symbol is the immutable, per-market static configuration referenced by
// every order, trade, and position for that market. It is constructed by
// an external configuration loader; this type is the shape that loader
// populates.
type Symbol struct {
	Name string

	BaseAsset  string
	QuoteAsset string

	Tick Price // minimum price increment
	Lot  Qty   // minimum quantity increment

	MinQty Qty
	MaxQty Qty

	Fees FeeSchedule

	ContractType ContractType

	// Futures-only fields; zero-valued and unused for ContractSpot.
	MaxLeverage           int
	InitialMarginRate     float64
	MaintenanceMarginRate float64
	FundingInterval       int64 // seconds
	MarkPriceRecipe       MarkPriceRecipe

	SelfTradePolicy    SelfTradePolicy
	PriceBandWidth     float64 // fraction, 0 disables the protective band
	MaxSlippageDefault float64 // fraction, 0 disables default slippage guard
}

// Validate checks the symbol's static configuration for internal
// consistency before a market is created from it.
func (s *Symbol) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("coretypes: symbol name cannot be empty")
	}
	if s.BaseAsset == "" || s.QuoteAsset == "" {
		return fmt.Errorf("coretypes: symbol %s: base and quote assets must be specified", s.Name)
	}
	if s.Tick.IsZero() || s.Tick.LessThan(Zero) {
		return fmt.Errorf("coretypes: symbol %s: tick must be positive", s.Name)
	}
	if s.Lot.IsZero() || s.Lot.LessThan(Zero) {
		return fmt.Errorf("coretypes: symbol %s: lot must be positive", s.Name)
	}
	if s.MinQty.LessThan(Zero) {
		return fmt.Errorf("coretypes: symbol %s: min quantity cannot be negative", s.Name)
	}
	if !s.MaxQty.IsZero() && s.MaxQty.LessThan(s.MinQty) {
		return fmt.Errorf("coretypes: symbol %s: max quantity below min quantity", s.Name)
	}

	if s.ContractType == ContractLinearPerpetual {
		if s.MaxLeverage <= 0 {
			return fmt.Errorf("coretypes: symbol %s: max leverage must be positive for a perpetual", s.Name)
		}
		if s.InitialMarginRate <= 0 {
			return fmt.Errorf("coretypes: symbol %s: initial margin rate must be positive", s.Name)
		}
		if s.MaintenanceMarginRate <= 0 || s.MaintenanceMarginRate > s.InitialMarginRate {
			return fmt.Errorf("coretypes: symbol %s: maintenance margin rate must be positive and not exceed initial margin rate", s.Name)
		}
		if s.FundingInterval <= 0 {
			return fmt.Errorf("coretypes: symbol %s: funding interval must be positive for a perpetual", s.Name)
		}
	}

	return nil
}

// IsPerpetual reports whether this symbol trades as a linear perpetual.
func (s *Symbol) IsPerpetual() bool {
	return s.ContractType == ContractLinearPerpetual
}
