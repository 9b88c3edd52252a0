package derivatives

import (
	"math"

	"github.com/lattice-exchange/matchcore/coretypes"
)

// FundingConfig carries the per-symbol funding constants: the interval,
// the interest rate per interval, and the clamp cap applied to
// (interest_rate - premium).
type FundingConfig struct {
	IntervalSeconds int64
	InterestRate    float64 // per interval, default 0.01%
	Cap             float64 // default 0.05%
}

// DefaultFundingConfig returns the standard 0.01%/interval interest rate
// and 0.05% cap for the given interval.
func DefaultFundingConfig(intervalSeconds int64) FundingConfig {
	return FundingConfig{
		IntervalSeconds: intervalSeconds,
		InterestRate:    0.0001,
		Cap:             0.0005,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MarkPrice computes
// mark = index * (1 + funding_rate * time_to_next_funding / funding_interval).
func MarkPrice(index coretypes.Price, fundingRate float64, timeToNextFundingSeconds int64, intervalSeconds int64) coretypes.Price {
	if intervalSeconds <= 0 {
		return index
	}
	factor := 1 + fundingRate*float64(timeToNextFundingSeconds)/float64(intervalSeconds)
	return coretypes.FromFloat64(coretypes.ToFloat64(index) * factor)
}

// FundingRate computes
// premium = (mark - index) / index;
// rate = premium + clamp(interest_rate - premium, -cap, +cap).
// This and MarkPrice are the two deliberate floating-point computations
// outside the options pricer.
func FundingRate(mark, index coretypes.Price, cfg FundingConfig) float64 {
	idx := coretypes.ToFloat64(index)
	if idx == 0 {
		return 0
	}
	premium := (coretypes.ToFloat64(mark) - idx) / idx
	adjustment := clamp(cfg.InterestRate-premium, -cfg.Cap, cfg.Cap)
	return premium + adjustment
}

// FundingPayment returns the signed wallet movement for p at a funding
// boundary: longs pay shorts (or vice versa) rate * position_notional.
// Negative = this position pays, positive = it receives.
func FundingPayment(p *Position, mark coretypes.Price, rate float64) coretypes.Price {
	if p.IsFlat() {
		return coretypes.Zero
	}
	notional := coretypes.ToFloat64(p.Notional(mark))
	payment := notional * rate

	if p.Side == coretypes.Buy {
		if rate > 0 {
			return coretypes.FromFloat64(-payment)
		}
		return coretypes.FromFloat64(math.Abs(payment))
	}
	if rate > 0 {
		return coretypes.FromFloat64(payment)
	}
	return coretypes.FromFloat64(-math.Abs(payment))
}

// SettleFunding applies FundingPayment to p's cumulative funding-paid
// tracker. Callers are responsible for moving the matching amount
// against the owner's wallet balance in the ledger.
func SettleFunding(p *Position, mark coretypes.Price, rate float64) coretypes.Price {
	payment := FundingPayment(p, mark, rate)
	p.FundingPaid = p.FundingPaid.Add(payment)
	return payment
}
