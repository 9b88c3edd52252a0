// Package coretypes holds the fixed-point scalar types and the per-symbol
// static configuration shared by every other package in the engine.
package coretypes

import (
	"math"
	"strconv"
	"strings"

	"github.com/quagmt/udecimal"
)

// Price and Qty are fixed-point decimals. They alias the same underlying
// representation; the two names exist to keep signatures readable, not to
// create a type boundary.
type Price = udecimal.Decimal
type Qty = udecimal.Decimal

// Zero is the fixed-point zero value, safe to use as a struct field
// default (the zero value of udecimal.Decimal is itself zero).
var Zero = udecimal.Zero

// ParsePrice parses a decimal string into a Price. It is the only entry
// point for turning untrusted wire input into a fixed-point scalar; all
// hot-path arithmetic after that point stays in Price/Qty.
func ParsePrice(s string) (Price, error) {
	return udecimal.Parse(s)
}

// MustPrice parses a decimal string and panics on error. Intended for
// constants and tests, never for wire input.
func MustPrice(s string) Price {
	p, err := udecimal.Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// FromInt is a convenience constructor for whole-number prices/quantities.
func FromInt(v int64) Price {
	return udecimal.MustFromInt64(v, 0)
}

// Div divides a by b, returning zero on a zero divisor. Callers on the
// matching path guard the divisor themselves; the zero fallback exists so
// derived figures (VWAP, per-unit cushion) degrade instead of erroring.
func Div(a, b Price) Price {
	q, err := a.Div(b)
	if err != nil {
		return Zero
	}
	return q
}

// Normalize reduces p to its minimal representation, so numerically
// equal scalars ("100", "100.0", "100.00") are also equal as Go map
// keys. Every price and quantity entering a book passes through this
// before it can key a level.
func Normalize(p Price) Price {
	s := p.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	out, err := udecimal.Parse(s)
	if err != nil {
		return p
	}
	return out
}

// ToFloat64 bridges a fixed-point scalar into the floating-point domain,
// for the options pricer and the funding/premium ratio. It round-trips
// through the decimal's canonical string form.
func ToFloat64(p Price) float64 {
	f, err := strconv.ParseFloat(p.String(), 64)
	if err != nil {
		return 0
	}
	return f
}

// FromFloat64 is the inverse of ToFloat64, used to bring a floating-point
// result (e.g. an option's theoretical price) back into the fixed-point
// domain for display alongside on-book scalars.
func FromFloat64(f float64) Price {
	p, err := udecimal.Parse(strconv.FormatFloat(f, 'f', -1, 64))
	if err != nil {
		return Zero
	}
	return p
}

// RoundToTick floors p to the nearest multiple of tick. Admission rejects
// off-tick prices rather than silently repricing them; this helper exists
// for callers that need the nearest representable price, not for the
// validation path.
func RoundToTick(p, tick Price) Price {
	if tick.IsZero() {
		return p
	}
	pf, tf := ToFloat64(p), ToFloat64(tick)
	units := math.Floor(pf / tf)
	return FromFloat64(units * tf)
}

// OnTick reports whether p is an exact multiple of tick.
func OnTick(p, tick Price) bool {
	if tick.IsZero() {
		return true
	}
	q, err := p.Div(tick)
	if err != nil {
		return false
	}
	return !strings.Contains(Normalize(q).String(), ".")
}

// OnLot reports whether q is an exact multiple of lot.
func OnLot(q, lot Qty) bool {
	return OnTick(q, lot)
}
