// Package options prices European options under Black-Scholes and keeps
// the listed-contract snapshots those prices feed.
package options

import "math"

// Type distinguishes a call from a put.
type Type int8

const (
	Call Type = 0
	Put  Type = 1
)

// Inputs is the full parameter set of a single pricing request: spot,
// strike, time-to-expiry in years, risk-free rate, and volatility, both
// expressed as fractions (0.02 = 2%).
type Inputs struct {
	Spot       float64
	Strike     float64
	Expiry     float64 // years
	Rate       float64
	Volatility float64
	Type       Type
}

// Greeks holds the standard Black-Scholes sensitivities: theta per
// calendar day, vega per 1% volatility change, rho per 1% rate change.
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
	Rho   float64
}

// Result is the full pricing output for one contract.
type Result struct {
	Price  float64
	Greeks Greeks
}

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

// Price computes the full Result for in. T <= 0 yields zero price and
// zero Greeks. A non-positive volatility has no defined closed form (the
// d1/d2 terms divide by it) so it is treated the same way.
func Price(in Inputs) Result {
	if in.Expiry <= 0 || in.Volatility <= 0 {
		return Result{}
	}

	sqrtT := math.Sqrt(in.Expiry)
	d1 := (math.Log(in.Spot/in.Strike) + (in.Rate+0.5*in.Volatility*in.Volatility)*in.Expiry) / (in.Volatility * sqrtT)
	d2 := d1 - in.Volatility*sqrtT

	discount := math.Exp(-in.Rate * in.Expiry)
	nd1, nd2 := normCDF(d1), normCDF(d2)

	var price float64
	var delta, rho float64
	if in.Type == Call {
		price = in.Spot*nd1 - in.Strike*discount*nd2
		delta = nd1
		rho = in.Strike * in.Expiry * discount * nd2 / 100
	} else {
		price = in.Strike*discount*normCDF(-d2) - in.Spot*normCDF(-d1)
		delta = nd1 - 1
		rho = -in.Strike * in.Expiry * discount * normCDF(-d2) / 100
	}

	pdf := normPDF(d1)
	gamma := pdf / (in.Spot * in.Volatility * sqrtT)
	vega := in.Spot * pdf * sqrtT / 100

	var theta float64
	term1 := -(in.Spot * pdf * in.Volatility) / (2 * sqrtT)
	if in.Type == Call {
		theta = (term1 - in.Rate*in.Strike*discount*nd2) / 365
	} else {
		theta = (term1 + in.Rate*in.Strike*discount*normCDF(-d2)) / 365
	}

	return Result{
		Price: price,
		Greeks: Greeks{
			Delta: delta,
			Gamma: gamma,
			Theta: theta,
			Vega:  vega,
			Rho:   rho,
		},
	}
}
