package engine

import (
	"context"
	"time"

	"github.com/lattice-exchange/matchcore/coretypes"
	"github.com/lattice-exchange/matchcore/derivatives"
)

// perpMeta carries the per-symbol constants the background loops need
// beyond what coretypes.Symbol already holds: the funding config and
// maintenance margin rate.
type perpMeta struct {
	funding derivatives.FundingConfig
	mmr     float64
}

// RegisterPerpetual records the funding/margin constants for a
// perpetual symbol so the background loops below know how to treat it.
// Spot/option-underlying symbols that never call this are simply skipped
// by every loop, since e.perpMeta.Load finds nothing for them.
func (e *Engine) RegisterPerpetual(symbol string, funding derivatives.FundingConfig, mmr float64) {
	e.perpMeta.Store(symbol, perpMeta{funding: funding, mmr: mmr})
}

func (e *Engine) perpMetaFor(symbol string) (perpMeta, bool) {
	v, ok := e.perpMeta.Load(symbol)
	if !ok {
		return perpMeta{}, false
	}
	return v.(perpMeta), true
}

// quoteAsset resolves the settlement asset for symbol from its market
// config, falling back to parsing the ticker when the market is unknown
// (e.g. a position restored for a delisted symbol).
func (e *Engine) quoteAsset(symbol string) string {
	if m, ok := e.marketFor(symbol); ok {
		return m.symbol.QuoteAsset
	}
	return quoteAssetOf(symbol)
}

// quoteAssetOf derives the quote asset from a "BASE-QUOTE" symbol name,
// falling back to "USD" when the symbol carries no separator (a bare
// perpetual ticker).
func quoteAssetOf(symbol string) string {
	for i := len(symbol) - 1; i >= 0; i-- {
		if symbol[i] == '-' {
			return symbol[i+1:]
		}
	}
	return "USD"
}

// RunMarkPriceLoop recomputes the mark price for every perpetual every
// tick, from the latest index price and the last funding rate computed
// for it, and pushes each fresh mark into its book via OnReferenceChange
// so mark-working stop/trailing orders re-evaluate. A stale index
// freezes the mark in place until the oracle recovers.
func (e *Engine) RunMarkPriceLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.tickMarkPrices(now)
		}
	}
}

func (e *Engine) tickMarkPrices(now time.Time) {
	e.perpMeta.Range(func(key, value any) bool {
		symbol := key.(string)
		meta := value.(perpMeta)

		iv, ok := e.indexPrices.Load(symbol)
		if !ok {
			return true
		}
		idx := iv.(indexPriceEntry)
		if idx.stale(now) {
			logger.Warn("index price stale, freezing mark", "symbol", symbol, "observed_at", idx.observedAt)
			return true
		}

		rate, _ := e.fundingRate.Load(symbol)
		fr, _ := rate.(float64)

		nextFunding := nextFundingIn(now, meta.funding.IntervalSeconds)
		mark := derivatives.MarkPrice(idx.price, fr, nextFunding, meta.funding.IntervalSeconds)
		e.markPrices.Store(symbol, mark)

		if m, ok := e.marketFor(symbol); ok {
			m.book.OnReferenceChange(mark)
		}
		return true
	})
}

// RunFundingRateLoop recomputes each perpetual's funding rate from its
// latest mark/index pair once per tick. The rate moves on its own, much
// slower cadence than the mark price; settlement happens separately at
// each funding boundary.
func (e *Engine) RunFundingRateLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.tickFundingRates(now)
		}
	}
}

func (e *Engine) tickFundingRates(now time.Time) {
	e.perpMeta.Range(func(key, value any) bool {
		symbol := key.(string)
		meta := value.(perpMeta)

		iv, ok := e.indexPrices.Load(symbol)
		if !ok {
			return true
		}
		idx := iv.(indexPriceEntry)
		if idx.stale(now) {
			return true
		}

		mark := idx.price
		if mv, ok := e.markPrices.Load(symbol); ok {
			mark = mv.(coretypes.Price)
		}
		e.fundingRate.Store(symbol, derivatives.FundingRate(mark, idx.price, meta.funding))
		return true
	})
}

// nextFundingIn returns the seconds remaining until the next funding
// boundary, assuming funding lands on multiples of intervalSeconds since
// the unix epoch.
func nextFundingIn(now time.Time, intervalSeconds int64) int64 {
	if intervalSeconds <= 0 {
		return 0
	}
	elapsed := now.Unix() % intervalSeconds
	return intervalSeconds - elapsed
}

// RunFundingLoop settles funding payments for every open position of
// symbol once per funding interval.
func (e *Engine) RunFundingLoop(ctx context.Context, symbol string) {
	meta, ok := e.perpMetaFor(symbol)
	if !ok || meta.funding.IntervalSeconds <= 0 {
		return
	}
	interval := time.Duration(meta.funding.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.settleFunding(symbol)
		}
	}
}

func (e *Engine) settleFunding(symbol string) {
	mv, ok := e.markPrices.Load(symbol)
	if !ok {
		return
	}
	mark := mv.(coretypes.Price)
	rv, _ := e.fundingRate.Load(symbol)
	rate, _ := rv.(float64)

	quote := e.quoteAsset(symbol)
	for _, tr := range e.Positions.SettleFundingAll(symbol, mark, rate) {
		e.Ledger.Credit(tr.Owner, quote, tr.Amount)
	}
}

// RunPositionMonitor evaluates every open perpetual position against its
// mark price once per tick, refreshes its liquidation price, and
// enqueues any that fall to or below the maintenance margin ratio. A
// stale index suppresses liquidation for that symbol entirely.
func (e *Engine) RunPositionMonitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.tickPositionMonitor(now)
		}
	}
}

func (e *Engine) tickPositionMonitor(now time.Time) {
	for _, p := range e.Positions.AllOpenPositions() {
		meta, ok := e.perpMetaFor(p.Symbol)
		if !ok {
			continue
		}
		if idx, ok := e.indexPrices.Load(p.Symbol); ok && idx.(indexPriceEntry).stale(now) {
			continue
		}
		mv, ok := e.markPrices.Load(p.Symbol)
		if !ok {
			continue
		}
		mark := mv.(coretypes.Price)

		// The position's collateral: free wallet plus everything held
		// reserved (position margin and open-order holds).
		bal := e.Ledger.Balance(p.Owner, e.quoteAsset(p.Symbol))
		wallet := bal.Free.Add(bal.Reserved)

		margin := derivatives.Evaluate(&p, mark, wallet, meta.mmr)
		e.Positions.UpdateLiquidationPrice(p.Owner, p.Symbol, margin.LiquidationPrice)
		if margin.IsLiquidatable(meta.mmr) {
			if !e.Liquidator.Enqueue(derivatives.LiquidationRequest{
				Owner:  p.Owner,
				Symbol: p.Symbol,
				Side:   p.Side,
				Size:   p.Size,
			}) {
				logger.Warn("liquidation queue full, will retry next tick", "owner", p.Owner, "symbol", p.Symbol)
			}
		}
	}
}

// RunOptionsLoop delegates to the options listing's own recompute ticker.
func (e *Engine) RunOptionsLoop(ctx context.Context, interval time.Duration) {
	e.Options.Run(ctx, interval)
}

// RunExpirySweep cancels every due good-til-date order across every
// market once per tick.
func (e *Engine) RunExpirySweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.markets.Range(func(_, value any) bool {
				value.(*market).book.SweepExpiry(now)
				return true
			})
		}
	}
}

// RunLiquidationWorkers starts the liquidation engine's worker pool.
func (e *Engine) RunLiquidationWorkers(ctx context.Context, workers int) {
	e.Liquidator.Run(ctx, workers)
}

// RunAll starts every background task named above on sensible default
// intervals and blocks until ctx is cancelled, stopping them all
// together. Individual loops can also be started standalone, e.g. to
// give the funding loop a different cadence per symbol.
func (e *Engine) RunAll(ctx context.Context) {
	go e.RunMarkPriceLoop(ctx, time.Second)
	go e.RunFundingRateLoop(ctx, time.Minute)
	go e.RunPositionMonitor(ctx, time.Second)
	go e.RunExpirySweep(ctx, time.Second)
	go e.RunOptionsLoop(ctx, 10*time.Second)
	go e.RunLiquidationWorkers(ctx, 4)

	e.perpMeta.Range(func(key, _ any) bool {
		symbol := key.(string)
		go e.RunFundingLoop(ctx, symbol)
		return true
	})

	<-ctx.Done()
}
