// Package engine is the top-level facade: the single entry point that
// routes requests to the right per-symbol book, owns the shared
// ledger/position/options state, and runs the background risk loops.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lattice-exchange/matchcore/book"
	"github.com/lattice-exchange/matchcore/coretypes"
	"github.com/lattice-exchange/matchcore/derivatives"
	"github.com/lattice-exchange/matchcore/ledger"
	"github.com/lattice-exchange/matchcore/options"
	"github.com/lattice-exchange/matchcore/protocol"
)

// Version identifies this build of the engine, surfaced by HealthCheck.
const Version = "v1.0.0"

var (
	ErrShutdown      = errors.New("engine: shutting down")
	ErrUnknownMarket = errors.New("engine: unknown market")
	ErrMarketExists  = errors.New("engine: market already exists")
)

// marketState tags the lifecycle of one symbol's book, mirroring
// protocol.MarketState.
type marketState int32

const (
	marketRunning   marketState = 0
	marketSuspended marketState = 1
	marketHalted    marketState = 2
)

type market struct {
	symbol *coretypes.Symbol
	book   *book.Book
	state  atomic.Int32
}

// latencyStats accumulates the admission-to-response latency figures for
// the statistics probe, with plain atomics rather than a lock on the hot
// path.
type latencyStats struct {
	ordersProcessed atomic.Uint64
	tradesExecuted  atomic.Uint64
	sumNs           atomic.Uint64
	minNs           atomic.Uint64
	maxNs           atomic.Uint64
	startedAt       time.Time
}

func newLatencyStats() *latencyStats {
	ls := &latencyStats{startedAt: time.Now()}
	ls.minNs.Store(^uint64(0))
	return ls
}

func (ls *latencyStats) observe(d time.Duration) {
	ns := uint64(d.Nanoseconds())
	ls.ordersProcessed.Add(1)
	ls.sumNs.Add(ns)
	for {
		cur := ls.minNs.Load()
		if ns >= cur || ls.minNs.CompareAndSwap(cur, ns) {
			break
		}
	}
	for {
		cur := ls.maxNs.Load()
		if ns <= cur || ls.maxNs.CompareAndSwap(cur, ns) {
			break
		}
	}
}

// countingSink wraps the configured event sink so the engine can count
// executed trades without the books knowing about the stats probe.
type countingSink struct {
	inner  book.Sink
	trades *atomic.Uint64
}

func (s countingSink) Publish(logs ...*book.BookLog) {
	for _, l := range logs {
		if l.Type == book.LogMatch {
			s.trades.Add(1)
		}
	}
	s.inner.Publish(logs...)
}

// Engine is the top-level facade: every market's book, the shared
// account ledger, the derivatives position book, the options listing,
// and the oracle/latency state backing the operational probes.
type Engine struct {
	isShutdown atomic.Bool
	markets    sync.Map // string -> *market

	Ledger     *ledger.AccountLedger
	Positions  *derivatives.Book
	Liquidator *derivatives.LiquidationEngine
	Options    *options.Listing

	indexPrices sync.Map // string -> indexPriceEntry
	markPrices  sync.Map // string -> coretypes.Price
	fundingRate sync.Map // string -> float64
	perpMeta    sync.Map // string -> perpMeta
	twaps       sync.Map // string -> *TWAPExecution

	sink         book.Sink
	ringCapacity int64
	highWater    int64

	stats *latencyStats
}

// indexPriceEntry is the oracle ingress state kept per symbol: the last
// observed index price and the freshness window it must be judged
// against.
type indexPriceEntry struct {
	price       coretypes.Price
	observedAt  time.Time
	freshWindow time.Duration
}

func (e indexPriceEntry) stale(now time.Time) bool {
	if e.freshWindow <= 0 {
		return false
	}
	return now.Sub(e.observedAt) > e.freshWindow
}

// Config bundles the engine-global parameters: ring capacity, the
// admission high-water mark, the liquidation queue, and the event sink
// every market publishes into.
type Config struct {
	RingCapacity          int64
	AdmissionHighWater    int64
	LiquidationQueueDepth int
	LiquidationMaxRetry   int
	LiquidationBackoff    time.Duration
	Sink                  book.Sink // nil discards events
}

func DefaultConfig() Config {
	return Config{
		RingCapacity:          1 << 16,
		AdmissionHighWater:    1 << 15,
		LiquidationQueueDepth: 4096,
		LiquidationMaxRetry:   5,
		LiquidationBackoff:    200 * time.Millisecond,
	}
}

func New(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.RingCapacity <= 0 {
		cfg.RingCapacity = def.RingCapacity
	}
	if cfg.AdmissionHighWater <= 0 {
		cfg.AdmissionHighWater = def.AdmissionHighWater
	}
	if cfg.LiquidationQueueDepth <= 0 {
		cfg.LiquidationQueueDepth = def.LiquidationQueueDepth
	}
	if cfg.LiquidationBackoff <= 0 {
		cfg.LiquidationBackoff = def.LiquidationBackoff
	}
	if cfg.Sink == nil {
		cfg.Sink = book.DiscardSink{}
	}

	e := &Engine{
		Ledger:       ledger.NewAccountLedger(),
		stats:        newLatencyStats(),
		sink:         cfg.Sink,
		ringCapacity: cfg.RingCapacity,
		highWater:    cfg.AdmissionHighWater,
	}
	e.Positions = derivatives.NewBook(e.Ledger)
	e.Options = options.NewListing(markSourceFunc(e.Mark))
	e.Liquidator = derivatives.NewLiquidationEngine(e, cfg.LiquidationQueueDepth, cfg.LiquidationMaxRetry, cfg.LiquidationBackoff)
	return e
}

// markSourceFunc adapts a plain function to options.MarkSource.
type markSourceFunc func(symbol string) (float64, bool)

func (f markSourceFunc) Mark(symbol string) (float64, bool) { return f(symbol) }

// CreateMarket registers a new symbol and starts its Book.
func (e *Engine) CreateMarket(symbol *coretypes.Symbol) error {
	if e.isShutdown.Load() {
		return ErrShutdown
	}
	if err := symbol.Validate(); err != nil {
		return err
	}
	if _, exists := e.markets.Load(symbol.Name); exists {
		return ErrMarketExists
	}

	var positions book.PositionObserver
	if symbol.IsPerpetual() {
		positions = e.Positions
	}

	sink := countingSink{inner: e.sink, trades: &e.stats.tradesExecuted}
	b := book.NewBook(symbol, sink, e.Ledger, positions, e.ringCapacity, e.highWater)
	m := &market{symbol: symbol, book: b}
	e.markets.Store(symbol.Name, m)
	b.Start()
	return nil
}

// SuspendMarket stops accepting new orders for symbol; cancels still
// work.
func (e *Engine) SuspendMarket(symbol string) error {
	m, ok := e.marketFor(symbol)
	if !ok {
		return ErrUnknownMarket
	}
	m.state.Store(int32(marketSuspended))
	return nil
}

func (e *Engine) ResumeMarket(symbol string) error {
	m, ok := e.marketFor(symbol)
	if !ok {
		return ErrUnknownMarket
	}
	m.state.Store(int32(marketRunning))
	return nil
}

func (e *Engine) marketFor(symbol string) (*market, bool) {
	v, ok := e.markets.Load(symbol)
	if !ok {
		return nil, false
	}
	return v.(*market), true
}

// Submit implements derivatives.OrderSubmitter and is the engine's main
// order-entry path, routed by o.Symbol.
func (e *Engine) Submit(o *coretypes.Order) (*coretypes.Order, *coretypes.Rejection) {
	start := time.Now()
	if e.isShutdown.Load() {
		return nil, coretypes.NewRejection(coretypes.RejectOverloaded, "engine shutting down")
	}
	m, ok := e.marketFor(o.Symbol)
	if !ok {
		return nil, coretypes.NewRejection(coretypes.RejectUnknownSymbol, o.Symbol)
	}
	if marketState(m.state.Load()) != marketRunning {
		return nil, coretypes.NewRejection(coretypes.RejectMarketSuspended, o.Symbol)
	}

	if o.ClosePosition && m.symbol.IsPerpetual() {
		// A close-position order is sized to the live position at
		// admission and always reduces.
		size := e.Positions.SizeFor(o.Owner, o.Symbol)
		side, open := e.Positions.SideFor(o.Owner, o.Symbol)
		if size.IsZero() || !open {
			return nil, coretypes.NewRejection(coretypes.RejectReduceOnlyViolation, "no position to close")
		}
		o.Side = side.Opposite()
		o.Quantity = size
		o.ReduceOnly = true
	}

	res, rej := m.book.Submit(o)
	e.stats.observe(time.Since(start))
	return res, rej
}

// SubmitBracket and SubmitOCO mirror Submit for the grouped order types.
func (e *Engine) SubmitBracket(parent, stopLoss, takeProfit *coretypes.Order) (*coretypes.Order, *coretypes.Rejection) {
	m, ok := e.marketFor(parent.Symbol)
	if !ok {
		return nil, coretypes.NewRejection(coretypes.RejectUnknownSymbol, parent.Symbol)
	}
	if marketState(m.state.Load()) != marketRunning {
		return nil, coretypes.NewRejection(coretypes.RejectMarketSuspended, parent.Symbol)
	}
	return m.book.SubmitBracket(parent, stopLoss, takeProfit)
}

func (e *Engine) SubmitOCO(a, sibling *coretypes.Order) (*coretypes.Order, *coretypes.Rejection) {
	m, ok := e.marketFor(a.Symbol)
	if !ok {
		return nil, coretypes.NewRejection(coretypes.RejectUnknownSymbol, a.Symbol)
	}
	if marketState(m.state.Load()) != marketRunning {
		return nil, coretypes.NewRejection(coretypes.RejectMarketSuspended, a.Symbol)
	}
	return m.book.SubmitOCO(a, sibling)
}

func (e *Engine) Cancel(symbol, orderID, owner string) (*coretypes.Order, *coretypes.Rejection) {
	m, ok := e.marketFor(symbol)
	if !ok {
		return nil, coretypes.NewRejection(coretypes.RejectUnknownSymbol, symbol)
	}
	return m.book.Cancel(orderID, owner)
}

func (e *Engine) Amend(symbol, orderID string, newPrice, newQty coretypes.Price) (*coretypes.Order, *coretypes.Rejection) {
	m, ok := e.marketFor(symbol)
	if !ok {
		return nil, coretypes.NewRejection(coretypes.RejectUnknownSymbol, symbol)
	}
	return m.book.Amend(orderID, newPrice, newQty)
}

func (e *Engine) SnapshotBook(symbol string, depth int) (book.DepthSnapshot, error) {
	m, ok := e.marketFor(symbol)
	if !ok {
		return book.DepthSnapshot{}, ErrUnknownMarket
	}
	return m.book.Depth(depth), nil
}

// MarketOverview is the full per-market statistics payload: the book's
// own counters plus the derivatives open interest for a perpetual.
type MarketOverview struct {
	book.BookStats
	OpenInterest coretypes.Qty
}

func (e *Engine) MarketStats(symbol string) (MarketOverview, error) {
	m, ok := e.marketFor(symbol)
	if !ok {
		return MarketOverview{}, ErrUnknownMarket
	}
	ov := MarketOverview{BookStats: m.book.Stats()}
	if m.symbol.IsPerpetual() {
		ov.OpenInterest = e.Positions.OpenInterest(symbol)
	}
	return ov, nil
}

// AccountPositions returns a copy of every open position for owner.
func (e *Engine) AccountPositions(owner string) []derivatives.Position {
	return e.Positions.Positions(owner)
}

func (e *Engine) AccountBalance(owner, asset string) ledger.Balance {
	return e.Ledger.Balance(owner, asset)
}

// MarginAccountFor assembles owner's margin view in quoteAsset: gross
// wallet, initial margin locked by positions (at entry), the residual
// reserved by open orders, and the cross unrealized P&L at current
// marks.
func (e *Engine) MarginAccountFor(owner, quoteAsset string) derivatives.MarginAccount {
	bal := e.Ledger.Balance(owner, quoteAsset)
	ma := derivatives.MarginAccount{
		Owner:  owner,
		Wallet: bal.Free.Add(bal.Reserved),
	}
	for _, p := range e.Positions.Positions(owner) {
		ma.PositionInitialMargin = ma.PositionInitialMargin.Add(p.InitialMargin(p.EntryPrice))
		if mark, ok := e.Mark(p.Symbol); ok {
			ma.CrossUnrealizedPnL = ma.CrossUnrealizedPnL.Add(p.UnrealizedPnL(coretypes.FromFloat64(mark)))
		}
	}
	ma.OrderInitialMargin = bal.Reserved.Sub(ma.PositionInitialMargin)
	if ma.OrderInitialMargin.LessThan(coretypes.Zero) {
		ma.OrderInitialMargin = coretypes.Zero
	}
	return ma
}

// UpdateIndexPrice is the oracle ingress: a per-symbol index price with
// its observation time and freshness window.
func (e *Engine) UpdateIndexPrice(symbol string, price coretypes.Price, observedAt time.Time, freshWindow time.Duration) {
	e.indexPrices.Store(symbol, indexPriceEntry{
		price:       price,
		observedAt:  observedAt,
		freshWindow: freshWindow,
	})
}

// Mark returns the current mark price for symbol as a float64, for
// options.MarkSource. Falls back to the book's last trade if no mark has
// been computed yet (spot symbols, or a perpetual before its first
// mark-price tick).
func (e *Engine) Mark(symbol string) (float64, bool) {
	if v, ok := e.markPrices.Load(symbol); ok {
		return coretypes.ToFloat64(v.(coretypes.Price)), true
	}
	if m, ok := e.marketFor(symbol); ok {
		stats := m.book.Stats()
		if !stats.LastTrade.IsZero() {
			return coretypes.ToFloat64(stats.LastTrade), true
		}
	}
	return 0, false
}

// HealthCheck is the operational health probe.
func (e *Engine) HealthCheck() protocol.HealthStatus {
	status := "ok"
	if e.isShutdown.Load() {
		status = "shutting_down"
	}
	return protocol.HealthStatus{Status: status, Service: "matchcore", Version: Version, Timestamp: time.Now().UTC()}
}

// Stats is the operational statistics probe.
func (e *Engine) Stats() protocol.EngineStats {
	processed := e.stats.ordersProcessed.Load()
	avg := int64(0)
	if processed > 0 {
		avg = int64(e.stats.sumNs.Load() / processed)
	}
	elapsed := time.Since(e.stats.startedAt).Seconds()
	throughput := 0.0
	if elapsed > 0 {
		throughput = float64(processed) / elapsed
	}
	minNs := int64(e.stats.minNs.Load())
	if processed == 0 {
		minNs = 0
	}
	return protocol.EngineStats{
		OrdersProcessed:  processed,
		TradesExecuted:   e.stats.tradesExecuted.Load(),
		AvgLatencyNs:     avg,
		MinLatencyNs:     minNs,
		MaxLatencyNs:     int64(e.stats.maxNs.Load()),
		ThroughputPerSec: throughput,
	}
}

// Shutdown stops accepting new work and waits for every market's book to
// drain, in parallel.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.isShutdown.Store(true)

	var wg sync.WaitGroup
	var errsMu sync.Mutex
	var errs []error

	e.markets.Range(func(key, value any) bool {
		m := value.(*market)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.book.Shutdown(ctx); err != nil {
				errsMu.Lock()
				errs = append(errs, fmt.Errorf("market %s: %w", m.symbol.Name, err))
				errsMu.Unlock()
			}
		}()
		return true
	})
	wg.Wait()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
