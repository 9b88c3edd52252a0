package engine

import (
	"context"
	"sync"
	"time"

	"github.com/lattice-exchange/matchcore/coretypes"
	"github.com/rs/xid"
)

// TWAPStatus is the lifecycle of one time-weighted execution.
type TWAPStatus string

const (
	TWAPActive    TWAPStatus = "active"
	TWAPCompleted TWAPStatus = "completed"
	TWAPCancelled TWAPStatus = "cancelled"
)

// TWAPExecution splits a parent order into equal slices submitted on a
// fixed cadence, so a large order averages into the book over its
// duration instead of sweeping it at once. The parent never enters a
// ladder; each slice is an ordinary IOC child routed through Submit
// (market, or limit when a price limit is set).
type TWAPExecution struct {
	ID       string
	Symbol   string
	Owner    string
	Side     coretypes.Side
	TotalQty coretypes.Qty
	SliceQty coretypes.Qty
	Slices   int
	Interval time.Duration

	// PriceLimit bounds every slice; zero means market slices.
	PriceLimit coretypes.Price

	mu           sync.Mutex
	slicesDone   int
	slicesFailed int
	filled       coretypes.Qty
	status       TWAPStatus
	cancel       context.CancelFunc
}

// TWAPProgress is a point-in-time snapshot of an execution.
type TWAPProgress struct {
	SlicesDone   int
	SlicesFailed int
	Filled       coretypes.Qty
	Status       TWAPStatus
}

func (x *TWAPExecution) Progress() TWAPProgress {
	x.mu.Lock()
	defer x.mu.Unlock()
	return TWAPProgress{
		SlicesDone:   x.slicesDone,
		SlicesFailed: x.slicesFailed,
		Filled:       x.filled,
		Status:       x.status,
	}
}

// Cancel stops the execution before its remaining slices fire. Slices
// already submitted keep their fills.
func (x *TWAPExecution) Cancel() {
	x.cancel()
}

// SubmitTWAP starts a time-weighted execution of o: slices equal child
// orders spread evenly across duration, the first submitted immediately.
// o carries the owner/symbol/side/total quantity; o.Price, when set,
// becomes the per-slice price limit.
func (e *Engine) SubmitTWAP(ctx context.Context, o *coretypes.Order, slices int, duration time.Duration) (*TWAPExecution, *coretypes.Rejection) {
	if e.isShutdown.Load() {
		return nil, coretypes.NewRejection(coretypes.RejectOverloaded, "engine shutting down")
	}
	m, ok := e.marketFor(o.Symbol)
	if !ok {
		return nil, coretypes.NewRejection(coretypes.RejectUnknownSymbol, o.Symbol)
	}
	if slices < 2 {
		return nil, coretypes.NewRejection(coretypes.RejectInvalidParam, "twap needs at least 2 slices")
	}
	if duration <= 0 {
		return nil, coretypes.NewRejection(coretypes.RejectInvalidParam, "twap duration must be positive")
	}

	total := coretypes.Normalize(o.Quantity)
	sliceQty := coretypes.RoundToTick(coretypes.Div(total, coretypes.FromInt(int64(slices))), m.symbol.Lot)
	if sliceQty.IsZero() {
		return nil, coretypes.NewRejection(coretypes.RejectQuantityOutOfRange, "quantity too small to slice at the lot size")
	}

	runCtx, cancel := context.WithCancel(ctx)
	x := &TWAPExecution{
		ID:         "twap-" + xid.New().String(),
		Symbol:     o.Symbol,
		Owner:      o.Owner,
		Side:       o.Side,
		TotalQty:   total,
		SliceQty:   sliceQty,
		Slices:     slices,
		Interval:   duration / time.Duration(slices),
		PriceLimit: coretypes.Normalize(o.Price),
		status:     TWAPActive,
		cancel:     cancel,
	}
	e.twaps.Store(x.ID, x)
	go x.run(runCtx, e)
	return x, nil
}

// TWAPExecutionFor looks an execution up by id.
func (e *Engine) TWAPExecutionFor(id string) (*TWAPExecution, bool) {
	v, ok := e.twaps.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*TWAPExecution), true
}

func (x *TWAPExecution) run(ctx context.Context, e *Engine) {
	defer x.cancel()
	for i := 0; i < x.Slices; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				x.finish(TWAPCancelled)
				return
			case <-time.After(x.Interval):
			}
		}

		qty := x.SliceQty
		if i == x.Slices-1 {
			// The last slice absorbs the rounding remainder.
			qty = x.TotalQty.Sub(x.SliceQty.Mul(coretypes.FromInt(int64(x.Slices - 1))))
		}

		child := &coretypes.Order{
			Owner:    x.Owner,
			Symbol:   x.Symbol,
			Side:     x.Side,
			Type:     coretypes.Market,
			TIF:      coretypes.IOC,
			Quantity: qty,
		}
		if !x.PriceLimit.IsZero() {
			child.Type = coretypes.Limit
			child.Price = x.PriceLimit
		}

		res, rej := e.Submit(child)
		x.mu.Lock()
		x.slicesDone++
		if rej != nil || res == nil {
			x.slicesFailed++
		} else {
			x.filled = x.filled.Add(res.Filled)
			if res.Filled.LessThan(qty) {
				x.slicesFailed++
			}
		}
		x.mu.Unlock()
		if rej != nil {
			logger.Warn("twap slice rejected", "id", x.ID, "slice", i+1, "reason", rej.Reason)
		}
	}
	x.finish(TWAPCompleted)
}

func (x *TWAPExecution) finish(status TWAPStatus) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.status == TWAPActive {
		x.status = status
	}
}
