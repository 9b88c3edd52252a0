package derivatives

import (
	"context"
	"time"

	"github.com/lattice-exchange/matchcore/coretypes"
)

// OrderSubmitter is the narrow slice of the engine facade the liquidation
// engine needs, kept in this package so derivatives never has to import
// the engine.
type OrderSubmitter interface {
	Submit(o *coretypes.Order) (*coretypes.Order, *coretypes.Rejection)
}

// LiquidationRequest is one position queued for forced reduction.
type LiquidationRequest struct {
	Owner    string
	Symbol   string
	Side     coretypes.Side // side of the position being liquidated
	Size     coretypes.Qty
	Attempts int
}

// InsuranceFundLoss is recorded when a liquidation cannot complete even
// at the protective price band. Distributing the loss is someone else's
// job; dropping it silently is nobody's.
type InsuranceFundLoss struct {
	Owner     string
	Symbol    string
	Shortfall coretypes.Qty
	At        time.Time
}

// LiquidationEngine drains a bounded queue of LiquidationRequest with a
// worker pool, synthesising a market reduce-only order for each and
// submitting it through submitter.
type LiquidationEngine struct {
	queue     chan LiquidationRequest
	submitter OrderSubmitter
	losses    chan InsuranceFundLoss
	maxRetry  int
	backoff   time.Duration
}

func NewLiquidationEngine(submitter OrderSubmitter, queueDepth, maxRetry int, backoff time.Duration) *LiquidationEngine {
	return &LiquidationEngine{
		queue:     make(chan LiquidationRequest, queueDepth),
		submitter: submitter,
		losses:    make(chan InsuranceFundLoss, queueDepth),
		maxRetry:  maxRetry,
		backoff:   backoff,
	}
}

// Enqueue submits a position for liquidation. Non-blocking: if the queue
// is full the request is dropped and false is returned, since the
// position monitor re-evaluates and re-enqueues every tick anyway.
func (le *LiquidationEngine) Enqueue(req LiquidationRequest) bool {
	select {
	case le.queue <- req:
		return true
	default:
		return false
	}
}

// Losses exposes the stream of recorded insurance-fund shortfalls.
func (le *LiquidationEngine) Losses() <-chan InsuranceFundLoss {
	return le.losses
}

// Run starts n worker goroutines draining the queue until ctx is done.
func (le *LiquidationEngine) Run(ctx context.Context, workers int) {
	for i := 0; i < workers; i++ {
		go le.worker(ctx)
	}
}

func (le *LiquidationEngine) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-le.queue:
			le.process(ctx, req)
		}
	}
}

// process synthesises the forced-reduction order and submits it. The
// order is reduce-only, so admission skips the balance reservation (the
// position itself is the collateral), but price bands still apply. A
// rejected or partially filled attempt is retried with back-off up to
// maxRetry; exhausting retries records the remainder as an insurance-fund
// loss.
func (le *LiquidationEngine) process(ctx context.Context, req LiquidationRequest) {
	order := &coretypes.Order{
		Owner:         req.Owner,
		Symbol:        req.Symbol,
		Side:          req.Side.Opposite(),
		Type:          coretypes.Market,
		TIF:           coretypes.IOC,
		Quantity:      req.Size,
		ReduceOnly:    true,
		ClosePosition: true,
	}

	res, rej := le.submitter.Submit(order)
	if rej == nil && res.IsFullyFilled() {
		return
	}
	if rej != nil && rej.Reason == coretypes.RejectReduceOnlyViolation {
		// The position is already gone (closed by the owner, or a racing
		// worker finished it); nothing left to force-reduce.
		return
	}

	remainder := req.Size
	if rej == nil {
		remainder = res.Remaining()
	}
	if remainder.IsZero() {
		return
	}

	req.Size = remainder
	req.Attempts++
	if req.Attempts > le.maxRetry {
		le.recordLoss(req)
		return
	}

	select {
	case <-ctx.Done():
	case <-time.After(le.backoff * time.Duration(req.Attempts)):
		if !le.Enqueue(req) {
			le.recordLoss(req)
		}
	}
}

func (le *LiquidationEngine) recordLoss(req LiquidationRequest) {
	loss := InsuranceFundLoss{Owner: req.Owner, Symbol: req.Symbol, Shortfall: req.Size, At: time.Now().UTC()}
	logger.Error("liquidation exhausted retries, recording insurance-fund loss",
		"owner", req.Owner, "symbol", req.Symbol, "shortfall", req.Size.String())
	select {
	case le.losses <- loss:
	default:
	}
}
