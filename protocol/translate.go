package protocol

import (
	"fmt"
	"time"

	"github.com/lattice-exchange/matchcore/book"
	"github.com/lattice-exchange/matchcore/coretypes"
)

// Core converts a wire side to the engine's side type.
func (s Side) Core() (coretypes.Side, error) {
	switch s {
	case SideBuy:
		return coretypes.Buy, nil
	case SideSell:
		return coretypes.Sell, nil
	default:
		return 0, fmt.Errorf("protocol: unknown side %d", s)
	}
}

func sideFromCore(s coretypes.Side) Side {
	if s == coretypes.Buy {
		return SideBuy
	}
	return SideSell
}

func parseOptional(s string) (coretypes.Price, error) {
	if s == "" {
		return coretypes.Zero, nil
	}
	return coretypes.ParsePrice(s)
}

// ToOrder converts a SubmitParams payload into the engine's order type,
// parsing every decimal field exactly once at the edge. Bracket/OCO
// sub-payloads are converted by the caller, which owns the grouping.
func (p *SubmitParams) ToOrder() (*coretypes.Order, error) {
	side, err := p.Side.Core()
	if err != nil {
		return nil, err
	}
	qty, err := coretypes.ParsePrice(p.Quantity)
	if err != nil {
		return nil, fmt.Errorf("protocol: quantity: %w", err)
	}
	price, err := parseOptional(p.Price)
	if err != nil {
		return nil, fmt.Errorf("protocol: price: %w", err)
	}
	stop, err := parseOptional(p.StopPrice)
	if err != nil {
		return nil, fmt.Errorf("protocol: stop_price: %w", err)
	}
	trail, err := parseOptional(p.TrailAmount)
	if err != nil {
		return nil, fmt.Errorf("protocol: trail_amount: %w", err)
	}
	display, err := parseOptional(p.DisplayQty)
	if err != nil {
		return nil, fmt.Errorf("protocol: display_qty: %w", err)
	}

	o := &coretypes.Order{
		ClientID:      p.ClientOrderID,
		Owner:         p.Owner,
		Symbol:        p.Symbol,
		Side:          side,
		Type:          coretypes.OrderType(p.OrderType),
		TIF:           coretypes.TimeInForce(p.TimeInForce),
		Price:         price,
		StopPrice:     stop,
		TrailAmount:   trail,
		TrailPercent:  p.TrailPercent,
		Quantity:      qty,
		DisplayQty:    display,
		PostOnly:      p.PostOnly,
		ReduceOnly:    p.ReduceOnly,
		ClosePosition: p.ClosePosition,
		Leverage:      p.Leverage,
	}
	if p.WorkingMark {
		o.WorkingType = coretypes.WorkingMark
	}
	if p.ExpireAtNs > 0 {
		o.ExpireAt = time.Unix(0, p.ExpireAtNs).UTC()
	}
	return o, nil
}

// RejectionResponse builds the reply for a rejected request.
func RejectionResponse(correlationID string, rej *coretypes.Rejection) EnvelopeResponse {
	return EnvelopeResponse{
		CorrelationID: correlationID,
		OK:            false,
		RejectReason:  RejectReason(rej.Reason),
		Detail:        rej.Detail,
	}
}

// TradeMessageFrom projects a match event onto the trade egress stream.
// Only meaningful for BookLog events of type match.
func TradeMessageFrom(l *book.BookLog) TradeMessage {
	return TradeMessage{
		Symbol:      l.Symbol,
		TradeID:     l.TradeID,
		Sequence:    l.SequenceID,
		Price:       l.Price.String(),
		Qty:         l.Qty.String(),
		MakerSide:   sideFromCore(l.Side.Opposite()),
		TimestampUs: l.CreatedAt.UnixMicro(),
	}
}

// DeltaFrom applies one depth-affecting event to view and emits the
// incremental book update carrying the level's new aggregate. Events
// with no depth effect (rejects, triggers) return ok=false.
func DeltaFrom(l *book.BookLog, view *book.AggregatedBook) (BookUpdate, bool, error) {
	if err := view.Replay(l); err != nil {
		return BookUpdate{}, false, err
	}
	side := l.Side
	switch l.Type {
	case book.LogMatch:
		side = l.Side.Opposite()
	case book.LogReject, book.LogTrigger:
		return BookUpdate{}, false, nil
	}

	level := BookLevelUpdate{
		Price:     l.Price.String(),
		Aggregate: view.Depth(side, l.Price).String(),
	}
	upd := BookUpdate{
		Symbol:      l.Symbol,
		Sequence:    l.SequenceID,
		TimestampUs: l.CreatedAt.UnixMicro(),
		Kind:        BookUpdateDelta,
	}
	if side == coretypes.Buy {
		upd.Bids = []BookLevelUpdate{level}
	} else {
		upd.Asks = []BookLevelUpdate{level}
	}
	return upd, true, nil
}

// SnapshotUpdate emits a full-depth snapshot message from the aggregated
// view, up to n levels per side.
func SnapshotUpdate(symbol string, view *book.AggregatedBook, n int, at time.Time) BookUpdate {
	upd := BookUpdate{
		Symbol:      symbol,
		Sequence:    view.SequenceID(),
		TimestampUs: at.UnixMicro(),
		Kind:        BookUpdateSnapshot,
	}
	for _, lvl := range view.TopN(coretypes.Buy, n) {
		upd.Bids = append(upd.Bids, BookLevelUpdate{Price: lvl.Price.String(), Aggregate: lvl.Qty.String()})
	}
	for _, lvl := range view.TopN(coretypes.Sell, n) {
		upd.Asks = append(upd.Asks, BookLevelUpdate{Price: lvl.Price.String(), Aggregate: lvl.Qty.String()})
	}
	return upd
}
