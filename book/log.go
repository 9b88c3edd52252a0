package book

import (
	"sync"
	"time"

	"github.com/lattice-exchange/matchcore/coretypes"
)

// LogType is the event kind carried by a BookLog. Expire marks a GTD
// sweep removal; Trigger marks both arming and activation of a
// stop/trailing shell (neither affects depth).
type LogType string

const (
	LogOpen    LogType = "open"
	LogMatch   LogType = "match"
	LogCancel  LogType = "cancel"
	LogAmend   LogType = "amend"
	LogReject  LogType = "reject"
	LogExpire  LogType = "expire"
	LogTrigger LogType = "trigger"
)

// BookLog is the single emission type for everything the order book does
// to its own state or to the trade tape: depth-affecting events
// (Open/Match/Cancel/Amend/Expire) and the immutable trade record are
// the same struct, since every field downstream needs is already present
// on one event.
type BookLog struct {
	SequenceID uint64
	TradeID    uint64
	Type       LogType
	Symbol     string

	Side  coretypes.Side
	Price coretypes.Price
	Qty   coretypes.Qty

	OldPrice coretypes.Price
	OldQty   coretypes.Qty

	OrderID   string
	Owner     string
	OrderType coretypes.OrderType

	// Match-only fields. MakerOrderID/MakerOwner always identify the real
	// resting order, never a synthetic placeholder.
	MakerOrderID string
	MakerOwner   string
	TakerFee     coretypes.Price
	MakerFee     coretypes.Price

	RejectReason coretypes.RejectReason

	CreatedAt time.Time
}

// Trade is the immutable record derived from a LogMatch event: a
// read-only projection over BookLog kept for callers that only want the
// trade tape, not the full event union.
type Trade struct {
	Symbol      string
	BuyOrderID  string
	SellOrderID string
	Price       coretypes.Price
	Qty         coretypes.Qty
	MakerSide   coretypes.Side
	MakerFee    coretypes.Price
	TakerFee    coretypes.Price
	SequenceID  uint64
	TradeID     uint64
	Timestamp   time.Time
}

// AsTrade projects a LogMatch BookLog into a Trade. Only meaningful for
// match events; takerSide is the side carried on the log.
func (l *BookLog) AsTrade(takerSide coretypes.Side) Trade {
	buyID, sellID := l.OrderID, l.MakerOrderID
	if takerSide == coretypes.Sell {
		buyID, sellID = l.MakerOrderID, l.OrderID
	}
	return Trade{
		Symbol:      l.Symbol,
		BuyOrderID:  buyID,
		SellOrderID: sellID,
		Price:       l.Price,
		Qty:         l.Qty,
		MakerSide:   takerSide.Opposite(),
		MakerFee:    l.MakerFee,
		TakerFee:    l.TakerFee,
		SequenceID:  l.SequenceID,
		TradeID:     l.TradeID,
		Timestamp:   l.CreatedAt,
	}
}

var bookLogPool = sync.Pool{
	New: func() any { return new(BookLog) },
}

func acquireLog() *BookLog {
	return bookLogPool.Get().(*BookLog)
}

// releaseLog resets and returns a log to the pool. Sink implementations
// that need the data beyond the call to Publish must clone it first.
func releaseLog(l *BookLog) {
	*l = BookLog{}
	bookLogPool.Put(l)
}

// Clone returns a value copy safe to retain past the Publish call.
func (l *BookLog) Clone() *BookLog {
	cp := new(BookLog)
	*cp = *l
	return cp
}

// Sink is where a Book publishes every event it produces. Matching must
// never block on a consumer; implementations are expected to either
// process synchronously and cheaply, or hand off to a queue of their own
// and return immediately.
type Sink interface {
	Publish(logs ...*BookLog)
}

// MemorySink stores logs in memory. Useful for tests and for the
// in-process AggregatedBook rebuild path.
type MemorySink struct {
	mu   sync.RWMutex
	logs []*BookLog
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Publish(logs ...*BookLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range logs {
		m.logs = append(m.logs, l.Clone())
	}
}

func (m *MemorySink) Logs() []*BookLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*BookLog, len(m.logs))
	copy(out, m.logs)
	return out
}

func (m *MemorySink) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.logs)
}

// DiscardSink drops every event. Useful for benchmarking the matching
// core without publication overhead.
type DiscardSink struct{}

func (DiscardSink) Publish(logs ...*BookLog) {}
