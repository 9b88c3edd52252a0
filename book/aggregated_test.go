package book

import (
	"testing"

	"github.com/lattice-exchange/matchcore/coretypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replayAll feeds every published event through the aggregated view, the
// way a downstream consumer would off a queue.
func replayAll(t *testing.T, ab *AggregatedBook, sink *MemorySink) {
	t.Helper()
	for _, l := range sink.Logs() {
		require.NoError(t, ab.Replay(l))
	}
}

func TestAggregatedBook_TracksLiveDepthThroughTrades(t *testing.T) {
	b, sink := newTestBook(t, testSymbol(), fundedLedger(t, "alice", "bob", "carol"))

	_, rej := b.Submit(limitOrder("alice", coretypes.Sell, "101", "2"))
	require.Nil(t, rej)
	_, rej = b.Submit(limitOrder("carol", coretypes.Sell, "102", "1"))
	require.Nil(t, rej)
	_, rej = b.Submit(limitOrder("bob", coretypes.Buy, "101", "0.5"))
	require.Nil(t, rej)

	ab := NewAggregatedBook()
	replayAll(t, ab, sink)

	assert.True(t, ab.Depth(coretypes.Sell, coretypes.MustPrice("101")).Equal(coretypes.MustPrice("1.5")),
		"the partial fill must have come off the replayed ask depth")
	assert.True(t, ab.Depth(coretypes.Sell, coretypes.MustPrice("102")).Equal(coretypes.MustPrice("1")))
	assert.True(t, ab.Depth(coretypes.Buy, coretypes.MustPrice("101")).IsZero(), "the fully filled taker left nothing on the bid")
}

func TestAggregatedBook_MatchesDepthSnapshotAfterCancels(t *testing.T) {
	b, sink := newTestBook(t, testSymbol(), fundedLedger(t, "alice"))

	o1, rej := b.Submit(limitOrder("alice", coretypes.Buy, "99", "1"))
	require.Nil(t, rej)
	_, rej = b.Submit(limitOrder("alice", coretypes.Buy, "98", "2"))
	require.Nil(t, rej)
	_, rej = b.Cancel(o1.ID, "alice")
	require.Nil(t, rej)

	ab := NewAggregatedBook()
	replayAll(t, ab, sink)

	live := b.Depth(10)
	require.Len(t, live.Bids, 1)
	top := ab.TopN(coretypes.Buy, 10)
	require.Len(t, top, 1)
	assert.True(t, top[0].Price.Equal(live.Bids[0].Price))
	assert.True(t, top[0].Qty.Equal(live.Bids[0].Qty))
}

func TestAggregatedBook_SequenceGapIsReported(t *testing.T) {
	ab := NewAggregatedBook()
	require.NoError(t, ab.Replay(&BookLog{SequenceID: 1, Type: LogOpen, Side: coretypes.Buy,
		Price: coretypes.MustPrice("100"), Qty: coretypes.MustPrice("1")}))
	err := ab.Replay(&BookLog{SequenceID: 5, Type: LogOpen, Side: coretypes.Buy,
		Price: coretypes.MustPrice("100"), Qty: coretypes.MustPrice("1")})
	require.Error(t, err)
}

func TestAggregatedBook_LoadSnapshotSeedsDepth(t *testing.T) {
	b, _ := newTestBook(t, testSymbol(), fundedLedger(t, "alice"))

	_, rej := b.Submit(limitOrder("alice", coretypes.Buy, "99", "1"))
	require.Nil(t, rej)
	snap := b.Snapshot()

	ab := NewAggregatedBook()
	ab.LoadSnapshot(snap)
	assert.True(t, ab.Depth(coretypes.Buy, coretypes.MustPrice("99")).Equal(coretypes.MustPrice("1")))
	assert.Equal(t, snap.SeqID, ab.SequenceID())

	ab.OnRebuild()
	assert.True(t, ab.Depth(coretypes.Buy, coretypes.MustPrice("99")).IsZero())
	assert.Equal(t, uint64(0), ab.SequenceID())
}
