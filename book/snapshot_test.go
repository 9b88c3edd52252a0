package book

import (
	"testing"

	"github.com/lattice-exchange/matchcore/coretypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_RestoreRebuildsLaddersAndPriority(t *testing.T) {
	l := fundedLedger(t, "alice", "bob")
	b, _ := newTestBook(t, testSymbol(), l)

	first, rej := b.Submit(limitOrder("alice", coretypes.Sell, "100", "1"))
	require.Nil(t, rej)
	_, rej = b.Submit(limitOrder("bob", coretypes.Sell, "100", "1"))
	require.Nil(t, rej)
	_, rej = b.Submit(limitOrder("alice", coretypes.Buy, "99", "2"))
	require.Nil(t, rej)

	snap := b.Snapshot()
	assert.Equal(t, SnapshotSchemaVersion, snap.SchemaVersion)
	require.Len(t, snap.Asks, 2)
	assert.Equal(t, first.ID, snap.Asks[0].ID, "time priority within the level must survive the snapshot")

	restored := NewBook(testSymbol(), NewMemorySink(), l, nil, 1024, 512)
	restored.Restore(snap)
	restored.Start()
	t.Cleanup(func() { restored.r.stop() })

	depth := restored.Depth(10)
	require.Len(t, depth.Asks, 1)
	assert.True(t, depth.Asks[0].Qty.Equal(coretypes.MustPrice("2")))
	require.Len(t, depth.Bids, 1)
	assert.True(t, depth.Bids[0].Price.Equal(coretypes.MustPrice("99")))

	// The restored book keeps matching where the old one left off.
	taker, rej := restored.Submit(limitOrder("bob", coretypes.Buy, "100", "1"))
	require.Nil(t, rej)
	assert.Equal(t, coretypes.StatusFilled, taker.Status)
}

func TestBookLog_AsTradeOrientsBuyAndSell(t *testing.T) {
	l := &BookLog{
		Type:         LogMatch,
		Symbol:       "BTC-USD",
		Side:         coretypes.Sell, // taker sold
		Price:        coretypes.MustPrice("100"),
		Qty:          coretypes.MustPrice("1"),
		OrderID:      "taker-id",
		MakerOrderID: "maker-id",
		SequenceID:   7,
		TradeID:      3,
	}
	trade := l.AsTrade(l.Side)
	assert.Equal(t, "maker-id", trade.BuyOrderID, "the maker bought from the selling taker")
	assert.Equal(t, "taker-id", trade.SellOrderID)
	assert.Equal(t, coretypes.Buy, trade.MakerSide)
	assert.Equal(t, uint64(3), trade.TradeID)
}
