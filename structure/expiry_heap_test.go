package structure

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiryHeap_PopDueReturnsEarliestFirst(t *testing.T) {
	h := NewExpiryHeap(8)
	h.Push("c", 300)
	h.Push("a", 100)
	h.Push("b", 200)

	min, ok := h.PeekMin()
	require.True(t, ok)
	assert.Equal(t, int64(100), min)

	assert.Equal(t, []string{"a", "b"}, h.PopDue(250))
	assert.Equal(t, 1, h.Len())
	assert.Equal(t, []string{"c"}, h.PopDue(300))
	assert.Equal(t, 0, h.Len())
	assert.Nil(t, h.PopDue(1000))
}

func TestExpiryHeap_SameInstantPopsInInsertionOrder(t *testing.T) {
	h := NewExpiryHeap(8)
	h.Push("first", 100)
	h.Push("second", 100)
	h.Push("third", 100)

	assert.Equal(t, []string{"first", "second", "third"}, h.PopDue(100))
}

func TestExpiryHeap_RemoveUnlinksById(t *testing.T) {
	h := NewExpiryHeap(8)
	h.Push("a", 100)
	h.Push("b", 200)
	h.Push("c", 300)

	assert.True(t, h.Remove("b"))
	assert.False(t, h.Remove("b"))
	assert.False(t, h.Remove("never-added"))

	assert.Equal(t, []string{"a", "c"}, h.PopDue(300))
}

func TestExpiryHeap_PushExistingIdReschedules(t *testing.T) {
	h := NewExpiryHeap(8)
	h.Push("a", 100)
	h.Push("a", 500)

	assert.Equal(t, 1, h.Len())
	assert.Nil(t, h.PopDue(100))
	assert.Equal(t, []string{"a"}, h.PopDue(500))
}

func TestExpiryHeap_RandomizedAgainstSortOracle(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	h := NewExpiryHeap(64)
	oracle := make(map[string]int64)

	for i := 0; i < 2000; i++ {
		id := fmt.Sprintf("o%d", rng.Intn(500))
		switch rng.Intn(3) {
		case 0, 1:
			at := int64(rng.Intn(10000))
			h.Push(id, at)
			oracle[id] = at
		case 2:
			_, present := oracle[id]
			assert.Equal(t, present, h.Remove(id))
			delete(oracle, id)
		}
	}
	require.Equal(t, len(oracle), h.Len())

	var want []string
	for id := range oracle {
		want = append(want, id)
	}
	sort.Slice(want, func(i, j int) bool {
		if oracle[want[i]] != oracle[want[j]] {
			return oracle[want[i]] < oracle[want[j]]
		}
		return want[i] < want[j]
	})

	got := h.PopDue(1 << 60)
	require.Len(t, got, len(want))
	// Instants must come out non-decreasing; ids at distinct instants must
	// match the oracle exactly.
	for i := 1; i < len(got); i++ {
		assert.True(t, oracle[got[i-1]] <= oracle[got[i]], "pop order must be sorted by instant")
	}
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)
}
