package harvest

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDedupSet_MarkIfNew(t *testing.T) {
	t.Parallel()

	d := NewDedupSet()
	require.True(t, d.MarkIfNew("a"))
	require.False(t, d.MarkIfNew("a"))
	require.False(t, d.MarkIfNew(""))
	require.True(t, d.Contains("a"))
	require.False(t, d.Contains("b"))
	require.Equal(t, 1, d.Len())
}

func TestDedupSet_ConcurrentClaimsAreExclusive(t *testing.T) {
	t.Parallel()

	d := NewDedupSet()
	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if d.MarkIfNew(fmt.Sprintf("id-%d", i%5)) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	require.EqualValues(t, 5, wins.Load())
}

func TestRecordBudget_ReserveCommitRelease(t *testing.T) {
	t.Parallel()

	b := newRecordBudget(2)
	require.True(t, b.reserve())
	require.True(t, b.reserve())
	b.release()
	require.True(t, b.reserve())
	b.commit()
	b.commit()
	require.True(t, b.exhausted())
	require.Equal(t, 2, b.count())
	require.False(t, b.reserve())
}

func TestRecordBudget_BlockedReserveWakesOnRelease(t *testing.T) {
	t.Parallel()

	b := newRecordBudget(1)
	require.True(t, b.reserve())

	got := make(chan bool)
	go func() { got <- b.reserve() }()
	b.release()
	require.True(t, <-got)
}

func TestRecordBudget_BlockedReserveFailsOnExhaustion(t *testing.T) {
	t.Parallel()

	b := newRecordBudget(1)
	require.True(t, b.reserve())

	got := make(chan bool)
	go func() { got <- b.reserve() }()
	b.commit()
	require.False(t, <-got)
}
