package dispatch

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/resonance/canon"
)

func TestLedgerConcurrentAppends(t *testing.T) {
	const writers, perWriter = 10, 50

	l := NewLedger()
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				l.Append(fmt.Sprintf("writer-%02d", w), []byte(fmt.Sprintf("%d/%d", w, i)))
			}
		}()
	}
	wg.Wait()

	entries := l.Entries()
	require.Len(t, entries, writers*perWriter)
	perReplica := make(map[string]int)
	for i, e := range entries {
		require.Equal(t, uint64(i), e.Index)
		require.Equal(t, canon.Sum(e.Payload), e.PayloadDigest)
		perReplica[e.ReplicaID]++
	}
	require.Len(t, perReplica, writers)
	for id, n := range perReplica {
		require.Equal(t, perWriter, n, id)
	}
}

func TestLedgerEntriesIsACopy(t *testing.T) {
	l := NewLedger()
	payload := []byte("abc")
	e := l.Append("a-001", payload)
	require.Zero(t, e.Index)

	payload[0] = 'x'
	got := l.Entries()
	require.Equal(t, []byte("abc"), got[0].Payload)

	got[0].ReplicaID = "mutated"
	require.Equal(t, "a-001", l.Entries()[0].ReplicaID)
	require.Equal(t, 1, l.Len())
}
