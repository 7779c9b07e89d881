package txn

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// Seed scenario 5 (spec.md §8, scaled down): N goroutines each own a
// disjoint key with an initial balance and repeatedly transfer a portion
// to a peer in a single transaction, retrying on ErrConflict. The sum
// across all keys must be invariant once every goroutine finishes.
func TestSeed5_ConcurrentTransfersPreserveTotal(t *testing.T) {
	e := NewEngine(nil)

	const (
		accounts           = 10
		startingAmount     = 10000
		roundsPerGoroutine = 200
	)

	keys := make([][]byte, accounts)
	for i := range keys {
		keys[i] = []byte{'A' + byte(i)}
	}

	seed, _ := e.Begin()
	for _, k := range keys {
		require.NoError(t, seed.storeInsertU32(e, k, startingAmount))
	}
	require.NoError(t, e.Commit(seed))

	var wg sync.WaitGroup
	for i := 0; i < accounts; i++ {
		wg.Add(1)
		go func(from int) {
			defer wg.Done()
			to := (from + 1) % accounts

			for r := 0; r < roundsPerGoroutine; r++ {
				for {
					tx, err := e.Begin()
					require.NoError(t, err)

					fromBuf := make([]byte, 4)
					n, err := e.Lookup(tx, keys[from], fromBuf)
					require.NoError(t, err)
					fromBal := decodeU32(fromBuf[:n])

					toBuf := make([]byte, 4)
					n, err = e.Lookup(tx, keys[to], toBuf)
					require.NoError(t, err)
					toBal := decodeU32(toBuf[:n])

					amount := fromBal / 10
					require.NoError(t, tx.storeInsertU32(e, keys[from], fromBal-amount))
					require.NoError(t, tx.storeInsertU32(e, keys[to], toBal+amount))

					err = e.Commit(tx)
					if err == nil {
						break
					}
					require.ErrorIs(t, err, ErrConflict)
				}
			}
		}(i)
	}
	wg.Wait()

	check, err := e.Begin()
	require.NoError(t, err)
	total := 0
	for _, k := range keys {
		buf := make([]byte, 4)
		n, err := e.Lookup(check, k, buf)
		require.NoError(t, err)
		total += int(decodeU32(buf[:n]))
	}
	e.Abort(check)
	require.Equal(t, accounts*startingAmount, total)
}

// storeInsertU32 and decodeU32 are tiny local helpers: the versioned
// store deals in opaque bytes, so this test encodes a balance as a
// 4-byte little-endian integer the way a real caller would.
func (tx *Transaction) storeInsertU32(e *Engine, key []byte, v int) error {
	b := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	return e.Insert(tx, key, b)
}

func decodeU32(b []byte) int {
	var v int
	for i, c := range b {
		v |= int(c) << (8 * i)
	}
	return v
}
