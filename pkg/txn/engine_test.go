package txn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Seed scenario 1 (spec.md §8): a fresh commit is visible to a
// transaction allocated afterward, truncated to the caller's buffer.
func TestSeed1_CommitThenLookupTruncates(t *testing.T) {
	e := NewEngine(nil)

	t1, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Insert(t1, []byte("A"), []byte{0x64, 0, 0, 0, 0, 0, 0, 0}))
	require.NoError(t, e.Commit(t1))

	t2, err := e.Begin()
	require.NoError(t, err)
	buf := make([]byte, 8)
	n, err := e.Lookup(t2, []byte("A"), buf)
	require.NoError(t, err)
	require.Equal(t, 8, n, "truncation law: reports min(buflen, stored_len), here stored_len=8 = buflen=8")
	require.Equal(t, byte(0x64), buf[0])
}

// Seed scenario 2: two transactions with the same read snapshot write the
// same key; only the first to commit wins, the second sees ConflictRetry.
func TestSeed2_AtMostOneWriteWins(t *testing.T) {
	e := NewEngine(nil)

	t1, _ := e.Begin()
	e.Insert(t1, []byte("A"), []byte{0x01})
	require.NoError(t, e.Commit(t1))

	t2, _ := e.Begin()
	t3, _ := e.Begin()

	e.Insert(t2, []byte("A"), []byte{0x02})
	require.NoError(t, e.Commit(t2))

	e.Insert(t3, []byte("A"), []byte{0x03})
	err := e.Commit(t3)
	require.ErrorIs(t, err, ErrConflict)
}

// Seed scenario 3: delete followed by commit makes the key resolve to
// NotFound for a later transaction.
func TestSeed3_DeleteThenLookupNotFound(t *testing.T) {
	e := NewEngine(nil)

	t1, _ := e.Begin()
	e.Insert(t1, []byte("A"), []byte{0x01})
	require.NoError(t, e.Commit(t1))

	t2, _ := e.Begin()
	err := e.Delete(t2, []byte("A"))
	require.NoError(t, err, "key was present, so delete does not report NotFound")
	require.NoError(t, e.Commit(t2))

	t3, _ := e.Begin()
	_, err = e.Lookup(t3, []byte("A"), make([]byte, 8))
	require.Error(t, err)
}

// Seed scenario 4: a transaction that pinned its read snapshot before a
// concurrent commit must not observe that commit (snapshot isolation).
func TestSeed4_SnapshotIsolationAcrossConcurrentCommit(t *testing.T) {
	e := NewEngine(nil)

	t1, _ := e.Begin()
	e.Insert(t1, []byte("A"), []byte{0x01})
	require.NoError(t, e.Commit(t1))

	t2, err := e.Begin() // pins read snapshot R
	require.NoError(t, err)

	t3, _ := e.Begin()
	e.Insert(t3, []byte("A"), []byte{0x02})
	require.NoError(t, e.Commit(t3))

	buf := make([]byte, 8)
	n, err := e.Lookup(t2, []byte("A"), buf)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, buf[:n], "t2 read at a snapshot minted before t3's commit attached")
}

func TestCommit_EmptyWriteBufferDiscardsWithoutConflictCheck(t *testing.T) {
	e := NewEngine(nil)

	t1, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, e.Commit(t1), "an empty write buffer commits as a no-op discard")
}

func TestCommit_ConflictCleansUpFully(t *testing.T) {
	e := NewEngine(nil)

	t1, _ := e.Begin()
	e.Insert(t1, []byte("A"), []byte{0x01})
	require.NoError(t, e.Commit(t1))

	loser, _ := e.Begin()
	winner, _ := e.Begin()

	e.Insert(winner, []byte("A"), []byte{0x02})
	require.NoError(t, e.Commit(winner))

	e.Insert(loser, []byte("A"), []byte{0x03})
	err := e.Commit(loser)
	require.ErrorIs(t, err, ErrConflict)
	require.False(t, loser.IsCommitted())
	require.Nil(t, loser.readSnapshot, "a conflicting commit releases and clears the read snapshot")
}

func TestInsert_RejectsOversizedKeyOrValue(t *testing.T) {
	e := NewEngine(nil)
	tx, _ := e.Begin()

	require.ErrorIs(t, e.Insert(tx, make([]byte, MaxKeyLen+1), []byte("v")), ErrTooLarge)
	require.ErrorIs(t, e.Insert(tx, []byte("k"), make([]byte, MaxValueLen+1)), ErrTooLarge)
}

func TestAbort_ReleasesReadSnapshotAndDiscardsWrites(t *testing.T) {
	e := NewEngine(nil)

	t1, _ := e.Begin()
	e.Insert(t1, []byte("A"), []byte{0x01})
	e.Abort(t1)
	require.Nil(t, t1.readSnapshot, "abort releases and clears the read snapshot")

	// t1's write was unlinked from the active chain and never promoted, but
	// the key itself stays in the index (keys are never removed), so a
	// later delete finds it and does not report store.ErrNotFound.
	t2, _ := e.Begin()
	err := e.Delete(t2, []byte("A"))
	require.NoError(t, err)
}
