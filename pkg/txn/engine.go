// Package txn implements the transaction engine: allocation, the
// insert/delete/lookup facades over the versioned store, and the commit
// protocol that ties conflict detection, version promotion, and snapshot
// attachment together in the order spec.md §4.3 requires.
package txn

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/vaultkv/vaultkv/pkg/snapshot"
	"github.com/vaultkv/vaultkv/pkg/store"
)

// ErrConflict is returned by Commit when the transaction lost the
// optimistic write-write race: some key it wrote has a newer committed
// version than the one this transaction read from. The transaction is
// fully cleaned up (write buffer freed, read snapshot released) by the
// time the caller observes this error; a fresh Begin/replay is the only
// recourse.
var ErrConflict = errors.New("txn: conflict, retry")

// MaxKeyLen and MaxValueLen are the 16-bit length limits spec.md §6
// imposes on key and value bytes.
const (
	MaxKeyLen   = 1<<16 - 1
	MaxValueLen = 1<<16 - 1
)

// ErrTooLarge is returned by Insert when a key or value exceeds the
// 16-bit length the wire-free, in-memory encoding still budgets for.
var ErrTooLarge = errors.New("txn: key or value exceeds 65535 bytes")

// IsolationLevel documents the only isolation level this engine
// implements. The type exists so Config reads naturally and so a future
// caller inspecting Config.Isolation sees a named, self-describing value
// rather than a bare bool, matching the teacher's
// pkg/txn.IsolationLevel enum shape.
type IsolationLevel uint8

// SnapshotIsolation is the only supported level: every transaction reads
// through a pinned snapshot and is optimistically conflict-checked at
// commit. spec.md has no serializable or read-committed mode.
const SnapshotIsolation IsolationLevel = 1

// Config configures an Engine. There is currently nothing to tune beyond
// the isolation level, which is fixed; Config exists so callers and
// future options follow the same Config/DefaultConfig shape as the
// teacher's txn.Options/txn.DefaultOptions.
type Config struct {
	Isolation IsolationLevel
}

// DefaultConfig returns the only supported configuration.
func DefaultConfig() *Config {
	return &Config{Isolation: SnapshotIsolation}
}

// Engine owns one snapshot manager, one versioned store, the commit
// lock serializing conflict-check + promotion + attachment, and its own
// monotonic transaction-id counter. It holds no package-level
// global state; a caller that wants two independent stores constructs two
// Engines.
type Engine struct {
	cfg *Config

	snapshots *snapshot.Manager
	store     *store.Store

	commitLock sync.Mutex
	nextTxnID  uint64
}

// NewEngine constructs an Engine with a fresh snapshot chain and an empty
// versioned store. A nil cfg is replaced with DefaultConfig(), matching
// the teacher's Begin(nil) convention.
func NewEngine(cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Engine{
		cfg:       cfg,
		snapshots: snapshot.NewManager(),
		store:     store.New(),
	}
}

// Begin allocates a transaction: it pins a read snapshot and assigns a
// fresh transaction id. The only failure mode spec.md assigns to
// allocation is OutOfMemory, which Go's runtime does not let this package
// simulate or recover from, so Begin's error return exists for API parity
// with spec.md §6 rather than ever actually firing under normal operation.
func (e *Engine) Begin() (*Transaction, error) {
	readSnap, err := e.snapshots.Create()
	if err != nil {
		return nil, err
	}

	id := atomic.AddUint64(&e.nextTxnID, 1)
	return &Transaction{
		id:           id,
		store:        e.store,
		readSnapshot: readSnap,
	}, nil
}

// Insert buffers a write of value for key under txn. Either may be up to
// MaxKeyLen/MaxValueLen bytes.
func (e *Engine) Insert(txn *Transaction, key, value []byte) error {
	if len(key) > MaxKeyLen || len(value) > MaxValueLen {
		return ErrTooLarge
	}
	e.store.Insert(txn, key, value)
	return nil
}

// Delete buffers a tombstone for key under txn. It returns
// store.ErrNotFound if the key had never been written, but still
// registers the tombstone so it can participate in conflict detection —
// see the Open Question entry in DESIGN.md.
func (e *Engine) Delete(txn *Transaction, key []byte) error {
	if len(key) > MaxKeyLen {
		return ErrTooLarge
	}
	return e.store.Delete(txn, key)
}

// Lookup resolves key for txn under snapshot-isolation visibility rules,
// copying at most len(buf) bytes into buf and returning the number of
// bytes copied. The returned length is the *truncated* length, not the
// stored length — a caller that needs to detect truncation must size buf
// conservatively, per spec.md §6.
func (e *Engine) Lookup(txn *Transaction, key, buf []byte) (int, error) {
	return e.store.Lookup(txn, key, buf)
}

// Commit runs the commit protocol for txn:
//
//  1. If txn's write buffer is empty, the transaction is discarded: its
//     read snapshot is released and Commit returns success without ever
//     taking the commit lock.
//  2. Otherwise, under the commit lock: test for conflict; on conflict,
//     release the lock, free the write buffer, release the read
//     snapshot, and return ErrConflict. On success, promote every write
//     from active to committed *before* attaching the transaction to the
//     current write snapshot — that ordering is load-bearing (spec.md
//     §4.3, §9): attachment is what makes a future reader skip past this
//     transaction's writes when resolving visibility, and if it happened
//     first, a concurrent new reader could pin the rotated snapshot and
//     then observe this transaction's version while it still reads as
//     uncommitted, either spinning forever or falling back to a stale
//     older value.
//  3. After releasing the commit lock, release the snapshot the manager
//     handed back (the prior read snapshot, if any — this is what drives
//     snapshot reclamation forward) and txn's own read snapshot, and
//     clear it.
//
// Commit consumes txn on every terminal outcome: a committed, aborted, or
// discarded transaction must not be reused.
func (e *Engine) Commit(txn *Transaction) error {
	if txn.writeHead == nil {
		e.snapshots.Release(txn.readSnapshot)
		txn.readSnapshot = nil
		return nil
	}

	e.commitLock.Lock()
	if e.store.Conflict(txn, txn.readSnapshot.ID()) {
		e.commitLock.Unlock()

		e.store.Abort(txn)
		e.snapshots.Release(txn.readSnapshot)
		txn.readSnapshot = nil
		return ErrConflict
	}

	e.store.Commit(txn)
	// Attach sets txn.writeSnapshot itself, inside the same snap-lock
	// critical section that nulls the manager's current read pointer —
	// see snapshot.Manager.Attach's doc comment for why that coupling
	// must be atomic.
	_, priorRead := e.snapshots.Attach(txn)
	e.commitLock.Unlock()

	if priorRead != nil {
		e.snapshots.Release(priorRead)
	}
	e.snapshots.Release(txn.readSnapshot)
	txn.readSnapshot = nil
	return nil
}

// SnapshotManager exposes the engine's snapshot manager for debug tooling
// and tests that need to inspect the live chain (pkg/export.Walk). It is
// not part of the transactional API surface.
func (e *Engine) SnapshotManager() *snapshot.Manager { return e.snapshots }

// Abort discards an active transaction without committing it: its
// buffered active versions are freed and its read snapshot released.
// Calling Abort on an already-committed or already-aborted transaction is
// a misuse the caller must avoid; Abort, like Commit, consumes txn.
func (e *Engine) Abort(txn *Transaction) {
	e.store.Abort(txn)
	e.snapshots.Release(txn.readSnapshot)
	txn.readSnapshot = nil
}
