package txn

import (
	"github.com/vaultkv/vaultkv/pkg/snapshot"
	"github.com/vaultkv/vaultkv/pkg/store"
)

// Transaction is a single interactive transaction: allocate, read/write
// through it, then commit or abort. It is owned exclusively by the
// goroutine that allocated it while active — spec.md §5 is explicit that
// "a transaction's own write buffer is owned solely by its thread until
// commit; no locking is needed" — so, unlike the teacher's
// *txn.Transaction, this type carries no mutex of its own; every field
// that could be touched by another goroutine (during snapshot collapse,
// after commit) is only ever mutated from inside Store or
// snapshot.Manager calls that already hold the relevant lock.
type Transaction struct {
	id uint64

	store *store.Store

	// readSnapshot is non-nil iff the transaction has not yet committed
	// (cleared in Commit). writeSnapshot is non-nil iff the transaction
	// is committed, possibly reparented onto an ancestor after the
	// snapshot it first committed into collapses.
	readSnapshot  *snapshot.Snapshot
	writeSnapshot *snapshot.Snapshot

	writeHead *store.Version
}

// ID returns the transaction's own id, assigned from its Engine's
// monotonic counter distinct from the snapshot id namespace.
func (t *Transaction) ID() uint64 { return t.id }

// ReadSnapshotID returns the snapshot id this transaction reads through.
// Only valid while the transaction is active.
func (t *Transaction) ReadSnapshotID() uint64 { return t.readSnapshot.ID() }

// IsCommitted reports whether this transaction has a write snapshot yet.
func (t *Transaction) IsCommitted() bool { return t.writeSnapshot != nil }

// WriteSnapshotID returns the id of the snapshot this transaction's
// writes are attached to. Only valid once IsCommitted is true.
func (t *Transaction) WriteSnapshotID() uint64 { return t.writeSnapshot.ID() }

// WriteHead and SetWriteHead satisfy store.Txn: they expose the
// transaction's write buffer (an intrusive LIFO list of *store.Version)
// to the versioned store, which is the only package that ever threads
// versions onto or off of it.
func (t *Transaction) WriteHead() *store.Version     { return t.writeHead }
func (t *Transaction) SetWriteHead(v *store.Version) { t.writeHead = v }

// SetWriteSnapshot satisfies snapshot.Txn: it records the snapshot the
// transaction commits into (called by snapshot.Manager.Attach), and
// reparents the transaction when that snapshot later collapses.
func (t *Transaction) SetWriteSnapshot(s *snapshot.Snapshot) { t.writeSnapshot = s }

// Purge satisfies snapshot.Txn: it is called once per transaction
// attached to a snapshot that is collapsing into parent, and reports
// whether any of the transaction's versions survived (if none did, the
// snapshot manager drops the transaction rather than splicing it into
// parent's transaction list).
func (t *Transaction) Purge(parent *snapshot.Snapshot) bool {
	return t.store.Purge(t, parent.ID())
}
