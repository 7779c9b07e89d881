// Package snapshot maintains the chain of committed-state snapshots that
// backs the store's snapshot-isolation reads. A snapshot is an
// immutable-from-the-outside, reference-counted node in a singly linked
// chain ordered by a monotonically increasing id; it collapses into its
// parent once nothing references it any longer.
package snapshot

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrOutOfMemory is returned when a new snapshot cannot be allocated. Go's
// runtime does not expose allocation failure the way the C original's
// calloc does, so this is reserved for the API shape rather than ever
// actually being returned; it documents the one failure mode spec.md
// assigns to snapshot creation.
var ErrOutOfMemory = errors.New("snapshot: out of memory")

// Txn is the subset of transaction state the snapshot manager needs to
// hold onto a committed transaction and later reparent it during
// collapse. pkg/txn's Transaction satisfies this interface; the manager
// never reaches into a transaction's write buffer directly.
type Txn interface {
	// SetWriteSnapshot records the snapshot a transaction's writes are
	// attached to. Attach calls it when the transaction commits; Release
	// calls it again to reparent the transaction when that snapshot
	// collapses into its parent.
	SetWriteSnapshot(s *Snapshot)
	// Purge frees every version whose immediate successor already lives in
	// parent, and reports whether the transaction has any versions left.
	Purge(parent *Snapshot) (hasVersions bool)
}

// Snapshot is a point-in-time view of committed state. It is born with one
// reference held by the manager on behalf of future readers, lives while
// its refcount is positive, and collapses into Parent once the count
// reaches zero.
type Snapshot struct {
	id     uint64
	parent *Snapshot

	mu       sync.Mutex
	refcount int32
	txns     []Txn
}

// ID returns the snapshot's monotonically increasing identifier.
func (s *Snapshot) ID() uint64 { return s.id }

// Parent returns the snapshot this one will collapse into once released,
// or nil for the current write snapshot, which has none yet. Parent.ID()
// > ID() always holds: despite spec.md §3's literal phrasing, tracing the
// create algorithm (and the original C source) shows parent always names
// a strictly newer snapshot, never an older one — see DESIGN.md.
func (s *Snapshot) Parent() *Snapshot { return s.parent }

func (s *Snapshot) addTxn(t Txn) {
	s.mu.Lock()
	s.txns = append(s.txns, t)
	s.mu.Unlock()
}

func (s *Snapshot) takeTxns() []Txn {
	s.mu.Lock()
	txns := s.txns
	s.txns = nil
	s.mu.Unlock()
	return txns
}

func (s *Snapshot) ref() {
	atomic.AddInt32(&s.refcount, 1)
}

// release decrements the refcount and reports whether it reached zero.
func (s *Snapshot) release() bool {
	return atomic.AddInt32(&s.refcount, -1) == 0
}

// Manager owns the live snapshot chain: the snapshot new commits land in
// (currentWrite), the snapshot new readers attach to (currentRead, which
// may be nil meaning "no reader has asked since the last rotation"), the
// monotonic id counter, and head, the oldest snapshot the manager can
// still reach. Every live snapshot hangs off head by following Parent()
// forward; head itself advances whenever the snapshot it names collapses
// (see Release). All four fields are guarded by mu, the snap lock of
// spec.md §5.
type Manager struct {
	mu           sync.Mutex
	currentWrite *Snapshot
	currentRead  *Snapshot
	nextID       uint64
	head         *Snapshot
}

// NewManager creates the manager with a base snapshot already installed as
// the current write snapshot and as head. The base snapshot starts with no
// parent; the first rotation links it forward, and from then on it
// collapses like any other snapshot once its refcount reaches zero.
func NewManager() *Manager {
	base := &Snapshot{id: 1, refcount: 1}
	return &Manager{
		currentWrite: base,
		head:         base,
		nextID:       2,
	}
}

// Create hands out a reference to the current read snapshot, rotating the
// chain forward first if no reader has requested one since the last
// rotation. The returned snapshot must eventually be passed to Release.
func (m *Manager) Create() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentRead == nil {
		// Own creation reference: the manager's hold on its new write
		// target.
		newSnap := &Snapshot{id: m.nextID, refcount: 1}
		m.nextID++

		// The old write snapshot becomes the new read snapshot; the
		// freshly minted snapshot becomes the new write snapshot. The
		// write snapshot is always strictly newer than any snapshot ever
		// handed out to a reader, which is what keeps writer.wr_snap.id
		// vs reader.rd_snap.id comparisons in conflict detection
		// well-defined and monotone.
		oldWrite := m.currentWrite
		oldWrite.parent = newSnap
		newSnap.refcount++ // the parent-link reference held by oldWrite

		m.currentRead = oldWrite
		m.currentWrite = newSnap
	}

	m.currentRead.ref()
	return m.currentRead, nil
}

// Attach records txn as committed into the current write snapshot and
// forces the next Create call to rotate, so no future reader can pin a
// snapshot mid-commit. Setting txn's write snapshot happens inside the
// same critical section that nulls currentRead — mirroring the original
// C snap_add_txn, which sets txn->wr_snap and nulls cur_rd_snap under one
// hold of the snap lock. Without that coupling, a concurrent Create
// (which only takes the snap lock, never the commit lock) could rotate
// and hand a reader the just-attached snapshot before the committing
// goroutine gets around to setting txn's write snapshot; that reader's
// Lookup would then see the freshly promoted version with
// owner.IsCommitted() still false, skip it as mid-commit, and fall back
// to a stale older value. It returns the read snapshot that was current
// before the attach (which may be nil); the caller must Release it,
// which is what drives collapse forward once older readers finish
// dropping their references.
func (m *Manager) Attach(txn Txn) (writeSnap, priorRead *Snapshot) {
	m.mu.Lock()
	writeSnap = m.currentWrite
	priorRead = m.currentRead
	m.currentRead = nil
	txn.SetWriteSnapshot(writeSnap)
	m.mu.Unlock()

	writeSnap.addTxn(txn)
	return writeSnap, priorRead
}

// Release drops one reference to s. If that was the last reference, s
// collapses into its parent: every transaction still attached to s is
// purged against the parent (versions dominated by a newer version
// already in the parent are freed) and, if anything survives, spliced
// into the parent's transaction list and reparented onto it. If s was the
// manager's head (the oldest snapshot it can still reach), head advances
// to s's parent, so the live chain stays reachable end to end for Head
// callers like pkg/export. The collapse then recurses (iteratively, via a
// work queue) into the parent's own release. A snapshot with no parent is
// not collapsed; only the current write snapshot lacks a parent, and the
// manager's own reference keeps its count above zero.
func (m *Manager) Release(s *Snapshot) {
	queue := []*Snapshot{s}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if !cur.release() {
			continue
		}

		parent := cur.parent
		if parent == nil {
			continue
		}

		m.mu.Lock()
		if m.head == cur {
			m.head = parent
		}
		m.mu.Unlock()

		txns := cur.takeTxns()
		for _, t := range txns {
			if t.Purge(parent) {
				t.SetWriteSnapshot(parent)
				parent.addTxn(t)
			}
		}

		queue = append(queue, parent)
	}
}

// RefCount reports the snapshot's current reference count. It exists for
// debug tooling and tests; ordinary callers track lifetime via
// Create/Release and never need to read this directly.
func (s *Snapshot) RefCount() int32 { return atomic.LoadInt32(&s.refcount) }

// TxnCount reports how many committed transactions are currently
// attached to this snapshot. Like RefCount, this is for debug tooling and
// tests.
func (s *Snapshot) TxnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txns)
}

// Current returns the manager's current write snapshot without taking a
// reference. It exists for tests and debug tooling that need to inspect
// the live chain; callers must not retain the pointer across a commit.
func (m *Manager) Current() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentWrite
}

// PeekRead returns the manager's current read snapshot (possibly nil)
// without taking a reference. Like Current, it is for tests and debug
// tooling only.
func (m *Manager) PeekRead() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentRead
}

// Head returns the oldest snapshot the manager can still reach, without
// taking a reference. Following Parent() forward from Head() visits every
// live snapshot in the chain, oldest to newest, ending at Current() — the
// only way to enumerate the whole chain, since parent links run from
// older to newer (see DESIGN.md) and nothing else tracks the tail. Like
// Current and PeekRead, this is for tests and debug tooling
// (pkg/export.Walk) only; callers must not retain the pointer across a
// Release that could collapse it.
func (m *Manager) Head() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.head
}
