// Package export provides a debug/diagnostic dump of a live snapshot
// chain: a msgpack-encoded snapshot of the manager's current read/write
// pointers plus a fingerprint to compare dumps across runs. It is not a
// wire protocol or an on-disk format for the store itself — spec.md §6 is
// explicit that the library has neither — it is a standalone export used
// by cmd/vaultkv-debug and by tests that want to assert two dumps of an
// equivalent chain are byte-identical.
package export

import (
	"errors"
	"sync"
)

// ErrInvalidOffset and ErrSinkClosed mirror the teacher's
// pkg/storage/backend.go error set, which Sink is adapted from.
var (
	ErrInvalidOffset = errors.New("export: invalid offset")
	ErrSinkClosed    = errors.New("export: sink is closed")
)

// Sink is an addressable byte store a dump is encoded into. It is the
// same ReadAt/WriteAt/Size/Close shape as the teacher's
// pkg/storage.Backend, generalized from a fixed-page-offset disk/memory
// backend for a SQL engine down to a plain growable byte buffer — the
// seam (somewhere to put exported bytes that a test can later read back)
// is the part worth keeping, not the page semantics.
type Sink interface {
	ReadAt(buf []byte, offset int64) (int, error)
	WriteAt(buf []byte, offset int64) (int, error)
	Size() int64
	Close() error
}

// MemorySink is an in-memory Sink, adapted from
// pkg/storage/memory.go's MemoryBackend.
type MemorySink struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

// NewMemorySink constructs an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// ReadAt reads len(buf) bytes starting at offset, short-reading if fewer
// remain.
func (m *MemorySink) ReadAt(buf []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, ErrInvalidOffset
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrSinkClosed
	}
	if offset >= int64(len(m.data)) {
		return 0, nil
	}
	return copy(buf, m.data[offset:]), nil
}

// WriteAt writes buf at offset, growing the backing slice as needed.
func (m *MemorySink) WriteAt(buf []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, ErrInvalidOffset
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrSinkClosed
	}

	end := offset + int64(len(buf))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[offset:], buf)
	return len(buf), nil
}

// Size returns the current length of the sink's backing buffer.
func (m *MemorySink) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.data))
}

// Bytes returns a copy of everything written so far.
func (m *MemorySink) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// Close releases the sink's backing buffer.
func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	m.closed = true
	return nil
}
