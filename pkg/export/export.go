package export

import (
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/blake2b"

	"github.com/vaultkv/vaultkv/pkg/snapshot"
)

// SnapshotRecord is the msgpack-tagged shape of one snapshot in a dumped
// chain. Field tags are explicit short names, matching the teacher's
// pkg/storage wire-record convention of tagging every exported field
// rather than relying on msgpack's default field-name encoding.
type SnapshotRecord struct {
	ID       uint64 `msgpack:"id"`
	ParentID uint64 `msgpack:"pid"` // 0 means no parent
	RefCount int32  `msgpack:"rc"`
	TxnCount int    `msgpack:"tc"`
}

// Dump is the full exported chain: every snapshot reachable from head by
// following Parent, oldest first, plus which ids are the manager's current
// write and read snapshot.
type Dump struct {
	Snapshots []SnapshotRecord `msgpack:"snapshots"`
	WriteID   uint64           `msgpack:"write_id"`
	ReadID    uint64           `msgpack:"read_id"` // 0 means no current reader
	HasReadID bool             `msgpack:"has_read"`
}

// Walk builds a Dump from a live manager by walking forward from Head()
// (the oldest snapshot the manager can still reach) through Parent links
// to Current(). Parent always names a strictly newer snapshot (see
// DESIGN.md), so this is the only direction that reaches the whole live
// chain — following Parent from Current() alone terminates immediately,
// since the current write snapshot has no parent yet. It takes no
// references and must only be called by a caller that otherwise
// guarantees the chain it walks is not concurrently collapsing out from
// under it (tests and cmd/vaultkv-debug use it against a quiesced
// engine).
func Walk(mgr *snapshot.Manager) Dump {
	var d Dump

	for s := mgr.Head(); s != nil; s = s.Parent() {
		var parentID uint64
		if p := s.Parent(); p != nil {
			parentID = p.ID()
		}
		d.Snapshots = append(d.Snapshots, SnapshotRecord{
			ID:       s.ID(),
			ParentID: parentID,
			RefCount: s.RefCount(),
			TxnCount: s.TxnCount(),
		})
	}

	d.WriteID = mgr.Current().ID()
	if r := mgr.PeekRead(); r != nil {
		d.ReadID = r.ID()
		d.HasReadID = true
	}
	return d
}

// Encode msgpack-encodes dump and writes it to sink at offset 0.
func Encode(sink Sink, dump Dump) error {
	b, err := msgpack.Marshal(dump)
	if err != nil {
		return err
	}
	_, err = sink.WriteAt(b, 0)
	return err
}

// Decode reads sink back into a Dump. It reads the entire sink, so sink
// must hold nothing but a single Encode-d dump.
func Decode(sink Sink) (Dump, error) {
	var dump Dump
	size := sink.Size()
	buf := make([]byte, size)
	if _, err := sink.ReadAt(buf, 0); err != nil {
		return dump, err
	}
	err := msgpack.Unmarshal(buf, &dump)
	return dump, err
}

// Fingerprint returns a blake2b-256 digest of dump's msgpack encoding, so
// two dumps of equivalent chains (same ids, parents, refcounts, txn
// counts, in the same order) can be compared for equality without keeping
// the encoded bytes around.
func Fingerprint(dump Dump) ([32]byte, error) {
	b, err := msgpack.Marshal(dump)
	if err != nil {
		return [32]byte{}, err
	}
	return blake2b.Sum256(b), nil
}
