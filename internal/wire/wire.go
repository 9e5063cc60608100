// Package wire defines the versioned binary envelope used for persisted
// engine state: cache snapshots and offline mutation queues. The format is
// self-describing (magic + version + kind) so a reader can reject foreign or
// truncated blobs before touching any payload bytes.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version      byte = 1
	kindSnapshot byte = 1
	kindQueue    byte = 2
)

var (
	ErrCorrupt = errors.New("queryflow: corrupt blob")
	magic4     = [...]byte{'Q', 'F', 'L', 'W'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// SnapshotItem is one cache entry inside a persisted snapshot.
// UpdatedAt is UnixNano so restored entries keep their freshness clock.
type SnapshotItem struct {
	Key       string
	UpdatedAt int64
	Payload   []byte
}

// QueueItem is one pending offline mutation inside a persisted queue blob.
type QueueItem struct {
	TypeID     string
	Priority   int32
	Attempts   uint32
	EnqueuedAt int64
	Variables  []byte
}

// Snapshot:
//
//	magic(4) | ver(1) | kind(1=snapshot) | n(u32 be)
//	keyLen(u16 be) | key | updatedAt(i64 be) | vlen(u32 be) | payload(vlen)  * n
func EncodeSnapshot(items []SnapshotItem) []byte {
	var buf bytes.Buffer
	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindSnapshot)
	writeU32(&buf, uint32(len(items)))
	for _, it := range items {
		writeStr16(&buf, it.Key)
		writeU64(&buf, uint64(it.UpdatedAt))
		writeU32(&buf, uint32(len(it.Payload)))
		buf.Write(it.Payload)
	}
	return buf.Bytes()
}

func DecodeSnapshot(b []byte) ([]SnapshotItem, error) {
	r, n, err := header(b, kindSnapshot)
	if err != nil {
		return nil, err
	}
	items := make([]SnapshotItem, 0, n)
	for i := 0; i < n; i++ {
		key, err := r.str16()
		if err != nil {
			return nil, err
		}
		at, err := r.u64()
		if err != nil {
			return nil, err
		}
		payload, err := r.bytes32()
		if err != nil {
			return nil, err
		}
		items = append(items, SnapshotItem{Key: key, UpdatedAt: int64(at), Payload: payload})
	}
	return items, nil
}

// Queue:
//
//	magic(4) | ver(1) | kind(2=queue) | n(u32 be)
//	idLen(u16 be) | typeID | priority(i32 be) | attempts(u32 be) |
//	enqueuedAt(i64 be) | vlen(u32 be) | variables(vlen)  * n
func EncodeQueue(items []QueueItem) []byte {
	var buf bytes.Buffer
	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindQueue)
	writeU32(&buf, uint32(len(items)))
	for _, it := range items {
		writeStr16(&buf, it.TypeID)
		writeU32(&buf, uint32(it.Priority))
		writeU32(&buf, it.Attempts)
		writeU64(&buf, uint64(it.EnqueuedAt))
		writeU32(&buf, uint32(len(it.Variables)))
		buf.Write(it.Variables)
	}
	return buf.Bytes()
}

func DecodeQueue(b []byte) ([]QueueItem, error) {
	r, n, err := header(b, kindQueue)
	if err != nil {
		return nil, err
	}
	items := make([]QueueItem, 0, n)
	for i := 0; i < n; i++ {
		id, err := r.str16()
		if err != nil {
			return nil, err
		}
		prio, err := r.u32()
		if err != nil {
			return nil, err
		}
		attempts, err := r.u32()
		if err != nil {
			return nil, err
		}
		at, err := r.u64()
		if err != nil {
			return nil, err
		}
		vars, err := r.bytes32()
		if err != nil {
			return nil, err
		}
		items = append(items, QueueItem{
			TypeID:     id,
			Priority:   int32(prio),
			Attempts:   attempts,
			EnqueuedAt: int64(at),
			Variables:  vars,
		})
	}
	return items, nil
}

func header(b []byte, kind byte) (*reader, int, error) {
	const hdr = 4 + 1 + 1 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kind {
		return nil, 0, ErrCorrupt
	}
	n := int(binary.BigEndian.Uint32(b[6:10]))
	return &reader{b: b, off: hdr}, n, nil
}

type reader struct {
	b   []byte
	off int
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || n > len(r.b)-r.off { // overflow-safe bound check
		return nil, ErrCorrupt
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *reader) str16() (string, error) {
	lb, err := r.take(2)
	if err != nil {
		return "", err
	}
	b, err := r.take(int(binary.BigEndian.Uint16(lb)))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) bytes32() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	return r.take(int(n))
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var u [4]byte
	binary.BigEndian.PutUint32(u[:], v)
	buf.Write(u[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var u [8]byte
	binary.BigEndian.PutUint64(u[:], v)
	buf.Write(u[:])
}

func writeStr16(buf *bytes.Buffer, s string) {
	var u [2]byte
	binary.BigEndian.PutUint16(u[:], uint16(len(s)))
	buf.Write(u[:])
	buf.WriteString(s)
}
