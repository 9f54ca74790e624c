package wire

import (
	"bytes"
	"fmt"
)

// PeerActionTag is the one-byte discriminant of a PeerAction, in wire
// declaration order.
type PeerActionTag byte

const (
	PeerTagSerializedAction PeerActionTag = iota
	PeerTagInitIndex
	PeerTagInsertIndex
	PeerTagRemoveIndex
	PeerTagUpdateIndex
)

// PeerAction is the tagged union carried on host<->host sockets: either a
// forwarded, already-framed client Request, or an index mutation.
type PeerAction interface {
	PeerTag() PeerActionTag
	encode(w *Writer)
}

// SerializedAction carries an opaque, already-framed client Request to
// re-execute on the owning host.
type SerializedAction struct {
	Bytes []byte
}

func (SerializedAction) PeerTag() PeerActionTag { return PeerTagSerializedAction }
func (a SerializedAction) encode(w *Writer)     { w.WriteBytes(a.Bytes) }

// InitIndex replaces the receiver's FileIndex replica wholesale.
type InitIndex struct {
	Entries map[string]uint32
}

func (InitIndex) PeerTag() PeerActionTag { return PeerTagInitIndex }
func (a InitIndex) encode(w *Writer)     { encodeIndexMap(w, a.Entries) }

// InsertIndex adds entries to the receiver's FileIndex replica.
type InsertIndex struct {
	Entries map[string]uint32
}

func (InsertIndex) PeerTag() PeerActionTag { return PeerTagInsertIndex }
func (a InsertIndex) encode(w *Writer)     { encodeIndexMap(w, a.Entries) }

// RemoveIndex deletes paths from the receiver's FileIndex replica.
type RemoveIndex struct {
	Paths []string
}

func (RemoveIndex) PeerTag() PeerActionTag { return PeerTagRemoveIndex }
func (a RemoveIndex) encode(w *Writer) {
	w.WriteUvarint(uint64(len(a.Paths)))
	for _, p := range a.Paths {
		w.WriteString(p)
	}
}

// UpdateIndex atomically replaces the key for a rename, preserving owner.
type UpdateIndex struct {
	Renames map[string]string // old path -> new path
}

func (UpdateIndex) PeerTag() PeerActionTag { return PeerTagUpdateIndex }
func (a UpdateIndex) encode(w *Writer) {
	w.WriteUvarint(uint64(len(a.Renames)))
	for old, new := range a.Renames {
		w.WriteString(old)
		w.WriteString(new)
	}
}

func encodeIndexMap(w *Writer, m map[string]uint32) {
	w.WriteUvarint(uint64(len(m)))
	for path, host := range m {
		w.WriteString(path)
		w.WriteUvarint(uint64(host))
	}
}

func decodeIndexMap(r *Reader) (map[string]uint32, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	m := make(map[string]uint32, n)
	for i := uint64(0); i < n; i++ {
		path, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		host, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		m[path] = uint32(host)
	}
	return m, nil
}

// EncodePeerAction encodes action into a new frame.
func EncodePeerAction(action PeerAction) []byte {
	w := NewWriter()
	w.WriteByte(byte(action.PeerTag()))
	action.encode(w)
	return w.Bytes()
}

// DecodePeerAction decodes a single PeerAction from buf.
func DecodePeerAction(buf []byte) (PeerAction, error) {
	r := NewReader(buf)
	tagByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("wire: decode peer action tag: %w", err)
	}
	switch PeerActionTag(tagByte) {
	case PeerTagSerializedAction:
		b, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		return SerializedAction{Bytes: append([]byte(nil), b...)}, nil
	case PeerTagInitIndex:
		m, err := decodeIndexMap(r)
		if err != nil {
			return nil, err
		}
		return InitIndex{Entries: m}, nil
	case PeerTagInsertIndex:
		m, err := decodeIndexMap(r)
		if err != nil {
			return nil, err
		}
		return InsertIndex{Entries: m}, nil
	case PeerTagRemoveIndex:
		n, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		paths := make([]string, 0, n)
		for i := uint64(0); i < n; i++ {
			p, err := r.ReadString()
			if err != nil {
				return nil, err
			}
			paths = append(paths, p)
		}
		return RemoveIndex{Paths: paths}, nil
	case PeerTagUpdateIndex:
		n, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		renames := make(map[string]string, n)
		for i := uint64(0); i < n; i++ {
			old, err := r.ReadString()
			if err != nil {
				return nil, err
			}
			new, err := r.ReadString()
			if err != nil {
				return nil, err
			}
			renames[old] = new
		}
		return UpdateIndex{Renames: renames}, nil
	default:
		return nil, fmt.Errorf("wire: unknown peer action tag %d", tagByte)
	}
}

// SentinelScanner finds the END_SERIAL sentinel across a stream of reads
// that may split the sentinel's bytes across read boundaries. Each peer
// response must contain the sentinel exactly once.
//
// It holds back the trailing len(EndSerial)-1 bytes of every chunk that
// doesn't complete a match, since those bytes might be the sentinel's
// prefix; they are only released (as part of the next Feed's returned
// payload, or discarded up to the match point once the sentinel completes)
// once the next chunk resolves the ambiguity. A caller that instead appends
// whole chunks to its payload as they arrive, trusting only the returned
// index, leaks a held-back prefix of the sentinel into the payload whenever
// the sentinel itself straddles a read boundary.
type SentinelScanner struct {
	carry []byte // up to len(EndSerial)-1 bytes withheld from the previous Feed call
}

// Feed scans chunk for the sentinel. It returns the payload bytes that are
// now safe to commit (never including any part of the sentinel or of a
// still-ambiguous trailing run) and whether the sentinel has been found. On
// a true result, payload is the remainder of the response; no further Feed
// calls are needed for this frame.
func (s *SentinelScanner) Feed(chunk []byte) (payload []byte, found bool) {
	buf := append(append([]byte(nil), s.carry...), chunk...)
	if pos := bytes.Index(buf, EndSerial[:]); pos >= 0 {
		s.carry = nil
		return buf[:pos], true
	}
	keep := len(EndSerial) - 1
	if len(buf) <= keep {
		s.carry = buf
		return nil, false
	}
	s.carry = append([]byte(nil), buf[len(buf)-keep:]...)
	return buf[:len(buf)-keep], false
}

// Reset clears any partial match state, for reuse across peer responses.
func (s *SentinelScanner) Reset() { s.carry = nil }
