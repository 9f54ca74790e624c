package wire

import (
	"fmt"

	"github.com/dfscluster/dfs-host/axerror"
)

// FileType is the stable wire value for a node's type.
type FileType uint8

const (
	TypeUnknown FileType = 0
	TypeFIFO    FileType = 1
	TypeChar    FileType = 2
	TypeDir     FileType = 4
	TypeBlock   FileType = 6
	TypeFile    FileType = 8
	TypeSymlink FileType = 10
	TypeSocket  FileType = 12
)

// NodeAttr is the GetAttr payload.
type NodeAttr struct {
	Mode   uint16
	Type   FileType
	Size   uint64
	Blocks uint64
}

// EncodeNodeAttr appends attr to w.
func EncodeNodeAttr(w *Writer, attr NodeAttr) {
	w.WriteUvarint(uint64(attr.Mode))
	w.WriteByte(byte(attr.Type))
	w.WriteUvarint(attr.Size)
	w.WriteUvarint(attr.Blocks)
}

// DecodeNodeAttr reads a NodeAttr from r.
func DecodeNodeAttr(r *Reader) (NodeAttr, error) {
	mode, err := r.ReadUvarint()
	if err != nil {
		return NodeAttr{}, err
	}
	ty, err := r.ReadByte()
	if err != nil {
		return NodeAttr{}, err
	}
	size, err := r.ReadUvarint()
	if err != nil {
		return NodeAttr{}, err
	}
	blocks, err := r.ReadUvarint()
	if err != nil {
		return NodeAttr{}, err
	}
	return NodeAttr{Mode: uint16(mode), Type: FileType(ty), Size: size, Blocks: blocks}, nil
}

// DirEntry is one ReadDir record. Only regular files and directories are
// ever emitted.
type DirEntry struct {
	Type FileType
	Name string
}

// EncodeDirEntry appends e to w.
func EncodeDirEntry(w *Writer, e DirEntry) {
	w.WriteByte(byte(e.Type))
	w.WriteString(e.Name)
}

// DecodeDirEntry reads a DirEntry from r.
func DecodeDirEntry(r *Reader) (DirEntry, error) {
	ty, err := r.ReadByte()
	if err != nil {
		return DirEntry{}, err
	}
	name, err := r.ReadString()
	if err != nil {
		return DirEntry{}, err
	}
	return DirEntry{Type: FileType(ty), Name: name}, nil
}

// outcome is the Ok/Err discriminant every Response frame starts with.
type outcome byte

const (
	outcomeOk  outcome = 0
	outcomeErr outcome = 1
)

// WriteOk writes the Ok discriminant. The caller appends whatever payload
// the operation in question carries (nothing for unit responses, a varint
// for Read/ReadDir counts, a NodeAttr, a string, or a stream of DirEntry
// records) — the reader already knows the expected shape because it knows
// which request produced this response.
func WriteOk(w *Writer) { w.WriteByte(byte(outcomeOk)) }

// WriteErr writes an Err(code) response. No further payload follows.
func WriteErr(w *Writer, code axerror.Code) {
	w.WriteByte(byte(outcomeErr))
	w.WriteUvarint(uint64(code))
}

// ReadOutcome reads the Ok/Err discriminant, returning the error code when
// the response is Err.
func ReadOutcome(r *Reader) (ok bool, code axerror.Code, err error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, 0, err
	}
	switch outcome(b) {
	case outcomeOk:
		return true, 0, nil
	case outcomeErr:
		c, err := r.ReadUvarint()
		if err != nil {
			return false, 0, err
		}
		return false, axerror.Code(c), nil
	default:
		return false, 0, fmt.Errorf("wire: unknown outcome discriminant %d", b)
	}
}
