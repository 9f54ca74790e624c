package peer

import (
	"fmt"

	"github.com/dfscluster/dfs-host/wire"
)

// WriteHostID sends self's id as the very first bytes on a freshly dialed
// peer socket, so the acceptor can tell which host just connected. The
// wire protocol carries no handshake magic; this is a bare id, not a magic
// constant.
func WriteHostID(conn connWriter, id uint32) error {
	w := wire.NewWriter()
	w.WriteUvarint(uint64(id))
	_, err := conn.Write(w.Bytes())
	return err
}

// ReadHostID reads the id preamble a freshly accepted peer socket starts
// with. It consumes one byte at a time so that a PeerAction the remote
// sends right behind the preamble is never swallowed by an over-long read.
func ReadHostID(conn connReader) (uint32, error) {
	var buf [1]byte
	var x uint64
	var shift uint
	for i := 0; i < 5; i++ {
		if _, err := conn.Read(buf[:]); err != nil {
			return 0, err
		}
		b := buf[0]
		if b < 0x80 {
			return uint32(x | uint64(b)<<shift), nil
		}
		x |= uint64(b&0x7f) << shift
		shift += 7
	}
	return 0, fmt.Errorf("peer: host id preamble is not a valid varint")
}

type connWriter interface {
	Write(b []byte) (int, error)
}

type connReader interface {
	Read(b []byte) (int, error)
}
