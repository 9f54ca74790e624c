package peer

import (
	"io"
	"net"

	"github.com/google/uuid"

	"github.com/dfscluster/dfs-host/axerror"
	"github.com/dfscluster/dfs-host/exec"
	"github.com/dfscluster/dfs-host/internal/dlog"
	"github.com/dfscluster/dfs-host/wire"
)

// maxPeerFrameSize bounds a single peer read: a forwarded client request
// is at most wire.MaxClientRequestSize, and the SerializedAction envelope
// around it adds a tag byte plus a length varint.
const maxPeerFrameSize = wire.MaxClientRequestSize + 16

// InboundPeer reads PeerActions off one accepted peer socket and executes
// them locally, one at a time. Like ClientHandler, a single goroutine owns
// the socket for its whole lifetime.
type InboundPeer struct {
	conn     net.Conn
	executor *exec.Executor
	onInit   func(map[string]uint32)
	session  string
}

// NewInboundPeer wraps conn, dispatching decoded PeerActions to executor.
func NewInboundPeer(conn net.Conn, executor *exec.Executor) *InboundPeer {
	return &InboundPeer{conn: conn, executor: executor, session: uuid.NewString()}
}

// OnInitIndex registers fn to run whenever this socket delivers an
// InitIndex, in addition to the normal replica replacement. Only the root
// host ever sends InitIndex, so a non-root host's bootstrap uses this to
// learn when it may start serving clients.
func (p *InboundPeer) OnInitIndex(fn func(map[string]uint32)) {
	p.onInit = fn
}

// Serve loops until the socket closes or a read fails. Every branch writes
// exactly one response payload followed by exactly one END_SERIAL, even on
// error.
func (p *InboundPeer) Serve() {
	buf := make([]byte, maxPeerFrameSize)
	for {
		n, err := p.conn.Read(buf)
		if err != nil {
			if err != io.EOF {
				dlog.For(dlog.Fields{"session": p.session}).Debug("inbound peer read failed: ", err)
			}
			return
		}
		action, err := wire.DecodePeerAction(buf[:n])
		if err != nil {
			// The sender's rendezvous is blocked on a terminated response,
			// so even garbage gets an Err frame and a sentinel.
			dlog.For(dlog.Fields{"session": p.session}).Errorf("inbound peer decode failed: %v", err)
			if werr := p.writeErrFrame(axerror.InvalidData); werr != nil {
				return
			}
			continue
		}
		if err := p.dispatch(action); err != nil {
			dlog.For(dlog.Fields{"session": p.session}).Errorf("inbound peer write failed: %v", err)
			return
		}
	}
}

func (p *InboundPeer) dispatch(action wire.PeerAction) error {
	if a, ok := action.(wire.SerializedAction); ok {
		return p.dispatchSerialized(a)
	}

	w := wire.NewWriter()
	switch a := action.(type) {
	case wire.InitIndex:
		p.executor.Index.Init(a.Entries)
		if p.onInit != nil {
			p.onInit(a.Entries)
		}
		wire.WriteOk(w)
	case wire.InsertIndex:
		p.executor.Index.InsertAll(a.Entries)
		wire.WriteOk(w)
	case wire.RemoveIndex:
		p.executor.Index.RemoveAll(a.Paths)
		wire.WriteOk(w)
	case wire.UpdateIndex:
		p.executor.Index.UpdateAll(a.Renames)
		wire.WriteOk(w)
	default:
		wire.WriteErr(w, axerror.InvalidData)
	}

	if _, err := p.conn.Write(w.Bytes()); err != nil {
		return err
	}
	_, err := p.conn.Write(wire.EndSerial[:])
	return err
}

// writeErrFrame emits an Err(code) response plus the terminating sentinel.
func (p *InboundPeer) writeErrFrame(code axerror.Code) error {
	w := wire.NewWriter()
	wire.WriteErr(w, code)
	if _, err := p.conn.Write(w.Bytes()); err != nil {
		return err
	}
	_, err := p.conn.Write(wire.EndSerial[:])
	return err
}

// dispatchSerialized decodes a forwarded client Request and re-executes it
// on this host's LocalStore, the owner-side half of a remote dispatch.
func (p *InboundPeer) dispatchSerialized(a wire.SerializedAction) error {
	req, err := wire.DecodeRequest(a.Bytes)
	if err != nil {
		return p.writeErrFrame(axerror.InvalidData)
	}

	result := p.executor.Execute(req)
	if _, err := p.conn.Write(result.Header); err != nil {
		return err
	}
	if len(result.Content) > 0 {
		if _, err := p.conn.Write(result.Content); err != nil {
			return err
		}
	}
	_, err = p.conn.Write(wire.EndSerial[:])
	return err
}
