package dfshost

import (
	"io"
	"net"

	"github.com/google/uuid"

	"github.com/dfscluster/dfs-host/axerror"
	"github.com/dfscluster/dfs-host/exec"
	"github.com/dfscluster/dfs-host/fileindex"
	"github.com/dfscluster/dfs-host/internal/dlog"
	"github.com/dfscluster/dfs-host/peer"
	"github.com/dfscluster/dfs-host/wire"
)

// ClientHandler is the per-connection dispatcher state machine:
// READ_REQ -> LOOKUP_OWNER -> {LOCAL|REMOTE} -> WRITE_RESP -> READ_REQ.
// One goroutine owns conn for the connection's whole lifetime.
type ClientHandler struct {
	conn    net.Conn
	index   *fileindex.Index
	exec    *exec.Executor
	self    uint32
	owner   func(id uint32) (*peer.OutboundPeer, bool)
	session string
}

// Serve runs the dispatch loop until the client closes the connection or a
// read/write fails.
func (h *ClientHandler) Serve() {
	if h.session == "" {
		h.session = uuid.NewString()
	}
	defer h.conn.Close()
	buf := make([]byte, wire.MaxClientRequestSize)
	for {
		n, err := h.conn.Read(buf)
		if err != nil {
			if err != io.EOF {
				dlog.For(dlog.Fields{"host": h.self, "session": h.session}).Warn("client read failed: ", err)
			} else {
				dlog.For(dlog.Fields{"host": h.self, "session": h.session}).Debug("client closed connection")
			}
			return
		}
		if n == 0 {
			return
		}

		raw := append([]byte(nil), buf[:n]...)
		req, err := wire.DecodeRequest(raw)
		if err != nil {
			dlog.For(dlog.Fields{"host": h.self, "session": h.session}).Warn("client sent undecodable request: ", err)
			w := wire.NewWriter()
			wire.WriteErr(w, axerror.InvalidData)
			if _, werr := h.conn.Write(w.Bytes()); werr != nil {
				return
			}
			continue
		}

		if err := h.dispatch(req, raw); err != nil {
			dlog.For(dlog.Fields{"host": h.self, "session": h.session}).Debug("client write failed: ", err)
			return
		}
	}
}

// routingKey returns the FileIndex key a request's ownership is decided by,
// and whether the op is exempt from ownership routing entirely.
func routingKey(req wire.Request) (key string, local bool) {
	switch a := req.Action.(type) {
	case wire.GetParentAction:
		// Resolved purely from relpath's string form; never forwarded.
		// Treating it as a pure local string op avoids a needless round
		// trip for an operation that can never fail or mutate state.
		return "", true
	case wire.LookupAction:
		return wire.JoinRelPath(req.RelPath, a.Path), false
	case wire.CreateAction:
		return wire.JoinRelPath(req.RelPath, a.Path), false
	case wire.RenameAction:
		return wire.JoinRelPath(req.RelPath, a.SrcPath), false
	case wire.RemoveAction:
		// LocalStore's Remove(sub) mirrors Create/Lookup's shape, so the
		// routed key is the same joined relpath/sub.
		return wire.JoinRelPath(req.RelPath, a.Path), false
	default:
		return req.RelPath, false
	}
}

func (h *ClientHandler) dispatch(req wire.Request, raw []byte) error {
	key, local := routingKey(req)

	if local || key == "" {
		return h.respondLocal(req)
	}

	owner, ok := h.index.Lookup(key)
	if !ok {
		if _, isCreate := req.Action.(wire.CreateAction); isCreate {
			return h.respondLocal(req)
		}
		return h.respondErr(axerror.NotFound)
	}

	if owner == h.self {
		return h.respondLocal(req)
	}
	return h.respondRemote(owner, raw)
}

func (h *ClientHandler) respondLocal(req wire.Request) error {
	result := h.exec.Execute(req)
	if _, err := h.conn.Write(result.Header); err != nil {
		return err
	}
	if len(result.Content) > 0 {
		if _, err := h.conn.Write(result.Content); err != nil {
			return err
		}
	}
	return nil
}

func (h *ClientHandler) respondRemote(owner uint32, raw []byte) error {
	ob, ok := h.owner(owner)
	if !ok {
		return h.respondErr(axerror.ConnectionReset)
	}
	frames, err := ob.SubmitAndWait(wire.SerializedAction{Bytes: raw})
	if err != nil {
		return h.respondErr(axerror.CodeOf(err))
	}
	for _, frame := range frames {
		if _, err := h.conn.Write(frame); err != nil {
			return err
		}
	}
	return nil
}

func (h *ClientHandler) respondErr(code axerror.Code) error {
	w := wire.NewWriter()
	wire.WriteErr(w, code)
	_, err := h.conn.Write(w.Bytes())
	return err
}
