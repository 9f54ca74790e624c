// Package exec runs a decoded client Request against LocalStore and the
// local FileIndex replica, producing the wire bytes a caller writes back.
// Both peer.InboundPeer (executing a forwarded SerializedAction) and
// dfshost.ClientHandler (executing a request whose key this host owns)
// drive the same Executor, so the two code paths can never disagree about
// what a given Action does.
package exec

import (
	"errors"
	"io"

	"github.com/dfscluster/dfs-host/axerror"
	"github.com/dfscluster/dfs-host/fileindex"
	"github.com/dfscluster/dfs-host/internal/dlog"
	"github.com/dfscluster/dfs-host/localstore"
	"github.com/dfscluster/dfs-host/wire"
)

// Executor binds a LocalStore and the local FileIndex replica to a host
// identity, so Create can record the right owner.
type Executor struct {
	Store  *localstore.Store
	Index  *fileindex.Index
	SelfID uint32

	// Peers returns the outbound peers to replicate to, resolved at
	// broadcast time so connections registered after this Executor was
	// built still receive index mutations. A nil func or empty map (a
	// single-host cluster) makes broadcast a no-op.
	Peers func() map[uint32]fileindex.Peer
}

func (e *Executor) peerMap() map[uint32]fileindex.Peer {
	if e.Peers == nil {
		return nil
	}
	return e.Peers()
}

// Result is what Execute produces: header holds one or more codec-framed
// values (the Ok/Err envelope, plus NodeAttr/DirEntry records for ops that
// emit them), and content holds the unframed raw bytes that follow a Read's
// Ok(n) frame. content is nil for every other op.
type Result struct {
	Header  []byte
	Content []byte
}

// Execute runs req.Action against the store and, for mutating ops that
// succeed, replicates the index change before returning.
func (e *Executor) Execute(req wire.Request) Result {
	w := wire.NewWriter()
	switch a := req.Action.(type) {
	case wire.OpenAction:
		if err := e.Store.Open(req.RelPath); err != nil {
			writeErr(w, err)
		} else {
			wire.WriteOk(w)
		}

	case wire.ReleaseAction:
		_ = e.Store.Release(req.RelPath)
		wire.WriteOk(w)

	case wire.GetAttrAction:
		attr, err := e.Store.GetAttr(req.RelPath)
		if err != nil {
			writeErr(w, err)
			break
		}
		wire.WriteOk(w)
		wire.EncodeNodeAttr(w, attr)

	case wire.ReadAction:
		content, err := e.Store.Read(req.RelPath, a.Offset, a.Length)
		if err != nil {
			writeErr(w, err)
			return Result{Header: w.Bytes()}
		}
		wire.WriteOk(w)
		w.WriteUvarint(uint64(len(content)))
		return Result{Header: w.Bytes(), Content: content}

	case wire.WriteAction:
		n, err := e.Store.Write(req.RelPath, a.Offset, a.Content)
		if err != nil {
			writeErr(w, err)
			break
		}
		wire.WriteOk(w)
		w.WriteUvarint(uint64(n))

	case wire.FsyncAction:
		if err := e.Store.Fsync(req.RelPath); err != nil {
			writeErr(w, err)
		} else {
			wire.WriteOk(w)
		}

	case wire.TruncAction:
		if err := e.Store.Trunc(req.RelPath, a.Size); err != nil {
			writeErr(w, err)
		} else {
			wire.WriteOk(w)
		}

	case wire.GetParentAction:
		wire.WriteOk(w)
		w.WriteString(e.Store.GetParent(req.RelPath))

	case wire.LookupAction:
		key, err := e.Store.Lookup(wire.JoinRelPath(req.RelPath, a.Path))
		if err != nil {
			writeErr(w, err)
			break
		}
		wire.WriteOk(w)
		w.WriteString(key)

	case wire.CreateAction:
		key := wire.JoinRelPath(req.RelPath, a.Path)
		ty := wire.FileType(a.Type)
		if err := e.Store.Create(key, ty); err != nil {
			writeErr(w, err)
			break
		}
		e.broadcastInsert(key)
		wire.WriteOk(w)

	case wire.RemoveAction:
		key := wire.JoinRelPath(req.RelPath, a.Path)
		if err := e.Store.Remove(key); err != nil {
			writeErr(w, err)
			break
		}
		e.broadcastRemove(key)
		wire.WriteOk(w)

	case wire.ReadDirAction:
		entries, err := e.Store.ReadDir(req.RelPath, a.StartIdx)
		if err != nil {
			writeErr(w, err)
			break
		}
		if uint64(len(entries)) > a.Size {
			entries = entries[:a.Size]
		}
		wire.WriteOk(w)
		w.WriteUvarint(uint64(len(entries)))
		for _, ent := range entries {
			wire.EncodeDirEntry(w, ent)
		}

	case wire.RenameAction:
		src := wire.JoinRelPath(req.RelPath, a.SrcPath)
		dst := wire.JoinRelPath(req.RelPath, a.DstPath)
		if err := e.Store.Rename(src, dst); err != nil {
			writeErr(w, err)
			break
		}
		e.broadcastUpdate(src, dst)
		wire.WriteOk(w)

	default:
		wire.WriteErr(w, axerror.Unsupported)
	}
	return Result{Header: w.Bytes()}
}

func (e *Executor) broadcastInsert(key string) {
	if err := fileindex.BroadcastInsert(e.Index, e.peerMap(), map[string]uint32{key: e.SelfID}); err != nil {
		dlog.For(dlog.Fields{"path": key, "action": "insert"}).Warn("index broadcast failed: ", err)
	}
}

func (e *Executor) broadcastRemove(key string) {
	if err := fileindex.BroadcastRemove(e.Index, e.peerMap(), []string{key}); err != nil {
		dlog.For(dlog.Fields{"path": key, "action": "remove"}).Warn("index broadcast failed: ", err)
	}
}

func (e *Executor) broadcastUpdate(src, dst string) {
	if err := fileindex.BroadcastUpdate(e.Index, e.peerMap(), map[string]string{src: dst}); err != nil {
		dlog.For(dlog.Fields{"path": dst, "action": "rename"}).Warn("index broadcast failed: ", err)
	}
}

// writeErr classifies err via axerror and writes the Err(code) frame.
func writeErr(w *wire.Writer, err error) {
	if errors.Is(err, io.EOF) {
		wire.WriteErr(w, axerror.UnexpectedEof)
		return
	}
	wire.WriteErr(w, axerror.CodeOf(err))
}
