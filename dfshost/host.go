// Package dfshost wires together the wire codec, the local store, the file
// index and the peer package into a running host daemon: the peer and
// client listener loops, the bootstrap dial sequence, and the client
// dispatcher. Each accepted connection gets its own goroutine that owns
// the socket for the connection's lifetime.
package dfshost

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dfscluster/dfs-host/exec"
	"github.com/dfscluster/dfs-host/fileindex"
	"github.com/dfscluster/dfs-host/internal/dlog"
	"github.com/dfscluster/dfs-host/localstore"
	"github.com/dfscluster/dfs-host/peer"
)

const (
	defaultPeerPortBase   = 8000
	defaultClientPortBase = 9000
)

// Config describes one host's place in a static cluster.
type Config struct {
	ID        uint32
	N         uint32 // total host count; ids 0..N-1
	Root      string // LocalStore export root
	BindAddr  string // defaults to 127.0.0.1
	DialRetry int    // bootstrap dial attempts per peer; 0 means use the default

	// PeerPortBase and ClientPortBase shift the whole cluster's port
	// layout; a host's ports are always base+id. Zero means the defaults
	// of 8000 and 9000.
	PeerPortBase   int
	ClientPortBase int
}

// Host runs the listener loops, bootstrap sequence and dispatcher for one
// cluster member.
type Host struct {
	id         uint32
	n          uint32
	bindAddr   string
	dialRetry  int
	peerBase   int
	clientBase int

	store *localstore.Store
	index *fileindex.Index

	peersMu sync.RWMutex
	peers   map[uint32]*peer.OutboundPeer

	initDone chan struct{}
	initOnce sync.Once
}

// New builds a Host from cfg but does not start any network I/O; call Run
// to bootstrap and begin serving.
func New(cfg Config) *Host {
	bind := cfg.BindAddr
	if bind == "" {
		bind = "127.0.0.1"
	}
	retry := cfg.DialRetry
	if retry == 0 {
		retry = 5
	}
	peerBase := cfg.PeerPortBase
	if peerBase == 0 {
		peerBase = defaultPeerPortBase
	}
	clientBase := cfg.ClientPortBase
	if clientBase == 0 {
		clientBase = defaultClientPortBase
	}
	return &Host{
		id:         cfg.ID,
		n:          cfg.N,
		bindAddr:   bind,
		dialRetry:  retry,
		peerBase:   peerBase,
		clientBase: clientBase,
		store:      localstore.New(cfg.Root),
		index:      fileindex.New(),
		peers:      make(map[uint32]*peer.OutboundPeer),
		initDone:   make(chan struct{}),
	}
}

func (h *Host) peerAddr(id uint32) string {
	return fmt.Sprintf("%s:%d", h.bindAddr, h.peerBase+int(id))
}

func (h *Host) clientAddr() string {
	return fmt.Sprintf("%s:%d", h.bindAddr, h.clientBase+int(h.id))
}

// Run executes the full bootstrap sequence and then blocks serving the peer
// and client listeners. It returns an error on a listener bind failure,
// and nil once the client listener stops accepting.
func (h *Host) Run() error {
	peerLn, err := net.Listen("tcp", h.peerAddr(h.id))
	if err != nil {
		return fmt.Errorf("dfshost: bind peer listener: %w", err)
	}
	clientLn, err := net.Listen("tcp", h.clientAddr())
	if err != nil {
		return fmt.Errorf("dfshost: bind client listener: %w", err)
	}

	for j := uint32(0); j < h.id; j++ {
		if err := h.dialPeer(j); err != nil {
			dlog.For(dlog.Fields{"host": h.id, "peer": j}).Warn("bootstrap dial failed: ", err)
		}
	}

	if h.id == 0 {
		h.initOnce.Do(func() { close(h.initDone) })
	}

	go h.servePeers(peerLn)

	if h.id != 0 {
		dlog.For(dlog.Fields{"host": h.id}).Info("waiting for init index from host 0")
		<-h.initDone
	}

	dlog.For(dlog.Fields{"host": h.id}).Info("serving clients on ", h.clientAddr())
	h.serveClients(clientLn)
	return nil
}

// dialPeer connects to host j's peer port, announces self's id, and
// registers the resulting OutboundPeer. Dials retry with a backoff that
// grows by 100ms per attempt, since the remote listener may not be up yet.
func (h *Host) dialPeer(j uint32) error {
	var conn net.Conn
	var err error
	for attempt := 0; attempt < h.dialRetry; attempt++ {
		conn, err = net.Dial("tcp", h.peerAddr(j))
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
	if err != nil {
		return err
	}
	if err := peer.WriteHostID(conn, h.id); err != nil {
		conn.Close()
		return err
	}
	h.registerOutbound(j, conn)
	return nil
}

func (h *Host) registerOutbound(id uint32, conn net.Conn) *peer.OutboundPeer {
	ob := peer.NewOutboundPeer(id, conn)
	h.peersMu.Lock()
	h.peers[id] = ob
	h.peersMu.Unlock()
	// The root ships its snapshot before the queue loop starts, so the
	// init round trip can never interleave with a queued request on the
	// same socket.
	if h.id == 0 {
		if err := ob.SendInitIndex(h.index.Snapshot()); err != nil {
			dlog.For(dlog.Fields{"host": h.id, "peer": id}).Warn("init index send failed: ", err)
		}
	}
	go ob.Run()
	return ob
}

func (h *Host) outboundPeer(id uint32) (*peer.OutboundPeer, bool) {
	h.peersMu.RLock()
	defer h.peersMu.RUnlock()
	ob, ok := h.peers[id]
	return ob, ok
}

// peerMap returns a snapshot suitable for fileindex.Broadcast / exec.Executor.
func (h *Host) peerMap() map[uint32]fileindex.Peer {
	h.peersMu.RLock()
	defer h.peersMu.RUnlock()
	out := make(map[uint32]fileindex.Peer, len(h.peers))
	for id, ob := range h.peers {
		out[id] = ob
	}
	return out
}

func (h *Host) executor() *exec.Executor {
	return &exec.Executor{
		Store:  h.store,
		Index:  h.index,
		SelfID: h.id,
		Peers:  h.peerMap,
	}
}

// servePeers accepts inbound peer sockets, learns each caller's id from the
// preamble, starts an InboundPeer, and dials back if this host doesn't yet
// have an OutboundPeer to that id.
func (h *Host) servePeers(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			dlog.Errorf("peer accept failed: %v", err)
			return
		}
		go h.acceptPeer(conn)
	}
}

func (h *Host) acceptPeer(conn net.Conn) {
	remoteID, err := peer.ReadHostID(conn)
	if err != nil {
		dlog.Errorf("peer id preamble failed: %v", err)
		conn.Close()
		return
	}

	ib := peer.NewInboundPeer(conn, h.executor())
	if h.id != 0 && remoteID == 0 {
		ib.OnInitIndex(func(map[string]uint32) {
			h.initOnce.Do(func() { close(h.initDone) })
		})
	}

	if _, ok := h.outboundPeer(remoteID); !ok {
		if err := h.dialPeer(remoteID); err != nil {
			dlog.For(dlog.Fields{"host": h.id, "peer": remoteID}).Warn("dial-on-accept failed: ", err)
		}
	}

	ib.Serve()
}

// serveClients accepts client sockets and runs one ClientHandler per
// connection until the listener errors.
func (h *Host) serveClients(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			dlog.Errorf("client accept failed: %v", err)
			return
		}
		ch := &ClientHandler{
			conn:  conn,
			index: h.index,
			exec:  h.executor(),
			self:  h.id,
			owner: h.outboundPeer,
		}
		go ch.Serve()
	}
}
