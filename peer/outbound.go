package peer

import (
	"io"
	"net"

	"github.com/google/uuid"

	"github.com/dfscluster/dfs-host/axerror"
	"github.com/dfscluster/dfs-host/internal/dlog"
	"github.com/dfscluster/dfs-host/wire"
)

// OutboundPeer owns one TCP socket to another host and the MessageQueue
// feeding it. It is the only goroutine that ever writes to or reads from
// conn, which is what guarantees at most one in-flight request per peer
// socket.
type OutboundPeer struct {
	HostID  uint32
	conn    net.Conn
	queue   *MessageQueue
	session string
}

// NewOutboundPeer wraps conn for host hostID. Run must be started in its own
// goroutine to begin draining the queue.
func NewOutboundPeer(hostID uint32, conn net.Conn) *OutboundPeer {
	return &OutboundPeer{HostID: hostID, conn: conn, queue: NewMessageQueue(), session: uuid.NewString()}
}

// SubmitAndWait enqueues action and blocks for the owner's response,
// satisfying fileindex.Peer.
func (p *OutboundPeer) SubmitAndWait(action wire.PeerAction) ([][]byte, error) {
	return p.queue.SubmitAndWait(action)
}

// Run drains the queue for as long as the socket is healthy. A write or
// read error is fatal to the peer: the in-flight future gets the raw I/O
// error, every queued or later submission gets ConnectionReset, and the
// loop exits. The socket is never reconnected.
func (p *OutboundPeer) Run() {
	for {
		var stop bool
		p.queue.PopToWork(func(action wire.PeerAction) ([][]byte, error) {
			frames, err := p.roundTrip(action)
			if err != nil {
				stop = true
			}
			return frames, err
		})
		if stop {
			dlog.For(dlog.Fields{"peer": p.HostID, "session": p.session}).Warn("outbound peer socket failed, failing queued requests")
			p.queue.Fail(axerror.New(axerror.ConnectionReset))
			return
		}
	}
}

// SendInitIndex ships the root's full index snapshot ahead of entering the
// normal queue loop, as part of bootstrap.
func (p *OutboundPeer) SendInitIndex(entries map[string]uint32) error {
	_, err := p.roundTrip(wire.InitIndex{Entries: entries})
	return err
}

// roundTrip writes action to the socket and reads response chunks until
// END_SERIAL is observed, stripping the sentinel before returning the
// accumulated chunks.
func (p *OutboundPeer) roundTrip(action wire.PeerAction) ([][]byte, error) {
	if _, err := p.conn.Write(wire.EncodePeerAction(action)); err != nil {
		return nil, err
	}

	var frames [][]byte
	var scanner wire.SentinelScanner
	buf := make([]byte, wire.MaxClientRequestSize)
	for {
		n, err := p.conn.Read(buf)
		if n > 0 {
			payload, found := scanner.Feed(buf[:n])
			if len(payload) > 0 {
				frames = append(frames, payload)
			}
			if found {
				return frames, nil
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
}

// Close releases the underlying socket.
func (p *OutboundPeer) Close() error {
	return p.conn.Close()
}
