// Package peer implements the per-peer outbound message queue and the two
// socket-handling loops (OutboundPeer, InboundPeer) that sit on either end
// of a host-to-host TCP connection.
package peer

import (
	"sync"

	"github.com/dfscluster/dfs-host/wire"
)

// RequestFuture is a one-shot cell carrying a pending peer request and its
// eventual response. The submitter waits on done; the consumer (the
// OutboundPeer loop) stores the result and closes done exactly once.
// Closing a channel replaces a busy-yield spin on an atomic flag; it gives
// the same producer-owns-payload, consumer-releases-ready-flag ordering
// without spinning.
type RequestFuture struct {
	Action wire.PeerAction

	done   chan struct{}
	frames [][]byte
	err    error
}

func newFuture(action wire.PeerAction) *RequestFuture {
	return &RequestFuture{Action: action, done: make(chan struct{})}
}

// finish stores the result and releases waiters. Called exactly once.
func (f *RequestFuture) finish(frames [][]byte, err error) {
	f.frames = frames
	f.err = err
	close(f.done)
}

// MessageQueue is the per-outbound-peer FIFO rendezvous: submitters push a
// future and block for it to complete; the single OutboundPeer loop pops
// futures in order and is the only writer to the peer's socket, which is
// what gives the peer at most one in-flight request at a time.
type MessageQueue struct {
	items chan *RequestFuture

	failOnce sync.Once
	deadErr  error
	dead     chan struct{}
}

// NewMessageQueue returns an empty queue. The buffer holds 256 pending
// futures; below that, submitters block only on their own future, not on
// enqueue itself.
func NewMessageQueue() *MessageQueue {
	return &MessageQueue{
		items: make(chan *RequestFuture, 256),
		dead:  make(chan struct{}),
	}
}

// SubmitAndWait pushes action onto the queue and blocks until the consumer
// has produced a response, returning the raw response segments received
// between the prior terminator and the new END_SERIAL. Once the queue has
// been failed, submissions return the failure immediately instead of
// waiting on a consumer that will never come back.
func (q *MessageQueue) SubmitAndWait(action wire.PeerAction) ([][]byte, error) {
	f := newFuture(action)
	select {
	case <-q.dead:
		return nil, q.deadErr
	case q.items <- f:
	}
	select {
	case <-f.done:
		return f.frames, f.err
	case <-q.dead:
		return nil, q.deadErr
	}
}

// PopToWork blocks until the queue has an item, invokes work with that
// item's action, and stores whatever work returns as the future's result.
// work MUST write the action to the peer socket and read back the framed
// response before returning. Callers loop PopToWork from the single
// OutboundPeer goroutine that owns the socket.
func (q *MessageQueue) PopToWork(work func(action wire.PeerAction) ([][]byte, error)) {
	f := <-q.items
	frames, err := work(f.Action)
	f.finish(frames, err)
}

// Fail marks the queue dead: every queued future is completed with err, and
// every later SubmitAndWait returns err without blocking. Called by the
// OutboundPeer loop when its socket breaks, since the socket is never
// reconnected.
func (q *MessageQueue) Fail(err error) {
	q.failOnce.Do(func() {
		q.deadErr = err
		close(q.dead)
		for {
			select {
			case f := <-q.items:
				f.finish(nil, err)
			default:
				return
			}
		}
	})
}
