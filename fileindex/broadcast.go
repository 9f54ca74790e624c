package fileindex

import (
	"golang.org/x/sync/errgroup"

	"github.com/dfscluster/dfs-host/wire"
)

// Peer is the narrow capability Broadcast needs from an OutboundPeer: submit
// a PeerAction and block for its acknowledgement. peer.OutboundPeer
// satisfies this.
type Peer interface {
	SubmitAndWait(action wire.PeerAction) ([][]byte, error)
}

// Broadcast fans action out to every peer concurrently and waits for all
// acks, blocking a client's Create until every host's replica has observed
// the new key. The first peer error is returned, but only after every
// peer's SubmitAndWait has returned: nothing is cancelled, since
// MessageQueue has no cancellation.
func Broadcast(peers map[uint32]Peer, action wire.PeerAction) error {
	var g errgroup.Group
	for _, p := range peers {
		p := p
		g.Go(func() error {
			_, err := p.SubmitAndWait(action)
			return err
		})
	}
	return g.Wait()
}

// BroadcastInsert applies entries to the local index then replicates an
// InsertIndex to every peer, returning once all have acked.
func BroadcastInsert(idx *Index, peers map[uint32]Peer, entries map[string]uint32) error {
	idx.InsertAll(entries)
	if len(entries) == 0 {
		return nil
	}
	return Broadcast(peers, wire.InsertIndex{Entries: entries})
}

// BroadcastRemove applies paths to the local index then replicates a
// RemoveIndex to every peer, returning once all have acked.
func BroadcastRemove(idx *Index, peers map[uint32]Peer, paths []string) error {
	idx.RemoveAll(paths)
	if len(paths) == 0 {
		return nil
	}
	return Broadcast(peers, wire.RemoveIndex{Paths: paths})
}

// BroadcastUpdate applies renames to the local index then replicates an
// UpdateIndex to every peer, returning once all have acked.
func BroadcastUpdate(idx *Index, peers map[uint32]Peer, renames map[string]string) error {
	idx.UpdateAll(renames)
	if len(renames) == 0 {
		return nil
	}
	return Broadcast(peers, wire.UpdateIndex{Renames: renames})
}
