package fileindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfscluster/dfs-host/wire"
)

func TestInsertLookupRemove(t *testing.T) {
	idx := New()
	idx.Insert("a", 1)

	owner, ok := idx.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, uint32(1), owner)

	idx.Remove("a")
	_, ok = idx.Lookup("a")
	assert.False(t, ok)
}

func TestLookupMissReturnsFalse(t *testing.T) {
	idx := New()
	_, ok := idx.Lookup("nope")
	assert.False(t, ok)
}

func TestUpdatePreservesOwner(t *testing.T) {
	idx := New()
	idx.Insert("old", 7)
	idx.Update("old", "new")

	_, ok := idx.Lookup("old")
	assert.False(t, ok)

	owner, ok := idx.Lookup("new")
	require.True(t, ok)
	assert.Equal(t, uint32(7), owner)
}

func TestUpdateOfMissingKeyIsNoop(t *testing.T) {
	idx := New()
	idx.Update("ghost", "new")
	_, ok := idx.Lookup("new")
	assert.False(t, ok)
}

func TestInitReplacesWholesale(t *testing.T) {
	idx := New()
	idx.Insert("stale", 0)
	idx.Init(map[string]uint32{"a": 1, "b": 2})

	_, ok := idx.Lookup("stale")
	assert.False(t, ok)

	owner, ok := idx.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, uint32(1), owner)
}

func TestSnapshotIsACopy(t *testing.T) {
	idx := New()
	idx.Insert("a", 1)
	snap := idx.Snapshot()
	snap["a"] = 99

	owner, _ := idx.Lookup("a")
	assert.Equal(t, uint32(1), owner)
}

type fakePeer struct {
	calls   int
	lastAct wire.PeerAction
	err     error
}

func (p *fakePeer) SubmitAndWait(action wire.PeerAction) ([][]byte, error) {
	p.calls++
	p.lastAct = action
	return nil, p.err
}

func TestBroadcastInsertAppliesLocallyAndFansOut(t *testing.T) {
	idx := New()
	p1 := &fakePeer{}
	p2 := &fakePeer{}
	peers := map[uint32]Peer{1: p1, 2: p2}

	err := BroadcastInsert(idx, peers, map[string]uint32{"a": 0})
	require.NoError(t, err)

	owner, ok := idx.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, uint32(0), owner)
	assert.Equal(t, 1, p1.calls)
	assert.Equal(t, 1, p2.calls)
}

func TestBroadcastPropagatesFirstError(t *testing.T) {
	idx := New()
	boom := assert.AnError
	peers := map[uint32]Peer{1: &fakePeer{err: boom}}

	err := BroadcastRemove(idx, peers, []string{"a"})
	assert.ErrorIs(t, err, boom)
}

func TestBroadcastEmptyIsNoop(t *testing.T) {
	idx := New()
	p := &fakePeer{}
	peers := map[uint32]Peer{1: p}

	require.NoError(t, BroadcastInsert(idx, peers, nil))
	assert.Equal(t, 0, p.calls)
}
