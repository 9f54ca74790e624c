// Package fileindex implements the process-wide path→owner map every host
// replicates: a single RWMutex guarding a plain map, favoring many
// concurrent readers over writer throughput, since lookups vastly outnumber
// mutations in normal operation.
package fileindex

import "sync"

// Index is the concurrent path -> owner-host-id mapping. All mutators are
// linearizable with respect to each other; a lookup observes either the
// state before or after any given mutator, never a partial update.
type Index struct {
	mu sync.RWMutex
	m  map[string]uint32
}

// New returns an empty Index.
func New() *Index {
	return &Index{m: make(map[string]uint32)}
}

// Lookup resolves path to its owning host. ok is false on an index miss,
// which the dispatcher maps to axerror.NotFound.
func (idx *Index) Lookup(path string) (owner uint32, ok bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	owner, ok = idx.m[path]
	return owner, ok
}

// Insert adds or overwrites path's owner.
func (idx *Index) Insert(path string, owner uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.m[path] = owner
}

// Remove deletes path from the index. Removing an absent key is a no-op.
func (idx *Index) Remove(path string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.m, path)
}

// Update renames old to new, preserving old's owner. If old is absent this
// is a no-op: there is no owner to preserve.
func (idx *Index) Update(old, new string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	owner, ok := idx.m[old]
	if !ok {
		return
	}
	delete(idx.m, old)
	idx.m[new] = owner
}

// Init replaces the entire replica wholesale, as done when a non-root host
// receives the root's InitIndex snapshot at bootstrap.
func (idx *Index) Init(entries map[string]uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	m := make(map[string]uint32, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	idx.m = m
}

// InsertAll applies a batch of inserts, as received in an InsertIndex
// PeerAction.
func (idx *Index) InsertAll(entries map[string]uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for k, v := range entries {
		idx.m[k] = v
	}
}

// RemoveAll applies a batch of removes, as received in a RemoveIndex
// PeerAction.
func (idx *Index) RemoveAll(paths []string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, p := range paths {
		delete(idx.m, p)
	}
}

// UpdateAll applies a batch of renames, as received in an UpdateIndex
// PeerAction.
func (idx *Index) UpdateAll(renames map[string]string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for old, nw := range renames {
		owner, ok := idx.m[old]
		if !ok {
			continue
		}
		delete(idx.m, old)
		idx.m[nw] = owner
	}
}

// Snapshot returns a point-in-time copy of the whole replica, used to build
// the InitIndex frame host 0 ships to newcomers.
func (idx *Index) Snapshot() map[string]uint32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[string]uint32, len(idx.m))
	for k, v := range idx.m {
		out[k] = v
	}
	return out
}
