package cache

import (
	"github.com/mutagen-io/ptree/pkg/core"
	"github.com/mutagen-io/ptree/pkg/filesystem"
)

// Reader is a point-in-time view over the store's flushed state. It is
// never mutated by subsequent store writes: the underlying generation is
// immutable, and the overlay and tombstone sets are copied at snapshot
// time. Entry pointers returned by a Reader are shared and must be treated
// as immutable.
type Reader struct {
	// generation is the committed generation backing the snapshot.
	generation *generation
	// overlay is a copy of the flushed-but-uncommitted entries.
	overlay map[string]*core.DirEntry
	// tombstones is a copy of the flushed-but-uncommitted deletions.
	tombstones map[string]bool
}

// Snapshot creates a point-in-time reader over the store's flushed state.
// Staged (unflushed) writes are not visible to the reader.
func (s *Store) Snapshot() *Reader {
	s.lock.RLock()
	defer s.lock.RUnlock()

	// Copy the mutable portions of the view.
	overlay := make(map[string]*core.DirEntry, len(s.overlay))
	for path, entry := range s.overlay {
		overlay[path] = entry
	}
	tombstones := make(map[string]bool, len(s.tombstones))
	for path := range s.tombstones {
		tombstones[path] = true
	}

	// Create the reader.
	return &Reader{
		generation: s.current,
		overlay:    overlay,
		tombstones: tombstones,
	}
}

// Root returns the volume root entry, or nil if the snapshot is empty.
func (r *Reader) Root() (*core.DirEntry, error) {
	if r.generation.meta.Root == "" {
		return nil, nil
	}
	return r.Get(r.generation.meta.Root)
}

// Meta returns the metadata of the snapshot's committed generation.
func (r *Reader) Meta() core.CacheMeta {
	return r.generation.meta
}

// Get returns the entry for the specified canonical path, or nil if no such
// entry exists in the snapshot.
func (r *Reader) Get(path string) (*core.DirEntry, error) {
	if entry, ok := r.overlay[path]; ok {
		return entry, nil
	}
	if r.tombstones[path] {
		return nil, nil
	}
	return r.generation.get(path)
}

// Children returns a lazy iterator over the direct children of the
// specified path, in cached (sorted) order. The iterator is finite and
// non-restartable. Children without entries (e.g. within inaccessible
// subtrees) are skipped.
func (r *Reader) Children(path string) *ChildIterator {
	parent, err := r.Get(path)
	if err != nil || parent == nil {
		return &ChildIterator{}
	}
	return &ChildIterator{
		reader: r,
		parent: parent,
	}
}

// ChildIterator lazily produces the direct child entries of a directory.
type ChildIterator struct {
	// reader is the backing snapshot.
	reader *Reader
	// parent is the entry whose children are being iterated.
	parent *core.DirEntry
	// index is the next child name index to visit.
	index int
}

// Next returns the next child entry, or nil and false when the iteration is
// exhausted.
func (i *ChildIterator) Next() (*core.DirEntry, bool) {
	for i.parent != nil && i.index < len(i.parent.Children) {
		name := i.parent.Children[i.index]
		i.index++
		child, err := i.reader.Get(filesystem.Join(i.parent.Path, name))
		if err != nil || child == nil {
			continue
		}
		return child, true
	}
	return nil, false
}
