// Package cache implements the persistent directory map: a path-keyed store
// of directory entries with staged writes, O(1) random reads, and atomic
// commits.
package cache

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mutagen-io/ptree/pkg/core"
	"github.com/mutagen-io/ptree/pkg/filesystem"
	"github.com/mutagen-io/ptree/pkg/logging"
	"github.com/mutagen-io/ptree/pkg/must"
)

// DefaultFlushThreshold is the number of staged entries after which the
// store performs an internal flush to bound memory usage.
const DefaultFlushThreshold = 10000

// generation represents one committed snapshot: its metadata, its in-memory
// path → offset index, and an open handle onto its data file. Generations
// are immutable once constructed; point-in-time readers hold a reference to
// the generation that was current when they were created.
type generation struct {
	// meta is the snapshot's metadata.
	meta core.CacheMeta
	// offsets maps canonical entry paths to data file offsets.
	offsets map[string]uint64
	// data is the open data file, or nil for an empty store.
	data *os.File
}

// get reads a single entry record from the generation.
func (g *generation) get(path string) (*core.DirEntry, error) {
	if g.data == nil {
		return nil, nil
	}
	offset, ok := g.offsets[path]
	if !ok {
		return nil, nil
	}
	entry := &core.DirEntry{}
	if _, err := readRecordAt(g.data, offset, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Store is the persistent directory map. It supports many concurrent
// readers and a single writer at a time, with writes staged in memory and
// installed durably only by Commit.
type Store struct {
	// directory is the cache directory containing the index and data files.
	directory string
	// logger is the store's logger.
	logger *logging.Logger
	// flushThreshold is the number of staged entries that triggers an
	// internal flush.
	flushThreshold int
	// lock serializes writers and protects the fields below.
	lock sync.RWMutex
	// current is the committed generation.
	current *generation
	// overlay holds entries flushed since the last commit.
	overlay map[string]*core.DirEntry
	// tombstones marks paths deleted since the last commit.
	tombstones map[string]bool
	// stagedPuts holds buffered puts, coalesced by path.
	stagedPuts map[string]*core.DirEntry
	// stagedRemovals holds buffered subtree removal roots in staging order.
	stagedRemovals []string
	// retired holds data file handles from superseded generations. They
	// remain open (for the benefit of extant readers) until the store
	// itself is closed.
	retired []*os.File
}

// Open opens the cache store rooted at the specified directory. A missing
// cache yields an empty store; a cache written by an older format version
// also yields an empty store (forcing a full re-scan); a cache written by a
// newer format version or undecodable state yields an error wrapping
// ErrCacheCorrupt.
func Open(directory string, logger *logging.Logger) (*Store, error) {
	// Create the store shell.
	store := &Store{
		directory:      directory,
		logger:         logger,
		flushThreshold: DefaultFlushThreshold,
		current:        &generation{offsets: make(map[string]uint64)},
		overlay:        make(map[string]*core.DirEntry),
		tombstones:     make(map[string]bool),
		stagedPuts:     make(map[string]*core.DirEntry),
	}

	// Attempt to open the data file. Absence means an empty store.
	data, err := os.Open(filepath.Join(directory, DataFileName))
	if os.IsNotExist(err) {
		return store, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "unable to open cache data file")
	}

	// Read the data file header.
	var meta core.CacheMeta
	if _, err := readRecordAt(data, 0, &meta); err != nil {
		must.Close(data, logger)
		return nil, err
	}

	// Enforce format version compatibility. A newer version is a hard
	// error; an older version discards the snapshot and forces a re-scan.
	if meta.FormatVersion > core.FormatVersion {
		must.Close(data, logger)
		return nil, errors.Wrapf(ErrCacheCorrupt,
			"cache format version %d exceeds supported version %d",
			meta.FormatVersion, core.FormatVersion,
		)
	} else if meta.FormatVersion < core.FormatVersion {
		logger.Printf("discarding cache with stale format version %d", meta.FormatVersion)
		must.Close(data, logger)
		return store, nil
	}

	// Load the index, falling back to an index rebuild if it's missing or
	// names a different snapshot than the data file (which can happen if a
	// commit was interrupted between its two renames).
	offsets, err := loadOffsets(filepath.Join(directory, IndexFileName), meta.SnapshotID)
	if err != nil {
		must.Close(data, logger)
		return nil, err
	} else if offsets == nil {
		logger.Println("index out of sync with data file, rebuilding")
		size, err := data.Seek(0, io.SeekEnd)
		if err != nil {
			must.Close(data, logger)
			return nil, errors.Wrap(err, "unable to determine data file size")
		}
		if offsets, err = rebuildOffsets(data, size); err != nil {
			must.Close(data, logger)
			return nil, err
		}
	}

	// Install the generation.
	store.current = &generation{
		meta:    meta,
		offsets: offsets,
		data:    data,
	}

	// Success.
	return store, nil
}

// loadOffsets reads the index file and returns its offset map if it matches
// the specified snapshot identifier. It returns a nil map (and no error) if
// the index is absent or names a different snapshot, and an error wrapping
// ErrCacheCorrupt if the index is present but undecodable.
func loadOffsets(path, snapshotID string) (map[string]uint64, error) {
	// Read and decode the index file.
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "unable to read cache index file")
	}
	var decoded index
	if err := decodeIndex(data, &decoded); err != nil {
		return nil, err
	}

	// Verify that the index describes the same snapshot as the data file.
	if decoded.Meta.SnapshotID != snapshotID {
		return nil, nil
	}

	// Verify structural sanity.
	if len(decoded.Paths) != len(decoded.Offsets) {
		return nil, errors.Wrap(ErrCacheCorrupt, "index path and offset counts differ")
	}

	// Convert the parallel slices to a map.
	offsets := make(map[string]uint64, len(decoded.Paths))
	for i, p := range decoded.Paths {
		offsets[p] = decoded.Offsets[i]
	}

	// Success.
	return offsets, nil
}

// Meta returns the metadata of the committed snapshot.
func (s *Store) Meta() core.CacheMeta {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.current.meta
}

// Empty returns true if the store holds no entries, committed or staged.
func (s *Store) Empty() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.current.offsets) == 0 && len(s.overlay) == 0 && len(s.stagedPuts) == 0
}

// EntryCount returns the number of live (flushed) entries.
func (s *Store) EntryCount() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.livePathsLocked())
}

// Get returns the entry for the specified canonical path, or nil if no such
// entry exists. Staged puts are visible to Get so that read-modify-write
// sequences (as performed by the journal reconciler) observe their own
// writes. The read itself is O(1): a length prefix read and a single record
// decode.
func (s *Store) Get(path string) (*core.DirEntry, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.getLocked(path)
}

// getLocked implements Get with the store lock held (in either mode).
func (s *Store) getLocked(path string) (*core.DirEntry, error) {
	if entry, ok := s.stagedPuts[path]; ok {
		return entry, nil
	}
	if entry, ok := s.overlay[path]; ok {
		return entry, nil
	}
	if s.tombstones[path] {
		return nil, nil
	}
	return s.current.get(path)
}

// Put stages an entry for the specified path. Repeated puts for the same
// path coalesce to the last write. If the number of staged entries reaches
// the flush threshold, an internal flush is performed to bound memory.
func (s *Store) Put(path string, entry *core.DirEntry) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	// Stage the entry.
	s.stagedPuts[path] = entry

	// Flush internally if staging has grown too large.
	if len(s.stagedPuts) >= s.flushThreshold {
		return s.flushLocked()
	}

	// Success.
	return nil
}

// RemoveSubtree marks the specified path and every descendant reachable via
// child lists for deletion on the next flush. Staged puts within the
// subtree are discarded immediately; the removal root is resolved against
// the flushed view at flush time.
func (s *Store) RemoveSubtree(path string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	// Discard staged puts within the subtree.
	for staged := range s.stagedPuts {
		if filesystem.IsPathPrefix(staged, path) {
			delete(s.stagedPuts, staged)
		}
	}

	// Record the removal root.
	s.stagedRemovals = append(s.stagedRemovals, path)
}

// Flush applies all staged puts and removals to the live in-memory
// structures. It is idempotent and does not touch durable state.
func (s *Store) Flush() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.flushLocked()
}

// flushLocked implements Flush with the store lock held for writing.
// Removals are applied before puts: RemoveSubtree discards staged puts
// under its root at staging time, so any put still staged for a removed
// path was issued after the removal and must survive it.
func (s *Store) flushLocked() error {
	// Apply staged removals.
	for _, root := range s.stagedRemovals {
		if err := s.removeLocked(root); err != nil {
			return err
		}
	}
	s.stagedRemovals = nil

	// Apply staged puts.
	for path, entry := range s.stagedPuts {
		s.overlay[path] = entry
		delete(s.tombstones, path)
	}
	s.stagedPuts = make(map[string]*core.DirEntry)

	// Success.
	return nil
}

// removeLocked deletes the specified path and all of its descendants
// (reached via child lists) from the live view.
func (s *Store) removeLocked(root string) error {
	// Walk the subtree iteratively, tombstoning as we go.
	pending := []string{root}
	for len(pending) > 0 {
		path := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		// Look up the entry (if any) to find its children.
		entry, err := s.getLocked(path)
		if err != nil {
			return err
		}

		// Tombstone the path.
		delete(s.overlay, path)
		s.tombstones[path] = true

		// Queue children.
		if entry != nil {
			for _, name := range entry.Children {
				pending = append(pending, filesystem.Join(path, name))
			}
		}
	}

	// Success.
	return nil
}

// livePathsLocked computes the sorted list of live entry paths with the
// store lock held (in either mode).
func (s *Store) livePathsLocked() []string {
	paths := make([]string, 0, len(s.current.offsets)+len(s.overlay))
	for path := range s.current.offsets {
		if !s.tombstones[path] {
			if _, overridden := s.overlay[path]; !overridden {
				paths = append(paths, path)
			}
		}
	}
	for path := range s.overlay {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Commit flushes all staged state and durably installs the resulting map as
// the new committed snapshot, using temporary files swapped into place by
// rename so that an interrupted commit leaves a fully readable snapshot
// behind. The provided metadata is written atomically together with the
// entry map; its format version and snapshot identifier are assigned here.
func (s *Store) Commit(meta core.CacheMeta) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	// Apply staged state.
	if err := s.flushLocked(); err != nil {
		return err
	}

	// Stamp the metadata.
	meta.FormatVersion = core.FormatVersion
	meta.SnapshotID = uuid.NewString()
	if err := meta.EnsureValid(); err != nil {
		return errors.Wrap(err, "invalid cache metadata")
	}

	// Ensure that the cache directory exists.
	if err := os.MkdirAll(s.directory, 0700); err != nil {
		return errors.Wrap(err, "unable to create cache directory")
	}

	// Write the temporary data file, tracking record offsets. The temporary
	// names are fixed (a single process owns the cache directory), and
	// readers tolerate them as brief transients.
	dataPath := filepath.Join(s.directory, DataFileName)
	indexPath := filepath.Join(s.directory, IndexFileName)
	temporaryData, err := os.Create(dataPath + ".tmp")
	if err != nil {
		return errors.Wrap(err, "unable to create temporary data file")
	}
	paths := s.livePathsLocked()
	newIndex := index{
		Meta:    meta,
		Paths:   make([]string, 0, len(paths)),
		Offsets: make([]uint64, 0, len(paths)),
	}
	offset, err := writeRecord(temporaryData, &meta)
	if err == nil {
		for _, path := range paths {
			var entry *core.DirEntry
			if entry, err = s.getLocked(path); err != nil {
				break
			} else if entry == nil {
				continue
			}
			var size uint64
			if size, err = writeRecord(temporaryData, entry); err != nil {
				break
			}
			newIndex.Paths = append(newIndex.Paths, path)
			newIndex.Offsets = append(newIndex.Offsets, offset)
			offset += size
		}
	}
	if err == nil {
		err = temporaryData.Sync()
	}
	if err != nil {
		must.Close(temporaryData, s.logger)
		must.OSRemove(temporaryData.Name(), s.logger)
		return errors.Wrap(err, "unable to write temporary data file")
	}
	if err := temporaryData.Close(); err != nil {
		must.OSRemove(temporaryData.Name(), s.logger)
		return errors.Wrap(err, "unable to close temporary data file")
	}

	// Write the temporary index file.
	indexData, err := encodeIndex(&newIndex)
	if err != nil {
		must.OSRemove(temporaryData.Name(), s.logger)
		return errors.Wrap(err, "unable to encode index")
	}
	temporaryIndex, err := os.Create(indexPath + ".tmp")
	if err != nil {
		must.OSRemove(temporaryData.Name(), s.logger)
		return errors.Wrap(err, "unable to create temporary index file")
	}
	if _, err := temporaryIndex.Write(indexData); err == nil {
		err = temporaryIndex.Sync()
	}
	if err != nil {
		must.Close(temporaryIndex, s.logger)
		must.OSRemove(temporaryIndex.Name(), s.logger)
		must.OSRemove(temporaryData.Name(), s.logger)
		return errors.Wrap(err, "unable to write temporary index file")
	}
	if err := temporaryIndex.Close(); err != nil {
		must.OSRemove(temporaryIndex.Name(), s.logger)
		must.OSRemove(temporaryData.Name(), s.logger)
		return errors.Wrap(err, "unable to close temporary index file")
	}

	// Swap the new files into place. The data file rename is the commit
	// point: its snapshot is complete and self-describing, so a crash
	// before the index rename leaves a readable snapshot whose index is
	// rebuilt on the next open.
	if err := os.Rename(temporaryData.Name(), dataPath); err != nil {
		must.OSRemove(temporaryIndex.Name(), s.logger)
		must.OSRemove(temporaryData.Name(), s.logger)
		return errors.Wrap(err, "unable to install data file")
	}
	if err := os.Rename(temporaryIndex.Name(), indexPath); err != nil {
		must.OSRemove(temporaryIndex.Name(), s.logger)
		return errors.Wrap(err, "unable to install index file")
	}

	// Reopen the installed data file as the new generation. Readers created
	// against the previous generation continue to use its (still open)
	// handle, so the old handle is retired rather than closed.
	data, err := os.Open(dataPath)
	if err != nil {
		return errors.Wrap(err, "unable to reopen committed data file")
	}
	offsets := make(map[string]uint64, len(newIndex.Paths))
	for i, path := range newIndex.Paths {
		offsets[path] = newIndex.Offsets[i]
	}
	if s.current.data != nil {
		s.retired = append(s.retired, s.current.data)
	}
	s.current = &generation{
		meta:    meta,
		offsets: offsets,
		data:    data,
	}
	s.overlay = make(map[string]*core.DirEntry)
	s.tombstones = make(map[string]bool)

	// Success.
	return nil
}

// RemoveFiles removes the cache's on-disk files from the specified
// directory. Absent files are not an error. It must not be called while a
// store has the directory open.
func RemoveFiles(directory string) error {
	for _, name := range []string{IndexFileName, DataFileName} {
		if err := os.Remove(filepath.Join(directory, name)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "unable to remove %s", name)
		}
	}
	return nil
}

// Close releases the store's file handles, including those retained for
// superseded generations.
func (s *Store) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.current.data != nil {
		must.Close(s.current.data, s.logger)
		s.current.data = nil
	}
	for _, retired := range s.retired {
		must.Close(retired, s.logger)
	}
	s.retired = nil
	return nil
}
