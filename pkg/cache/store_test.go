package cache

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"

	"github.com/mutagen-io/ptree/pkg/core"
	"github.com/mutagen-io/ptree/pkg/filesystem"
	"github.com/mutagen-io/ptree/pkg/logging"
)

// testMeta creates commit metadata for the specified root.
func testMeta(root string) core.CacheMeta {
	return core.CacheMeta{
		Root:     root,
		LastScan: time.Now().UTC().UnixNano(),
	}
}

// testEntry creates a directory entry with sorted children.
func testEntry(path string, children ...string) *core.DirEntry {
	entry := &core.DirEntry{
		Path:     path,
		Name:     filesystem.Name(path),
		Modified: time.Now().UTC().UnixNano(),
		Children: children,
	}
	core.SortNames(entry.Children)
	return entry
}

// populate stages a set of entries into a store.
func populate(t *testing.T, store *Store, entries ...*core.DirEntry) {
	t.Helper()
	for _, entry := range entries {
		if err := store.Put(entry.Path, entry); err != nil {
			t.Fatalf("unable to stage entry: %v", err)
		}
	}
}

// entryDiff compares entries, treating nil and empty child lists as equal
// (the serialization format doesn't distinguish them).
func entryDiff(expected, actual *core.DirEntry) string {
	return cmp.Diff(expected, actual, cmpopts.EquateEmpty())
}

// TestOpenAbsent verifies that an absent cache yields an empty store.
func TestOpenAbsent(t *testing.T) {
	store, err := Open(t.TempDir(), logging.RootLogger)
	if err != nil {
		t.Fatalf("unable to open absent cache: %v", err)
	}
	defer store.Close()
	if !store.Empty() {
		t.Error("expected empty store")
	}
}

// TestStagingVisibilityAndCoalescing verifies staged write visibility and
// last-write-wins coalescing.
func TestStagingVisibilityAndCoalescing(t *testing.T) {
	store, err := Open(t.TempDir(), logging.RootLogger)
	if err != nil {
		t.Fatalf("unable to open store: %v", err)
	}
	defer store.Close()

	// Stage two writes for the same path.
	first := testEntry("V:\\A")
	second := testEntry("V:\\A", "sub")
	populate(t, store, first, second)

	// Verify that the last write wins.
	entry, err := store.Get("V:\\A")
	if err != nil {
		t.Fatalf("unable to read staged entry: %v", err)
	}
	if diff := entryDiff(second, entry); diff != "" {
		t.Errorf("unexpected staged entry:\n%s", diff)
	}

	// Flush and verify again.
	if err := store.Flush(); err != nil {
		t.Fatalf("unable to flush: %v", err)
	}
	entry, err = store.Get("V:\\A")
	if err != nil {
		t.Fatalf("unable to read flushed entry: %v", err)
	}
	if diff := entryDiff(second, entry); diff != "" {
		t.Errorf("unexpected flushed entry:\n%s", diff)
	}
}

// TestCommitRoundTrip verifies that a committed map reopens with identical
// content and metadata.
func TestCommitRoundTrip(t *testing.T) {
	directory := t.TempDir()
	store, err := Open(directory, logging.RootLogger)
	if err != nil {
		t.Fatalf("unable to open store: %v", err)
	}

	// Stage a small map and commit it.
	root := testEntry("V:\\", "A", "B")
	a := testEntry("V:\\A")
	b := testEntry("V:\\B")
	populate(t, store, root, a, b)
	if err := store.Commit(testMeta("V:\\")); err != nil {
		t.Fatalf("unable to commit: %v", err)
	}
	meta := store.Meta()
	if err := store.Close(); err != nil {
		t.Fatalf("unable to close store: %v", err)
	}

	// Reopen and verify content and metadata.
	reopened, err := Open(directory, logging.RootLogger)
	if err != nil {
		t.Fatalf("unable to reopen store: %v", err)
	}
	defer reopened.Close()
	if diff := cmp.Diff(meta, reopened.Meta()); diff != "" {
		t.Errorf("metadata changed across reopen:\n%s", diff)
	}
	for _, expected := range []*core.DirEntry{root, a, b} {
		entry, err := reopened.Get(expected.Path)
		if err != nil {
			t.Fatalf("unable to read %s: %v", expected.Path, err)
		}
		if diff := entryDiff(expected, entry); diff != "" {
			t.Errorf("entry %s changed across reopen:\n%s", expected.Path, diff)
		}
	}
	if count := reopened.EntryCount(); count != 3 {
		t.Errorf("unexpected entry count: %d", count)
	}
}

// TestRemoveSubtree verifies recursive removal via child lists.
func TestRemoveSubtree(t *testing.T) {
	store, err := Open(t.TempDir(), logging.RootLogger)
	if err != nil {
		t.Fatalf("unable to open store: %v", err)
	}
	defer store.Close()

	// Build a three-level tree and commit it.
	populate(t, store,
		testEntry("V:\\", "A", "B"),
		testEntry("V:\\A", "deep"),
		testEntry("V:\\A\\deep"),
		testEntry("V:\\B"),
	)
	if err := store.Commit(testMeta("V:\\")); err != nil {
		t.Fatalf("unable to commit: %v", err)
	}

	// Remove the A subtree and update the root's listing.
	store.RemoveSubtree("V:\\A")
	rootEntry, err := store.Get("V:\\")
	if err != nil {
		t.Fatalf("unable to read root: %v", err)
	}
	populate(t, store, rootEntry.WithoutChild("A"))
	if err := store.Flush(); err != nil {
		t.Fatalf("unable to flush: %v", err)
	}

	// Verify that the subtree is gone and the sibling survives.
	for _, path := range []string{"V:\\A", "V:\\A\\deep"} {
		if entry, err := store.Get(path); err != nil {
			t.Fatalf("unable to read %s: %v", path, err)
		} else if entry != nil {
			t.Errorf("entry %s survived subtree removal", path)
		}
	}
	if entry, err := store.Get("V:\\B"); err != nil || entry == nil {
		t.Errorf("sibling entry lost by subtree removal (%v)", err)
	}
}

// TestRemoveThenRecreate verifies that a put staged after a subtree removal
// survives the flush.
func TestRemoveThenRecreate(t *testing.T) {
	store, err := Open(t.TempDir(), logging.RootLogger)
	if err != nil {
		t.Fatalf("unable to open store: %v", err)
	}
	defer store.Close()

	// Commit a directory.
	populate(t, store, testEntry("V:\\", "A"), testEntry("V:\\A", "old"))
	if err := store.Commit(testMeta("V:\\")); err != nil {
		t.Fatalf("unable to commit: %v", err)
	}

	// Remove it and recreate it (as happens when a delete and create pair
	// arrives in one reconciliation batch), then flush.
	store.RemoveSubtree("V:\\A")
	recreated := testEntry("V:\\A")
	populate(t, store, recreated)
	if err := store.Flush(); err != nil {
		t.Fatalf("unable to flush: %v", err)
	}

	// The recreated entry must survive, without its old children.
	entry, err := store.Get("V:\\A")
	if err != nil {
		t.Fatalf("unable to read recreated entry: %v", err)
	}
	if diff := entryDiff(recreated, entry); diff != "" {
		t.Errorf("unexpected recreated entry:\n%s", diff)
	}
}

// TestInternalFlushThreshold verifies that staging flushes itself at the
// threshold.
func TestInternalFlushThreshold(t *testing.T) {
	store, err := Open(t.TempDir(), logging.RootLogger)
	if err != nil {
		t.Fatalf("unable to open store: %v", err)
	}
	defer store.Close()
	store.flushThreshold = 4

	// Stage beyond the threshold.
	populate(t, store,
		testEntry("V:\\"),
		testEntry("V:\\A"),
		testEntry("V:\\B"),
		testEntry("V:\\C"),
		testEntry("V:\\D"),
	)

	// The staging area must have drained into the overlay.
	store.lock.RLock()
	staged := len(store.stagedPuts)
	flushed := len(store.overlay)
	store.lock.RUnlock()
	if staged >= 4 {
		t.Errorf("staging area failed to flush (%d staged)", staged)
	}
	if flushed < 4 {
		t.Errorf("overlay missing flushed entries (%d present)", flushed)
	}
}

// TestSnapshotIsolation verifies that readers are unaffected by writes
// performed after snapshot creation.
func TestSnapshotIsolation(t *testing.T) {
	store, err := Open(t.TempDir(), logging.RootLogger)
	if err != nil {
		t.Fatalf("unable to open store: %v", err)
	}
	defer store.Close()

	// Commit initial state and snapshot it.
	populate(t, store, testEntry("V:\\", "A"), testEntry("V:\\A"))
	if err := store.Commit(testMeta("V:\\")); err != nil {
		t.Fatalf("unable to commit: %v", err)
	}
	reader := store.Snapshot()

	// Mutate and commit new state.
	store.RemoveSubtree("V:\\A")
	rootEntry, _ := store.Get("V:\\")
	populate(t, store, rootEntry.WithoutChild("A"))
	if err := store.Commit(testMeta("V:\\")); err != nil {
		t.Fatalf("unable to commit mutation: %v", err)
	}

	// The old reader must still see the original state.
	if entry, err := reader.Get("V:\\A"); err != nil {
		t.Fatalf("unable to read from snapshot: %v", err)
	} else if entry == nil {
		t.Error("snapshot lost entry mutated after its creation")
	}

	// A fresh reader must see the new state.
	if entry, err := store.Snapshot().Get("V:\\A"); err != nil {
		t.Fatalf("unable to read from new snapshot: %v", err)
	} else if entry != nil {
		t.Error("new snapshot sees removed entry")
	}
}

// TestIndexRebuild verifies that a store whose index is missing (as after a
// commit interrupted between its two renames) rebuilds it from the data
// file.
func TestIndexRebuild(t *testing.T) {
	directory := t.TempDir()
	store, err := Open(directory, logging.RootLogger)
	if err != nil {
		t.Fatalf("unable to open store: %v", err)
	}
	populate(t, store, testEntry("V:\\", "A"), testEntry("V:\\A"))
	if err := store.Commit(testMeta("V:\\")); err != nil {
		t.Fatalf("unable to commit: %v", err)
	}
	store.Close()

	// Simulate the crash window by removing the index.
	if err := os.Remove(filepath.Join(directory, IndexFileName)); err != nil {
		t.Fatalf("unable to remove index: %v", err)
	}

	// Reopen and verify full content.
	reopened, err := Open(directory, logging.RootLogger)
	if err != nil {
		t.Fatalf("unable to reopen store: %v", err)
	}
	defer reopened.Close()
	if entry, err := reopened.Get("V:\\A"); err != nil || entry == nil {
		t.Errorf("entry lost after index rebuild (%v)", err)
	}
}

// TestCorruptionDetection verifies that undecodable data is reported as
// corruption, distinct from absence.
func TestCorruptionDetection(t *testing.T) {
	directory := t.TempDir()
	store, err := Open(directory, logging.RootLogger)
	if err != nil {
		t.Fatalf("unable to open store: %v", err)
	}
	populate(t, store, testEntry("V:\\"))
	if err := store.Commit(testMeta("V:\\")); err != nil {
		t.Fatalf("unable to commit: %v", err)
	}
	store.Close()

	// Scribble over the data file header.
	dataPath := filepath.Join(directory, DataFileName)
	if err := os.WriteFile(dataPath, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x00}, 0600); err != nil {
		t.Fatalf("unable to corrupt data file: %v", err)
	}

	// Reopening must report corruption.
	if _, err := Open(directory, logging.RootLogger); !errors.Is(err, ErrCacheCorrupt) {
		t.Errorf("expected corruption error, got: %v", err)
	}
}

// TestFormatVersionHandling verifies that newer snapshot versions are hard
// errors while older versions force a re-scan.
func TestFormatVersionHandling(t *testing.T) {
	build := func(t *testing.T, version uint32) string {
		directory := t.TempDir()
		store, err := Open(directory, logging.RootLogger)
		if err != nil {
			t.Fatalf("unable to open store: %v", err)
		}
		populate(t, store, testEntry("V:\\"))
		if err := store.Commit(testMeta("V:\\")); err != nil {
			t.Fatalf("unable to commit: %v", err)
		}
		store.Close()

		// Replace the header's format version. The version is the fifth
		// field of the header record's encoding (after one string and three
		// eight-byte integers), so rather than patching bytes, rewrite the
		// data file with a single re-encoded header record.
		meta := core.CacheMeta{
			Root:          "V:\\",
			LastScan:      time.Now().UTC().UnixNano(),
			FormatVersion: version,
			SnapshotID:    "test-snapshot",
		}
		data, err := os.Create(filepath.Join(directory, DataFileName))
		if err != nil {
			t.Fatalf("unable to rewrite data file: %v", err)
		}
		if _, err := writeRecord(data, &meta); err != nil {
			t.Fatalf("unable to write header: %v", err)
		}
		data.Close()
		os.Remove(filepath.Join(directory, IndexFileName))
		return directory
	}

	// A newer version must be a hard error.
	if _, err := Open(build(t, core.FormatVersion+1), logging.RootLogger); !errors.Is(err, ErrCacheCorrupt) {
		t.Errorf("expected corruption-class error for newer version, got: %v", err)
	}

	// An older version must yield an empty store (forcing a re-scan).
	store, err := Open(build(t, core.FormatVersion-1), logging.RootLogger)
	if err != nil {
		t.Fatalf("unable to open older-version cache: %v", err)
	}
	defer store.Close()
	if !store.Empty() {
		t.Error("expected empty store for older version")
	}
}

// TestRecordFraming verifies the on-disk record framing: a little-endian
// length prefix followed by the serialized record.
func TestRecordFraming(t *testing.T) {
	directory := t.TempDir()
	store, err := Open(directory, logging.RootLogger)
	if err != nil {
		t.Fatalf("unable to open store: %v", err)
	}
	populate(t, store, testEntry("V:\\"))
	if err := store.Commit(testMeta("V:\\")); err != nil {
		t.Fatalf("unable to commit: %v", err)
	}
	store.Close()

	// Read the first frame manually.
	data, err := os.ReadFile(filepath.Join(directory, DataFileName))
	if err != nil {
		t.Fatalf("unable to read data file: %v", err)
	}
	if len(data) < recordLengthSize {
		t.Fatal("data file too short for a length prefix")
	}
	length := binary.LittleEndian.Uint32(data)
	if length == 0 || int(recordLengthSize+length) > len(data) {
		t.Fatalf("invalid leading record length: %d", length)
	}

	// The framed payload must decode as the metadata header.
	var meta core.CacheMeta
	if _, err := readRecordAt(
		readerAt(data), 0, &meta,
	); err != nil {
		t.Fatalf("unable to decode header frame: %v", err)
	}
	if meta.Root != "V:\\" {
		t.Errorf("unexpected header root: %s", meta.Root)
	}
}

// readerAt adapts a byte slice to io.ReaderAt for framing tests.
type readerAt []byte

func (r readerAt) ReadAt(buffer []byte, offset int64) (int, error) {
	if offset >= int64(len(r)) {
		return 0, os.ErrInvalid
	}
	n := copy(buffer, r[offset:])
	if n < len(buffer) {
		return n, os.ErrInvalid
	}
	return n, nil
}
