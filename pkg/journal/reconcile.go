package journal

import (
	"context"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/pkg/errors"

	"github.com/mutagen-io/ptree/pkg/cache"
	"github.com/mutagen-io/ptree/pkg/core"
	"github.com/mutagen-io/ptree/pkg/filesystem"
	"github.com/mutagen-io/ptree/pkg/filter"
	"github.com/mutagen-io/ptree/pkg/logging"
)

// referenceMemoSize bounds the file reference → path memo. The memo is an
// accelerator over the resolver, so eviction only costs an extra
// resolution.
const referenceMemoSize = 65536

// Stats tracks reconciliation telemetry. The reconciler is single-threaded,
// so plain counters suffice.
type Stats struct {
	// RecordsParsed is the number of records successfully parsed.
	RecordsParsed uint64
	// ParseErrors is the number of malformed records skipped.
	ParseErrors uint64
	// InvalidTimestamps is the number of records whose native timestamps
	// were invalid and replaced.
	InvalidTimestamps uint64
	// Creates, Deletes, Renames, and Modifies count applied semantic
	// changes.
	Creates, Deletes, Renames, Modifies uint64
	// Unresolved is the number of changes whose paths could not be
	// resolved, forcing subtree re-enumeration.
	Unresolved uint64
}

// Outcome is the result of a successful reconciliation pass.
type Outcome struct {
	// Meta is the cache metadata to commit: the prior metadata with its
	// journal position and scan time advanced.
	Meta core.CacheMeta
	// RescanRoots are canonical paths whose subtrees require
	// re-enumeration (renamed directories and unresolvable changes). They
	// are fed to the walk coordinator by the caller before committing.
	RescanRoots []string
	// Stats is the pass's telemetry.
	Stats Stats
}

// pendingRename holds the old-name half of a rename, buffered by file
// reference until the new-name record bearing the close flag arrives.
type pendingRename struct {
	// parentReference identifies the directory the object was renamed out
	// of.
	parentReference uint64
	// name is the object's old name.
	name string
}

// Reconciler applies change journal records to the cache. It holds the
// cache's write capability for the duration of a single pass.
type Reconciler struct {
	// volume is the journal access.
	volume Volume
	// resolver resolves file references to paths.
	resolver Resolver
	// store is the cache being reconciled.
	store *cache.Store
	// pathFilter decides which created directories are tracked.
	pathFilter *filter.Filter
	// logger is the reconciler's logger.
	logger *logging.Logger
	// root is the canonical volume root.
	root string
	// memo caches file reference → path resolutions.
	memo *lru.Cache
	// pendingRenames buffers old-name records by file reference.
	pendingRenames map[uint64]pendingRename
	// rescan accumulates subtree roots requiring re-enumeration.
	rescan map[string]bool
	// stats is the pass's telemetry.
	stats Stats
}

// NewReconciler creates a reconciler for a single pass over the specified
// volume and store.
func NewReconciler(
	volume Volume,
	resolver Resolver,
	store *cache.Store,
	pathFilter *filter.Filter,
	root string,
	logger *logging.Logger,
) *Reconciler {
	return &Reconciler{
		volume:         volume,
		resolver:       resolver,
		store:          store,
		pathFilter:     pathFilter,
		logger:         logger,
		root:           filesystem.Canonicalize(root),
		memo:           lru.New(referenceMemoSize),
		pendingRenames: make(map[uint64]pendingRename),
		rescan:         make(map[string]bool),
	}
}

// Run performs the reconciliation pass. It validates journal continuity
// against the provided cache metadata, reads records from the saved
// position forward, and applies directory changes in sequence order. The
// returned outcome carries the advanced metadata; the caller is responsible
// for performing any requested re-enumerations and committing the store.
func (r *Reconciler) Run(ctx context.Context, meta core.CacheMeta) (*Outcome, error) {
	// Query the journal.
	info, err := r.volume.Query()
	if err != nil {
		if errors.Is(err, ErrJournalUnavailable) {
			return nil, err
		}
		return nil, errors.Wrap(ErrJournalUnavailable, err.Error())
	}

	// Validity check: the cache is only usable incrementally if it was
	// committed against this journal instance and its position hasn't aged
	// out of the journal.
	if meta.JournalID == 0 || meta.JournalID != info.JournalID {
		return nil, errors.Wrap(ErrJournalDiscontinuous, "journal identifier changed")
	} else if meta.LastUSN < info.FirstUSN {
		return nil, errors.Wrap(ErrJournalDiscontinuous, "saved position aged out of journal")
	}

	// Read and apply records until the cursor reaches the journal's end.
	// Each read fills at most one buffer; saturated reads simply loop.
	cursor := meta.LastUSN
	buffer := make([]byte, readBufferSize)
	for cursor < info.NextUSN {
		// Check for cancellation between reads.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Read the next span.
		length, err := r.volume.Read(cursor, buffer)
		if err != nil {
			return nil, errors.Wrap(err, "unable to read change journal")
		}

		// Parse the span.
		records, next, parseErrors := ParseBuffer(buffer[:length])
		r.stats.ParseErrors += uint64(parseErrors)
		r.stats.RecordsParsed += uint64(len(records))

		// Guard against a stuck cursor.
		if next <= cursor {
			break
		}

		// Apply the records in sequence order.
		for i := range records {
			if err := r.ingest(&records[i]); err != nil {
				return nil, err
			}
		}
		cursor = next
	}

	// Assemble the outcome.
	outcome := &Outcome{
		Meta: core.CacheMeta{
			Root:      meta.Root,
			LastScan:  time.Now().UTC().UnixNano(),
			JournalID: info.JournalID,
			LastUSN:   cursor,
		},
		Stats: r.stats,
	}
	for root := range r.rescan {
		outcome.RescanRoots = append(outcome.RescanRoots, root)
	}

	// Success.
	return outcome, nil
}

// ingest processes a single parsed record. Only directory records are of
// interest, and only records bearing the close flag commit changes; an
// old-name rename record is the one non-terminal record that must be
// buffered (its close-flagged new-name counterpart doesn't repeat the old
// name).
func (r *Reconciler) ingest(record *Record) error {
	// Skip file-only records.
	if !record.IsDirectory() {
		return nil
	}

	// Track invalid timestamps.
	if record.TimestampInvalid {
		r.stats.InvalidTimestamps++
	}

	// Buffer old-name rename halves by file reference.
	if record.Reason&ReasonRenameOldName != 0 && record.Reason&ReasonRenameNewName == 0 {
		r.pendingRenames[record.FileReference] = pendingRename{
			parentReference: record.ParentReference,
			name:            record.Name,
		}
	}

	// The close flag is the commit point.
	if record.Reason&ReasonClose == 0 {
		return nil
	}

	// Translate the accumulated reason mask to a semantic change and apply
	// it.
	if record.Reason&ReasonFileCreate != 0 {
		return r.applyCreate(record)
	} else if record.Reason&ReasonFileDelete != 0 {
		return r.applyDelete(record)
	} else if record.Reason&ReasonRenameNewName != 0 {
		return r.applyRename(record)
	} else if record.Reason&reasonModifyMask != 0 {
		return r.applyModify(record)
	}
	return nil
}

// resolveReference resolves a file reference to a canonical path, using the
// memo before falling back to the resolver. On failure, the affected
// subtree cannot be located, so the volume root is queued for
// re-enumeration and false is returned.
func (r *Reconciler) resolveReference(reference uint64) (string, bool) {
	// Consult the memo.
	if path, ok := r.memo.Get(reference); ok {
		return path.(string), true
	}

	// Fall back to the resolver.
	path, err := r.resolver.ResolvePath(reference)
	if err != nil {
		r.stats.Unresolved++
		r.rescan[r.root] = true
		r.logger.Debugf("unable to resolve file reference %d: %v", reference, err)
		return "", false
	}
	path = filesystem.Canonicalize(path)
	r.memo.Add(reference, path)
	return path, true
}

// locate computes the canonical path of a record's subject from its parent
// reference and name, returning false if the parent cannot be resolved or
// the path falls outside of the reconciled volume.
func (r *Reconciler) locate(parentReference uint64, name string) (string, bool) {
	parentPath, ok := r.resolveReference(parentReference)
	if !ok {
		return "", false
	}
	path := filesystem.Join(parentPath, name)
	if !filesystem.IsPathPrefix(path, r.root) {
		return "", false
	}
	return path, true
}

// applyCreate applies a directory creation.
func (r *Reconciler) applyCreate(record *Record) error {
	if err := r.track(record); err != nil {
		return err
	}
	r.stats.Creates++
	return nil
}

// track installs a directory (or directory-targeting link) into the map:
// the parent's child listing gains the name and an entry is created for the
// path. It is shared by creation and rename application.
func (r *Reconciler) track(record *Record) error {
	// Locate the new directory.
	path, ok := r.locate(record.ParentReference, record.Name)
	if !ok {
		return nil
	}

	// Consult the filter using the attribute information carried by the
	// record. Filter-excluded directories stay untracked.
	content := filesystem.Content{
		Name:   record.Name,
		Kind:   filesystem.ContentKindDirectory,
		Hidden: record.Attributes&attributeHidden != 0,
		System: record.Attributes&attributeSystem != 0,
	}
	symbolicLink := record.Attributes&attributeReparsePoint != 0
	if symbolicLink {
		content.Kind = filesystem.ContentKindSymbolicLinkToDirectory
	}
	decision := r.pathFilter.Evaluate(path, content)
	if decision == filter.DecisionSkipName || decision == filter.DecisionSkipHidden {
		return nil
	}

	// Look up the parent entry. A missing parent means the subtree is
	// untracked (filtered or inaccessible), in which case the change is
	// invisible to the map.
	parentPath, _ := filesystem.Split(path)
	parent, err := r.store.Get(parentPath)
	if err != nil {
		return err
	} else if parent == nil {
		return nil
	}

	// Install the child in the parent's listing and create its entry.
	if err := r.store.Put(parentPath, parent.WithChild(record.Name)); err != nil {
		return err
	}
	if err := r.store.Put(path, &core.DirEntry{
		Path:                 path,
		Name:                 record.Name,
		Modified:             record.Timestamp,
		SymlinkTargetSkipped: symbolicLink,
	}); err != nil {
		return err
	}

	// Memoize the new directory's reference.
	r.memo.Add(record.FileReference, path)

	// Success.
	return nil
}

// applyDelete applies a directory deletion.
func (r *Reconciler) applyDelete(record *Record) error {
	// Locate the deleted directory.
	path, ok := r.locate(record.ParentReference, record.Name)
	if !ok {
		return nil
	}

	// Look up the parent entry. A missing parent means the subtree is
	// untracked.
	parentPath, _ := filesystem.Split(path)
	parent, err := r.store.Get(parentPath)
	if err != nil {
		return err
	} else if parent == nil {
		return nil
	}

	// Remove the subtree and the parent's listing of it.
	r.store.RemoveSubtree(path)
	if err := r.store.Put(parentPath, parent.WithoutChild(record.Name)); err != nil {
		return err
	}

	// Drop the stale memoization.
	r.memo.Remove(record.FileReference)
	r.stats.Deletes++

	// Success.
	return nil
}

// applyRename applies a directory rename: a subtree removal at the old
// path (paired from the buffered old-name record) and a creation at the new
// path, with the new subtree queued for re-enumeration since its descendant
// listing isn't carried by the journal.
func (r *Reconciler) applyRename(record *Record) error {
	// Apply the old-path removal if the old-name half was observed.
	if old, ok := r.pendingRenames[record.FileReference]; ok {
		delete(r.pendingRenames, record.FileReference)
		if oldPath, located := r.locate(old.parentReference, old.name); located {
			oldParentPath, _ := filesystem.Split(oldPath)
			oldParent, err := r.store.Get(oldParentPath)
			if err != nil {
				return err
			}
			if oldParent != nil {
				r.store.RemoveSubtree(oldPath)
				if err := r.store.Put(oldParentPath, oldParent.WithoutChild(old.name)); err != nil {
					return err
				}
			}
		}
	}

	// Drop the stale memoization before re-creating under the new path.
	r.memo.Remove(record.FileReference)

	// Apply the new-path creation.
	if err := r.track(record); err != nil {
		return err
	}

	// Queue the moved subtree for re-enumeration if it's now tracked.
	if path, ok := r.memo.Get(record.FileReference); ok {
		r.rescan[path.(string)] = true
	}
	r.stats.Renames++

	// Success.
	return nil
}

// applyModify applies a metadata-only modification to an existing entry.
func (r *Reconciler) applyModify(record *Record) error {
	// Locate the directory.
	path, ok := r.locate(record.ParentReference, record.Name)
	if !ok {
		return nil
	}

	// Look up the entry. Untracked directories are ignored.
	entry, err := r.store.Get(path)
	if err != nil {
		return err
	} else if entry == nil {
		return nil
	}

	// Update the modification time.
	updated := entry.Copy()
	updated.Modified = record.Timestamp
	if err := r.store.Put(path, updated); err != nil {
		return err
	}
	r.stats.Modifies++

	// Success.
	return nil
}
