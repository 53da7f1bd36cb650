package scan

import (
	"context"
	"time"

	"github.com/mutagen-io/ptree/pkg/cache"
	"github.com/mutagen-io/ptree/pkg/core"
	"github.com/mutagen-io/ptree/pkg/filesystem"
	"github.com/mutagen-io/ptree/pkg/filter"
	"github.com/mutagen-io/ptree/pkg/logging"
	"github.com/mutagen-io/ptree/pkg/state"
)

// enumerationRetryDelay is the backoff applied before retrying a directory
// enumeration that failed with a transient I/O error. A second failure
// escalates to a skip.
const enumerationRetryDelay = 50 * time.Millisecond

// walker is a single worker of the parallel walk. Each walker owns its OS
// thread's share of the work: it repeatedly claims a directory, enumerates
// it, classifies its children through the filter, feeds directory children
// back to the coordinator, and stages the resulting entry into the cache.
type walker struct {
	// coordinator is the shared work coordinator.
	coordinator *coordinator
	// store is the cache store receiving staged entries.
	store *cache.Store
	// filter is the shared path filter.
	filter *filter.Filter
	// stats is the shared telemetry sink.
	stats *Stats
	// tracker publishes walk progress.
	tracker *state.Tracker
	// logger is the walker's logger.
	logger *logging.Logger
}

// run processes work until the coordinator terminates or the context is
// cancelled. On cancellation, claimed paths are released without
// enumeration so that the walk drains promptly and nothing further is
// staged.
func (w *walker) run(ctx context.Context) error {
	for {
		// Claim the next directory.
		path, ok := w.coordinator.acquire()
		if !ok {
			return nil
		}

		// Check for cancellation once per claimed directory.
		if ctx.Err() != nil {
			w.coordinator.release(path)
			continue
		}

		// Process the directory and release the claim.
		if err := w.process(path); err != nil {
			w.coordinator.release(path)
			return err
		}
		w.coordinator.release(path)
	}
}

// enumerate performs the directory enumeration with the per-directory retry
// policy: transient I/O errors are retried once after a small backoff,
// while permission and name errors are never retried.
func (w *walker) enumerate(path string) ([]filesystem.Content, time.Time, error) {
	contents, modified, err := filesystem.EnumerateDirectory(path)
	if err == nil || filesystem.IsPermissionError(err) || filesystem.IsNameError(err) {
		return contents, modified, err
	}
	w.stats.Retries.Add(1)
	time.Sleep(enumerationRetryDelay)
	return filesystem.EnumerateDirectory(path)
}

// process enumerates a single directory and stages its entry. Enumeration
// failures degrade to an empty entry (so that the parent's child listing
// retains referential closure) and are counted; only store failures
// propagate, since they indicate that the scan cannot usefully continue.
func (w *walker) process(path string) error {
	// Enumerate the directory.
	contents, modified, err := w.enumerate(path)
	if err != nil {
		// Classify and count the failure, then record an empty entry so
		// that the directory remains resolvable as its parent's child.
		if filesystem.IsPermissionError(err) {
			w.stats.SkippedPermission.Add(1)
		} else if filesystem.IsNameError(err) {
			w.stats.SkippedName.Add(1)
		} else {
			w.stats.SkippedPermission.Add(1)
			w.logger.Debugf("unable to enumerate %s: %v", path, err)
		}
		return w.stage(&core.DirEntry{
			Path:     path,
			Name:     filesystem.Name(path),
			Modified: time.Now().UTC().UnixNano(),
		})
	}

	// Classify children, collecting recorded names and skipped links.
	var childNames []string
	var skippedLinks []string
	for _, content := range contents {
		// Non-directory content is invisible to the map.
		if content.Kind == filesystem.ContentKindOther ||
			content.Kind == filesystem.ContentKindProblematic {
			continue
		}

		// Consult the filter.
		childPath := filesystem.Join(path, content.Name)
		switch w.filter.Evaluate(childPath, content) {
		case filter.DecisionWalk:
			childNames = append(childNames, content.Name)
			w.coordinator.submit(childPath)
		case filter.DecisionSkipSymbolicLink:
			childNames = append(childNames, content.Name)
			skippedLinks = append(skippedLinks, content.Name)
			w.stats.SymbolicLinksSkipped.Add(1)
		case filter.DecisionSkipName, filter.DecisionSkipHidden:
			w.stats.SkippedFiltered.Add(1)
		}
	}

	// Sort the recorded child names.
	core.SortNames(childNames)

	// Stage entries for skipped links. They share the parent's modification
	// time, since the enumeration doesn't yield per-link timestamps and a
	// dedicated stat call per link would defeat the single-call-per-
	// directory budget.
	for _, name := range skippedLinks {
		linkPath := filesystem.Join(path, name)
		if err := w.stage(&core.DirEntry{
			Path:                 linkPath,
			Name:                 name,
			Modified:             modified.UnixNano(),
			SymlinkTargetSkipped: true,
		}); err != nil {
			return err
		}
	}

	// Stage the directory's own entry.
	if err := w.stage(&core.DirEntry{
		Path:     path,
		Name:     filesystem.Name(path),
		Modified: modified.UnixNano(),
		Children: childNames,
	}); err != nil {
		return err
	}

	// Record progress.
	w.stats.DirectoriesWalked.Add(1)
	w.tracker.NotifyOfChange()

	// Success.
	return nil
}

// stage buffers an entry into the cache store.
func (w *walker) stage(entry *core.DirEntry) error {
	if err := w.store.Put(entry.Path, entry); err != nil {
		return err
	}
	w.stats.EntriesStaged.Add(1)
	return nil
}
