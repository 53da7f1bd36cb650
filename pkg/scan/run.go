package scan

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/mutagen-io/ptree/pkg/cache"
	"github.com/mutagen-io/ptree/pkg/configuration"
	"github.com/mutagen-io/ptree/pkg/core"
	"github.com/mutagen-io/ptree/pkg/filter"
	"github.com/mutagen-io/ptree/pkg/journal"
	"github.com/mutagen-io/ptree/pkg/logging"
	"github.com/mutagen-io/ptree/pkg/state"
)

// FreshnessThreshold is the cache age below which a run reports a fresh
// cache and starts no workers (unless forced or reconciling).
const FreshnessThreshold = time.Hour

// Result describes a completed run.
type Result struct {
	// Store is the opened cache store. The caller owns its closure.
	Store *cache.Store
	// Reader is a snapshot of the resulting committed state.
	Reader *cache.Reader
	// Stats is the walk telemetry, if any walking occurred.
	Stats *Stats
	// JournalStats is the reconciliation telemetry, if reconciliation
	// occurred.
	JournalStats *journal.Stats
	// Fresh indicates that the cache was fresh and no work was performed.
	Fresh bool
	// Reconciled indicates that the cache was updated incrementally.
	Reconciled bool
	// FullWalk indicates that a full walk was performed.
	FullWalk bool
}

// Run executes the cache-first pipeline for a single invocation: open the
// cache, report it fresh, reconcile it against the volume's change journal,
// or re-walk the volume, committing any new state atomically. The returned
// result carries the store (which the caller must close) and a snapshot
// reader over the final state.
func Run(
	ctx context.Context,
	config *configuration.Configuration,
	cacheDirectory string,
	tracker *state.Tracker,
	logger *logging.Logger,
) (*Result, error) {
	// Validate the configuration.
	if err := config.EnsureValid(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	// Validate the volume root.
	root, err := ValidateRoot(config.Root())
	if err != nil {
		return nil, err
	}

	// Construct the path filter.
	pathFilter, err := filter.New(config.Admin, config.Hidden, config.SkipExtra)
	if err != nil {
		return nil, errors.Wrap(err, "invalid skip configuration")
	}

	// Open the cache store. With force set, a corrupt cache is removed and
	// rebuilt rather than surfaced.
	store, err := cache.Open(cacheDirectory, logger.Sublogger("cache"))
	if err != nil && config.Force && errors.Is(err, cache.ErrCacheCorrupt) {
		logger.Printf("removing corrupt cache: %v", err)
		if err := cache.RemoveFiles(cacheDirectory); err != nil {
			return nil, err
		}
		store, err = cache.Open(cacheDirectory, logger.Sublogger("cache"))
	}
	if err != nil {
		return nil, err
	}
	result := &Result{Store: store}

	// Determine whether the committed state is usable for this volume.
	meta := store.Meta()
	cacheMatches := !store.Empty() && meta.Root == root

	// Freshness fast path: a young matching cache requires no work unless
	// the caller forces a walk or requests reconciliation.
	if cacheMatches && !config.Force && !config.Incremental &&
		time.Since(meta.LastScanTime()) < FreshnessThreshold {
		result.Fresh = true
		result.Reader = store.Snapshot()
		return result, nil
	}

	// Incremental path: reconcile against the change journal, falling back
	// to a full walk on unavailability or discontinuity.
	if config.Incremental && !config.Force && cacheMatches {
		journalStats, walkStats, err := reconcile(ctx, root, store, pathFilter, config, tracker, logger)
		if err == nil {
			result.Reconciled = true
			result.JournalStats = journalStats
			result.Stats = walkStats
			result.Reader = store.Snapshot()
			return result, nil
		} else if errors.Is(err, journal.ErrJournalUnavailable) || errors.Is(err, journal.ErrJournalDiscontinuous) {
			logger.Printf("falling back to full walk: %v", err)
		} else {
			return nil, err
		}
	}

	// Capture the journal position before walking so that changes racing
	// the walk replay on the next reconciliation rather than being lost.
	var journalID uint64
	var nextUSN int64
	if position, err := journalPosition(root, config.Admin, logger); err == nil {
		journalID = position.JournalID
		nextUSN = position.NextUSN
	} else {
		logger.Debugf("journal position unavailable: %v", err)
	}

	// Perform the full walk. Cancellation and store failures abort without
	// committing, preserving the prior snapshot.
	stats, err := Scan(ctx, []string{root}, store, pathFilter, config.Threads, tracker, logger.Sublogger("scan"))
	if err != nil {
		return nil, err
	}

	// Commit the new snapshot.
	if err := store.Commit(core.CacheMeta{
		Root:      root,
		LastScan:  time.Now().UTC().UnixNano(),
		JournalID: journalID,
		LastUSN:   nextUSN,
	}); err != nil {
		return nil, errors.Wrap(err, "unable to commit snapshot")
	}

	// Success.
	result.FullWalk = true
	result.Stats = stats
	result.Reader = store.Snapshot()
	return result, nil
}

// reconcile performs a journal reconciliation pass, re-enumerates any
// subtrees the reconciler couldn't resolve, and commits the result.
func reconcile(
	ctx context.Context,
	root string,
	store *cache.Store,
	pathFilter *filter.Filter,
	config *configuration.Configuration,
	tracker *state.Tracker,
	logger *logging.Logger,
) (*journal.Stats, *Stats, error) {
	// Open the volume's journal and defer its closure.
	volume, resolver, err := journal.OpenVolume(root, config.Admin, logger.Sublogger("journal"))
	if err != nil {
		return nil, nil, err
	}
	defer volume.Close()

	// Run the reconciliation pass.
	reconciler := journal.NewReconciler(volume, resolver, store, pathFilter, root, logger.Sublogger("journal"))
	outcome, err := reconciler.Run(ctx, store.Meta())
	if err != nil {
		return nil, nil, err
	}

	// Re-enumerate subtrees the journal couldn't describe completely.
	var walkStats *Stats
	if len(outcome.RescanRoots) > 0 {
		if walkStats, err = Scan(ctx, outcome.RescanRoots, store, pathFilter, config.Threads, tracker, logger.Sublogger("scan")); err != nil {
			return nil, nil, err
		}
	}

	// Commit the reconciled snapshot.
	if err := store.Commit(outcome.Meta); err != nil {
		return nil, nil, errors.Wrap(err, "unable to commit reconciled snapshot")
	}

	// Success.
	return &outcome.Stats, walkStats, nil
}

// journalPosition queries the volume's current journal position, opening
// and closing a transient volume handle.
func journalPosition(root string, admin bool, logger *logging.Logger) (*journal.Info, error) {
	volume, _, err := journal.OpenVolume(root, admin, logger.Sublogger("journal"))
	if err != nil {
		return nil, err
	}
	defer volume.Close()
	return volume.Query()
}
