package scan

import (
	"context"
	"os"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/mutagen-io/ptree/pkg/cache"
	"github.com/mutagen-io/ptree/pkg/filesystem"
	"github.com/mutagen-io/ptree/pkg/filter"
	"github.com/mutagen-io/ptree/pkg/logging"
	"github.com/mutagen-io/ptree/pkg/state"
)

var (
	// ErrScanCancelled indicates that the scan was cancelled before
	// completion. No commit occurs in this case, preserving the prior
	// snapshot.
	ErrScanCancelled = errors.New("scan cancelled")

	// ErrVolumeNotFound indicates that the requested volume root doesn't
	// exist or isn't a directory.
	ErrVolumeNotFound = errors.New("volume not found")
)

// defaultThreadMultiplier is the multiplier applied to the CPU count when
// computing the default worker count.
const defaultThreadMultiplier = 2

// DefaultThreadCount computes the default walker worker count: twice the
// number of CPUs, clamped to at least one.
func DefaultThreadCount() int {
	count := runtime.NumCPU() * defaultThreadMultiplier
	if count < 1 {
		count = 1
	}
	return count
}

// Scan performs a parallel enumeration of the subtrees rooted at the
// specified canonical paths, staging resulting entries into the store. It
// does not flush or commit the store; that is the caller's responsibility,
// and is deliberately withheld on cancellation. The threads parameter
// selects the worker count, with values below one selecting the default.
func Scan(
	ctx context.Context,
	roots []string,
	store *cache.Store,
	pathFilter *filter.Filter,
	threads int,
	tracker *state.Tracker,
	logger *logging.Logger,
) (*Stats, error) {
	// Compute the worker count.
	if threads < 1 {
		threads = DefaultThreadCount()
	}

	// Create the coordinator and seed it.
	coordinator := newCoordinator()
	for _, root := range roots {
		coordinator.submit(root)
	}

	// Create shared telemetry.
	stats := &Stats{}

	// Launch the workers and wait for them to drain.
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < threads; i++ {
		w := &walker{
			coordinator: coordinator,
			store:       store,
			filter:      pathFilter,
			stats:       stats,
			tracker:     tracker,
			logger:      logger,
		}
		group.Go(func() error {
			return w.run(groupCtx)
		})
	}
	if err := group.Wait(); err != nil {
		return stats, err
	}

	// Map cancellation to its sentinel.
	if ctx.Err() != nil {
		return stats, ErrScanCancelled
	}

	// Success.
	return stats, nil
}

// ValidateRoot canonicalizes a volume root path and verifies that it names
// an existing directory.
func ValidateRoot(root string) (string, error) {
	root = filesystem.Canonicalize(root)
	if info, err := os.Stat(root); err != nil {
		return "", errors.Wrapf(ErrVolumeNotFound, "unable to access %s", root)
	} else if !info.IsDir() {
		return "", errors.Wrapf(ErrVolumeNotFound, "%s is not a directory", root)
	}
	return root, nil
}
