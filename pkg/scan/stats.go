package scan

import (
	"sync/atomic"
)

// Stats tracks walk telemetry. All counters are atomic so that workers can
// update them without coordination; collaborators (including tests) read
// them after the walk joins.
type Stats struct {
	// DirectoriesWalked is the number of directories successfully
	// enumerated.
	DirectoriesWalked atomic.Uint64
	// EntriesStaged is the number of entries staged into the cache.
	EntriesStaged atomic.Uint64
	// SymbolicLinksSkipped is the number of symbolic links and junction
	// points recorded but not followed.
	SymbolicLinksSkipped atomic.Uint64
	// SkippedPermission is the number of directories skipped due to access
	// denials, sharing violations, and I/O failures that persist after the
	// single retry.
	SkippedPermission atomic.Uint64
	// SkippedName is the number of directories skipped due to overlong or
	// invalid paths.
	SkippedName atomic.Uint64
	// SkippedFiltered is the number of directories dropped by skip-set and
	// hidden-attribute filter rules.
	SkippedFiltered atomic.Uint64
	// Retries is the number of enumeration retries performed for transient
	// I/O errors.
	Retries atomic.Uint64
}

// SkipCount returns the number of directories that were skipped due to
// enumeration failures (as opposed to filter rules).
func (s *Stats) SkipCount() uint64 {
	return s.SkippedPermission.Load() + s.SkippedName.Load()
}
