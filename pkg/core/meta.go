package core

import (
	"time"

	"github.com/pkg/errors"

	"github.com/mutagen-io/ptree/pkg/filesystem"
)

// FormatVersion is the current cache serialization format version. Decoding
// a snapshot whose version exceeds this value is a hard error; an older
// version triggers a full re-scan.
const FormatVersion = 1

// CacheMeta is the sidecar metadata written atomically alongside the entry
// map on every successful commit.
type CacheMeta struct {
	// Root is the volume root path in canonical form.
	Root string
	// LastScan is the timestamp of the most recent successful full commit,
	// in nanoseconds since the Unix epoch, UTC.
	LastScan int64
	// JournalID is the identifier of the volume's change journal at
	// LastScan, or zero if no journal was available.
	JournalID uint64
	// LastUSN is the change journal sequence number up to which changes have
	// been applied.
	LastUSN int64
	// FormatVersion is the serialization format version of the snapshot.
	FormatVersion uint32
	// SnapshotID identifies this particular commit for log correlation. It
	// is regenerated on every commit.
	SnapshotID string
}

// EnsureValid ensures that CacheMeta's invariants are respected.
func (m *CacheMeta) EnsureValid() error {
	// A nil meta is never valid.
	if m == nil {
		return errors.New("nil cache metadata")
	}

	// The root must be a canonical volume root path.
	if m.Root == "" {
		return errors.New("empty cache root")
	} else if filesystem.Canonicalize(m.Root) != m.Root {
		return errors.New("non-canonical cache root")
	}

	// The format version must be set.
	if m.FormatVersion == 0 {
		return errors.New("zero format version")
	}

	// Success.
	return nil
}

// LastScanTime returns the last scan timestamp as a time.Time in UTC.
func (m *CacheMeta) LastScanTime() time.Time {
	return time.Unix(0, m.LastScan).UTC()
}
