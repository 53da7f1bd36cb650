// Package journal implements change journal reconciliation: reading a
// volume's change records since a saved sequence number and applying them
// to the cache so that refresh cost is proportional to changes rather than
// volume size.
package journal

import (
	"github.com/pkg/errors"
)

var (
	// ErrJournalUnavailable indicates that the volume has no readable
	// change journal (a non-NTFS volume, insufficient rights, or an
	// unsupported platform). Callers fall back to a full walk.
	ErrJournalUnavailable = errors.New("change journal unavailable")

	// ErrJournalDiscontinuous indicates that the cache's saved journal
	// position is unusable: the journal identifier changed or the saved
	// sequence number aged out of the journal. Callers fall back to a full
	// walk.
	ErrJournalDiscontinuous = errors.New("change journal discontinuous")
)

// readBufferSize is the buffer size used for journal read calls. Reads that
// fill the buffer simply loop; records are never dropped within a read.
const readBufferSize = 64 * 1024

// Journal reason flags, as recorded in change records. The terminal close
// flag is the commit point: changes are only applied once their record
// bears it, so that partial operations are never persisted.
const (
	ReasonDataOverwrite      = 0x00000001
	ReasonDataExtend         = 0x00000002
	ReasonDataTruncation     = 0x00000004
	ReasonNamedDataOverwrite = 0x00000010
	ReasonNamedDataExtend    = 0x00000020
	ReasonNamedDataTruncate  = 0x00000040
	ReasonFileCreate         = 0x00000100
	ReasonFileDelete         = 0x00000200
	ReasonEAChange           = 0x00000400
	ReasonSecurityChange     = 0x00000800
	ReasonRenameOldName      = 0x00001000
	ReasonRenameNewName      = 0x00002000
	ReasonIndexableChange    = 0x00004000
	ReasonBasicInfoChange    = 0x00008000
	ReasonHardLinkChange     = 0x00010000
	ReasonCompressionChange  = 0x00020000
	ReasonEncryptionChange   = 0x00040000
	ReasonObjectIDChange     = 0x00080000
	ReasonReparsePointChange = 0x00100000
	ReasonStreamChange       = 0x00200000
	ReasonClose              = 0x80000000
)

// reasonModifyMask selects the reason flags that translate to a
// metadata-only modification of an existing entry.
const reasonModifyMask = ReasonDataOverwrite |
	ReasonDataExtend |
	ReasonDataTruncation |
	ReasonBasicInfoChange |
	ReasonSecurityChange |
	ReasonObjectIDChange

// File attribute flags carried by change records.
const (
	attributeDirectory    = 0x00000010
	attributeHidden       = 0x00000002
	attributeSystem       = 0x00000004
	attributeReparsePoint = 0x00000400
)

// Info describes the current state of a volume's change journal.
type Info struct {
	// JournalID identifies the journal instance. It changes when the
	// journal is deleted and recreated.
	JournalID uint64
	// FirstUSN is the lowest sequence number still present in the journal.
	FirstUSN int64
	// NextUSN is the sequence number that the next change will receive.
	NextUSN int64
}

// Volume provides read access to a volume's change journal. The production
// implementation wraps a volume handle; tests substitute synthetic
// implementations.
type Volume interface {
	// Query returns the journal's current state.
	Query() (*Info, error)
	// Read fills the buffer with journal data starting at the specified
	// sequence number, returning the number of bytes written. The data
	// begins with the next read cursor followed by zero or more
	// variable-length records.
	Read(start int64, buffer []byte) (int, error)
	// Close releases the volume.
	Close() error
}

// Resolver resolves file reference numbers to canonical paths. The
// production implementation opens files by identifier against the volume;
// tests substitute table-driven implementations.
type Resolver interface {
	// ResolvePath resolves a file reference number to the canonical path of
	// the corresponding (still extant) file object.
	ResolvePath(fileReference uint64) (string, error)
}
