package cache

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/mutagen-io/ptree/pkg/core"
	"github.com/mutagen-io/ptree/pkg/encoding"
)

const (
	// IndexFileName is the name of the index file within the cache
	// directory. It holds the path → offset map and the cache metadata.
	IndexFileName = "ptree.idx"

	// DataFileName is the name of the data file within the cache directory.
	// It holds a metadata header record followed by length-prefixed entry
	// records at the offsets named by the index.
	DataFileName = "ptree.dat"

	// recordLengthSize is the size of the little-endian length prefix that
	// precedes every record in the data file.
	recordLengthSize = 4

	// maximumRecordSize is the maximum record size that will be read from
	// the data file. Records beyond this size indicate corruption.
	maximumRecordSize = 100 * 1024 * 1024
)

// ErrCacheCorrupt indicates that the on-disk cache state could not be
// decoded. It is distinct from cache absence, which yields an empty store.
var ErrCacheCorrupt = errors.New("cache corrupt")

// index is the on-disk representation of the index file. Paths and Offsets
// are parallel slices (the serialization format has no native maps); the
// metadata is duplicated from the data file header so that the index is
// self-describing, with the header's snapshot identifier arbitrating staleness.
type index struct {
	// Meta is the cache metadata at the time the index was written.
	Meta core.CacheMeta
	// Paths are the canonical entry paths.
	Paths []string
	// Offsets are the data file offsets of the records for the
	// corresponding elements of Paths.
	Offsets []uint64
}

// writeRecord writes a single length-prefixed record to the specified
// writer, returning the number of bytes written.
func writeRecord(writer io.Writer, value interface{}) (uint64, error) {
	// Encode the record payload.
	payload, err := encoding.MarshalXDR(value)
	if err != nil {
		return 0, errors.Wrap(err, "unable to encode record")
	}

	// Write the length prefix.
	var prefix [recordLengthSize]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := writer.Write(prefix[:]); err != nil {
		return 0, errors.Wrap(err, "unable to write record length")
	}

	// Write the payload.
	if _, err := writer.Write(payload); err != nil {
		return 0, errors.Wrap(err, "unable to write record payload")
	}

	// Done.
	return uint64(recordLengthSize + len(payload)), nil
}

// readRecordAt reads a single length-prefixed record from the specified
// reader at the specified offset, decoding it into value and returning the
// total record size.
func readRecordAt(reader io.ReaderAt, offset uint64, value interface{}) (uint64, error) {
	// Read the length prefix.
	var prefix [recordLengthSize]byte
	if _, err := reader.ReadAt(prefix[:], int64(offset)); err != nil {
		return 0, errors.Wrap(ErrCacheCorrupt, "unable to read record length")
	}
	length := binary.LittleEndian.Uint32(prefix[:])
	if length == 0 || length > maximumRecordSize {
		return 0, errors.Wrap(ErrCacheCorrupt, "invalid record length")
	}

	// Read the payload.
	payload := make([]byte, length)
	if _, err := reader.ReadAt(payload, int64(offset)+recordLengthSize); err != nil {
		return 0, errors.Wrap(ErrCacheCorrupt, "unable to read record payload")
	}

	// Decode the payload.
	if err := encoding.UnmarshalXDR(payload, value); err != nil {
		return 0, errors.Wrap(ErrCacheCorrupt, "unable to decode record")
	}

	// Done.
	return recordLengthSize + uint64(length), nil
}

// encodeIndex serializes an index for storage.
func encodeIndex(value *index) ([]byte, error) {
	return encoding.MarshalXDR(value)
}

// decodeIndex deserializes an index, mapping failures to ErrCacheCorrupt.
func decodeIndex(data []byte, value *index) error {
	if err := encoding.UnmarshalXDR(data, value); err != nil {
		return errors.Wrap(ErrCacheCorrupt, "unable to decode index")
	}
	return nil
}

// rebuildOffsets reconstructs the path → offset map by scanning the data
// file sequentially. It is used when the index file is missing or names a
// different snapshot than the data file (e.g. after a crash between the two
// commit renames). The returned map excludes the header record.
func rebuildOffsets(reader io.ReaderAt, size int64) (map[string]uint64, error) {
	// Skip the header record.
	var meta core.CacheMeta
	offset, err := readRecordAt(reader, 0, &meta)
	if err != nil {
		return nil, err
	}

	// Scan entry records to the end of the file.
	offsets := make(map[string]uint64)
	for int64(offset) < size {
		var entry core.DirEntry
		recordSize, err := readRecordAt(reader, offset, &entry)
		if err != nil {
			return nil, err
		}
		offsets[entry.Path] = offset
		offset += recordSize
	}

	// Success.
	return offsets, nil
}
