package journal

import (
	"encoding/binary"
	"unicode/utf16"
)

// filetimeFromUnixNanos converts nanoseconds since the Unix epoch to the
// native 100 ns-since-1601 representation used in records.
func filetimeFromUnixNanos(nanos int64) int64 {
	return nanos/100 + filetimeEpochDelta
}

// recordSpec describes a synthetic change record for test buffers.
type recordSpec struct {
	usn             int64
	fileReference   uint64
	parentReference uint64
	reason          uint32
	attributes      uint32
	filetime        int64
	name            string
	// rawName, if non-nil, overrides the encoded name bytes (for
	// malformed-name tests).
	rawName []byte
	// majorVersion overrides the record version when non-zero.
	majorVersion uint16
}

// encodeRecord encodes a synthetic version 2 change record.
func encodeRecord(spec recordSpec) []byte {
	// Encode the name.
	nameBytes := spec.rawName
	if nameBytes == nil {
		units := utf16.Encode([]rune(spec.name))
		nameBytes = make([]byte, 2*len(units))
		for i, unit := range units {
			binary.LittleEndian.PutUint16(nameBytes[2*i:], unit)
		}
	}

	// Encode the fixed header.
	length := recordFixedHeaderSize + len(nameBytes)
	record := make([]byte, length)
	binary.LittleEndian.PutUint32(record[0:], uint32(length))
	version := spec.majorVersion
	if version == 0 {
		version = recordMajorVersion
	}
	binary.LittleEndian.PutUint16(record[4:], version)
	binary.LittleEndian.PutUint64(record[8:], spec.fileReference)
	binary.LittleEndian.PutUint64(record[16:], spec.parentReference)
	binary.LittleEndian.PutUint64(record[24:], uint64(spec.usn))
	binary.LittleEndian.PutUint64(record[32:], uint64(spec.filetime))
	binary.LittleEndian.PutUint32(record[40:], spec.reason)
	binary.LittleEndian.PutUint32(record[52:], spec.attributes)
	binary.LittleEndian.PutUint16(record[56:], uint16(len(nameBytes)))
	binary.LittleEndian.PutUint16(record[58:], recordFixedHeaderSize)
	copy(record[recordFixedHeaderSize:], nameBytes)

	// Done.
	return record
}

// encodeReadBuffer encodes a journal read result: the next cursor followed
// by the specified records.
func encodeReadBuffer(next int64, records ...[]byte) []byte {
	buffer := make([]byte, 8)
	binary.LittleEndian.PutUint64(buffer, uint64(next))
	for _, record := range records {
		buffer = append(buffer, record...)
	}
	return buffer
}

// fakeVolume implements Volume over synthetic read buffers.
type fakeVolume struct {
	// info is the journal state to report.
	info Info
	// spans maps read start positions to response buffers.
	spans map[int64][]byte
}

// Query implements Volume.Query.
func (v *fakeVolume) Query() (*Info, error) {
	info := v.info
	return &info, nil
}

// Read implements Volume.Read.
func (v *fakeVolume) Read(start int64, buffer []byte) (int, error) {
	span, ok := v.spans[start]
	if !ok {
		return copy(buffer, encodeReadBuffer(v.info.NextUSN)), nil
	}
	return copy(buffer, span), nil
}

// Close implements Volume.Close.
func (v *fakeVolume) Close() error {
	return nil
}

// fakeResolver implements Resolver over a static table.
type fakeResolver struct {
	// paths maps file references to paths.
	paths map[uint64]string
}

// ResolvePath implements Resolver.ResolvePath.
func (r *fakeResolver) ResolvePath(reference uint64) (string, error) {
	if path, ok := r.paths[reference]; ok {
		return path, nil
	}
	return "", errUnknownReference
}

// errUnknownReference indicates an unresolvable test reference.
var errUnknownReference = errTest("unknown file reference")

// errTest is a trivial string error type for test fixtures.
type errTest string

// Error implements error.Error.
func (e errTest) Error() string {
	return string(e)
}
