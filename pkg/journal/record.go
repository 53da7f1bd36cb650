package journal

import (
	"encoding/binary"
	"math"
	"time"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

const (
	// recordFixedHeaderSize is the size of the fixed portion of a version 2
	// change record, up to and including the file name offset field.
	recordFixedHeaderSize = 60

	// recordMajorVersion is the change record major version understood by
	// the parser.
	recordMajorVersion = 2

	// filetimeEpochDelta is the number of 100 ns intervals between the
	// filesystem timestamp epoch (1601) and the Unix epoch (1970).
	filetimeEpochDelta = 116444736000000000
)

// Record is a parsed change journal record.
type Record struct {
	// USN is the record's sequence number.
	USN int64
	// FileReference identifies the changed file object stably across
	// renames.
	FileReference uint64
	// ParentReference identifies the directory containing the changed file
	// object.
	ParentReference uint64
	// Reason is the accumulated reason mask for the change.
	Reason uint32
	// Attributes are the file object's attribute flags.
	Attributes uint32
	// Timestamp is the change time in nanoseconds since the Unix epoch,
	// UTC.
	Timestamp int64
	// TimestampInvalid indicates that the record's native timestamp was
	// invalid and Timestamp was substituted with the parse time.
	TimestampInvalid bool
	// Name is the file object's name, decoded from UTF-16 (lossily, with
	// invalid code units replaced) and recomposed to NFC.
	Name string
}

// IsDirectory returns true if the record describes a directory.
func (r *Record) IsDirectory() bool {
	return r.Attributes&attributeDirectory != 0
}

// filetimeToUnixNanos converts a native 100 ns-since-1601 timestamp to
// nanoseconds since the Unix epoch. Invalid timestamps (before the Unix
// epoch or beyond the representable range) are replaced with the current
// time and flagged.
func filetimeToUnixNanos(filetime int64) (int64, bool) {
	intervals := filetime - filetimeEpochDelta
	if intervals < 0 || intervals > math.MaxInt64/100 {
		return time.Now().UTC().UnixNano(), false
	}
	return intervals * 100, true
}

// decodeRecordName decodes a record's raw name region: UTF-16 little-endian
// code units of even byte length. It returns false for odd-length regions
// (a parse error); invalid code units are replaced with the Unicode
// replacement character, and the result is recomposed to NFC.
func decodeRecordName(data []byte) (string, bool) {
	if len(data)%2 != 0 {
		return "", false
	}
	units := make([]uint16, len(data)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(data[2*i:])
	}
	return norm.NFC.String(string(utf16.Decode(units))), true
}

// ParseBuffer parses the output of a single journal read call: a 64-bit
// next-read cursor followed by zero or more variable-length records.
// Malformed records are counted and skipped rather than aborting the parse,
// except where a corrupt length field makes further framing impossible.
func ParseBuffer(data []byte) ([]Record, int64, int) {
	// An output too short to carry the cursor yields nothing.
	if len(data) < 8 {
		return nil, 0, 0
	}

	// Extract the next-read cursor.
	next := int64(binary.LittleEndian.Uint64(data[:8]))

	// Walk the records.
	var records []Record
	var parseErrors int
	offset := 8
	for offset < len(data) {
		// Frame the record. A zero or out-of-bounds length makes the
		// remainder of the buffer unwalkable.
		if offset+4 > len(data) {
			parseErrors++
			break
		}
		length := int(binary.LittleEndian.Uint32(data[offset:]))
		if length < recordFixedHeaderSize || offset+length > len(data) {
			parseErrors++
			break
		}
		raw := data[offset : offset+length]
		offset += length

		// Verify the record version.
		if binary.LittleEndian.Uint16(raw[4:]) != recordMajorVersion {
			parseErrors++
			continue
		}

		// Extract fixed fields.
		record := Record{
			FileReference:   binary.LittleEndian.Uint64(raw[8:]),
			ParentReference: binary.LittleEndian.Uint64(raw[16:]),
			USN:             int64(binary.LittleEndian.Uint64(raw[24:])),
			Reason:          binary.LittleEndian.Uint32(raw[40:]),
			Attributes:      binary.LittleEndian.Uint32(raw[52:]),
		}
		timestamp, valid := filetimeToUnixNanos(int64(binary.LittleEndian.Uint64(raw[32:])))
		record.Timestamp = timestamp
		record.TimestampInvalid = !valid

		// Extract the name region.
		nameLength := int(binary.LittleEndian.Uint16(raw[56:]))
		nameOffset := int(binary.LittleEndian.Uint16(raw[58:]))
		if nameOffset < recordFixedHeaderSize || nameOffset+nameLength > length {
			parseErrors++
			continue
		}
		name, ok := decodeRecordName(raw[nameOffset : nameOffset+nameLength])
		if !ok {
			parseErrors++
			continue
		}
		record.Name = name

		// Record the record.
		records = append(records, record)
	}

	// Done.
	return records, next, parseErrors
}
