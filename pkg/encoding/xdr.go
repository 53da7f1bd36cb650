package encoding

import (
	"bytes"
	"io"

	"github.com/pkg/errors"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// MarshalXDR encodes the specified value using XDR and returns the encoded
// bytes. XDR gives the cache a dense representation with explicit (big-
// endian) integer encoding and deterministic layout across platforms.
func MarshalXDR(value interface{}) ([]byte, error) {
	var buffer bytes.Buffer
	if _, err := xdr.Marshal(&buffer, value); err != nil {
		return nil, errors.Wrap(err, "unable to encode value")
	}
	return buffer.Bytes(), nil
}

// UnmarshalXDR decodes XDR data into the specified value.
func UnmarshalXDR(data []byte, value interface{}) error {
	if _, err := xdr.Unmarshal(bytes.NewReader(data), value); err != nil {
		return errors.Wrap(err, "unable to decode value")
	}
	return nil
}

// EncodeXDR encodes the specified value using XDR directly onto a stream.
func EncodeXDR(writer io.Writer, value interface{}) error {
	if _, err := xdr.Marshal(writer, value); err != nil {
		return errors.Wrap(err, "unable to encode value")
	}
	return nil
}

// DecodeXDR decodes an XDR value directly from a stream.
func DecodeXDR(reader io.Reader, value interface{}) error {
	if _, err := xdr.Unmarshal(reader, value); err != nil {
		return errors.Wrap(err, "unable to decode value")
	}
	return nil
}

// LoadAndUnmarshalXDR loads data from the specified path and decodes it into
// the specified value.
func LoadAndUnmarshalXDR(path string, value interface{}) error {
	return LoadAndUnmarshal(path, func(data []byte) error {
		return UnmarshalXDR(data, value)
	})
}

// MarshalAndSaveXDR marshals the specified value and saves it to the
// specified path.
func MarshalAndSaveXDR(path string, value interface{}) error {
	return MarshalAndSave(path, func() ([]byte, error) {
		return MarshalXDR(value)
	})
}
