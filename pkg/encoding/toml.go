package encoding

import (
	"github.com/BurntSushi/toml"
)

// LoadAndUnmarshalTOML loads TOML data from the specified path and decodes it
// into the specified value.
func LoadAndUnmarshalTOML(path string, value interface{}) error {
	return LoadAndUnmarshal(path, func(data []byte) error {
		return toml.Unmarshal(data, value)
	})
}
