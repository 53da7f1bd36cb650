// Package configuration defines the run configuration record passed from
// the command line into the core, along with global configuration file
// loading.
package configuration

import (
	"os"

	"github.com/pkg/errors"

	"github.com/mutagen-io/ptree/pkg/encoding"
	"github.com/mutagen-io/ptree/pkg/filesystem"
)

// Output format names.
const (
	// FormatTree renders an ASCII tree.
	FormatTree = "tree"
	// FormatJSON renders a JSON tree.
	FormatJSON = "json"
	// FormatYAML renders a YAML tree.
	FormatYAML = "yaml"
)

// Configuration enumerates the options recognized by the core. A zero
// configuration is valid once a drive has been set. Fields are TOML-tagged
// so that the global configuration file can provide defaults, which
// command line flags then override.
type Configuration struct {
	// Drive is the volume to visualize: a single drive letter or a root
	// path.
	Drive string `toml:"drive"`
	// Admin indicates that the process has administrative rights, which
	// shrinks the default skip set and enables privileged journal access.
	Admin bool `toml:"admin"`
	// Force bypasses the freshness check and journal reconciliation,
	// forcing a full walk.
	Force bool `toml:"force"`
	// SkipExtra supplements the default skip set with additional names or
	// glob patterns.
	SkipExtra []string `toml:"skip"`
	// Hidden includes hidden and system directories in the walk.
	Hidden bool `toml:"hidden"`
	// Threads is the walker worker count. Zero selects the default.
	Threads int `toml:"threads"`
	// Incremental attempts journal reconciliation when a cache exists,
	// falling back to a full walk on discontinuity. It implies
	// reconciliation regardless of cache age.
	Incremental bool `toml:"incremental"`
	// Format selects the output format. An empty value selects the tree
	// format.
	Format string `toml:"format"`
	// MaxDepth limits rendering depth. Zero means unlimited.
	MaxDepth int `toml:"depth"`
	// NoColor disables colored output regardless of terminal detection.
	NoColor bool `toml:"no_color"`
	// ShowStats prints walk telemetry after rendering.
	ShowStats bool `toml:"stats"`
}

// EnsureValid ensures that Configuration's invariants are respected.
func (c *Configuration) EnsureValid() error {
	// A nil configuration is never valid.
	if c == nil {
		return errors.New("nil configuration")
	}

	// A drive must be specified.
	if c.Drive == "" {
		return errors.New("no drive specified")
	}

	// Single-character drives must be letters.
	if len(c.Drive) == 1 {
		drive := c.Drive[0]
		if !((drive >= 'a' && drive <= 'z') || (drive >= 'A' && drive <= 'Z')) {
			return errors.Errorf("invalid drive letter: %s", c.Drive)
		}
	}

	// Counts can't be negative.
	if c.Threads < 0 {
		return errors.New("negative thread count")
	} else if c.MaxDepth < 0 {
		return errors.New("negative depth limit")
	}

	// The format must be known.
	switch c.Format {
	case "", FormatTree, FormatJSON, FormatYAML:
	default:
		return errors.Errorf("unknown output format: %s", c.Format)
	}

	// Success.
	return nil
}

// Root computes the canonical volume root named by the configuration: a
// drive letter maps to its volume root, anything else is treated as a root
// path.
func (c *Configuration) Root() string {
	if len(c.Drive) == 1 {
		return filesystem.Canonicalize(c.Drive + ":\\")
	}
	return filesystem.Canonicalize(c.Drive)
}

// Load loads the global configuration file at the specified path. A
// missing file yields a zero configuration without error.
func Load(path string) (*Configuration, error) {
	result := &Configuration{}
	if err := encoding.LoadAndUnmarshalTOML(path, result); err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, err
	}
	return result, nil
}
