package ptree

import (
	"fmt"
	"os"
)

const (
	// VersionMajor represents the current major version of ptree.
	VersionMajor = 0
	// VersionMinor represents the current minor version of ptree.
	VersionMinor = 3
	// VersionPatch represents the current patch version of ptree.
	VersionPatch = 0
	// VersionTag represents a tag to be appended to the ptree version string.
	// It must not contain spaces. If empty, no tag is appended to the version
	// string.
	VersionTag = ""
)

// Version provides a stringified version of the current ptree version.
var Version string

// DebugEnabled controls whether or not debugging is enabled for ptree. It is
// set automatically based on the PTREE_DEBUG environment variable.
var DebugEnabled bool

// init performs global initialization.
func init() {
	// Compute the stringified version.
	if VersionTag != "" {
		Version = fmt.Sprintf("%d.%d.%d-%s", VersionMajor, VersionMinor, VersionPatch, VersionTag)
	} else {
		Version = fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
	}

	// Check whether or not debugging should be enabled.
	DebugEnabled = os.Getenv("PTREE_DEBUG") == "1"
}
