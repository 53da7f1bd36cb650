//go:build !windows

package filesystem

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// classifyDirEntry classifies a single enumerated child. The entry's type
// information comes from the enumeration itself; only symbolic links incur an
// additional stat call (to determine whether or not they target directories),
// matching the Windows behavior where directory-targeting links are
// distinguishable by attribute.
func classifyDirEntry(parent string, entry fs.DirEntry) Content {
	// Compute the name and hidden status. POSIX systems hide dot-prefixed
	// names.
	name := entry.Name()
	hidden := strings.HasPrefix(name, ".")

	// Classify based on the enumerated type.
	switch mode := entry.Type(); {
	case mode.IsDir():
		return Content{Name: name, Kind: ContentKindDirectory, Hidden: hidden}
	case mode&fs.ModeSymlink != 0:
		// Resolve the link target's type. A resolution failure (e.g. a
		// broken link) classifies the link as non-directory content.
		if info, err := os.Stat(filepath.Join(parent, name)); err == nil && info.IsDir() {
			return Content{Name: name, Kind: ContentKindSymbolicLinkToDirectory, Hidden: hidden}
		}
		return Content{Name: name, Kind: ContentKindOther, Hidden: hidden}
	default:
		return Content{Name: name, Kind: ContentKindOther, Hidden: hidden}
	}
}
