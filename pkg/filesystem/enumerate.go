package filesystem

import (
	"os"
	"time"

	"github.com/pkg/errors"
)

// ContentKind classifies children yielded by directory enumeration. The
// walker acts only on directories and directory-targeting links; all other
// content kinds are ignored and are not counted in walk telemetry.
type ContentKind uint8

const (
	// ContentKindDirectory represents a regular directory.
	ContentKindDirectory ContentKind = iota
	// ContentKindSymbolicLinkToDirectory represents a symbolic link or
	// junction point whose target is a directory.
	ContentKindSymbolicLinkToDirectory
	// ContentKindOther represents non-directory content (regular files,
	// non-directory links, pipes, sockets, and devices).
	ContentKindOther
	// ContentKindProblematic represents content whose classification failed.
	ContentKindProblematic
)

// Content describes a single child yielded by directory enumeration,
// including the classification probe (type and attributes) that the path
// filter consumes.
type Content struct {
	// Name is the child's name.
	Name string
	// Kind is the child's classification.
	Kind ContentKind
	// Hidden indicates whether or not the child carries a hidden attribute
	// (or a dot-prefixed name on POSIX systems).
	Hidden bool
	// System indicates whether or not the child carries an operating system
	// attribute marking it as system content. It is always false on POSIX
	// systems.
	System bool
}

// EnumerateDirectory enumerates the directory at the specified path,
// returning its classified children and the directory's own modification
// time. The child listing and the modification time query are fused onto a
// single open handle, so enumerating a directory costs one open and no
// per-child stat calls, except that on POSIX systems each symbolic link is
// stat'ed once to classify its target.
func EnumerateDirectory(path string) ([]Content, time.Time, error) {
	// Open the directory and defer its closure.
	directory, err := os.Open(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer directory.Close()

	// Query the directory's own metadata using the open handle.
	info, err := directory.Stat()
	if err != nil {
		return nil, time.Time{}, errors.Wrap(err, "unable to query directory metadata")
	} else if !info.IsDir() {
		return nil, time.Time{}, errors.New("path is not a directory")
	}

	// Read the directory's contents. The entries returned here already carry
	// type and attribute information from the enumeration itself.
	entries, err := directory.ReadDir(-1)
	if err != nil {
		return nil, time.Time{}, err
	}

	// Classify each child.
	contents := make([]Content, 0, len(entries))
	for _, entry := range entries {
		contents = append(contents, classifyDirEntry(path, entry))
	}

	// Success.
	return contents, info.ModTime().UTC(), nil
}
