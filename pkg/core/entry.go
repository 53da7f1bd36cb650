// Package core defines the directory map data model shared by the walker,
// the cache store, and the journal reconciler.
package core

import (
	"github.com/pkg/errors"

	"github.com/mutagen-io/ptree/pkg/filesystem"
)

// DirEntry is the unit of the directory map. Entries are created by walkers
// after successful enumeration, mutated only by the journal reconciler, and
// treated as immutable by readers. The child list stores names rather than
// absolute paths so that deep trees don't pay quadratic path storage and so
// that a rename rewrites one parent entry instead of every descendant.
type DirEntry struct {
	// Path is the absolute directory path in canonical form (uppercase
	// volume letter, backslash separators, no trailing separator except at
	// the volume root).
	Path string
	// Name is the terminal path component. It is empty for the volume root.
	Name string
	// Modified is the directory's last-modified timestamp in nanoseconds
	// since the Unix epoch, UTC. This representation is fixed across cache
	// format versions.
	Modified int64
	// Children is the ordered sequence of child directory names, sorted
	// case-insensitively with ties broken by code-point order. Names within
	// one parent are unique.
	Children []string
	// SymlinkTargetSkipped indicates that this entry represents a symbolic
	// link or junction point that was deliberately not followed. Such
	// entries never have children.
	SymlinkTargetSkipped bool
}

// EnsureValid ensures that DirEntry's invariants are respected.
func (e *DirEntry) EnsureValid() error {
	// A nil entry is never valid in the map.
	if e == nil {
		return errors.New("nil entry")
	}

	// The path must be in canonical form.
	if e.Path == "" {
		return errors.New("empty entry path")
	} else if filesystem.Canonicalize(e.Path) != e.Path {
		return errors.New("non-canonical entry path")
	}

	// The name must match the path's terminal component (which is empty for
	// the volume root).
	if e.Name != filesystem.Name(e.Path) {
		return errors.New("entry name does not match path")
	}

	// Skipped links are leaves.
	if e.SymlinkTargetSkipped && len(e.Children) > 0 {
		return errors.New("skipped symbolic link with children")
	}

	// Validate child names and their ordering.
	for i, name := range e.Children {
		if name == "" {
			return errors.New("empty child name")
		} else if name == "." || name == ".." {
			return errors.New("dot child name")
		} else if containsSeparator(name) {
			return errors.New("child name contains path separator")
		}
		if i > 0 {
			if comparison := CompareNames(e.Children[i-1], name); comparison > 0 {
				return errors.New("unordered child names")
			} else if comparison == 0 {
				return errors.New("duplicate child name")
			}
		}
	}

	// Success.
	return nil
}

// containsSeparator returns true if the specified name contains a path
// separator of either syntax.
func containsSeparator(name string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] == '/' || name[i] == '\\' {
			return true
		}
	}
	return false
}

// Copy creates a deep copy of the entry.
func (e *DirEntry) Copy() *DirEntry {
	// A nil entry copies to nil.
	if e == nil {
		return nil
	}

	// Create the copy, duplicating the child list.
	result := &DirEntry{
		Path:                 e.Path,
		Name:                 e.Name,
		Modified:             e.Modified,
		SymlinkTargetSkipped: e.SymlinkTargetSkipped,
	}
	if len(e.Children) > 0 {
		result.Children = make([]string, len(e.Children))
		copy(result.Children, e.Children)
	}

	// Done.
	return result
}

// HasChild returns true if the entry's (sorted) child list contains the
// specified name.
func (e *DirEntry) HasChild(name string) bool {
	_, found := e.childIndex(name)
	return found
}

// childIndex locates the specified name in the entry's sorted child list,
// returning the insertion index and whether or not the name is present.
func (e *DirEntry) childIndex(name string) (int, bool) {
	low, high := 0, len(e.Children)
	for low < high {
		middle := (low + high) / 2
		if CompareNames(e.Children[middle], name) < 0 {
			low = middle + 1
		} else {
			high = middle
		}
	}
	return low, low < len(e.Children) && e.Children[low] == name
}

// WithChild returns a copy of the entry with the specified child name
// inserted at its sorted position. If the name is already present, the copy
// is unchanged.
func (e *DirEntry) WithChild(name string) *DirEntry {
	result := e.Copy()
	index, found := e.childIndex(name)
	if found {
		return result
	}
	result.Children = append(result.Children, "")
	copy(result.Children[index+1:], result.Children[index:])
	result.Children[index] = name
	return result
}

// WithoutChild returns a copy of the entry with the specified child name
// removed. If the name is absent, the copy is unchanged.
func (e *DirEntry) WithoutChild(name string) *DirEntry {
	result := e.Copy()
	index, found := e.childIndex(name)
	if !found {
		return result
	}
	result.Children = append(result.Children[:index], result.Children[index+1:]...)
	return result
}
