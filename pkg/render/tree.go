// Package render converts cache snapshots into user-facing forms: ASCII
// trees (optionally colored), JSON, and YAML. It consumes only the
// snapshot reader contract and never touches the filesystem.
package render

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/mutagen-io/ptree/pkg/cache"
	"github.com/mutagen-io/ptree/pkg/core"
)

// Branch drawing runes.
const (
	branchMiddle   = "├── "
	branchLast     = "└── "
	branchVertical = "│   "
	branchBlank    = "    "
)

// symlinkAnnotation is appended to names of links that were recorded but
// not followed.
const symlinkAnnotation = " [symlink]"

// Options control rendering.
type Options struct {
	// Color enables ANSI-colored output.
	Color bool
	// MaxDepth limits the rendered depth below the root. Zero means
	// unlimited.
	MaxDepth int
}

// DetectColor determines whether or not colored output should be used for
// the standard output stream.
func DetectColor(disabled bool) bool {
	if disabled {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// Tree writes an ASCII tree of the snapshot to the specified writer.
func Tree(writer io.Writer, reader *cache.Reader, options *Options) error {
	// Fetch the root entry.
	root, err := reader.Root()
	if err != nil {
		return err
	} else if root == nil {
		_, err := fmt.Fprintln(writer, "(empty)")
		return err
	}

	// Print the root path.
	rootLabel := root.Path
	if options.Color {
		rootLabel = color.New(color.FgBlue, color.Bold).Sprint(rootLabel)
	}
	if _, err := fmt.Fprintln(writer, rootLabel); err != nil {
		return err
	}

	// Print the subtree.
	return subtree(writer, reader, root, "", 1, options)
}

// subtree prints the children of an entry with the specified indentation
// prefix.
func subtree(writer io.Writer, reader *cache.Reader, entry *core.DirEntry, prefix string, depth int, options *Options) error {
	// Enforce the depth limit.
	if options.MaxDepth > 0 && depth > options.MaxDepth {
		return nil
	}

	// Materialize the direct children. The iterator is lazy, but branch
	// drawing needs to know which child is last.
	var children []*core.DirEntry
	iterator := reader.Children(entry.Path)
	for {
		child, ok := iterator.Next()
		if !ok {
			break
		}
		children = append(children, child)
	}

	// Print each child and recurse.
	for index, child := range children {
		last := index == len(children)-1

		// Compute the branch and label.
		branch := branchMiddle
		if last {
			branch = branchLast
		}
		label := child.Name
		if child.SymlinkTargetSkipped {
			label += symlinkAnnotation
		}
		if options.Color {
			branch = color.CyanString(branch)
			if child.SymlinkTargetSkipped {
				label = color.MagentaString(label)
			} else {
				label = color.HiBlueString(label)
			}
		}
		if _, err := fmt.Fprintf(writer, "%s%s%s\n", prefix, branch, label); err != nil {
			return err
		}

		// Recurse with an extended prefix.
		extension := branchVertical
		if last {
			extension = branchBlank
		}
		if err := subtree(writer, reader, child, prefix+extension, depth+1, options); err != nil {
			return err
		}
	}

	// Success.
	return nil
}
