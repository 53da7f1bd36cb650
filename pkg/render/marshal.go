package render

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/mutagen-io/ptree/pkg/cache"
	"github.com/mutagen-io/ptree/pkg/core"
)

// node is the marshalable tree node shared by the JSON and YAML renderers.
type node struct {
	// Name is the directory's name (the root's path for the root node).
	Name string `json:"name" yaml:"name"`
	// Path is the directory's canonical path.
	Path string `json:"path" yaml:"path"`
	// Symlink indicates a recorded-but-not-followed link.
	Symlink bool `json:"symlink,omitempty" yaml:"symlink,omitempty"`
	// Children are the directory's children in cached order.
	Children []*node `json:"children" yaml:"children"`
}

// buildNode converts a snapshot subtree into marshalable nodes.
func buildNode(reader *cache.Reader, entry *core.DirEntry, depth int, options *Options) *node {
	// Convert the entry itself. The root's name is empty, so its path
	// stands in.
	name := entry.Name
	if name == "" {
		name = entry.Path
	}
	result := &node{
		Name:     name,
		Path:     entry.Path,
		Symlink:  entry.SymlinkTargetSkipped,
		Children: []*node{},
	}

	// Enforce the depth limit.
	if options.MaxDepth > 0 && depth >= options.MaxDepth {
		return result
	}

	// Convert children.
	iterator := reader.Children(entry.Path)
	for {
		child, ok := iterator.Next()
		if !ok {
			break
		}
		result.Children = append(result.Children, buildNode(reader, child, depth+1, options))
	}

	// Done.
	return result
}

// JSON writes a JSON tree of the snapshot to the specified writer.
func JSON(writer io.Writer, reader *cache.Reader, options *Options) error {
	// Fetch the root entry.
	root, err := reader.Root()
	if err != nil {
		return err
	} else if root == nil {
		_, err := fmt.Fprintln(writer, "{}")
		return err
	}

	// Build and marshal the tree.
	data, err := json.MarshalIndent(buildNode(reader, root, 0, options), "", "  ")
	if err != nil {
		return err
	}
	if _, err := writer.Write(data); err != nil {
		return err
	}
	_, err = io.WriteString(writer, "\n")
	return err
}

// YAML writes a YAML tree of the snapshot to the specified writer.
func YAML(writer io.Writer, reader *cache.Reader, options *Options) error {
	// Fetch the root entry.
	root, err := reader.Root()
	if err != nil {
		return err
	} else if root == nil {
		_, err := fmt.Fprintln(writer, "{}")
		return err
	}

	// Build and marshal the tree.
	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(buildNode(reader, root, 0, options)); err != nil {
		return err
	}
	return encoder.Close()
}
