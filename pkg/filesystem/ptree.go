package filesystem

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	// PTreeDataDirectoryName is the name of the ptree data directory inside
	// the user's configuration directory.
	PTreeDataDirectoryName = "ptree"

	// PTreeCacheDirectoryName is the name of the cache storage directory
	// within the ptree data directory.
	PTreeCacheDirectoryName = "cache"

	// PTreeConfigurationName is the name of the global ptree configuration
	// file within the ptree data directory.
	PTreeConfigurationName = "ptree.toml"
)

// PTree computes (and optionally creates) subdirectories inside the ptree
// data directory. The data directory's location is derived from the
// environment (see userConfigDirectory); this function is the process-wide
// wrapper around that resolution, and components that need testability
// accept explicit directory parameters instead of calling it.
func PTree(create bool, pathComponents ...string) (string, error) {
	// Compute the path to the user's configuration directory.
	configDirectory, err := userConfigDirectory()
	if err != nil {
		return "", errors.Wrap(err, "unable to compute path to configuration directory")
	}

	// Compute the path to the ptree data directory.
	ptreeDataDirectoryPath := filepath.Join(configDirectory, PTreeDataDirectoryName)

	// Compute the target path.
	result := filepath.Join(ptreeDataDirectoryPath, filepath.Join(pathComponents...))

	// If requested, attempt to create the ptree directory and the specified
	// subpath.
	if create {
		if err := os.MkdirAll(result, 0700); err != nil {
			return "", errors.Wrap(err, "unable to create subpath")
		}
	}

	// Success.
	return result, nil
}
