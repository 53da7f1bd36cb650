//go:build !windows

package filesystem

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// userConfigDirectory computes the user's configuration directory, honoring
// XDG_CONFIG_HOME and falling back to ~/.config.
func userConfigDirectory() (string, error) {
	// Honor an explicit XDG configuration directory.
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome, nil
	}

	// Otherwise fall back to the standard location inside the user's home
	// directory.
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config"), nil
	}

	// Without either variable, the cache directory cannot be located.
	return "", errors.New("neither XDG_CONFIG_HOME nor HOME environment variable set")
}
