//go:build windows

package filesystem

import (
	"os"

	"github.com/pkg/errors"
)

// userConfigDirectory computes the user's configuration directory from the
// APPDATA environment variable. An unset or empty APPDATA is an error rather
// than a fallback, because a silently mislocated cache would defeat reuse
// across runs.
func userConfigDirectory() (string, error) {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return appData, nil
	}
	return "", errors.New("APPDATA environment variable not set")
}
