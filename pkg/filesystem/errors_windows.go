//go:build windows

package filesystem

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

// IsPermissionError returns true if the specified enumeration error
// represents an access denial or sharing violation. Such directories are
// skipped (and counted) rather than retried.
func IsPermissionError(err error) bool {
	return os.IsPermission(err) ||
		errors.Is(err, windows.ERROR_SHARING_VIOLATION) ||
		errors.Is(err, windows.ERROR_LOCK_VIOLATION)
}

// IsNameError returns true if the specified enumeration error represents a
// path that is too long or syntactically invalid. Such directories are
// skipped (and counted) rather than retried.
func IsNameError(err error) bool {
	return errors.Is(err, windows.ERROR_INVALID_NAME) ||
		errors.Is(err, windows.ERROR_FILENAME_EXCED_RANGE) ||
		errors.Is(err, windows.ERROR_BAD_PATHNAME)
}
