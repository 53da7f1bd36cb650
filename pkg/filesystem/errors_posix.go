//go:build !windows

package filesystem

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// IsPermissionError returns true if the specified enumeration error
// represents an access denial. Such directories are skipped (and counted)
// rather than retried.
func IsPermissionError(err error) bool {
	return os.IsPermission(err)
}

// IsNameError returns true if the specified enumeration error represents a
// path that is too long or syntactically invalid. Such directories are
// skipped (and counted) rather than retried.
func IsNameError(err error) bool {
	return errors.Is(err, unix.ENAMETOOLONG) || errors.Is(err, unix.EINVAL)
}
