//go:build windows

package must

import (
	"golang.org/x/sys/windows"

	"github.com/mutagen-io/ptree/pkg/logging"
)

// CloseWindowsHandle closes the specified Windows handle, logging any error
// that occurs.
func CloseWindowsHandle(wh windows.Handle, logger *logging.Logger) {
	if err := windows.CloseHandle(wh); err != nil {
		logger.Warnf("Unable to close handle %d: %s", wh, err.Error())
	}
}
