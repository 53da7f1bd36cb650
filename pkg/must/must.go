// Package must provides cleanup helpers for operations whose failure should
// be logged but not propagated.
package must

import (
	"io"
	"os"

	"github.com/mutagen-io/ptree/pkg/logging"
)

// Close closes the specified closer, logging any error that occurs.
func Close(c io.Closer, logger *logging.Logger) {
	if err := c.Close(); err != nil {
		logger.Warnf("Unable to close: %s", err.Error())
	}
}

// OSRemove removes the specified path, logging any error that occurs.
func OSRemove(name string, logger *logging.Logger) {
	if err := os.Remove(name); err != nil {
		logger.Warnf("Unable to remove '%s': %s", name, err.Error())
	}
}
