//go:build !windows

package journal

import (
	"github.com/pkg/errors"

	"github.com/mutagen-io/ptree/pkg/logging"
)

// OpenVolume reports journal unavailability on platforms without a change
// journal. Callers resolve this with a full walk.
func OpenVolume(_ string, _ bool, _ *logging.Logger) (Volume, Resolver, error) {
	return nil, nil, errors.Wrap(ErrJournalUnavailable, "change journals are not supported on this platform")
}
