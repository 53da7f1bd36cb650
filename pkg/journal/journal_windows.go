//go:build windows

package journal

import (
	"strings"
	"unsafe"

	"github.com/Microsoft/go-winio"
	"github.com/pkg/errors"
	"golang.org/x/sys/windows"

	"github.com/mutagen-io/ptree/pkg/filesystem"
	"github.com/mutagen-io/ptree/pkg/logging"
	"github.com/mutagen-io/ptree/pkg/must"
)

const (
	// fsctlQueryUSNJournal is the ioctl code for querying journal state.
	fsctlQueryUSNJournal = 0x000900f4
	// fsctlReadUSNJournal is the ioctl code for reading journal records.
	fsctlReadUSNJournal = 0x000900bb

	// resolvedPathBufferLength is the UTF-16 unit capacity used when
	// resolving paths from handles.
	resolvedPathBufferLength = 32768
)

// usnJournalData mirrors the journal query output structure.
type usnJournalData struct {
	JournalID       uint64
	FirstUSN        int64
	NextUSN         int64
	LowestValidUSN  int64
	MaxUSN          int64
	MaximumSize     uint64
	AllocationDelta uint64
}

// readUSNJournalData mirrors the journal read input structure.
type readUSNJournalData struct {
	StartUSN          int64
	ReasonMask        uint32
	ReturnOnlyOnClose uint32
	Timeout           uint64
	BytesToWaitFor    uint64
	JournalID         uint64
}

// volumeHandle implements Volume over an open volume handle.
type volumeHandle struct {
	// handle is the open volume handle.
	handle windows.Handle
	// journalID is the journal identifier captured by the last query. Read
	// calls must present it.
	journalID uint64
	// logger is the volume's logger.
	logger *logging.Logger
}

// OpenVolume opens read access to the change journal of the volume that
// contains the specified canonical root, returning journal access and a
// file reference resolver. In admin mode, the open is performed under the
// backup privilege so that the journal remains readable on volumes with
// restrictive ACLs. Failures yield ErrJournalUnavailable, which callers
// resolve with a full walk.
func OpenVolume(root string, admin bool, logger *logging.Logger) (Volume, Resolver, error) {
	// Change journals only exist on volumes addressed by drive letter.
	root = filesystem.Canonicalize(root)
	if len(root) < 2 || root[1] != ':' {
		return nil, nil, errors.Wrap(ErrJournalUnavailable, "root is not a drive-letter volume")
	}

	// Convert the volume device path to UTF-16.
	device16, err := windows.UTF16PtrFromString(`\\.\` + root[:2])
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to convert volume path to UTF-16")
	}

	// Open the volume, under the backup privilege in admin mode.
	var handle windows.Handle
	open := func() error {
		var err error
		handle, err = windows.CreateFile(
			device16,
			windows.GENERIC_READ,
			windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
			nil,
			windows.OPEN_EXISTING,
			0,
			0,
		)
		return err
	}
	if admin {
		err = winio.RunWithPrivilege(winio.SeBackupPrivilege, open)
	} else {
		err = open()
	}
	if err != nil {
		return nil, nil, errors.Wrap(ErrJournalUnavailable, err.Error())
	}

	// Create the volume and resolver.
	volume := &volumeHandle{handle: handle, logger: logger}
	resolver := &handleResolver{volume: handle, logger: logger}

	// Success.
	return volume, resolver, nil
}

// Query implements Volume.Query.
func (v *volumeHandle) Query() (*Info, error) {
	// Issue the query ioctl.
	var data usnJournalData
	var returned uint32
	if err := windows.DeviceIoControl(
		v.handle,
		fsctlQueryUSNJournal,
		nil,
		0,
		(*byte)(unsafe.Pointer(&data)),
		uint32(unsafe.Sizeof(data)),
		&returned,
		nil,
	); err != nil {
		return nil, errors.Wrap(ErrJournalUnavailable, err.Error())
	}

	// Capture the journal identifier for subsequent reads.
	v.journalID = data.JournalID

	// Success.
	return &Info{
		JournalID: data.JournalID,
		FirstUSN:  data.FirstUSN,
		NextUSN:   data.NextUSN,
	}, nil
}

// Read implements Volume.Read.
func (v *volumeHandle) Read(start int64, buffer []byte) (int, error) {
	// Issue the read ioctl. The full reason mask is requested; semantic
	// filtering happens at application time.
	request := readUSNJournalData{
		StartUSN:   start,
		ReasonMask: 0xFFFFFFFF,
		JournalID:  v.journalID,
	}
	var returned uint32
	if err := windows.DeviceIoControl(
		v.handle,
		fsctlReadUSNJournal,
		(*byte)(unsafe.Pointer(&request)),
		uint32(unsafe.Sizeof(request)),
		&buffer[0],
		uint32(len(buffer)),
		&returned,
		nil,
	); err != nil {
		return 0, err
	}

	// Success.
	return int(returned), nil
}

// Close implements Volume.Close.
func (v *volumeHandle) Close() error {
	return windows.CloseHandle(v.handle)
}

// handleResolver implements Resolver by opening file objects by identifier
// against the volume and resolving their final paths.
type handleResolver struct {
	// volume is the volume handle used as the open hint.
	volume windows.Handle
	// logger is the resolver's logger.
	logger *logging.Logger
}

// ResolvePath implements Resolver.ResolvePath.
func (r *handleResolver) ResolvePath(reference uint64) (string, error) {
	// Open the file object by identifier and defer its closure.
	handle, err := openFileByID(r.volume, reference)
	if err != nil {
		return "", errors.Wrap(err, "unable to open file by identifier")
	}
	defer must.CloseWindowsHandle(handle, r.logger)

	// Resolve the handle's final path.
	buffer := make([]uint16, resolvedPathBufferLength)
	length, err := windows.GetFinalPathNameByHandle(handle, &buffer[0], uint32(len(buffer)), 0)
	if err != nil {
		return "", errors.Wrap(err, "unable to resolve path from handle")
	} else if int(length) > len(buffer) {
		return "", errors.New("resolved path exceeds buffer capacity")
	}
	path := windows.UTF16ToString(buffer[:length])

	// Strip any extended-length prefix.
	path = strings.TrimPrefix(path, `\\?\`)

	// Success.
	return path, nil
}
