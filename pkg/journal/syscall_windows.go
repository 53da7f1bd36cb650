//go:build windows

package journal

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	// modkernel32 is the lazily loaded kernel32 module.
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")
	// procOpenFileById is the OpenFileById procedure.
	procOpenFileById = modkernel32.NewProc("OpenFileById")
)

// fileIDDescriptor mirrors the FILE_ID_DESCRIPTOR structure for 64-bit file
// identifiers. The trailing padding covers the descriptor's 128-bit
// identifier union arm.
type fileIDDescriptor struct {
	size     uint32
	idType   uint32
	fileID   uint64
	reserved uint64
}

// openFileByID opens a file object by its 64-bit file reference number,
// using the specified volume handle as the resolution hint. The handle is
// opened without data access (attribute and path queries only), with backup
// semantics so that directories are openable, and without following
// reparse points.
func openFileByID(volume windows.Handle, reference uint64) (windows.Handle, error) {
	descriptor := fileIDDescriptor{
		fileID: reference,
	}
	descriptor.size = uint32(unsafe.Sizeof(descriptor))
	handle, _, err := procOpenFileById.Call(
		uintptr(volume),
		uintptr(unsafe.Pointer(&descriptor)),
		0,
		uintptr(windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE),
		0,
		uintptr(windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_OPEN_REPARSE_POINT),
	)
	if windows.Handle(handle) == windows.InvalidHandle {
		return windows.InvalidHandle, err
	}
	return windows.Handle(handle), nil
}
