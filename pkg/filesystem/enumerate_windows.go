//go:build windows

package filesystem

import (
	"io/fs"
	"syscall"

	"golang.org/x/sys/windows"
)

// classifyDirEntry classifies a single enumerated child using the file
// attribute data captured by the enumeration. The Info call here doesn't
// incur a system call on Windows because the os package caches the
// enumeration's FindFirstFile data on the returned entries.
func classifyDirEntry(_ string, entry fs.DirEntry) Content {
	// Extract the child's metadata. A failure here most likely indicates that
	// the child was deleted mid-enumeration.
	name := entry.Name()
	info, err := entry.Info()
	if err != nil {
		return Content{Name: name, Kind: ContentKindProblematic}
	}

	// Extract the raw Windows file attributes.
	var attributes uint32
	if data, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
		attributes = data.FileAttributes
	}

	// Compute the content kind. Reparse points (symbolic links and junction
	// points) that carry the directory attribute target directories; all
	// other reparse points are non-directory content.
	var kind ContentKind
	if attributes&windows.FILE_ATTRIBUTE_REPARSE_POINT != 0 {
		if attributes&windows.FILE_ATTRIBUTE_DIRECTORY != 0 {
			kind = ContentKindSymbolicLinkToDirectory
		} else {
			kind = ContentKindOther
		}
	} else if attributes&windows.FILE_ATTRIBUTE_DIRECTORY != 0 {
		kind = ContentKindDirectory
	} else {
		kind = ContentKindOther
	}

	// Success.
	return Content{
		Name:   name,
		Kind:   kind,
		Hidden: attributes&windows.FILE_ATTRIBUTE_HIDDEN != 0,
		System: attributes&windows.FILE_ATTRIBUTE_SYSTEM != 0,
	}
}
