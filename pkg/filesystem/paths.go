package filesystem

import (
	"strings"
)

// volumePrefixLength is the length of a Windows volume prefix (e.g. "C:").
const volumePrefixLength = 2

// isWindowsStylePath returns true if the path uses Windows volume syntax
// (i.e. starts with a drive letter followed by a colon). ptree's canonical
// path rules are keyed off of the path's own syntax rather than the host
// platform so that cache contents remain well-defined (and testable) on any
// system.
func isWindowsStylePath(path string) bool {
	if len(path) < volumePrefixLength || path[1] != ':' {
		return false
	}
	drive := path[0]
	return (drive >= 'a' && drive <= 'z') || (drive >= 'A' && drive <= 'Z')
}

// pathSeparator returns the separator byte used by the canonical form of the
// specified path.
func pathSeparator(path string) byte {
	if isWindowsStylePath(path) {
		return '\\'
	}
	return '/'
}

// Canonicalize converts a directory path to its canonical form: for
// Windows-style paths, an uppercase volume letter, single-backslash
// separators, and no trailing separator (except at the volume root, which is
// always "X:\"); for other absolute paths, single-forward-slash separators
// and no trailing separator (except at the filesystem root "/").
func Canonicalize(path string) string {
	if isWindowsStylePath(path) {
		// Normalize separators.
		path = strings.ReplaceAll(path, "/", "\\")

		// Collapse any repeated separators after the volume prefix.
		for strings.Contains(path[volumePrefixLength:], "\\\\") {
			path = path[:volumePrefixLength] + strings.ReplaceAll(path[volumePrefixLength:], "\\\\", "\\")
		}

		// Uppercase the volume letter.
		if path[0] >= 'a' && path[0] <= 'z' {
			path = string(path[0]-'a'+'A') + path[1:]
		}

		// Trim any trailing separator, but keep the volume root's.
		if len(path) > volumePrefixLength+1 && path[len(path)-1] == '\\' {
			path = path[:len(path)-1]
		}

		// Ensure that a bare volume prefix carries its root separator.
		if len(path) == volumePrefixLength {
			path += "\\"
		}

		return path
	}

	// Collapse any repeated separators.
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}

	// Trim any trailing separator, but keep the filesystem root's.
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}

	return path
}

// IsVolumeRoot returns true if the canonical path represents a volume root
// (e.g. "C:\" or "/").
func IsVolumeRoot(path string) bool {
	if isWindowsStylePath(path) {
		return len(path) == volumePrefixLength+1
	}
	return path == "/"
}

// Join joins a child name onto a canonical parent directory path, yielding
// the child's canonical path.
func Join(parent, name string) string {
	separator := pathSeparator(parent)
	if IsVolumeRoot(parent) {
		return parent + name
	}
	return parent + string(separator) + name
}

// Split splits a canonical path into its parent's canonical path and its
// terminal name component. For a volume root, it returns an empty parent and
// an empty name.
func Split(path string) (string, string) {
	if IsVolumeRoot(path) {
		return "", ""
	}
	separator := pathSeparator(path)
	index := strings.LastIndexByte(path, separator)
	if index == -1 {
		return "", path
	}
	parent := path[:index]
	if isWindowsStylePath(path) && len(parent) == volumePrefixLength {
		parent += "\\"
	} else if parent == "" {
		parent = "/"
	}
	return parent, path[index+1:]
}

// Name returns the terminal name component of a canonical path, or an empty
// string for a volume root.
func Name(path string) string {
	_, name := Split(path)
	return name
}

// IsPathPrefix returns true if the canonical path prefix equals path or
// names one of its ancestors. It respects component boundaries, so "C:\Ab"
// is not a prefix of "C:\Abc".
func IsPathPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if IsVolumeRoot(prefix) {
		return strings.HasPrefix(path, prefix)
	}
	return strings.HasPrefix(path, prefix+string(pathSeparator(prefix)))
}

// HasSuffixComponents returns true if the canonical path ends with the
// specified separator-delimited component suffix (matched
// case-insensitively). It is used for skip rules such as "Windows\System32"
// that are matched as path suffixes.
func HasSuffixComponents(path, suffix string) bool {
	separator := string(pathSeparator(path))
	suffix = strings.ReplaceAll(strings.ReplaceAll(suffix, "/", separator), "\\", separator)
	if len(path) < len(suffix) {
		return false
	}
	if !strings.EqualFold(path[len(path)-len(suffix):], suffix) {
		return false
	}
	if len(path) == len(suffix) {
		return true
	}
	return path[len(path)-len(suffix)-1] == separator[0]
}
