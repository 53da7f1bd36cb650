//go:build !windows

package cmd

// statusLineFormat is the format string used for status line printing. On
// POSIX systems, status lines are padded to 80 characters.
const statusLineFormat = "\r%-80s"
