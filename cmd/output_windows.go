//go:build windows

package cmd

// statusLineFormat is the format string used for status line printing. On
// Windows, status lines are padded to 79 characters: cmd.exe consoles need
// lines narrower than the console width (80 columns by default) for
// carriage return wipes to work.
const statusLineFormat = "\r%-79s"
