package filesystem

// TemporaryNamePrefix is the file name prefix used for all temporary files
// and directories created by ptree. Any file or directory with this prefix
// may be treated as a transient and excluded from snapshots.
const TemporaryNamePrefix = ".ptree-temporary-"
