// Package filter implements the traversal path filter: the pure,
// thread-safe predicate deciding which directories are walked.
package filter

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/mutagen-io/ptree/pkg/filesystem"
)

// Decision is the outcome of filter evaluation for a candidate directory.
type Decision uint8

const (
	// DecisionWalk indicates that the directory should be enumerated.
	DecisionWalk Decision = iota
	// DecisionSkipSymbolicLink indicates that the candidate is a symbolic
	// link or junction point: it is recorded (with its skip flag set) but
	// its subtree is not enumerated.
	DecisionSkipSymbolicLink
	// DecisionSkipName indicates that the candidate's name is in the
	// configured skip set: it is neither recorded nor enumerated.
	DecisionSkipName
	// DecisionSkipHidden indicates that the candidate carries a hidden or
	// system attribute and hidden content is excluded: it is neither
	// recorded nor enumerated.
	DecisionSkipHidden
)

// defaultSkipNames are terminal directory names that are never walked,
// regardless of mode.
var defaultSkipNames = []string{
	"System Volume Information",
	"$Recycle.Bin",
	".git",
}

// nonAdminSkipSuffixes are path suffixes that are additionally skipped when
// running without administrative rights, where their enumeration would
// mostly produce access denials.
var nonAdminSkipSuffixes = []string{
	"Windows\\WinSxS",
	"Windows\\System32",
	"Windows\\Temp",
}

// Filter decides, for a candidate directory yielded by a parent's
// enumeration, whether it is traversed. Its configuration is immutable for
// the scan's lifetime, and evaluation is pure, so a single filter may be
// shared by all walker workers without synchronization.
type Filter struct {
	// skipNames is the set of lowercased terminal names to skip.
	skipNames map[string]bool
	// skipSuffixes are path suffixes to skip, matched case-insensitively.
	skipSuffixes []string
	// skipPatterns are glob patterns (matched against lowercased terminal
	// names) to skip.
	skipPatterns []string
	// includeHidden indicates whether or not hidden and system directories
	// are walked.
	includeHidden bool
}

// New creates a filter. If admin is false, the non-administrative skip
// suffixes are added to the skip set. Extra skip specifications may be
// plain names (matched case-insensitively against terminal names) or glob
// patterns (detected by the presence of glob metacharacters).
func New(admin, includeHidden bool, extra []string) (*Filter, error) {
	// Create the filter shell.
	f := &Filter{
		skipNames:     make(map[string]bool),
		includeHidden: includeHidden,
	}

	// Register the default skip names.
	for _, name := range defaultSkipNames {
		f.skipNames[strings.ToLower(name)] = true
	}

	// Register the non-administrative skip suffixes.
	if !admin {
		f.skipSuffixes = append(f.skipSuffixes, nonAdminSkipSuffixes...)
	}

	// Register extra skip specifications.
	for _, specification := range extra {
		if specification == "" {
			continue
		}
		if strings.ContainsAny(specification, "*?[{") {
			pattern := strings.ToLower(specification)
			if !doublestar.ValidatePattern(pattern) {
				return nil, errors.Errorf("invalid skip pattern: %s", specification)
			}
			f.skipPatterns = append(f.skipPatterns, pattern)
		} else {
			f.skipNames[strings.ToLower(specification)] = true
		}
	}

	// Success.
	return f, nil
}

// Evaluate applies the filter rules, in order, to a candidate directory.
// The path is the candidate's canonical path and the content is the
// classification probe obtained from the parent's enumeration. The first
// matching rule wins.
func (f *Filter) Evaluate(path string, content filesystem.Content) Decision {
	// Rule 1: symbolic links and junction points are recorded but never
	// followed.
	if content.Kind == filesystem.ContentKindSymbolicLinkToDirectory {
		return DecisionSkipSymbolicLink
	}

	// Rule 2: names in the skip set are dropped entirely.
	name := strings.ToLower(content.Name)
	if f.skipNames[name] {
		return DecisionSkipName
	}
	for _, suffix := range f.skipSuffixes {
		if filesystem.HasSuffixComponents(path, suffix) {
			return DecisionSkipName
		}
	}
	for _, pattern := range f.skipPatterns {
		if matched, err := doublestar.Match(pattern, name); err == nil && matched {
			return DecisionSkipName
		}
	}

	// Rule 3: hidden and system directories are dropped unless requested.
	if !f.includeHidden && (content.Hidden || content.System) {
		return DecisionSkipHidden
	}

	// Rule 4: walk.
	return DecisionWalk
}
