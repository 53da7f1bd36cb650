package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mutagen-io/ptree/pkg/scan"
)

// printRunSummary prints walk and reconciliation telemetry to standard
// error.
func printRunSummary(result *scan.Result, elapsed time.Duration) {
	// Describe the pipeline path taken.
	switch {
	case result.Fresh:
		fmt.Fprintln(os.Stderr, "Cache fresh; no enumeration performed")
	case result.Reconciled:
		fmt.Fprintln(os.Stderr, "Cache reconciled from change journal")
	case result.FullWalk:
		fmt.Fprintln(os.Stderr, "Full volume walk performed")
	}

	// Print walk telemetry.
	if stats := result.Stats; stats != nil {
		fmt.Fprintf(os.Stderr, "Directories walked: %s\n", humanize.Comma(int64(stats.DirectoriesWalked.Load())))
		fmt.Fprintf(os.Stderr, "Entries staged: %s\n", humanize.Comma(int64(stats.EntriesStaged.Load())))
		if links := stats.SymbolicLinksSkipped.Load(); links > 0 {
			fmt.Fprintf(os.Stderr, "Links not followed: %s\n", humanize.Comma(int64(links)))
		}
		if skipped := stats.SkipCount(); skipped > 0 {
			fmt.Fprintf(os.Stderr, "Inaccessible directories skipped: %s\n", humanize.Comma(int64(skipped)))
		}
		if filtered := stats.SkippedFiltered.Load(); filtered > 0 {
			fmt.Fprintf(os.Stderr, "Filtered directories: %s\n", humanize.Comma(int64(filtered)))
		}
	}

	// Print reconciliation telemetry.
	if stats := result.JournalStats; stats != nil {
		fmt.Fprintf(os.Stderr, "Journal records parsed: %s\n", humanize.Comma(int64(stats.RecordsParsed)))
		fmt.Fprintf(os.Stderr,
			"Changes: %d created, %d deleted, %d renamed, %d modified\n",
			stats.Creates, stats.Deletes, stats.Renames, stats.Modifies,
		)
		if stats.ParseErrors > 0 {
			fmt.Fprintf(os.Stderr, "Malformed records skipped: %d\n", stats.ParseErrors)
		}
	}

	// Print the elapsed time.
	fmt.Fprintf(os.Stderr, "Elapsed: %s\n", elapsed.Round(time.Millisecond))
}
