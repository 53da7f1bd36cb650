package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mutagen-io/ptree/pkg/cache"
	"github.com/mutagen-io/ptree/pkg/filesystem"
	"github.com/mutagen-io/ptree/pkg/logging"
)

func cacheClearMain(_ *cobra.Command, _ []string) error {
	// Resolve the cache directory without creating it.
	cacheDirectory, err := filesystem.PTree(false, filesystem.PTreeCacheDirectoryName)
	if err != nil {
		return errors.Wrap(err, "unable to resolve cache directory")
	}

	// Remove the snapshot files.
	if err := cache.RemoveFiles(cacheDirectory); err != nil {
		return err
	}

	// Success.
	fmt.Println("Cache cleared")
	return nil
}

var cacheClearCommand = &cobra.Command{
	Use:          "clear",
	Short:        "Remove the snapshot cache",
	Args:         cobra.NoArgs,
	RunE:         cacheClearMain,
	SilenceUsage: true,
}

func cacheInfoMain(_ *cobra.Command, _ []string) error {
	// Resolve the cache directory without creating it.
	cacheDirectory, err := filesystem.PTree(false, filesystem.PTreeCacheDirectoryName)
	if err != nil {
		return errors.Wrap(err, "unable to resolve cache directory")
	}

	// Open the store and defer its closure.
	store, err := cache.Open(cacheDirectory, logging.RootLogger.Sublogger("cache"))
	if err != nil {
		return err
	}
	defer store.Close()

	// Handle the empty case.
	if store.Empty() {
		fmt.Println("No cache present")
		return nil
	}

	// Print the snapshot metadata.
	meta := store.Meta()
	fmt.Println("Root:", meta.Root)
	fmt.Printf("Last scan: %s (%s)\n",
		meta.LastScanTime().Format(time.RFC3339),
		humanize.Time(meta.LastScanTime()),
	)
	fmt.Println("Entries:", humanize.Comma(int64(store.EntryCount())))
	fmt.Println("Journal identifier:", meta.JournalID)
	fmt.Println("Journal position:", meta.LastUSN)
	fmt.Println("Snapshot identifier:", meta.SnapshotID)

	// Success.
	return nil
}

var cacheInfoCommand = &cobra.Command{
	Use:          "info",
	Short:        "Show snapshot cache metadata",
	Args:         cobra.NoArgs,
	RunE:         cacheInfoMain,
	SilenceUsage: true,
}

var cacheCommand = &cobra.Command{
	Use:          "cache",
	Short:        "Manage the snapshot cache",
	SilenceUsage: true,
}

func init() {
	cacheCommand.AddCommand(
		cacheClearCommand,
		cacheInfoCommand,
	)
}
