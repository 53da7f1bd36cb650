package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mutagen-io/ptree/pkg/ptree"
)

func versionMain(_ *cobra.Command, _ []string) error {
	fmt.Println(ptree.Version)
	return nil
}

var versionCommand = &cobra.Command{
	Use:          "version",
	Short:        "Show version information",
	Args:         cobra.NoArgs,
	RunE:         versionMain,
	SilenceUsage: true,
}
