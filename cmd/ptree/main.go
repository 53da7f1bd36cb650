package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mutagen-io/ptree/cmd"
	"github.com/mutagen-io/ptree/pkg/cache"
	"github.com/mutagen-io/ptree/pkg/configuration"
	"github.com/mutagen-io/ptree/pkg/filesystem"
	"github.com/mutagen-io/ptree/pkg/logging"
	"github.com/mutagen-io/ptree/pkg/render"
	"github.com/mutagen-io/ptree/pkg/scan"
	"github.com/mutagen-io/ptree/pkg/state"
)

// Exit codes.
const (
	// exitCodeUserError indicates invalid user input (e.g. a bad drive).
	exitCodeUserError = 1
	// exitCodeIOFailure indicates an I/O or cancellation failure.
	exitCodeIOFailure = 2
	// exitCodeCacheCorrupt indicates undecodable cache state.
	exitCodeCacheCorrupt = 3
)

// errInvalidUsage tags errors caused by invalid user input.
var errInvalidUsage = errors.New("invalid usage")

// exitCodeForError maps an error to the process exit code contract.
func exitCodeForError(err error) int {
	if errors.Is(err, cache.ErrCacheCorrupt) {
		return exitCodeCacheCorrupt
	} else if errors.Is(err, scan.ErrVolumeNotFound) || errors.Is(err, errInvalidUsage) {
		return exitCodeUserError
	}
	return exitCodeIOFailure
}

// applyFlagOverrides overlays explicitly set command line flags onto a
// configuration loaded from the global configuration file.
func applyFlagOverrides(flags *pflag.FlagSet, config *configuration.Configuration) {
	if flags.Changed("admin") {
		config.Admin = rootConfiguration.admin
	}
	if flags.Changed("force") {
		config.Force = rootConfiguration.force
	}
	if flags.Changed("skip") {
		config.SkipExtra = rootConfiguration.skip
	}
	if flags.Changed("hidden") {
		config.Hidden = rootConfiguration.hidden
	}
	if flags.Changed("threads") {
		config.Threads = rootConfiguration.threads
	}
	if flags.Changed("incremental") {
		config.Incremental = rootConfiguration.incremental
	}
	if flags.Changed("format") {
		config.Format = rootConfiguration.format
	}
	if flags.Changed("depth") {
		config.MaxDepth = rootConfiguration.depth
	}
	if flags.Changed("no-color") {
		config.NoColor = rootConfiguration.noColor
	}
	if flags.Changed("stats") {
		config.ShowStats = rootConfiguration.stats
	}
}

// defaultDrive computes the drive used when neither the command line nor
// the global configuration names one.
func defaultDrive() string {
	if runtime.GOOS == "windows" {
		return "C"
	}
	return "/"
}

// rootMain is the entry point for the root command.
func rootMain(command *cobra.Command, arguments []string) error {
	// Load global configuration defaults, tolerating resolution failures
	// (the cache directory resolution below will surface them properly).
	config := &configuration.Configuration{}
	if configPath, err := filesystem.PTree(false, filesystem.PTreeConfigurationName); err == nil {
		loaded, err := configuration.Load(configPath)
		if err != nil {
			return errors.Wrap(err, "unable to load global configuration")
		}
		config = loaded
	}

	// Apply the drive argument and flag overrides.
	if len(arguments) > 0 {
		config.Drive = arguments[0]
	} else if config.Drive == "" {
		config.Drive = defaultDrive()
	}
	applyFlagOverrides(command.Flags(), config)

	// Validate the effective configuration.
	if err := config.EnsureValid(); err != nil {
		return errors.Wrap(errInvalidUsage, err.Error())
	}

	// Resolve (and ensure) the cache directory.
	cacheDirectory, err := filesystem.PTree(true, filesystem.PTreeCacheDirectoryName)
	if err != nil {
		return errors.Wrap(err, "unable to resolve cache directory")
	}

	// Set up interrupt-driven cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	go func() {
		<-interrupts
		cancel()
	}()

	// Publish walk progress to a status line.
	tracker := state.NewTracker()
	printer := &cmd.StatusLinePrinter{UseStandardError: true}
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		var index uint64
		var poisoned bool
		for !poisoned {
			index, poisoned = tracker.WaitForChange(index)
			printer.Print("Scanned " + humanize.Comma(int64(index)) + " directories")
		}
	}()

	// Execute the pipeline.
	start := time.Now()
	result, err := scan.Run(ctx, config, cacheDirectory, tracker, logging.RootLogger)
	tracker.Poison()
	<-progressDone
	printer.Clear()
	if err != nil {
		return err
	}
	defer result.Store.Close()

	// Render the snapshot.
	options := &render.Options{
		Color:    render.DetectColor(config.NoColor),
		MaxDepth: config.MaxDepth,
	}
	switch config.Format {
	case configuration.FormatJSON:
		err = render.JSON(os.Stdout, result.Reader, options)
	case configuration.FormatYAML:
		err = render.YAML(os.Stdout, result.Reader, options)
	default:
		err = render.Tree(os.Stdout, result.Reader, options)
	}
	if err != nil {
		return errors.Wrap(err, "unable to render snapshot")
	}

	// Print telemetry if requested.
	if config.ShowStats {
		printRunSummary(result, time.Since(start))
	}

	// Success.
	return nil
}

var rootCommand = &cobra.Command{
	Use:          "ptree [flags] [drive]",
	Short:        "Cache-first directory tree visualization for large volumes",
	Args:         cobra.MaximumNArgs(1),
	RunE:         rootMain,
	SilenceUsage: true,
}

var rootConfiguration struct {
	// admin indicates administrative rights (shrinking the default skip
	// set).
	admin bool
	// force bypasses the freshness check and journal reconciliation.
	force bool
	// skip supplements the default skip set.
	skip []string
	// hidden includes hidden and system directories.
	hidden bool
	// threads is the walker worker count.
	threads int
	// incremental attempts journal reconciliation.
	incremental bool
	// format selects the output format.
	format string
	// depth limits rendering depth.
	depth int
	// noColor disables colored output.
	noColor bool
	// stats prints walk telemetry.
	stats bool
}

func init() {
	// Grab a handle for the command line flags.
	flags := rootCommand.Flags()

	// Disable alphabetical sorting of flags in help output.
	flags.SortFlags = false

	// Wire up root command flags.
	flags.BoolVar(&rootConfiguration.admin, "admin", false, "Assume administrative rights (walk system directories)")
	flags.BoolVarP(&rootConfiguration.force, "force", "f", false, "Bypass the freshness check and rebuild the cache")
	flags.StringSliceVar(&rootConfiguration.skip, "skip", nil, "Additional directory names or patterns to skip")
	flags.BoolVar(&rootConfiguration.hidden, "hidden", false, "Include hidden and system directories")
	flags.IntVar(&rootConfiguration.threads, "threads", 0, "Walker thread count (0 for automatic)")
	flags.BoolVarP(&rootConfiguration.incremental, "incremental", "i", false, "Reconcile the cache against the change journal")
	flags.StringVar(&rootConfiguration.format, "format", "", "Output format (tree|json|yaml)")
	flags.IntVar(&rootConfiguration.depth, "depth", 0, "Maximum rendering depth (0 for unlimited)")
	flags.BoolVar(&rootConfiguration.noColor, "no-color", false, "Disable colored output")
	flags.BoolVar(&rootConfiguration.stats, "stats", false, "Print scan statistics")

	// Register subcommands.
	rootCommand.AddCommand(
		cacheCommand,
		versionCommand,
	)
}

func main() {
	// Execute the root command and convert any error to the documented
	// exit code contract.
	if err := rootCommand.Execute(); err != nil {
		if errors.Is(err, cache.ErrCacheCorrupt) {
			cmd.Warning("cache state is corrupt; re-run with --force to rebuild it")
		}
		os.Exit(exitCodeForError(err))
	}
}
