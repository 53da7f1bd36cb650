package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"

	"github.com/mutagen-io/ptree/pkg/configuration"
	"github.com/mutagen-io/ptree/pkg/filesystem"
	"github.com/mutagen-io/ptree/pkg/logging"
)

// runOnce executes the pipeline against a root and cache directory.
func runOnce(t *testing.T, root, cacheDirectory string, mutate func(*configuration.Configuration)) *Result {
	t.Helper()
	config := &configuration.Configuration{Drive: root}
	if mutate != nil {
		mutate(config)
	}
	result, err := Run(context.Background(), config, cacheDirectory, nil, logging.RootLogger)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	t.Cleanup(func() { result.Store.Close() })
	return result
}

// TestRunPipeline verifies the walk → fresh → forced-rebuild sequence.
func TestRunPipeline(t *testing.T) {
	// Build a volume.
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "data"), 0755); err != nil {
		t.Fatalf("unable to create directory: %v", err)
	}
	cacheDirectory := t.TempDir()

	// The first run must perform a full walk.
	first := runOnce(t, root, cacheDirectory, nil)
	if !first.FullWalk || first.Fresh {
		t.Errorf("unexpected first run disposition: %+v", first)
	}
	if entry, err := first.Reader.Get(filesystem.Join(filesystem.Canonicalize(root), "data")); err != nil || entry == nil {
		t.Errorf("walked entry missing from snapshot (%v)", err)
	}

	// A second run within the freshness window must not walk.
	second := runOnce(t, root, cacheDirectory, nil)
	if !second.Fresh {
		t.Errorf("unexpected second run disposition: %+v", second)
	}

	// An external change followed by a forced run must converge.
	if err := os.Mkdir(filepath.Join(root, "added"), 0755); err != nil {
		t.Fatalf("unable to create directory: %v", err)
	}
	third := runOnce(t, root, cacheDirectory, func(config *configuration.Configuration) {
		config.Force = true
	})
	if !third.FullWalk {
		t.Errorf("unexpected forced run disposition: %+v", third)
	}
	rootEntry, err := third.Reader.Root()
	if err != nil || rootEntry == nil {
		t.Fatalf("snapshot missing root (%v)", err)
	}
	if !rootEntry.HasChild("added") {
		t.Errorf("forced run missed external change: %v", rootEntry.Children)
	}
}

// TestRunIncrementalFallback verifies that a reconcile request on a volume
// without a readable journal falls back to a full walk.
func TestRunIncrementalFallback(t *testing.T) {
	root := t.TempDir()
	cacheDirectory := t.TempDir()

	// Seed the cache.
	runOnce(t, root, cacheDirectory, nil)

	// Request reconciliation. Where no journal is available (always the
	// case off-Windows, and on non-NTFS volumes generally), the run must
	// degrade to a walk rather than fail.
	result := runOnce(t, root, cacheDirectory, func(config *configuration.Configuration) {
		config.Incremental = true
	})
	if result.Fresh {
		t.Error("incremental run reported fresh cache")
	}
	if !result.Reconciled && !result.FullWalk {
		t.Errorf("incremental run neither reconciled nor walked: %+v", result)
	}
}

// TestRunVolumeNotFound verifies the invalid-volume sentinel.
func TestRunVolumeNotFound(t *testing.T) {
	config := &configuration.Configuration{
		Drive: filepath.Join(t.TempDir(), "missing"),
	}
	_, err := Run(context.Background(), config, t.TempDir(), nil, logging.RootLogger)
	if !errors.Is(err, ErrVolumeNotFound) {
		t.Errorf("expected volume sentinel, got: %v", err)
	}
}

// TestRunInvalidConfiguration verifies configuration validation surfacing.
func TestRunInvalidConfiguration(t *testing.T) {
	config := &configuration.Configuration{
		Drive:  t.TempDir(),
		Format: "xml",
	}
	if _, err := Run(context.Background(), config, t.TempDir(), nil, logging.RootLogger); err == nil {
		t.Error("expected configuration rejection")
	}
}
