package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestConfigurationEnsureValid verifies configuration validation.
func TestConfigurationEnsureValid(t *testing.T) {
	tests := []struct {
		description   string
		configuration *Configuration
		valid         bool
	}{
		{"nil", nil, false},
		{"empty", &Configuration{}, false},
		{"drive letter", &Configuration{Drive: "C"}, true},
		{"lowercase drive letter", &Configuration{Drive: "d"}, true},
		{"invalid drive letter", &Configuration{Drive: "7"}, false},
		{"root path", &Configuration{Drive: "/data"}, true},
		{"negative threads", &Configuration{Drive: "C", Threads: -1}, false},
		{"negative depth", &Configuration{Drive: "C", MaxDepth: -2}, false},
		{"known format", &Configuration{Drive: "C", Format: FormatJSON}, true},
		{"unknown format", &Configuration{Drive: "C", Format: "xml"}, false},
	}
	for _, test := range tests {
		err := test.configuration.EnsureValid()
		if test.valid && err != nil {
			t.Errorf("%s: unexpected validation failure: %v", test.description, err)
		} else if !test.valid && err == nil {
			t.Errorf("%s: validation unexpectedly succeeded", test.description)
		}
	}
}

// TestConfigurationRoot verifies drive-to-root mapping.
func TestConfigurationRoot(t *testing.T) {
	tests := []struct {
		drive    string
		expected string
	}{
		{"c", "C:\\"},
		{"D", "D:\\"},
		{"/data/volumes/main", "/data/volumes/main"},
	}
	for _, test := range tests {
		configuration := &Configuration{Drive: test.drive}
		if root := configuration.Root(); root != test.expected {
			t.Errorf("Root(%q) = %q, expected %q", test.drive, root, test.expected)
		}
	}
}

// TestLoad verifies global configuration loading and the missing-file fast
// path.
func TestLoad(t *testing.T) {
	// Write a global configuration.
	path := filepath.Join(t.TempDir(), "ptree.toml")
	content := `drive = "D"
hidden = true
threads = 8
skip = ["node_modules", "target"]
format = "json"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("unable to write configuration: %v", err)
	}

	// Load and verify.
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("unable to load configuration: %v", err)
	}
	expected := &Configuration{
		Drive:     "D",
		Hidden:    true,
		Threads:   8,
		SkipExtra: []string{"node_modules", "target"},
		Format:    FormatJSON,
	}
	if diff := cmp.Diff(expected, loaded); diff != "" {
		t.Errorf("unexpected configuration:\n%s", diff)
	}

	// A missing file yields a zero configuration.
	missing, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("missing configuration errored: %v", err)
	}
	if diff := cmp.Diff(&Configuration{}, missing); diff != "" {
		t.Errorf("missing configuration non-zero:\n%s", diff)
	}
}
