package filter

import (
	"testing"

	"github.com/mutagen-io/ptree/pkg/filesystem"
)

// directory creates a plain directory probe.
func directory(name string) filesystem.Content {
	return filesystem.Content{Name: name, Kind: filesystem.ContentKindDirectory}
}

// TestDefaultSkipSet verifies the always-skip names.
func TestDefaultSkipSet(t *testing.T) {
	f, err := New(true, false, nil)
	if err != nil {
		t.Fatalf("unable to create filter: %v", err)
	}
	tests := []struct {
		name     string
		expected Decision
	}{
		{"System Volume Information", DecisionSkipName},
		{"system volume information", DecisionSkipName},
		{"$Recycle.Bin", DecisionSkipName},
		{".git", DecisionSkipName},
		{"Documents", DecisionWalk},
	}
	for _, test := range tests {
		path := filesystem.Join("C:\\", test.name)
		if decision := f.Evaluate(path, directory(test.name)); decision != test.expected {
			t.Errorf("Evaluate(%q) = %v, expected %v", test.name, decision, test.expected)
		}
	}
}

// TestSymbolicLinkRuleWins verifies that the symbolic link rule precedes
// all others, including the skip set and hidden handling.
func TestSymbolicLinkRuleWins(t *testing.T) {
	f, err := New(true, false, nil)
	if err != nil {
		t.Fatalf("unable to create filter: %v", err)
	}
	content := filesystem.Content{
		Name:   ".git",
		Kind:   filesystem.ContentKindSymbolicLinkToDirectory,
		Hidden: true,
	}
	if decision := f.Evaluate("C:\\repo\\.git", content); decision != DecisionSkipSymbolicLink {
		t.Errorf("expected symbolic link decision, got %v", decision)
	}
}

// TestNonAdminSuffixes verifies that the system path suffixes only apply in
// non-admin mode.
func TestNonAdminSuffixes(t *testing.T) {
	nonAdmin, err := New(false, false, nil)
	if err != nil {
		t.Fatalf("unable to create non-admin filter: %v", err)
	}
	admin, err := New(true, false, nil)
	if err != nil {
		t.Fatalf("unable to create admin filter: %v", err)
	}
	path := "C:\\Windows\\System32"
	content := directory("System32")
	if decision := nonAdmin.Evaluate(path, content); decision != DecisionSkipName {
		t.Errorf("non-admin filter walked %s", path)
	}
	if decision := admin.Evaluate(path, content); decision != DecisionWalk {
		t.Errorf("admin filter skipped %s", path)
	}

	// The suffix must respect component boundaries.
	other := "C:\\Backup\\NotSystem32"
	if decision := nonAdmin.Evaluate(other, directory("NotSystem32")); decision != DecisionWalk {
		t.Errorf("non-admin filter skipped %s", other)
	}
}

// TestHiddenRule verifies hidden and system attribute handling.
func TestHiddenRule(t *testing.T) {
	excluding, err := New(true, false, nil)
	if err != nil {
		t.Fatalf("unable to create filter: %v", err)
	}
	including, err := New(true, true, nil)
	if err != nil {
		t.Fatalf("unable to create hidden-including filter: %v", err)
	}
	hidden := filesystem.Content{
		Name:   "AppData",
		Kind:   filesystem.ContentKindDirectory,
		Hidden: true,
	}
	system := filesystem.Content{
		Name:   "Config.Msi",
		Kind:   filesystem.ContentKindDirectory,
		System: true,
	}
	if decision := excluding.Evaluate("C:\\Users\\AppData", hidden); decision != DecisionSkipHidden {
		t.Errorf("expected hidden skip, got %v", decision)
	}
	if decision := excluding.Evaluate("C:\\Config.Msi", system); decision != DecisionSkipHidden {
		t.Errorf("expected system skip, got %v", decision)
	}
	if decision := including.Evaluate("C:\\Users\\AppData", hidden); decision != DecisionWalk {
		t.Errorf("expected walk with hidden included, got %v", decision)
	}
}

// TestExtraSkips verifies supplemental names and glob patterns.
func TestExtraSkips(t *testing.T) {
	f, err := New(true, false, []string{"node_modules", "*.bak"})
	if err != nil {
		t.Fatalf("unable to create filter: %v", err)
	}
	tests := []struct {
		name     string
		expected Decision
	}{
		{"node_modules", DecisionSkipName},
		{"NODE_MODULES", DecisionSkipName},
		{"archive.bak", DecisionSkipName},
		{"archive", DecisionWalk},
	}
	for _, test := range tests {
		path := filesystem.Join("C:\\project", test.name)
		if decision := f.Evaluate(path, directory(test.name)); decision != test.expected {
			t.Errorf("Evaluate(%q) = %v, expected %v", test.name, decision, test.expected)
		}
	}

	// Invalid patterns must be rejected at construction.
	if _, err := New(true, false, []string{"[invalid"}); err == nil {
		t.Error("expected invalid pattern rejection")
	}
}
