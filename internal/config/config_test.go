package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.Debounce != 100*time.Millisecond {
		t.Errorf("expected debounce 100ms, got %s", cfg.Debounce)
	}
	if !cfg.Metrics {
		t.Error("expected metrics to be enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchfs.yaml")
	data := `
port: 9090
debounce: 250ms
max_depth: 4
log:
  level: debug
  format: json
roots:
  - path: ./docs
    exclude: ["*.tmp", "build/out"]
  - path: /srv/repo
    git_ref: main
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.Debounce != 250*time.Millisecond {
		t.Errorf("expected debounce 250ms, got %s", cfg.Debounce)
	}
	if cfg.MaxDepth != 4 {
		t.Errorf("expected max_depth 4, got %d", cfg.MaxDepth)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log config %+v", cfg.Log)
	}
	if len(cfg.Roots) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(cfg.Roots))
	}
	if !filepath.IsAbs(cfg.Roots[0].Path) {
		t.Errorf("expected absolute root path, got %s", cfg.Roots[0].Path)
	}
	if cfg.Roots[0].Alias != "docs" {
		t.Errorf("expected alias docs, got %s", cfg.Roots[0].Alias)
	}
	if !cfg.Roots[1].ReadOnly() || cfg.Roots[1].Alias != "repo (main)" {
		t.Errorf("unexpected git root %+v", cfg.Roots[1])
	}
	if cfg.GetConfigFilePath() != path {
		t.Errorf("expected config path %s, got %s", path, cfg.GetConfigFilePath())
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.configPath = filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := cfg.AddRoot(t.TempDir(), "work", "", []string{"*.log"}); err != nil {
		t.Fatal(err)
	}
	cfg.Debounce = 2 * time.Second
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(cfg.configPath)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Debounce != 2*time.Second {
		t.Errorf("expected debounce 2s, got %s", loaded.Debounce)
	}
	if len(loaded.Roots) != 1 || loaded.Roots[0].Alias != "work" {
		t.Errorf("unexpected roots %+v", loaded.Roots)
	}
}

func TestAddRoot(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.AddRoot("./docs", "MyDocs", "", nil); err != nil {
		t.Fatalf("AddRoot failed: %v", err)
	}
	if err := cfg.AddRoot("./docs", "Again", "", nil); err != nil {
		t.Fatal(err)
	}
	if len(cfg.Roots) != 1 {
		t.Fatalf("expected 1 root, got %d", len(cfg.Roots))
	}
	if cfg.Roots[0].Alias != "MyDocs" {
		t.Errorf("expected alias MyDocs, got %s", cfg.Roots[0].Alias)
	}

	if err := cfg.AddRoot("./docs", "", "v1", nil); err != nil {
		t.Fatal(err)
	}
	if len(cfg.Roots) != 2 {
		t.Fatalf("same path with a git ref is a distinct root, got %d", len(cfg.Roots))
	}
	if cfg.Roots[1].Alias != "docs (v1)" {
		t.Errorf("expected alias 'docs (v1)', got %s", cfg.Roots[1].Alias)
	}

	cfg.RemoveRootByIndex(0)
	cfg.RemoveRootByIndex(5)
	if len(cfg.Roots) != 1 || cfg.Roots[0].GitRef != "v1" {
		t.Errorf("unexpected roots after removal %+v", cfg.Roots)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 0
	cfg.Exclude = []string{"[bad"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error")
	}
}

func TestIsExcluded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exclude = []string{".git", "node_modules", "*.swp"}

	tests := []struct {
		path     string
		excluded bool
	}{
		{"/project/.git", true},
		{"/project/node_modules", true},
		{"/project/notes.txt.swp", true},
		{"/project/src", false},
		{"/project/README.md", false},
	}

	for _, tt := range tests {
		if got := cfg.IsExcluded(tt.path); got != tt.excluded {
			t.Errorf("IsExcluded(%s) = %v, want %v", tt.path, got, tt.excluded)
		}
	}
}

func TestIsRootExcluded(t *testing.T) {
	cfg := DefaultConfig()
	excludes := []string{"*.tmp", "build/out", "drafts"}

	tests := []struct {
		rel      string
		excluded bool
	}{
		{"a.tmp", true},
		{"sub/a.tmp", true},
		{"build/out", true},
		{"build/out/x.txt", true},
		{"build/other", false},
		{"drafts", true},
		{"drafts/one.md", true},
		{"notes.md", false},
	}
	for _, tt := range tests {
		if got := cfg.IsRootExcluded(tt.rel, excludes); got != tt.excluded {
			t.Errorf("IsRootExcluded(%s) = %v, want %v", tt.rel, got, tt.excluded)
		}
	}
	if cfg.IsRootExcluded("anything", nil) {
		t.Error("no excludes should exclude nothing")
	}
}

func TestFilterAndGlobs(t *testing.T) {
	cfg := DefaultConfig()
	root := Root{Path: "/srv/docs", Exclude: []string{"*.tmp", "build/out"}}
	filter := cfg.Filter(root)

	if filter("node_modules", "/srv/docs/") {
		t.Error("global exclude should be filtered")
	}
	if filter("x.tmp", "/srv/docs/sub/") {
		t.Error("root glob should be filtered")
	}
	if filter("out", "/srv/docs/build/") {
		t.Error("root relative exclude should be filtered")
	}
	if !filter("out", "/srv/docs/") {
		t.Error("top-level out should be kept")
	}

	globs := cfg.Globs(root)
	want := map[string]bool{"node_modules": true, ".git": true, ".svn": true, "*.tmp": true}
	if len(globs) != len(want) {
		t.Fatalf("unexpected globs %v", globs)
	}
	for _, g := range globs {
		if !want[g] {
			t.Errorf("unexpected glob %s", g)
		}
	}
}
