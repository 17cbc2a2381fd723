// Package config manages YAML-based configuration and watched root settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Root is a directory tree served and watched by the server
type Root struct {
	Path    string   `yaml:"path" json:"path"`
	Alias   string   `yaml:"alias,omitempty" json:"alias"`
	GitRef  string   `yaml:"git_ref,omitempty" json:"git_ref,omitempty"`
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
}

// ReadOnly reports whether the root is served from a git ref.
func (r Root) ReadOnly() bool { return r.GitRef != "" }

// LogConfig selects the logger level and encoding
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config holds all configuration options for watchfs
type Config struct {
	Roots   []Root   `yaml:"roots,omitempty" json:"roots"`
	Exclude []string `yaml:"exclude"`

	Port     int           `yaml:"port"`
	Debounce time.Duration `yaml:"debounce"`

	// Visit limits applied to tree listings
	MaxDepth   int `yaml:"max_depth"`
	MaxEntries int `yaml:"max_entries"`

	Log     LogConfig `yaml:"log"`
	Metrics bool      `yaml:"metrics"`

	// Internal: path to config file for saving
	configPath string
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Port:       8080,
		Debounce:   100 * time.Millisecond,
		MaxEntries: 100000,
		Exclude:    []string{"node_modules", ".git", ".svn"},
		Log:        LogConfig{Level: "info", Format: "console"},
		Metrics:    true,
	}
}

// GetConfigDir returns the config directory path
func GetConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/watchfs"
	}
	return filepath.Join(home, ".config", "watchfs")
}

// GetConfigPath returns the full path to the config file
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// Load reads the configuration. An explicit path must exist; otherwise
// ~/.config/watchfs/config.yaml and then ./watchfs.yaml are tried.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	cfgPath := path
	if cfgPath == "" {
		if _, err := os.Stat(GetConfigPath()); err == nil {
			cfgPath = GetConfigPath()
		} else if _, err := os.Stat("watchfs.yaml"); err == nil {
			cfgPath = "watchfs.yaml"
		}
	}

	if cfgPath != "" {
		if err := cfg.loadFromFile(cfgPath); err != nil && path != "" {
			// Only fail if the user explicitly specified the file
			return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
		}
		cfg.configPath = cfgPath
	} else {
		cfg.configPath = GetConfigPath()
	}

	cfg.resolveRoots()
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// resolveRoots makes every root path absolute and fills in missing aliases
func (c *Config) resolveRoots() {
	for i := range c.Roots {
		absPath, err := filepath.Abs(c.Roots[i].Path)
		if err == nil {
			c.Roots[i].Path = absPath
		}
		if c.Roots[i].Alias == "" {
			c.Roots[i].Alias = defaultAlias(c.Roots[i].Path, c.Roots[i].GitRef)
		}
	}
}

func defaultAlias(path, gitRef string) string {
	alias := filepath.Base(path)
	if gitRef != "" {
		alias = alias + " (" + gitRef + ")"
	}
	return alias
}

// Validate reports configuration errors that would prevent startup
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.MaxDepth < 0 || c.MaxEntries < 0 {
		errs = append(errs, errors.New("visit limits must not be negative"))
	}
	for _, pattern := range c.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			errs = append(errs, fmt.Errorf("exclude %q: %w", pattern, err))
		}
	}
	for _, r := range c.Roots {
		for _, pattern := range r.Exclude {
			if _, err := filepath.Match(pattern, ""); err != nil {
				errs = append(errs, fmt.Errorf("root %s exclude %q: %w", r.Path, pattern, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Save saves the current configuration to the config file
func (c *Config) Save() error {
	configDir := filepath.Dir(c.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(c.configPath, data, 0644)
}

// AddRoot adds a new root with the given path, alias, git_ref and excludes
func (c *Config) AddRoot(path, alias, gitRef string, exclude []string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	for _, r := range c.Roots {
		if r.Path == absPath && r.GitRef == gitRef {
			return nil // Already exists
		}
	}

	if alias == "" {
		alias = defaultAlias(absPath, gitRef)
	}

	c.Roots = append(c.Roots, Root{
		Path:    absPath,
		Alias:   alias,
		GitRef:  gitRef,
		Exclude: exclude,
	})
	return nil
}

// RemoveRootByIndex removes a root by its index
func (c *Config) RemoveRootByIndex(index int) {
	if index < 0 || index >= len(c.Roots) {
		return
	}
	c.Roots = append(c.Roots[:index], c.Roots[index+1:]...)
}

// GetConfigFilePath returns the path to the config file
func (c *Config) GetConfigFilePath() string {
	return c.configPath
}

// IsExcluded checks if a path should be excluded by the global patterns
func (c *Config) IsExcluded(path string) bool {
	base := filepath.Base(path)
	for _, exclude := range c.Exclude {
		if matched, _ := filepath.Match(exclude, base); matched {
			return true
		}
	}
	return false
}

// IsRootExcluded checks if a path relative to a root should be excluded by
// root-level excludes
func (c *Config) IsRootExcluded(relPath string, rootExcludes []string) bool {
	for _, pattern := range rootExcludes {
		if matched, _ := filepath.Match(pattern, relPath); matched {
			return true
		}
		base := filepath.Base(relPath)
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		clean := filepath.Clean(pattern)
		if relPath == clean || strings.HasPrefix(relPath, clean+"/") {
			return true
		}
	}
	return false
}

// Globs returns the ignore globs handed to the native watcher for a root
func (c *Config) Globs(r Root) []string {
	globs := make([]string, 0, len(c.Exclude)+len(r.Exclude))
	globs = append(globs, c.Exclude...)
	for _, pattern := range r.Exclude {
		if !strings.Contains(pattern, "/") {
			globs = append(globs, pattern)
		}
	}
	return globs
}

// Filter returns a predicate accepting the children of a root that are not
// excluded. Paths use forward slashes and directories end in "/".
func (c *Config) Filter(r Root) func(name, parentPath string) bool {
	base := filepath.ToSlash(r.Path)
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return func(name, parentPath string) bool {
		if c.IsExcluded(name) {
			return false
		}
		rel := strings.TrimPrefix(parentPath, base) + name
		return !c.IsRootExcluded(rel, r.Exclude)
	}
}
