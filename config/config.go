// Package config loads blog-cli settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robertmeta/blog-cli/source"
	"github.com/robertmeta/blog-cli/toc"
)

// Source kinds.
const (
	SourceLocal  = "local"
	SourceNotion = "notion"
	SourceFeed   = "feed"
	SourceIndex  = "index"
)

// Config holds every setting. Flags and environment variables override
// file values in the CLI.
type Config struct {
	// Source selects the backing store: local, notion, feed or index.
	Source     string `yaml:"source"`
	ContentDir string `yaml:"content_dir"`
	FeedURL    string `yaml:"feed_url"`
	DBPath     string `yaml:"db_path"`

	// IndexOf is the source the index is synced from.
	IndexOf string `yaml:"index_of"`

	Notion Notion `yaml:"notion"`

	BaseURL            string        `yaml:"base_url"`
	Listen             string        `yaml:"listen"`
	CacheTTL           time.Duration `yaml:"cache_ttl"`
	RevalidationSecret string        `yaml:"revalidation_secret"`
	Headings           string        `yaml:"headings"`
	Watch              bool          `yaml:"watch"`
}

// Notion holds the Notion database settings.
type Notion struct {
	Token      string               `yaml:"token"`
	DatabaseID string               `yaml:"database_id"`
	BaseURL    string               `yaml:"base_url"`
	Properties source.PropertyNames `yaml:"properties"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Source:     SourceLocal,
		ContentDir: "posts",
		DBPath:     DefaultDBPath(),
		IndexOf:    SourceNotion,
		Notion: Notion{
			BaseURL:    source.DefaultNotionBaseURL,
			Properties: source.DefaultPropertyNames(),
		},
		BaseURL:  "http://localhost:8080",
		Listen:   ":8080",
		CacheTTL: time.Hour,
		Headings: "h2-h4",
	}
}

// DefaultDBPath is the index location under the user's config directory.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "blog-cli.db"
	}
	return filepath.Join(home, ".config", "blog-cli", "blog-cli.db")
}

// Load reads path over Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks values that can be checked without reaching a backing
// store. Missing credentials are reported by the source itself.
func (c Config) Validate() error {
	var errs []error
	switch c.Source {
	case SourceLocal, SourceNotion, SourceFeed, SourceIndex:
	default:
		errs = append(errs, fmt.Errorf("unknown source %q", c.Source))
	}
	if c.Source == SourceIndex {
		switch c.IndexOf {
		case SourceLocal, SourceNotion, SourceFeed:
		default:
			errs = append(errs, fmt.Errorf("index_of must be local, notion or feed, got %q", c.IndexOf))
		}
	}
	if c.CacheTTL < 0 {
		errs = append(errs, errors.New("cache_ttl must not be negative"))
	}
	if _, err := toc.ParseConvention(c.Headings); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
