// Package config loads briefing settings from YAML and BRIEFING_* environment
// variables on an explicit viper instance.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/renderinc/briefing/internal/archive"
	"github.com/renderinc/briefing/internal/embeddings"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "BRIEFING"

type Config struct {
	DataDir   string          `yaml:"data_dir" mapstructure:"data_dir"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Embedder  EmbedderConfig  `yaml:"embedder" mapstructure:"embedder"`
	Archive   ArchiveConfig   `yaml:"archive" mapstructure:"archive"`
	Retention RetentionConfig `yaml:"retention" mapstructure:"retention"`
	HN        HNConfig        `yaml:"hn" mapstructure:"hn"`
	Scraper   ScraperConfig   `yaml:"scraper" mapstructure:"scraper"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	MCP       MCPConfig       `yaml:"mcp" mapstructure:"mcp"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
}

type EmbedderConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Model      string `yaml:"model" mapstructure:"model"`
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"`
}

type ArchiveConfig struct {
	EmbedMaxChars      int  `yaml:"embed_max_chars" mapstructure:"embed_max_chars"`
	PreviewChars       int  `yaml:"preview_chars" mapstructure:"preview_chars"`
	SearchPreviewChars int  `yaml:"search_preview_chars" mapstructure:"search_preview_chars"`
	DigestArticleChars int  `yaml:"digest_article_chars" mapstructure:"digest_article_chars"`
	DigestCandidates   int  `yaml:"digest_candidates" mapstructure:"digest_candidates"`
	Warmup             bool `yaml:"warmup" mapstructure:"warmup"`
	KeywordIndex       bool `yaml:"keyword_index" mapstructure:"keyword_index"`
}

type RetentionConfig struct {
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
	MaxItems   int    `yaml:"max_items" mapstructure:"max_items"`
	Schedule   string `yaml:"schedule" mapstructure:"schedule"` // cron spec; empty disables
}

type HNConfig struct {
	BaseURL         string   `yaml:"base_url" mapstructure:"base_url"`
	RequestInterval string   `yaml:"request_interval" mapstructure:"request_interval"`
	Timeout         string   `yaml:"timeout" mapstructure:"timeout"`
	TopStories      int      `yaml:"top_stories" mapstructure:"top_stories"`
	Topics          []string `yaml:"topics" mapstructure:"topics"`
	Schedule        string   `yaml:"schedule" mapstructure:"schedule"` // cron spec for serve; empty disables
}

type ScraperConfig struct {
	Timeout     string `yaml:"timeout" mapstructure:"timeout"`
	MaxChars    int    `yaml:"max_chars" mapstructure:"max_chars"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

type MCPConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
}

func DefaultConfig() *Config {
	ac := archive.DefaultConfig("")
	return &Config{
		DataDir: defaultDataDir(),
		Log:     LogConfig{Level: "info"},
		Embedder: EmbedderConfig{
			Provider:   "ollama",
			BaseURL:    embeddings.GetDefaultURL("ollama"),
			Model:      embeddings.GetDefaultModel("ollama"),
			Dimensions: embeddings.DefaultHashDimensions,
		},
		Archive: ArchiveConfig{
			EmbedMaxChars:      ac.EmbedMaxChars,
			PreviewChars:       ac.PreviewChars,
			SearchPreviewChars: ac.SearchPreviewChars,
			DigestArticleChars: ac.DigestArticleChars,
			DigestCandidates:   ac.DigestCandidates,
			Warmup:             true,
			KeywordIndex:       ac.KeywordIndex,
		},
		Retention: RetentionConfig{
			MaxAgeDays: ac.MaxAgeDays,
			MaxItems:   ac.MaxItems,
			Schedule:   "@every 6h",
		},
		HN: HNConfig{
			BaseURL:         "https://hacker-news.firebaseio.com/v0",
			RequestInterval: "100ms",
			Timeout:         "15s",
			TopStories:      30,
			Topics:          []string{},
		},
		Scraper: ScraperConfig{
			Timeout:     "20s",
			MaxChars:    20000,
			UserAgent:   "briefing/1.0 (+https://github.com/renderinc/briefing)",
			Concurrency: 4,
		},
		Server: ServerConfig{Addr: "127.0.0.1:8080"},
		MCP:    MCPConfig{Name: "briefing"},
	}
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "briefing")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".local", "share", "briefing")
}

// DefaultPath is where config init writes and Load looks last
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "briefing", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "briefing", "config.yaml")
}

// resolvePath picks the explicit path, else ./briefing.yaml, else DefaultPath.
// Empty means no file.
func resolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, p := range []string{"briefing.yaml", DefaultPath()} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load reads defaults, then the config file, then BRIEFING_* variables
// (BRIEFING_RETENTION_MAX_ITEMS overrides retention.max_items).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Defaults go in first so every key is known to AutomaticEnv
	defaults, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := resolvePath(path); file != "" {
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.Log.File = expandHome(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("config: data_dir is required"))
	}
	switch c.Embedder.Provider {
	case "ollama", "lmstudio", "hash":
	default:
		errs = append(errs, fmt.Errorf("config: embedder.provider %q is invalid (must be ollama, lmstudio, or hash)", c.Embedder.Provider))
	}
	if c.Retention.MaxAgeDays < 1 {
		errs = append(errs, fmt.Errorf("config: retention.max_age_days must be at least 1"))
	}
	if c.Retention.MaxItems < 1 {
		errs = append(errs, fmt.Errorf("config: retention.max_items must be at least 1"))
	}
	if c.Scraper.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("config: scraper.concurrency must be at least 1"))
	}
	for key, val := range map[string]string{
		"hn.request_interval": c.HN.RequestInterval,
		"hn.timeout":          c.HN.Timeout,
		"scraper.timeout":     c.Scraper.Timeout,
	} {
		if _, err := time.ParseDuration(val); err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// ArchiveConfig maps settings onto archive.Config
func (c *Config) ArchiveConfig() archive.Config {
	return archive.Config{
		Dir:                filepath.Join(c.DataDir, "archive"),
		MaxAgeDays:         c.Retention.MaxAgeDays,
		MaxItems:           c.Retention.MaxItems,
		EmbedMaxChars:      c.Archive.EmbedMaxChars,
		PreviewChars:       c.Archive.PreviewChars,
		SearchPreviewChars: c.Archive.SearchPreviewChars,
		DigestArticleChars: c.Archive.DigestArticleChars,
		DigestCandidates:   c.Archive.DigestCandidates,
		Warmup:             c.Archive.Warmup,
		KeywordIndex:       c.Archive.KeywordIndex,
	}
}

// Duration parses a duration field already checked by Validate
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// WriteDefault writes the default configuration to path without
// overwriting an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
