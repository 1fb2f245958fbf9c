package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variables that override the config file
const (
	EnvBearerToken       = "X_BEARER_TOKEN"
	EnvLegacyBearerToken = "TWITTER_BEARER_TOKEN"
	EnvChromePath        = "CHROME_PATH"
)

// Config holds all application configuration
type Config struct {
	Version  int            `toml:"version"`
	API      APIConfig      `toml:"api"`
	Browser  BrowserConfig  `toml:"browser"`
	Resolver ResolverConfig `toml:"resolver"`
	Render   RenderConfig   `toml:"render"`
	Archive  ArchiveConfig  `toml:"archive"`
	Refresh  RefreshConfig  `toml:"refresh"`
	Server   ServerConfig   `toml:"server"`
	Debug    DebugConfig    `toml:"debug"`
}

type APIConfig struct {
	// BearerToken is normally supplied through X_BEARER_TOKEN, not the file.
	BearerToken       string   `toml:"bearer_token"`
	BaseURL           string   `toml:"base_url"`
	Transport         string   `toml:"transport"` // "http" or "stealth"
	Proxy             string   `toml:"proxy"`
	Timeout           Duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
}

type BrowserConfig struct {
	ExecPath          string   `toml:"exec_path"`
	Headless          bool     `toml:"headless"`
	ViewportWidth     int      `toml:"viewport_width"`
	ViewportHeight    int      `toml:"viewport_height"`
	ScaleFactor       float64  `toml:"scale_factor"`
	NavigationTimeout Duration `toml:"navigation_timeout"`
	SettleDelay       Duration `toml:"settle_delay"`
	ExpandDelay       Duration `toml:"expand_delay"`
	UseSession        bool     `toml:"use_session"`
}

type ResolverConfig struct {
	PageBaseURL  string   `toml:"page_base_url"`
	RecentWindow Duration `toml:"recent_window"`
	MaxReplies   int      `toml:"max_replies"`
}

type RenderConfig struct {
	Timezone string `toml:"timezone"`
}

type ArchiveConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // defaults to <DataDir>/threadpress.db
}

type RefreshConfig struct {
	Enabled  bool     `toml:"enabled"`
	Schedule string   `toml:"schedule"`
	Timezone string   `toml:"timezone"`
	MaxAge   Duration `toml:"max_age"`
	// Timeout bounds one refresh run, scheduled or started by hand.
	Timeout Duration `toml:"timeout"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type DebugConfig struct {
	Snapshots bool `toml:"snapshots"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		API: APIConfig{
			BaseURL:           "https://api.x.com",
			Transport:         "http",
			Timeout:           Duration(30 * time.Second),
			RequestsPerSecond: 1,
		},
		Browser: BrowserConfig{
			Headless:          true,
			ViewportWidth:     1700,
			ViewportHeight:    2000,
			ScaleFactor:       0.2,
			NavigationTimeout: Duration(60 * time.Second),
			SettleDelay:       Duration(4 * time.Second),
			ExpandDelay:       Duration(2 * time.Second),
		},
		Resolver: ResolverConfig{
			PageBaseURL:  "https://x.com",
			RecentWindow: Duration(7 * 24 * time.Hour),
			MaxReplies:   100,
		},
		Render: RenderConfig{
			Timezone: "UTC",
		},
		Archive: ArchiveConfig{
			Enabled: true,
		},
		Refresh: RefreshConfig{
			Enabled:  true,
			Schedule: "0 */6 * * *",
			Timezone: "UTC",
			MaxAge:   Duration(7 * 24 * time.Hour),
			Timeout:  Duration(30 * time.Minute),
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Validate checks values that would make the resolver misbehave
func (c *Config) Validate() error {
	if c.Resolver.MaxReplies <= 0 || c.Resolver.MaxReplies > 100 {
		return fmt.Errorf("resolver.max_replies must be between 1 and 100, got %d", c.Resolver.MaxReplies)
	}
	if c.Resolver.RecentWindow <= 0 {
		return fmt.Errorf("resolver.recent_window must be positive")
	}
	if c.Browser.SettleDelay <= 0 || c.Browser.ExpandDelay <= 0 {
		return fmt.Errorf("browser.settle_delay and browser.expand_delay must be positive")
	}
	if c.Browser.ScaleFactor <= 0 {
		return fmt.Errorf("browser.scale_factor must be positive, got %v", c.Browser.ScaleFactor)
	}
	if c.Refresh.Timeout < 0 {
		return fmt.Errorf("refresh.timeout must not be negative")
	}
	switch c.API.Transport {
	case "", "http", "stealth":
	default:
		return fmt.Errorf("unknown api.transport: %s", c.API.Transport)
	}
	if _, err := time.LoadLocation(c.Render.Timezone); err != nil {
		return fmt.Errorf("invalid render.timezone %s: %w", c.Render.Timezone, err)
	}
	return nil
}

// ArchivePath returns the sqlite path, falling back to the data directory
func (c *Config) ArchivePath() (string, error) {
	if c.Archive.Path != "" {
		return c.Archive.Path, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "threadpress.db"), nil
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "threadpress"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CacheDir returns the platform-appropriate cache directory
func CacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "threadpress"), nil
}

// DataDir holds the article archive. It lives next to the config file.
func DataDir() (string, error) {
	return ConfigDir()
}

// Load reads config from disk and applies environment overrides.
// A missing config file is reported with an error satisfying os.IsNotExist.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadOrCreate loads the config file. On first run it writes the defaults
// to disk and reports created.
func LoadOrCreate() (cfg *Config, created bool, err error) {
	cfg, err = Load()
	if err == nil {
		return cfg, false, nil
	}
	if !os.IsNotExist(err) {
		return nil, false, err
	}

	cfg = Default()
	cfg.ApplyEnv()
	if err := cfg.Save(); err != nil {
		return cfg, false, fmt.Errorf("could not save default config: %w", err)
	}
	return cfg, true, nil
}

// LoadFile reads config from the given path on top of the defaults
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overlays secrets from the environment. A .env file in the
// working directory is loaded first when present.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv(EnvBearerToken); v != "" {
		c.API.BearerToken = v
	} else if v := os.Getenv(EnvLegacyBearerToken); v != "" {
		c.API.BearerToken = v
	}
	if v := os.Getenv(EnvChromePath); v != "" {
		c.Browser.ExecPath = v
	}
}

// Save writes config to disk. The bearer token is never persisted.
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	out := *c
	out.API.BearerToken = ""

	encoder := toml.NewEncoder(f)
	return encoder.Encode(out)
}
