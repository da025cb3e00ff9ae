package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as the default evaluation zone
	// for tasks that carry no zone of their own (e.g. "America/New_York").
	Timezone string `yaml:"timezone" json:"timezone"`

	// DBPath is the sqlite database file backing the task store.
	DBPath string `yaml:"db_path" json:"db_path"`

	// RefreshCron is a cron-style schedule (e.g. "*/15 * * * *") on which
	// the server recomputes its cached window list.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// PreGraceMinutes / PostGraceMinutes widen time-rule boundaries before
	// computing absolute intervals.
	PreGraceMinutes  int `yaml:"pre_grace_minutes" json:"pre_grace_minutes"`
	PostGraceMinutes int `yaml:"post_grace_minutes" json:"post_grace_minutes"`

	// DurationMinutes is the default window length for time rules that set
	// a start but no end.
	DurationMinutes int `yaml:"duration_minutes" json:"duration_minutes"`

	// RedirectURL is where the blocking client sends intercepted requests.
	RedirectURL string `yaml:"redirect_url" json:"redirect_url"`

	// FocusTags promote matching tasks' windows to strict severity.
	FocusTags []string `yaml:"focus_tags" json:"focus_tags"`

	// CacheTTLSeconds controls both the in-memory response cache and the
	// Cache-Control max-age advertised to polling clients.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:           "127.0.0.1:8371",
		Timezone:         "UTC",
		DBPath:           "./taskgate.db",
		RefreshCron:      "*/15 * * * *",
		PreGraceMinutes:  0,
		PostGraceMinutes: 3,
		DurationMinutes:  60,
		RedirectURL:      "https://taskgate.local/blocked",
		FocusTags:        []string{"focus"},
		CacheTTLSeconds:  60,
		BasicAuth:        nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly. Negative numeric
// options are invalid and reset to their defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8371"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.DBPath == "" {
		c.DBPath = "./taskgate.db"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.PreGraceMinutes < 0 {
		c.PreGraceMinutes = 0
	}
	if c.PostGraceMinutes < 0 {
		c.PostGraceMinutes = 3
	}
	if c.DurationMinutes <= 0 {
		c.DurationMinutes = 60
	}
	if c.RedirectURL == "" {
		c.RedirectURL = "https://taskgate.local/blocked"
	}
	if c.FocusTags == nil {
		c.FocusTags = []string{"focus"}
	}
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = 60
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist: create the parent directory if needed,
//     write a default config with 0600 perms, and return the defaults.
//   - If the file exists: read YAML, unmarshal, normalize defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create a default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so the caller
				// can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration to the given path atomically (temp file +
// rename), ensuring the parent directory exists and final permissions are
// 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".taskgate-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Clean up the temp file on any error path.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save delegates to the package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
