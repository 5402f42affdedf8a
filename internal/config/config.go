// Package config turns a viper instance into the typed daemon configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the daemon configuration. Every field maps to a dotted key,
// e.g. history.max_entries.
type Config struct {
	Capture   Capture   `mapstructure:"capture"`
	History   History   `mapstructure:"history"`
	Storage   Storage   `mapstructure:"storage"`
	Monitor   Monitor   `mapstructure:"monitor"`
	Clipboard Clipboard `mapstructure:"clipboard"`
}

type Capture struct {
	Format        string        `mapstructure:"format"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
	ThumbnailSize int           `mapstructure:"thumbnail_size"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MinSize       int           `mapstructure:"min_size"`
	// ExportPath receives a copy of the last capture; empty disables it.
	ExportPath string `mapstructure:"export_path"`
}

type History struct {
	MaxEntries      int           `mapstructure:"max_entries"`
	RetentionDays   int           `mapstructure:"retention_days"`
	AutoCleanup     bool          `mapstructure:"auto_cleanup"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxTextBytes    int           `mapstructure:"max_text_bytes"`
}

// MaxAge is RetentionDays as a duration; zero disables age-based cleanup.
func (h History) MaxAge() time.Duration {
	return time.Duration(h.RetentionDays) * 24 * time.Hour
}

type Storage struct {
	DatabasePath string `mapstructure:"database_path"`
}

type Monitor struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type Clipboard struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("capture.format", "png")
	v.SetDefault("capture.settle_delay", 100*time.Millisecond)
	v.SetDefault("capture.thumbnail_size", 150)
	v.SetDefault("capture.timeout", 5*time.Second)
	v.SetDefault("capture.min_size", 1)
	v.SetDefault("capture.export_path", filepath.Join(os.TempDir(), "clipsnap_last.png"))

	v.SetDefault("history.max_entries", 200)
	v.SetDefault("history.retention_days", 5)
	v.SetDefault("history.auto_cleanup", true)
	v.SetDefault("history.cleanup_interval", time.Hour)
	v.SetDefault("history.max_text_bytes", 10<<20)

	v.SetDefault("storage.database_path", "~/.local/share/clipsnap/history.db")

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.interval", 500*time.Millisecond)

	v.SetDefault("clipboard.timeout", 2*time.Second)
}

// Load decodes and validates the configuration held by v. Defaults must
// have been registered with SetDefaults.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	path, err := ExpandHome(c.Storage.DatabasePath)
	if err != nil {
		return Config{}, fmt.Errorf("config: storage.database_path: %w", err)
	}
	c.Storage.DatabasePath = path
	if c.Capture.ExportPath, err = ExpandHome(c.Capture.ExportPath); err != nil {
		return Config{}, fmt.Errorf("config: capture.export_path: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, key, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %s", key, fmt.Sprintf(format, args...)))
		}
	}
	check(strings.EqualFold(c.Capture.Format, "png"), "capture.format", "unsupported format %q (only png)", c.Capture.Format)
	check(c.Capture.SettleDelay >= 0, "capture.settle_delay", "must not be negative")
	check(c.Capture.ThumbnailSize > 0, "capture.thumbnail_size", "must be positive")
	check(c.Capture.Timeout > 0, "capture.timeout", "must be positive")
	check(c.Capture.MinSize >= 1, "capture.min_size", "must be at least 1")
	check(c.History.MaxEntries >= 0, "history.max_entries", "must not be negative")
	check(c.History.RetentionDays >= 0, "history.retention_days", "must not be negative")
	check(c.History.CleanupInterval > 0, "history.cleanup_interval", "must be positive")
	check(c.History.MaxTextBytes > 0, "history.max_text_bytes", "must be positive")
	check(c.Storage.DatabasePath != "", "storage.database_path", "must be set")
	check(c.Monitor.Interval > 0, "monitor.interval", "must be positive")
	check(c.Clipboard.Timeout > 0, "clipboard.timeout", "must be positive")
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
