// Package config loads dotmirror's settings and watch-target list.
//
// Settings come from (highest precedence first) command-line flags, DOTMIRROR_*
// environment variables, an optional config file
// (~/.config/dotmirror/config.yaml or config.toml) and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (DOTMIRROR_MIRROR_ROOT, ...).
const EnvPrefix = "DOTMIRROR"

// Setting keys, shared by flags, environment and config file.
const (
	KeyTargetsFile       = "targets_file"
	KeyMirrorRoot        = "mirror_root"
	KeySystemd           = "systemd"
	KeyInitialSnapshot   = "initial_snapshot"
	KeyIgnore            = "ignore"
	KeyLogFile           = "log.file"
	KeyLogLevel          = "log.level"
	KeyLogMaxSizeMB      = "log.max_size_mb"
	KeyLogMaxBackups     = "log.max_backups"
	KeySnapshotMessage   = "snapshot.message"
	KeySnapshotAuthor    = "snapshot.author_name"
	KeySnapshotAuthorEml = "snapshot.author_email"
	KeySnapshotTimeout   = "snapshot.timeout"
)

// Settings is the resolved daemon configuration.
type Settings struct {
	TargetsFile     string           `mapstructure:"targets_file" yaml:"targets_file" toml:"targets_file"`
	MirrorRoot      string           `mapstructure:"mirror_root" yaml:"mirror_root" toml:"mirror_root"`
	Systemd         bool             `mapstructure:"systemd" yaml:"systemd" toml:"systemd"`
	InitialSnapshot bool             `mapstructure:"initial_snapshot" yaml:"initial_snapshot" toml:"initial_snapshot"`
	Ignore          []string         `mapstructure:"ignore" yaml:"ignore" toml:"ignore"`
	Log             LogSettings      `mapstructure:"log" yaml:"log" toml:"log"`
	Snapshot        SnapshotSettings `mapstructure:"snapshot" yaml:"snapshot" toml:"snapshot"`
}

// LogSettings controls the log file sink and verbosity.
type LogSettings struct {
	File       string `mapstructure:"file" yaml:"file" toml:"file"`
	Level      string `mapstructure:"level" yaml:"level" toml:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" toml:"max_backups"`
}

// SnapshotSettings controls commit metadata.
type SnapshotSettings struct {
	Message     string `mapstructure:"message" yaml:"message" toml:"message"`
	AuthorName  string `mapstructure:"author_name" yaml:"author_name" toml:"author_name"`
	AuthorEmail string `mapstructure:"author_email" yaml:"author_email" toml:"author_email"`
	// Timeout bounds each git command of a snapshot ("2m", "30s"; "0" disables)
	Timeout string `mapstructure:"timeout" yaml:"timeout" toml:"timeout"`
}

// TimeoutDuration parses Timeout. Empty means no timeout.
func (s SnapshotSettings) TimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(s.Timeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s.Timeout))
	if err != nil {
		return 0, fmt.Errorf("invalid snapshot.timeout %q: %w", s.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid snapshot.timeout %q: must not be negative", s.Timeout)
	}
	return d, nil
}

// ConfigDir returns ~/.config/dotmirror, honoring XDG_CONFIG_HOME.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "dotmirror")
	}
	return filepath.Join(homeDir(), ".config", "dotmirror")
}

// StateDir returns ~/.local/state/dotmirror, honoring XDG_STATE_HOME.
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "dotmirror")
	}
	return filepath.Join(homeDir(), ".local", "state", "dotmirror")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// SetDefaults registers the built-in default for every setting.
func SetDefaults(v *viper.Viper) {
	home := homeDir()
	v.SetDefault(KeyTargetsFile, filepath.Join(ConfigDir(), "targets"))
	v.SetDefault(KeyMirrorRoot, filepath.Join(home, "dotfiles"))
	v.SetDefault(KeySystemd, false)
	v.SetDefault(KeyInitialSnapshot, true)
	v.SetDefault(KeyIgnore, []string{})
	v.SetDefault(KeyLogFile, filepath.Join(StateDir(), "dotmirror.log"))
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogMaxSizeMB, 10)
	v.SetDefault(KeyLogMaxBackups, 3)
	v.SetDefault(KeySnapshotMessage, "")
	v.SetDefault(KeySnapshotAuthor, "")
	v.SetDefault(KeySnapshotAuthorEml, "")
	v.SetDefault(KeySnapshotTimeout, "2m")
}

// NewViper returns a viper instance with defaults, environment binding and
// the config file loaded. configFile overrides the search path; a missing
// file in the search path is not an error, a missing explicit one is.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(ConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return v, nil
}

// Load unmarshals and validates settings from v.
func Load(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode config: %w", err)
	}

	s.TargetsFile = ExpandHome(s.TargetsFile)
	s.MirrorRoot = ExpandHome(s.MirrorRoot)
	s.Log.File = ExpandHome(s.Log.File)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks settings for values the daemon cannot run with.
func (s *Settings) Validate() error {
	if s.TargetsFile == "" {
		return errors.New("targets_file must be set")
	}
	if s.MirrorRoot == "" {
		return errors.New("mirror_root must be set")
	}
	if !filepath.IsAbs(s.MirrorRoot) {
		abs, err := filepath.Abs(s.MirrorRoot)
		if err != nil {
			return fmt.Errorf("invalid mirror_root %q: %w", s.MirrorRoot, err)
		}
		s.MirrorRoot = abs
	}
	s.MirrorRoot = filepath.Clean(s.MirrorRoot)

	for _, pattern := range s.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}

	if _, err := ParseLevel(s.Log.Level); err != nil {
		return err
	}
	if s.Log.MaxSizeMB < 0 || s.Log.MaxBackups < 0 {
		return errors.New("log.max_size_mb and log.max_backups must not be negative")
	}
	if _, err := s.Snapshot.TimeoutDuration(); err != nil {
		return err
	}

	return nil
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
