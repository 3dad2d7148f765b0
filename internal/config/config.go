package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/fakeyudi/printrescue/internal/gcode"
	applog "github.com/fakeyudi/printrescue/internal/log"
	"github.com/fakeyudi/printrescue/internal/recovery"
)

// ProjectFile is the per-directory config file name.
const ProjectFile = ".printrescue.json"

// Config holds all configurable printrescue settings.
type Config struct {
	MoonrakerURL   string `json:"moonraker_url"`
	WebsocketURL   string `json:"websocket_url"` // override ws://<host>/websocket
	APIKey         string `json:"api_key"`
	CheckpointPath string `json:"checkpoint_path"`
	HistoryPath    string `json:"history_path"`

	Sentinel       string `json:"sentinel"`
	PositionPrefix string `json:"position_prefix"`
	TrailingLines  *int   `json:"trailing_lines"`
	WriteEmpty     *bool  `json:"write_empty"`

	IdleTimeout    *Duration `json:"idle_timeout"` // "0" waits forever
	RequestTimeout Duration  `json:"request_timeout"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"` // "text" | "json"
}

// Duration is a time.Duration written as a Go duration string ("30s", "5m").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Defaults returns sensible default configuration values.
// Paths left empty resolve to the XDG data directory at startup.
func Defaults() Config {
	trailing := gcode.DefaultTrailingLines
	writeEmpty := false
	idle := Duration(0)
	return Config{
		MoonrakerURL:   "http://localhost",
		Sentinel:       gcode.DefaultSentinel,
		PositionPrefix: gcode.DefaultPositionPrefix,
		TrailingLines:  &trailing,
		WriteEmpty:     &writeEmpty,
		IdleTimeout:    &idle,
		RequestTimeout: Duration(10 * time.Second),
		LogLevel:       "info",
		LogFormat:      string(applog.FormatText),
	}
}

// GlobalPath returns ~/.config/printrescue/config.json.
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "printrescue", "config.json"), nil
}

// LoadGlobal reads ~/.config/printrescue/config.json.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	path, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return loadFile(path, true)
}

// LoadProject reads .printrescue.json in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(ProjectFile, false)
}

// loadFile reads and parses a JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Load reads the global and project files and merges them.
func Load() (Config, error) {
	global, err := LoadGlobal()
	if err != nil {
		return Config{}, err
	}
	project, err := LoadProject()
	if err != nil {
		return Config{}, err
	}
	return Merge(global, project), nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	result.apply(global)
	result.apply(project)
	return result
}

// apply copies every set field of src over c.
func (c *Config) apply(src *Config) {
	if src == nil {
		return
	}
	setString(&c.MoonrakerURL, src.MoonrakerURL)
	setString(&c.WebsocketURL, src.WebsocketURL)
	setString(&c.APIKey, src.APIKey)
	setString(&c.CheckpointPath, src.CheckpointPath)
	setString(&c.HistoryPath, src.HistoryPath)
	setString(&c.Sentinel, src.Sentinel)
	setString(&c.PositionPrefix, src.PositionPrefix)
	setString(&c.LogLevel, src.LogLevel)
	setString(&c.LogFormat, src.LogFormat)
	if src.TrailingLines != nil {
		v := *src.TrailingLines
		c.TrailingLines = &v
	}
	if src.WriteEmpty != nil {
		v := *src.WriteEmpty
		c.WriteEmpty = &v
	}
	if src.IdleTimeout != nil {
		v := *src.IdleTimeout
		c.IdleTimeout = &v
	}
	if src.RequestTimeout != 0 {
		c.RequestTimeout = src.RequestTimeout
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.MoonrakerURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("moonraker_url %q must be an http(s) URL", c.MoonrakerURL))
	}
	if c.WebsocketURL != "" {
		if u, err := url.Parse(c.WebsocketURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			errs = append(errs, fmt.Errorf("websocket_url %q must be a ws(s) URL", c.WebsocketURL))
		}
	}
	if c.PositionPrefix == "" {
		errs = append(errs, errors.New("position_prefix must not be empty"))
	}
	if c.TrailingLines != nil && *c.TrailingLines < 0 {
		errs = append(errs, fmt.Errorf("trailing_lines must not be negative, got %d", *c.TrailingLines))
	}
	if c.IdleTimeout != nil && *c.IdleTimeout < 0 {
		errs = append(errs, errors.New("idle_timeout must not be negative"))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("request_timeout must not be negative"))
	}
	if !applog.ValidLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level %q must be one of debug, info, warn, error", c.LogLevel))
	}
	if f := applog.Format(c.LogFormat); f != applog.FormatText && f != applog.FormatJSON {
		errs = append(errs, fmt.Errorf("log_format %q must be text or json", c.LogFormat))
	}
	return errors.Join(errs...)
}

// IndexOptions returns the indexer settings.
func (c Config) IndexOptions() gcode.Options {
	opts := gcode.DefaultOptions()
	opts.Sentinel = c.Sentinel
	if c.PositionPrefix != "" {
		opts.PositionPrefix = c.PositionPrefix
	}
	if c.TrailingLines != nil {
		opts.TrailingLines = *c.TrailingLines
	}
	return opts
}

// RecoveryOptions returns the synthesis settings.
func (c Config) RecoveryOptions() recovery.Options {
	return recovery.Options{
		Index:      c.IndexOptions(),
		WriteEmpty: c.WriteEmpty != nil && *c.WriteEmpty,
	}
}

// Idle returns the idle timeout, zero when unset.
func (c Config) Idle() time.Duration {
	if c.IdleTimeout == nil {
		return 0
	}
	return time.Duration(*c.IdleTimeout)
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
