package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/printrescue/internal/gcode"
)

// Feature: printrescue, Property 8: Config merge precedence
func TestConfigMergePrecedence(t *testing.T) {
	// Generator for a non-empty string field value.
	nonEmptyString := rapid.StringMatching(`[a-zA-Z0-9/_.:-]{1,20}`)

	// Each field is independently either unset or set.
	configGen := rapid.Custom(func(t *rapid.T) *Config {
		cfg := &Config{}
		if rapid.Bool().Draw(t, "hasMoonrakerURL") {
			cfg.MoonrakerURL = nonEmptyString.Draw(t, "moonrakerURL")
		}
		if rapid.Bool().Draw(t, "hasCheckpointPath") {
			cfg.CheckpointPath = nonEmptyString.Draw(t, "checkpointPath")
		}
		if rapid.Bool().Draw(t, "hasSentinel") {
			cfg.Sentinel = nonEmptyString.Draw(t, "sentinel")
		}
		if rapid.Bool().Draw(t, "hasTrailingLines") {
			n := rapid.IntRange(0, 5).Draw(t, "trailingLines")
			cfg.TrailingLines = &n
		}
		if rapid.Bool().Draw(t, "hasWriteEmpty") {
			b := rapid.Bool().Draw(t, "writeEmpty")
			cfg.WriteEmpty = &b
		}
		return cfg
	})

	rapid.Check(t, func(t *rapid.T) {
		global := configGen.Draw(t, "global")
		project := configGen.Draw(t, "project")

		merged := Merge(global, project)
		defaults := Defaults()

		checkStringField(t, "MoonrakerURL",
			global.MoonrakerURL, project.MoonrakerURL, defaults.MoonrakerURL,
			merged.MoonrakerURL)
		checkStringField(t, "CheckpointPath",
			global.CheckpointPath, project.CheckpointPath, defaults.CheckpointPath,
			merged.CheckpointPath)
		checkStringField(t, "Sentinel",
			global.Sentinel, project.Sentinel, defaults.Sentinel,
			merged.Sentinel)

		checkPtrField(t, "TrailingLines", global.TrailingLines, project.TrailingLines, defaults.TrailingLines, merged.TrailingLines)
		checkPtrField(t, "WriteEmpty", global.WriteEmpty, project.WriteEmpty, defaults.WriteEmpty, merged.WriteEmpty)
	})
}

// checkStringField asserts the merge precedence rule for a single string field:
//   - project non-empty  → merged == project
//   - project empty, global non-empty → merged == global
//   - both empty → merged == defaultVal
func checkStringField(t *rapid.T, name, globalVal, projectVal, defaultVal, mergedVal string) {
	t.Helper()
	switch {
	case projectVal != "":
		if mergedVal != projectVal {
			t.Fatalf("%s: both set — expected project value %q, got %q", name, projectVal, mergedVal)
		}
	case globalVal != "":
		if mergedVal != globalVal {
			t.Fatalf("%s: only global set — expected global value %q, got %q", name, globalVal, mergedVal)
		}
	default:
		if mergedVal != defaultVal {
			t.Fatalf("%s: neither set — expected default %q, got %q", name, defaultVal, mergedVal)
		}
	}
}

// checkPtrField is checkStringField for optional values, where nil means unset.
func checkPtrField[T comparable](t *rapid.T, name string, globalVal, projectVal, defaultVal, mergedVal *T) {
	t.Helper()
	if mergedVal == nil {
		t.Fatalf("%s: merged value is nil", name)
	}
	want := defaultVal
	switch {
	case projectVal != nil:
		want = projectVal
	case globalVal != nil:
		want = globalVal
	}
	if *mergedVal != *want {
		t.Fatalf("%s: expected %v, got %v", name, *want, *mergedVal)
	}
}

func TestDefaultsValues(t *testing.T) {
	d := Defaults()
	if d.MoonrakerURL != "http://localhost" {
		t.Errorf("MoonrakerURL: want %q, got %q", "http://localhost", d.MoonrakerURL)
	}
	if d.Sentinel != ";flag" || d.PositionPrefix != "G1 Z" {
		t.Errorf("Sentinel/PositionPrefix: got %q/%q", d.Sentinel, d.PositionPrefix)
	}
	if d.TrailingLines == nil || *d.TrailingLines != 2 {
		t.Errorf("TrailingLines: want 2, got %v", d.TrailingLines)
	}
	if d.Idle() != 0 {
		t.Errorf("Idle: want 0, got %v", d.Idle())
	}
	if time.Duration(d.RequestTimeout) != 10*time.Second {
		t.Errorf("RequestTimeout: want 10s, got %v", time.Duration(d.RequestTimeout))
	}
	if err := d.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadGlobalMissingFileReturnsDefaults(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config, got nil")
	}
	if cfg.MoonrakerURL != Defaults().MoonrakerURL {
		t.Errorf("MoonrakerURL: want default, got %q", cfg.MoonrakerURL)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
}

func TestLoadProjectMissingFileReturnsNil(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadProject()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Errorf("expected nil config, got %+v", cfg)
	}
}

func TestLoadMergesFiles(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfgDir := filepath.Join(home, ".config", "printrescue")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	global := `{"moonraker_url":"http://printer.local:7125","trailing_lines":1,"idle_timeout":"5m"}`
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte(global), 0o644); err != nil {
		t.Fatal(err)
	}

	project := t.TempDir()
	chdir(t, project)
	if err := os.WriteFile(ProjectFile, []byte(`{"trailing_lines":0,"write_empty":true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MoonrakerURL != "http://printer.local:7125" {
		t.Errorf("MoonrakerURL = %q", cfg.MoonrakerURL)
	}
	if *cfg.TrailingLines != 0 {
		t.Errorf("TrailingLines = %d, want project's explicit 0", *cfg.TrailingLines)
	}
	if cfg.Idle() != 5*time.Minute {
		t.Errorf("Idle = %v, want 5m", cfg.Idle())
	}

	opts := cfg.RecoveryOptions()
	if !opts.WriteEmpty {
		t.Error("WriteEmpty should be true")
	}
	want := gcode.Options{Sentinel: ";flag", PositionPrefix: "G1 Z", TrailingLines: 0}
	if opts.Index != want {
		t.Errorf("Index options = %+v, want %+v", opts.Index, want)
	}
}

func TestLoadGlobalParseError(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)

	// Write an invalid JSON file where LoadGlobal expects it.
	cfgDir := filepath.Join(tmp, ".config", "printrescue")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("{invalid json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadGlobal()
	if err == nil {
		t.Fatal("expected an error for invalid JSON, got nil")
	}
	if !strings.Contains(err.Error(), "config.json") {
		t.Errorf("error should mention the file path: %v", err)
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected *ParseError, got %T: %v", err, err)
	}
}

func TestBadDurationIsParseError(t *testing.T) {
	chdir(t, t.TempDir())
	if err := os.WriteFile(ProjectFile, []byte(`{"idle_timeout":"soon"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadProject()
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
}

func TestValidate(t *testing.T) {
	neg := -1
	negDur := Duration(-time.Second)
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad url scheme", func(c *Config) { c.MoonrakerURL = "ftp://printer" }, "moonraker_url"},
		{"bad websocket", func(c *Config) { c.WebsocketURL = "http://printer/websocket" }, "websocket_url"},
		{"empty prefix", func(c *Config) { c.PositionPrefix = "" }, "position_prefix"},
		{"negative trailing", func(c *Config) { c.TrailingLines = &neg }, "trailing_lines"},
		{"negative idle", func(c *Config) { c.IdleTimeout = &negDur }, "idle_timeout"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}
