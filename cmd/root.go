package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/printrescue/internal/checkpoint"
	"github.com/fakeyudi/printrescue/internal/config"
	"github.com/fakeyudi/printrescue/internal/history"
	applog "github.com/fakeyudi/printrescue/internal/log"
	"github.com/fakeyudi/printrescue/internal/moonraker"
	"github.com/fakeyudi/printrescue/internal/monitor"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// logCfg is the resolved logging configuration.
var logCfg applog.Config

// logger is the process logger, populated in PersistentPreRunE.
var logger = slog.Default()

// Persistent flag values. They only override config when set.
var (
	flagURL        string
	flagCheckpoint string
	flagHistoryDB  string
	flagLogLevel   string
	flagLogFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "printrescue",
	Short: "Checkpoint a running print and write a resumable G-code file when it stops",
	Long: `printrescue follows the job on a Klipper printer through Moonraker,
records how far the printer got, and when the job stops writes
reCover_<file> next to the original so the print can be resumed.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded

		// Flags win over files.
		flags := cmd.Flags()
		if flags.Changed("url") {
			cfg.MoonrakerURL = flagURL
		}
		if flags.Changed("checkpoint") {
			cfg.CheckpointPath = flagCheckpoint
		}
		if flags.Changed("history-db") {
			cfg.HistoryPath = flagHistoryDB
		}

		// Logging: files, then environment, then flags.
		logCfg = applog.Config{
			Level:  cfg.LogLevel,
			Format: applog.Format(cfg.LogFormat),
			Output: cmd.ErrOrStderr(),
		}
		logCfg.ApplyEnv()
		if flags.Changed("log-level") {
			logCfg.Level = flagLogLevel
		}
		if flags.Changed("log-format") {
			logCfg.Format = applog.Format(flagLogFormat)
		}
		cfg.LogLevel, cfg.LogFormat = logCfg.Level, string(logCfg.Format)

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger = applog.New(&logCfg)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagURL, "url", "", "Moonraker URL (default from config, http://localhost)")
	pf.StringVar(&flagCheckpoint, "checkpoint", "", "checkpoint file (default $XDG_DATA_HOME/printrescue/progress.txt)")
	pf.StringVar(&flagHistoryDB, "history-db", "", "history database (default $XDG_DATA_HOME/printrescue/history.db)")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flagLogFormat, "log-format", "", "log format: text, json")
}

// Execute runs the root command. Exits with code 1 on error.
// SIGINT and SIGTERM cancel the command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// openCheckpoint opens the configured checkpoint store.
func openCheckpoint() (checkpoint.Store, error) {
	path := cfg.CheckpointPath
	if path == "" {
		p, err := checkpoint.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolving checkpoint path: %w", err)
		}
		path = p
	}
	return checkpoint.NewStore(path)
}

// openHistory opens the history database. A history that cannot be opened
// never blocks recovery, so failures are logged and a nil store returned.
func openHistory() history.Store {
	path := cfg.HistoryPath
	if path == "" {
		dir, err := checkpoint.DataDir()
		if err != nil {
			logger.Warn("history disabled", "error", err)
			return nil
		}
		path = filepath.Join(dir, history.FileName)
	}
	store, err := history.NewSQLiteStore(path)
	if err != nil {
		logger.Warn("history disabled", "path", path, "error", err)
		return nil
	}
	return store
}

func closeHistory(h history.Store) {
	if h != nil {
		_ = h.Close()
	}
}

// newClient builds the Moonraker client from config.
func newClient() (*moonraker.Client, error) {
	return moonraker.NewClient(moonraker.Config{
		BaseURL:      cfg.MoonrakerURL,
		WebsocketURL: cfg.WebsocketURL,
		APIKey:       cfg.APIKey,
		Timeout:      timeDuration(cfg.RequestTimeout),
	})
}

// dialer adapts the client's Dial to monitor.DialFunc.
func dialer(c *moonraker.Client) monitor.DialFunc {
	return func(ctx context.Context) (monitor.Stream, error) {
		s, err := c.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// fileLogger sends logs to printrescue.log in the data directory while the
// dashboard owns the terminal.
func fileLogger() (*slog.Logger, io.Closer, error) {
	dir, err := checkpoint.DataDir()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "printrescue.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	lc := logCfg
	lc.Output = f
	return applog.New(&lc), f, nil
}
