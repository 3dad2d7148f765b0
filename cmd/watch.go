package cmd

import (
	"context"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	applog "github.com/fakeyudi/printrescue/internal/log"
	"github.com/fakeyudi/printrescue/internal/monitor"
	"github.com/fakeyudi/printrescue/internal/recovery"
	"github.com/fakeyudi/printrescue/internal/tui"
)

var (
	watchTUI        bool
	watchWriteEmpty bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the current print and write a recovery file when it stops",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		store, err := openCheckpoint()
		if err != nil {
			return err
		}
		hist := openHistory()
		defer closeHistory(hist)

		opts := cfg.RecoveryOptions()
		if watchWriteEmpty {
			opts.WriteEmpty = true
		}

		useTUI := watchTUI
		if !cmd.Flags().Changed("tui") {
			useTUI = term.IsTerminal(os.Stdout.Fd())
		}

		runLogger := logger
		if useTUI {
			fl, closer, err := fileLogger()
			if err != nil {
				logger.Warn("dashboard logs discarded", "error", err)
				runLogger = applog.Discard()
			} else {
				defer closer.Close()
				runLogger = fl
			}
		}

		var jobFile string
		run := func(ctx context.Context, obs monitor.Observer) (*recovery.Result, error) {
			m, err := monitor.New(monitor.Config{
				Querier:     client,
				Dial:        dialer(client),
				Store:       store,
				History:     hist,
				Observer:    observeFile(obs, &jobFile),
				Logger:      runLogger,
				Recovery:    opts,
				IdleTimeout: cfg.Idle(),
			})
			if err != nil {
				return nil, err
			}
			return m.Run(ctx)
		}

		var res *recovery.Result
		if useTUI {
			res, err = tui.Run(cmd.Context(), run)
		} else {
			res, err = run(cmd.Context(), nil)
		}
		if err != nil {
			return err
		}
		printResult(cmd, jobFile, res)
		return nil
	},
}

// observeFile remembers the job's file path and forwards to next, if any.
func observeFile(next monitor.Observer, file *string) monitor.Observer {
	return monitor.ObserverFunc(func(u monitor.Update) {
		if u.FilePath != "" {
			*file = u.FilePath
		}
		if next != nil {
			next.Observe(u)
		}
	})
}

func init() {
	watchCmd.Flags().BoolVar(&watchTUI, "tui", false, "show the live dashboard (default: when stdout is a terminal)")
	watchCmd.Flags().BoolVar(&watchWriteEmpty, "write-empty", false, "write a recovery file even when nothing is left to print")
	rootCmd.AddCommand(watchCmd)
}
