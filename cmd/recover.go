package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/printrescue/internal/monitor"
)

var (
	recoverOffset     uint64
	recoverFeed       float64
	recoverWriteEmpty bool
)

var recoverCmd = &cobra.Command{
	Use:   "recover <file>",
	Short: "Write a recovery file for <file> from the stored checkpoint",
	Long: `recover finalizes a job offline, for when watch was not running when
the print stopped. It backs up <file>, writes reCover_<file> resuming at the
stored checkpoint (or --offset) and clears the checkpoint. --offset 0
replays the whole file after the settings prefix and feed line.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		store, err := openCheckpoint()
		if err != nil {
			return err
		}

		offset := recoverOffset
		if !cmd.Flags().Changed("offset") {
			off, ok := store.Load()
			if !ok {
				return errors.New("no checkpoint stored; pass --offset")
			}
			offset = off
		}
		if recoverFeed < 0 {
			return fmt.Errorf("--feed must not be negative, got %g", recoverFeed)
		}

		hist := openHistory()
		defer closeHistory(hist)

		opts := cfg.RecoveryOptions()
		if recoverWriteEmpty {
			opts.WriteEmpty = true
		}

		f := &monitor.Finalizer{
			Store:    store,
			History:  hist,
			Recovery: opts,
			Logger:   logger,
		}
		res, err := f.Finalize(cmd.Context(), monitor.Job{
			ID:       uuid.NewString(),
			FilePath: path,
			Offset:   offset,
			FeedRate: recoverFeed,
		})
		if err != nil {
			return err
		}
		printResult(cmd, path, res)
		return nil
	},
}

func init() {
	recoverCmd.Flags().Uint64Var(&recoverOffset, "offset", 0, "resume at this byte offset instead of the stored checkpoint")
	recoverCmd.Flags().Float64Var(&recoverFeed, "feed", 0, "value written to the G1 F line")
	recoverCmd.Flags().BoolVar(&recoverWriteEmpty, "write-empty", false, "write a recovery file even when nothing is left to print")
	rootCmd.AddCommand(recoverCmd)
}
