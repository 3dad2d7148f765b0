package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/printrescue/internal/config"
	"github.com/fakeyudi/printrescue/internal/recovery"
)

func timeDuration(d config.Duration) time.Duration {
	return time.Duration(d)
}

// printResult reports a finalization to the user.
func printResult(cmd *cobra.Command, file string, res *recovery.Result) {
	switch {
	case res == nil:
		cmd.Printf("No progress recorded for %s; nothing to resume.\n", file)
	case res.Written:
		cmd.Printf("Recovery file: %s\n", res.RecoveryPath)
		cmd.Printf("Backup:        %s\n", res.BackupPath)
		cmd.Printf("Resumes at:    byte %d, %s\n", res.Fragments.Cut, recovery.FeedLine(res.FeedRate))
		if res.Fragments.HasPosition {
			cmd.Printf("Height:        %s\n", res.Fragments.PositionLine)
		}
	default:
		cmd.Printf("Nothing left to print in %s; no recovery file written.\n", file)
	}
}
