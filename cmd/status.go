package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fakeyudi/printrescue/internal/checkpoint"
)

var statusFollow bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCheckpoint()
		if err != nil {
			return err
		}

		if !statusFollow {
			off, ok := store.Load()
			printCheckpoint(cmd, off, ok)
			cmd.Printf("File: %s\n", store.Path())
			return nil
		}

		cmd.Printf("Following %s (Ctrl+C to stop)\n", store.Path())
		return checkpoint.Watch(cmd.Context(), store, func(off uint64, ok bool) {
			printCheckpoint(cmd, off, ok)
		})
	},
}

func printCheckpoint(cmd *cobra.Command, off uint64, ok bool) {
	if !ok {
		cmd.Println("no checkpoint")
		return
	}
	cmd.Printf("Checkpoint: %d\n", off)
}

func init() {
	statusCmd.Flags().BoolVarP(&statusFollow, "follow", "f", false, "keep printing the checkpoint as it changes")
	rootCmd.AddCommand(statusCmd)
}
