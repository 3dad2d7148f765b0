package cmd

import (
	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the stored checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCheckpoint()
		if err != nil {
			return err
		}
		if err := store.Clear(); err != nil {
			return err
		}
		cmd.Println("checkpoint cleared")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)
}
