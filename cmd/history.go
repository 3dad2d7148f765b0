package cmd

import (
	"errors"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/printrescue/internal/history"
)

var historyLimit int

var (
	outcomeStyles = map[history.Outcome]lipgloss.Style{
		history.OutcomeWritten:         lipgloss.NewStyle().Foreground(lipgloss.Color("82")),
		history.OutcomeNothingToResume: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		history.OutcomeFailed:          lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
	outcomeColumn = lipgloss.NewStyle().Width(18)
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past recoveries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyLimit <= 0 {
			return errors.New("--limit must be positive")
		}
		hist := openHistory()
		if hist == nil {
			return errors.New("history database unavailable")
		}
		defer closeHistory(hist)

		records, err := hist.List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			cmd.Println("no recoveries recorded")
			return nil
		}
		for _, r := range records {
			outcome := outcomeColumn.Render(outcomeStyles[r.Outcome].Render(string(r.Outcome)))
			cmd.Printf("%s  %s  %s  offset %d\n",
				r.CreatedAt.Local().Format(time.DateTime), outcome, r.FilePath, r.Offset)
			if r.RecoveryPath != "" {
				cmd.Printf("    → %s\n", r.RecoveryPath)
			}
			if r.Error != "" {
				cmd.Printf("    error: %s\n", r.Error)
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of records to show")
	rootCmd.AddCommand(historyCmd)
}
