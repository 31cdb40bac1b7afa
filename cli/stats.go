package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fluxa/db"
)

var (
	statsDays   int
	statsVacuum bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database size, row counts and model usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		out := cmd.OutOrStdout()
		if statsVacuum {
			if err := a.store.Vacuum(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "Database vacuumed")
		}

		stats, err := a.store.GetStats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Database: %s (%.1f KB)\n", a.store.Path(), float64(stats.DBSizeBytes)/1024)
		for _, table := range db.Tables() {
			fmt.Fprintf(out, "  %-16s %d\n", table, stats.RowCounts[table])
		}

		end := time.Now()
		usage, err := a.repo.GetUsageStats(ctx, end.AddDate(0, 0, -statsDays), end)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nLast %d days: %d replies, %d tokens\n", statsDays, usage.TotalMessages, usage.TotalTokens)
		for _, m := range usage.ModelStats {
			name := m.Model
			if name == "" {
				name = "(unknown)"
			}
			fmt.Fprintf(out, "  %-30s %6d replies %8d tokens\n", name, m.MessageCount, m.TotalTokens)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsDays, "days", 30, "Usage window in days")
	statsCmd.Flags().BoolVar(&statsVacuum, "vacuum", false, "Compact the database first")
}
