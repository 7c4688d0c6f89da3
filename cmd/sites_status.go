package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/parktrail/internal/site"
)

var sitesStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show site counts per match status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := openStore(ctx, "status")
		if err != nil {
			return err
		}
		defer env.Close()

		counts, err := env.Sites.CountByStatus(ctx)
		if err != nil {
			return err
		}

		formatStatusCounts(cmd.OutOrStdout(), counts)
		return nil
	},
}

func init() { sitesCmd.AddCommand(sitesStatusCmd) }

func formatStatusCounts(out io.Writer, counts []site.StatusCount) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STATUS\tSITES\tCOMPLETED\tPCT")
	_, _ = fmt.Fprintln(w, "------\t-----\t---------\t---")

	var total, completed int
	for _, c := range counts {
		total += c.Total
		completed += c.Completed
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", c.Status, c.Total, c.Completed, pct(c.Completed, c.Total))
	}
	_, _ = fmt.Fprintf(w, "total\t%d\t%d\t%s\n", total, completed, pct(completed, total))
	_ = w.Flush()
}

func pct(n, of int) string {
	if of == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(n)/float64(of))
}
