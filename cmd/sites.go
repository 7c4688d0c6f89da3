package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Match, discover, verify and arbitrate park sites",
	Long:  "Batch operations over the site list. Every batch processes sites one at a time and logs and skips per-site failures.",
}

func init() { rootCmd.AddCommand(sitesCmd) }

// printSummary writes a batch summary as indented JSON.
func printSummary(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
