package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/geoharvest/internal/extract"
)

var extractorsCmd = &cobra.Command{
	Use:   "extractors",
	Short: "List the available extractors",
	RunE: func(cmd *cobra.Command, _ []string) error {
		formatExtractors(cmd.OutOrStdout(), extract.DefaultCatalog(cfg).All())
		return nil
	},
}

func formatExtractors(w io.Writer, infos []extract.Info) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDELAY\tDESCRIPTION")
	for _, i := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", i.Name, i.DefaultDelay, i.Description)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	rootCmd.AddCommand(extractorsCmd)
}
