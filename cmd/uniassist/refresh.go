package main

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/use-agent/uniassist/pipeline"
)

var (
	refreshSource  string
	refreshNoIndex bool
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Scrape sources into the content store",
	Long: `Refreshes one source (--source) or every active source: scrapes the
listing, upserts the items and records a processing log per source. The
embedding index is rebuilt afterwards unless --no-index is given.`,
	Args: cobra.NoArgs,
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().StringVar(&refreshSource, "source", "", "refresh only this source id")
	refreshCmd.Flags().BoolVar(&refreshNoIndex, "no-index", false, "skip rebuilding the embedding index")
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		all       []pipeline.Stats
		refreshed error
	)
	if refreshSource != "" {
		var s pipeline.Stats
		s, refreshed = a.pipeline.RefreshByID(ctx, refreshSource)
		all = []pipeline.Stats{s}
	} else {
		all, refreshed = a.pipeline.RefreshAll(ctx)
	}
	if err := writeStats(cmd.OutOrStdout(), all); err != nil {
		return err
	}

	if !refreshNoIndex && ctx.Err() == nil {
		n, err := a.pipeline.RebuildIndex(ctx)
		if err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
		slog.Info("index rebuilt", "entries", n)
		cmd.Printf("Indexed %d records.\n", n)
	}

	if refreshed != nil {
		return fmt.Errorf("refresh failed: %w", refreshed)
	}
	return nil
}

func writeStats(w io.Writer, all []pipeline.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tPROCESSED\tADDED\tUPDATED\tCHANGED\tERROR")
	for _, s := range all {
		errMsg := "-"
		if s.Error != "" {
			errMsg = s.Error
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n", s.SourceID, s.Processed, s.Added, s.Updated, s.Changed, errMsg)
	}
	return tw.Flush()
}
