package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/use-agent/uniassist/embedding"
	"github.com/use-agent/uniassist/models"
)

var (
	retrieveK    int
	retrieveKind string
	retrieveJSON bool
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Find indexed content similar to a query",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetrieve,
}

func init() {
	retrieveCmd.Flags().IntVar(&retrieveK, "k", 3, "number of results")
	retrieveCmd.Flags().StringVar(&retrieveKind, "kind", "", "restrict to news or event")
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	kind, err := optionalKind(retrieveKind)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	hits, err := a.index.Retrieve(ctx, args[0], retrieveK, kind)
	if err != nil {
		return fmt.Errorf("retrieve failed: %w", err)
	}

	if retrieveJSON {
		return writeJSON(cmd.OutOrStdout(), hits)
	}
	printHits(cmd, hits)
	return nil
}

func printHits(cmd *cobra.Command, hits []embedding.Metadata) {
	if len(hits) == 0 {
		cmd.Println("No results found.")
		return
	}
	for i, h := range hits {
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, h.Title, h.Score)
		if h.PublishedDate != nil {
			cmd.Printf("      %s, %s\n", h.SourceName, h.PublishedDate.Format("2 January 2006"))
		} else if h.SourceName != "" {
			cmd.Printf("      %s\n", h.SourceName)
		}
		cmd.Printf("      %s\n", h.URL)
	}
}

// optionalKind parses a --kind flag where empty means any kind.
func optionalKind(s string) (models.ContentKind, error) {
	if s == "" {
		return "", nil
	}
	return models.ParseKind(s)
}
