package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Rebuild the embedding index from the content store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.pipeline.RebuildIndex(ctx)
		if err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
		cmd.Printf("Indexed %d records into %s.\n", n, cfg.Embedding.IndexDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(embedCmd)
}
