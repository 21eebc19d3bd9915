package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var askKind string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the indexed content",
	Long: `Retrieves the most relevant indexed items, builds a grounded prompt and
asks the local generation model. Questions outside university topics are
refused without calling the model.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askKind, "kind", "", "ground only on news or event content")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	kind, err := optionalKind(askKind)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ans, err := a.assistant.Ask(ctx, args[0], kind)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	cmd.Println(ans.Response)
	if len(ans.Sources) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for i, s := range ans.Sources {
			cmd.Printf("  [%d] %s\n      %s\n", i+1, s.Title, s.URL)
		}
	}
	return nil
}
