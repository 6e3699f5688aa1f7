package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func queryCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a natural language question from the knowledge graph",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			question := strings.Join(args, " ")

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("query: connecting to store: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			pipe, err := newPipeline(st, logger)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			result, err := pipe.AnswerQuestion(ctx, question)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			fmt.Println(result.Explanation)
			if len(result.Provenance) > 0 {
				fmt.Printf("\nSources: %s\n", strings.Join(result.Provenance, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}
