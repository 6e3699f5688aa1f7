package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to required services",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			allOK := true

			// Check graph store
			st, err := newStore(ctx, logger)
			if err != nil {
				fmt.Printf("Graph store: FAIL (%v)\n", err)
				allOK = false
			} else {
				defer func() { _ = st.Close(ctx) }()
				if pingErr := st.Ping(ctx); pingErr != nil {
					fmt.Printf("Graph store: FAIL (%v)\n", pingErr)
					allOK = false
				} else if cfg.Neo4j.URI == "" {
					fmt.Println("Graph store: OK (in-memory, not persistent)")
				} else {
					fmt.Println("Graph store: OK")
				}
			}

			// Check Claude API key
			if cfg.Claude.APIKey == "" {
				fmt.Println("Claude API: FAIL (no API key configured)")
				allOK = false
			} else {
				fmt.Println("Claude API: OK")
			}

			if !allOK {
				return fmt.Errorf("one or more health checks failed")
			}
			return nil
		},
	}
}
