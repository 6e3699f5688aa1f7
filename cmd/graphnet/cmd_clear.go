package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func clearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every node and edge in the graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			if !yes {
				return fmt.Errorf("clear: pass --yes to confirm deleting the entire graph")
			}

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("clear: connecting to store: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			if err := st.ClearAll(ctx); err != nil {
				return fmt.Errorf("clear: %w", err)
			}

			fmt.Println("Graph cleared.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
