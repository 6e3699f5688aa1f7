package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge graph statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("stats: connecting to store: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			pipe, err := newPipeline(st, logger)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}

			stats, err := pipe.Statistics(ctx)
			if err != nil {
				return fmt.Errorf("stats: fetching statistics: %w", err)
			}

			fmt.Printf("Entities:      %d\n", stats.EntityCount)
			fmt.Printf("Relationships: %d\n\n", stats.RelationshipCount)

			fmt.Println("Entities by type:")
			for t, c := range stats.EntitiesByType {
				fmt.Printf("  %-14s %d\n", t, c)
			}

			fmt.Println("\nRelationships by type:")
			for t, c := range stats.RelationshipsByType {
				fmt.Printf("  %-20s %d\n", t, c)
			}

			if len(stats.TopEntities) > 0 {
				fmt.Println("\nMost connected:")
				for _, d := range stats.TopEntities {
					fmt.Printf("  %-30s degree=%d\n", truncate(d.Entity.Name, 30), d.Degree)
				}
			}
			return nil
		},
	}
}
