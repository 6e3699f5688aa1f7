package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/graphnet/internal/models"
)

func entitiesCmd() *cobra.Command {
	var (
		byType string
		byName string
	)

	cmd := &cobra.Command{
		Use:   "entities",
		Short: "List graph entities by type or name",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			if byType == "" && byName == "" {
				return fmt.Errorf("entities: provide --type or --name")
			}

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("entities: connecting to store: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			var entities []models.CanonicalEntity
			if byType != "" {
				entities, err = st.EntitiesByType(ctx, models.NormalizeEntityType(byType))
			} else {
				entities, err = st.EntitiesByName(ctx, byName)
			}
			if err != nil {
				return fmt.Errorf("entities: listing: %w", err)
			}

			if len(entities) == 0 {
				fmt.Println("No matching entities.")
				return nil
			}
			for i := range entities {
				e := &entities[i]
				fmt.Printf("%-14s %-30s conf=%.2f  %s\n",
					e.Type, truncate(e.Name, 30), e.Confidence, truncate(e.Description, 60))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&byType, "type", "", "filter by entity type (Person, Organization, ...)")
	cmd.Flags().StringVar(&byName, "name", "", "case-insensitive name substring")
	return cmd
}
