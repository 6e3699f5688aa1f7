package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func exportCmd() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the full knowledge graph to JSON or CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("export: connecting to store: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			export, err := st.ExportAll(ctx)
			if err != nil {
				return fmt.Errorf("export: reading graph: %w", err)
			}

			var w *os.File
			if output == "" || output == "-" {
				w = os.Stdout
			} else {
				w, err = os.Create(output)
				if err != nil {
					return fmt.Errorf("export: creating output file: %w", err)
				}
				defer func() { _ = w.Close() }()
			}

			switch format {
			case "json":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(export); encErr != nil {
					return fmt.Errorf("export: encoding JSON: %w", encErr)
				}
			case "csv":
				cw := csv.NewWriter(w)
				// Nodes first, then edges, disambiguated by the kind column.
				headers := []string{"kind", "id", "name_or_source", "type", "target", "description", "confidence", "provenance", "created_at"}
				if writeErr := cw.Write(headers); writeErr != nil {
					return fmt.Errorf("export: writing CSV header: %w", writeErr)
				}
				for i := range export.Entities {
					e := &export.Entities[i]
					row := []string{
						"entity", e.ID, e.Name, string(e.Type), "",
						e.Description, fmt.Sprintf("%.4f", e.Confidence),
						strings.Join(e.Provenance, ";"), e.CreatedAt.Format(time.RFC3339),
					}
					if writeErr := cw.Write(row); writeErr != nil {
						return fmt.Errorf("export: writing CSV row: %w", writeErr)
					}
				}
				for i := range export.Relationships {
					r := &export.Relationships[i]
					row := []string{
						"relationship", r.ID, r.SourceID, string(r.Type), r.TargetID,
						r.Description, fmt.Sprintf("%.4f", r.Confidence),
						strings.Join(r.Provenance, ";"), r.CreatedAt.Format(time.RFC3339),
					}
					if writeErr := cw.Write(row); writeErr != nil {
						return fmt.Errorf("export: writing CSV row: %w", writeErr)
					}
				}
				cw.Flush()
				if flushErr := cw.Error(); flushErr != nil {
					return fmt.Errorf("export: flushing CSV: %w", flushErr)
				}
			default:
				return fmt.Errorf("export: unsupported format %q (use json or csv)", format)
			}

			if output != "" && output != "-" {
				fmt.Fprintf(os.Stderr, "Exported %d entities and %d relationships to %s\n",
					len(export.Entities), len(export.Relationships), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format: json or csv")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file path (- for stdout)")
	return cmd
}
