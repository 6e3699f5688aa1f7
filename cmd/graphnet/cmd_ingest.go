package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/graphnet/internal/models"
)

func ingestCmd() *cobra.Command {
	var (
		docID     string
		fromStdin bool
	)

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Ingest text documents into the knowledge graph",
		Long: `Reads each file (or stdin with --stdin), chunks the text, extracts entities
and relationships with Claude, and merges them into the graph. Re-ingesting
the same content is idempotent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			if !fromStdin && len(args) == 0 {
				return fmt.Errorf("ingest: provide at least one file or --stdin")
			}
			if docID != "" && (fromStdin && len(args) > 0 || len(args) > 1) {
				return fmt.Errorf("ingest: --id applies to a single input only")
			}

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("ingest: connecting to store: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			pipe, err := newPipeline(st, logger)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			type input struct {
				id       string
				filename string
				text     string
			}
			var inputs []input

			if fromStdin {
				data, readErr := io.ReadAll(os.Stdin)
				if readErr != nil {
					return fmt.Errorf("ingest: reading stdin: %w", readErr)
				}
				id := docID
				if id == "" {
					id = uuid.NewString()
				}
				inputs = append(inputs, input{id: id, filename: "stdin", text: string(data)})
			}
			for _, path := range args {
				data, readErr := os.ReadFile(path)
				if readErr != nil {
					return fmt.Errorf("ingest: reading %s: %w", path, readErr)
				}
				id := docID
				if id == "" {
					id = uuid.NewString()
				}
				inputs = append(inputs, input{id: id, filename: filepath.Base(path), text: string(data)})
			}

			failed := false
			for _, in := range inputs {
				report, ingestErr := pipe.IngestDocument(ctx, in.id, in.filename, in.text)
				printReport(in.filename, report)
				if ingestErr != nil {
					fmt.Fprintf(os.Stderr, "ingest: %s: %v\n", in.filename, ingestErr)
					failed = true
				}
			}
			if failed {
				return fmt.Errorf("ingest: one or more documents failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&docID, "id", "", "stable document ID (single input only; generated when omitted)")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "read document text from stdin")
	return cmd
}

func printReport(filename string, report models.IngestionReport) {
	fmt.Printf("%s (document %s)\n", filename, report.DocumentID)
	fmt.Printf("  chunks:        %d (%d failed)\n", report.ChunksTotal, report.ChunksFailed)
	fmt.Printf("  entities:      %d created, %d merged\n", report.EntitiesCreated, report.EntitiesMerged)
	fmt.Printf("  relationships: %d created, %d merged\n", report.RelationshipsCreated, report.RelationshipsMerged)
	if report.CandidatesDropped > 0 {
		fmt.Printf("  dropped:       %d candidates\n", report.CandidatesDropped)
	}
	for _, e := range report.Errors {
		fmt.Printf("  warning: %s\n", truncate(e, 120))
	}
}
