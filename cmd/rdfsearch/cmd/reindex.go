package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/rdfsearch/internal/output"
)

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the index from the store",
		Long: `Drop every indexed document and index the stored statements again.

Run it after changing wkt_fields, indexed_fields, field_mapping or
indexed_types, or after a failed commit left the index behind the store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReindex(cmd.Context(), cmd)
		},
	}
}

func runReindex(ctx context.Context, cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	s, err := openSail(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	start := time.Now()
	if err := s.Reindex(ctx); err != nil {
		return err
	}
	st, err := s.Stats(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	slog.Info("reindex_complete", slog.Uint64("documents", st.Documents), slog.Duration("duration", elapsed))
	out.Successf("Reindexed %d statements into %d documents in %s", st.Statements, st.Documents, elapsed.Round(time.Millisecond))
	return nil
}
