package commands

import (
	"context"
	"fmt"
	"log/slog"
	"topcontributors/internal/components/chrono"
	"topcontributors/internal/cumulative"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(latestCmd)
}

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Compares the live page against the totals already in the ledger.",
	Run: func(cmd *cobra.Command, args []string) {
		run(cmd.Context(), func(ctx context.Context, e *env) error {
			return e.latest(ctx)
		})
	},
}

func (e *env) latest(ctx context.Context) error {
	if !e.hasLedger() {
		return fmt.Errorf("latest needs ledger.dsn to be configured")
	}

	doc, err := e.client.Document(ctx, e.cfg.LiveURL)
	if err != nil {
		return err
	}
	snapshot, err := e.extractor.Extract(ctx, doc)
	if err != nil {
		return fmt.Errorf("extract %s: %w", e.cfg.LiveURL, err)
	}

	store, err := e.ledger()
	if err != nil {
		return err
	}
	known, err := store.Totals(ctx, e.cfg.Record.Donee)
	if err != nil {
		return err
	}
	slog.Info("loaded ledger totals", "donors", known.Len())

	e.reportSimilarNames(snapshot.Donors(), known.Donors())

	result := e.reconciler.Latest(known, cumulative.Observation{
		Snapshot: snapshot,
		Date:     chrono.Day(e.clock.Now()),
		URL:      e.cfg.LiveURL,
	})

	slog.Info("inferred donations", "count", len(result.Donations))
	err = e.write(result.Donations)
	if err != nil {
		return err
	}
	summarizeInconsistencies(result.Inconsistencies)
	return nil
}
