package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"topcontributors/internal/components/chrono"
	"topcontributors/internal/cumulative"
	"topcontributors/internal/fetch"
	"topcontributors/internal/ledger"

	"github.com/spf13/cobra"
)

var noLedger *bool

func init() {
	noLedger = historyCmd.Flags().Bool("no-ledger", false, "Emit every inferred donation, without subtracting what the ledger already has.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Rebuilds the full donation history from every archived capture.",
	Run: func(cmd *cobra.Command, args []string) {
		run(cmd.Context(), func(ctx context.Context, e *env) error {
			return e.history(ctx, !*noLedger)
		})
	},
}

// observe fetches and extracts the snapshot of every source in order.
func (e *env) observe(ctx context.Context, sources []fetch.Source) ([]cumulative.Observation, error) {
	observations := make([]cumulative.Observation, 0, len(sources))
	for i, source := range sources {
		slog.Info("downloading capture", "n", i+1, "of", len(sources), "url", source.URL)

		doc, err := e.client.Document(ctx, source.URL)
		if err != nil {
			return nil, err
		}
		snapshot, err := e.extractor.Extract(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", source.URL, err)
		}
		slog.Info("capture has donors", "date", source.Date.Format(time.DateOnly), "donors", snapshot.Len())

		observations = append(observations, cumulative.Observation{
			Snapshot: snapshot,
			Date:     source.Date,
			URL:      source.URL,
		})
	}
	return observations, nil
}

func (e *env) history(ctx context.Context, useLedger bool) error {
	sources, err := fetch.ResolveSources(e.cfg.Sources)
	if err != nil {
		return err
	}
	origin, err := chrono.ParseDay(e.cfg.OriginDate)
	if err != nil {
		return fmt.Errorf("origin_date: %w", err)
	}

	observations, err := e.observe(ctx, sources)
	if err != nil {
		return err
	}
	result := e.engine.Chain(observations, origin)

	if useLedger && !e.hasLedger() {
		slog.Warn("no ledger dsn configured, emitting the full history")
		useLedger = false
	}
	if useLedger {
		store, err := e.ledger()
		if err != nil {
			return err
		}
		recorded, err := store.Donations(ctx, e.cfg.Record.Donee)
		if err != nil {
			return err
		}
		known := ledger.Totals(recorded)
		slog.Info("loaded ledger donations", "records", len(recorded), "donors", known.Len())

		web := cumulative.Totals(result.Donations)
		e.reportSimilarNames(web.Donors(), known.Donors())

		netNew := e.reconciler.NetNew(result.Donations, known)
		netNew.Inconsistencies = append(result.Inconsistencies, netNew.Inconsistencies...)
		result = netNew
	}

	slog.Info("inferred donations", "count", len(result.Donations))
	err = e.write(result.Donations)
	if err != nil {
		return err
	}
	summarizeInconsistencies(result.Inconsistencies)
	return nil
}
