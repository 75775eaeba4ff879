package commands

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"
	"topcontributors/internal/components/assert"
	"topcontributors/internal/components/chrono"
	"topcontributors/internal/components/telemetry"
	"topcontributors/internal/config"
	"topcontributors/internal/contributors"
	"topcontributors/internal/cumulative"
	"topcontributors/internal/fetch"
	"topcontributors/internal/ledger"
	"topcontributors/internal/reconcile"
	"topcontributors/internal/sqlgen"
)

type envOptions struct {
	output outputOptions
	dump   string
	stdout io.Writer
	// clock defaults to the system clock in UTC.
	clock chrono.API
}

// env is everything a mode needs, built once per run.
type env struct {
	cfg    config.Config
	tel    telemetry.API
	clock  chrono.API
	stdout io.Writer
	output outputOptions

	client     *fetch.Client
	cache      *fetch.PageCache
	extractor  contributors.Extractor
	engine     cumulative.Engine
	reconciler reconcile.Reconciler

	ledgerDb *sql.DB
}

func newEnv(cfg config.Config, opts envOptions, tel telemetry.API) (*env, error) {
	assert.NotNil(tel)
	assert.NotNil(opts.stdout)

	if opts.clock == nil {
		opts.clock = chrono.NewStandardImpl(time.UTC)
	}

	e := &env{
		cfg:    cfg,
		tel:    tel,
		clock:  opts.clock,
		stdout: opts.stdout,
		output: opts.output,
	}

	var dump telemetry.DumpOutput
	if opts.dump != "" {
		dirDump, err := fetch.NewDirDump(opts.dump)
		if err != nil {
			return nil, fmt.Errorf("create dump directory: %w", err)
		}
		dump = dirDump
	}

	if cfg.Cache.File != "" {
		cache, err := fetch.OpenPageCache(cfg.Cache.File)
		if err != nil {
			return nil, fmt.Errorf("open page cache: %w", err)
		}
		e.cache = cache
	}

	e.client = fetch.NewClient(fetch.Options{
		UserAgent: cfg.UserAgent,
		Dump:      dump,
		Cache:     e.cache,
	}, tel)
	e.extractor = contributors.NewExtractor(
		contributors.NewNormalizer(cfg.Normalize),
		cfg.CurrencyMarkers,
		tel,
	)
	e.engine = cumulative.NewEngine(cfg.IgnoredDonors, tel)
	e.reconciler = reconcile.New(e.engine, tel)

	return e, nil
}

func (e *env) hasLedger() bool {
	return e.cfg.Ledger.DSN != ""
}

// ledger opens the ledger on first use.
func (e *env) ledger() (ledger.Store, error) {
	if e.ledgerDb == nil {
		db, err := ledger.Open(e.cfg.Ledger)
		if err != nil {
			return ledger.Store{}, err
		}
		e.ledgerDb = db
	}
	return ledger.NewStore(e.ledgerDb, e.tel), nil
}

func (e *env) defaults() sqlgen.Defaults {
	return sqlgen.Defaults{
		Donee:         e.cfg.Record.Donee,
		DatePrecision: e.cfg.Record.DatePrecision,
		DateBasis:     e.cfg.Record.DateBasis,
		CauseArea:     e.cfg.Record.CauseArea,
	}
}

// reportSimilarNames only logs, it never changes what is emitted.
func (e *env) reportSimilarNames(web, known []string) {
	matches := e.reconciler.SimilarNames(web, known, e.cfg.SimilarityThreshold)
	if len(matches) > 0 {
		slog.Warn(
			"some donors on the page look like misspelled ledger donors, consider extending the normalize table",
			"count", len(matches),
		)
	}
}

func (e *env) Close() {
	if e.cache != nil {
		err := e.cache.Close()
		if err != nil {
			slog.Warn("failed to close page cache", "err", err)
		}
		e.cache = nil
	}
	if e.ledgerDb != nil {
		err := e.ledgerDb.Close()
		if err != nil {
			slog.Warn("failed to close ledger", "err", err)
		}
		e.ledgerDb = nil
	}
}
