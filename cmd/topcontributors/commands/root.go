package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"topcontributors/internal/components/serviceutil"
	"topcontributors/internal/components/telemetry"
	"topcontributors/internal/config"

	"github.com/spf13/cobra"
)

const serviceName = "topcontributors"

var (
	configPath *string
	verbose    *bool
	format     *string
	schemaName *string
	dumpDir    *string
	cacheFile  *string
)

var rootCmd = &cobra.Command{
	Use:   "topcontributors <history|latest>",
	Short: "topcontributors turns MIRI's cumulative top contributors page into donation records.",
	Long: `topcontributors reads the cumulative totals published on MIRI's top contributors
page, infers the individual donations that must have happened between captures,
and prints them to stdout as a single insert statement for the donations table.

Everything else (progress, warnings, inconsistencies) goes to stderr.`,
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "unknown mode %q\n\n", args[0])
		}
		cmd.Usage()
	},
}

func init() {
	// stdout is reserved for generated statements
	rootCmd.SetOut(os.Stderr)
	rootCmd.SetErr(os.Stderr)

	flags := rootCmd.PersistentFlags()
	configPath = flags.String("config", config.DefaultFile, "Config file, a sibling <name>.local.json5 is merged on top.")
	verbose = flags.BoolP("verbose", "v", false, "Log debug information.")
	format = flags.String("format", "sql", "Output format, sql or table.")
	schemaName = flags.String("schema", "", "Column set of the insert statement, full or compact (overrides record.schema).")
	dumpDir = flags.String("dump", "", "Write a transcript of every http request into this directory.")
	cacheFile = flags.String("cache", "", "Cache archived captures in this sqlite file (overrides cache.file).")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig applies command line overrides on top of the config files.
func loadConfig() config.Config {
	cfg, err := config.Load(*configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if *schemaName != "" {
		cfg.Record.Schema = *schemaName
	}
	if *cacheFile != "" {
		cfg.Cache.File = *cacheFile
	}
	return cfg
}

// run sets up logging, telemetry and every component, then calls fn.
// Any error is fatal and happens before anything is written to stdout.
func run(ctx context.Context, fn func(ctx context.Context, e *env) error) {
	telemetry.InitSlog(os.Stderr, *verbose)

	cfg := loadConfig()
	opts, err := parseOutputOptions(*format, cfg.Record.Schema)
	if err != nil {
		serviceutil.Fatal("invalid output options", err)
	}

	otel, err := telemetry.SetupOtel(ctx, serviceName, cfg.Otlp)
	if err != nil {
		serviceutil.Fatal("failed to setup otel", err)
	}
	defer func() {
		err := otel.Shutdown(context.Background())
		if err != nil {
			slog.Warn("failed to shutdown otel", "err", err)
		}
	}()

	e, err := newEnv(cfg, envOptions{
		output: opts,
		dump:   *dumpDir,
		stdout: os.Stdout,
	}, telemetry.NewSlogAPI())
	if err != nil {
		serviceutil.Fatal("failed to initialize", err)
	}
	defer e.Close()

	err = fn(ctx, e)
	if err != nil {
		e.Close()
		otel.Shutdown(context.Background())
		serviceutil.Fatal("run failed", err)
	}
}
