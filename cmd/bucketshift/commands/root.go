// Package commands implements the bucketshift command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/piwi3910/bucketshift/internal/config"
	"github.com/piwi3910/bucketshift/internal/ledger"
	"github.com/piwi3910/bucketshift/internal/metrics"
	"github.com/piwi3910/bucketshift/internal/storage/backend"
)

// BuildInfo is set at build time.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// Options holds the persistent flags shared by every command.
type Options struct {
	LogLevel    string
	LogFormat   string
	Debug       bool
	EnvFile     string
	MetricsAddr string
}

// App wires commands to their collaborators.
type App struct {
	Options Options

	// OpenStore creates the object store for one side.
	OpenStore func(ctx context.Context, sc config.StoreConfig) (backend.ObjectStore, error)

	// LogOutput receives log lines. Defaults to stderr.
	LogOutput io.Writer
}

// NewApp creates an App that talks to real object stores.
func NewApp() *App {
	return &App{
		OpenStore: func(ctx context.Context, sc config.StoreConfig) (backend.ObjectStore, error) {
			return sc.Open(ctx)
		},
		LogOutput: os.Stderr,
	}
}

// NewRootCmd builds the command tree.
func (a *App) NewRootCmd(info BuildInfo) *cobra.Command {
	root := &cobra.Command{
		Use:   "bucketshift",
		Short: "Resumable bucket-to-bucket object migration",
		Long: `bucketshift copies every object of one bucket into another and can be
stopped and restarted at any time without copying an object twice.

A run has two steps, both sharing a state file that records progress:
  bucketshift catalog --src-bucket-name SRC --state-file ./state
  bucketshift copy --src-bucket-name SRC --dest-bucket-name DST --state-file ./state

Each side is configured through the environment or an env file:
  SRC_AWS_ACCESS_KEY_ID / DEST_AWS_ACCESS_KEY_ID (or AWS_ACCESS_KEY_ID)
  SRC_AWS_SECRET_ACCESS_KEY / DEST_AWS_SECRET_ACCESS_KEY (or AWS_SECRET_ACCESS_KEY)
  SRC_AWS_REGION / DEST_AWS_REGION (or AWS_REGION, DEFAULT_AWS_REGION)
  SRC_ENDPOINT / DEST_ENDPOINT (or ENDPOINT)
  SRC_DRIVER / DEST_DRIVER (s3, minio or fs, default s3)
  SRC_ROOT_DIR / DEST_ROOT_DIR (directory holding buckets, fs driver)
  SRC_INSECURE_SKIP_VERIFY / DEST_INSECURE_SKIP_VERIFY (self-signed endpoints)`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setupLogging()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.Options.LogLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.StringVar(&a.Options.LogFormat, "log-format", "json", "Log format (json, console)")
	flags.BoolVar(&a.Options.Debug, "debug", false, "Enable debug logging to the console")
	flags.StringVar(&a.Options.EnvFile, "env-file", "", "Env file with store settings (default .env when present)")
	flags.StringVar(&a.Options.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run (e.g. :9090)")

	root.AddCommand(a.newCatalogCmd())
	root.AddCommand(a.newCopyCmd())
	root.AddCommand(a.newStatusCmd())
	root.AddCommand(a.newExportCmd())

	return root
}

func (a *App) setupLogging() error {
	level, err := zerolog.ParseLevel(strings.ToLower(a.Options.LogLevel))
	if err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", a.Options.LogLevel, err)
	}

	if a.Options.Debug {
		level = zerolog.DebugLevel
	}

	out := a.LogOutput
	if out == nil {
		out = os.Stderr
	}

	var logger zerolog.Logger

	switch {
	case a.Options.Debug || a.Options.LogFormat == "console":
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out})
	case a.Options.LogFormat == "json" || a.Options.LogFormat == "":
		logger = zerolog.New(out)
	default:
		return fmt.Errorf("invalid --log-format %q (allowed: json, console)", a.Options.LogFormat)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(level)

	log.Logger = logger.With().Timestamp().Str("run_id", uuid.NewString()).Logger()

	return nil
}

// startMetrics serves metrics when --metrics-addr is set. The returned
// function stops the server.
func (a *App) startMetrics(ctx context.Context) (func(), error) {
	if a.Options.MetricsAddr == "" {
		return func() {}, nil
	}

	ctx, cancel := context.WithCancel(ctx)

	addr, done, err := metrics.Serve(ctx, a.Options.MetricsAddr)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}

	log.Info().Str("addr", addr.String()).Msg("Serving metrics")

	return func() {
		cancel()

		if err := <-done; err != nil {
			log.Warn().Err(err).Msg("Metrics server error")
		}
	}, nil
}

// loadConfig resolves store settings for both sides.
func (a *App) loadConfig(checksums string) (*config.Config, error) {
	return a.load(config.Options{EnvFile: a.Options.EnvFile, Checksum: checksums})
}

// loadSourceConfig resolves only the source side, for commands that never
// touch the destination.
func (a *App) loadSourceConfig() (*config.Config, error) {
	return a.load(config.Options{EnvFile: a.Options.EnvFile, SourceOnly: true})
}

func (a *App) load(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// openLedger opens the state file. Unless create is set, the state file must
// already exist.
func openLedger(path string, create bool) (*ledger.Ledger, error) {
	if path == "" {
		return nil, errors.New("--state-file is required")
	}

	if !create {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("state file %q does not exist; run catalog first", path)
			}

			return nil, err
		}
	}

	return ledger.Open(path, ledger.Options{})
}

func closeLedger(l *ledger.Ledger) {
	if err := l.Close(); err != nil {
		log.Error().Err(err).Str("state_file", l.Path()).Msg("Failed to close state file")
	}
}
