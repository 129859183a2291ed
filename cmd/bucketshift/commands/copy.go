package commands

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/piwi3910/bucketshift/internal/chunk"
	"github.com/piwi3910/bucketshift/internal/ledger"
	"github.com/piwi3910/bucketshift/internal/migration"
	"github.com/piwi3910/bucketshift/internal/progress"
	"github.com/piwi3910/bucketshift/internal/shutdown"
)

const defaultProgressInterval = 5 * time.Second

type copyFlags struct {
	srcBucket        string
	destBucket       string
	stateFile        string
	concurrency      int
	chunkSize        int
	orderBy          string
	order            string
	checksums        string
	maxBandwidth     string
	failedLog        string
	progressInterval time.Duration
}

func (a *App) newCopyCmd() *cobra.Command {
	var f copyFlags

	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy every pending object to the destination bucket",
		Long: `Copy transfers the objects recorded by catalog that have not been copied
yet. Objects are copied in waves of --concurrency objects; the next wave
starts once the whole previous wave has finished. A failed object stays
pending and is retried in a later wave.

Interrupting copy (Ctrl-C or SIGTERM) lets the running wave finish and then
stops. Rerun the same command to resume.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCopy(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.srcBucket, "src-bucket-name", "", "Source bucket")
	flags.StringVar(&f.destBucket, "dest-bucket-name", "", "Destination bucket")
	flags.StringVar(&f.stateFile, "state-file", "", "State file directory written by catalog")
	flags.IntVar(&f.concurrency, "concurrency", migration.DefaultConcurrency, "Objects copied concurrently per wave")
	flags.IntVar(&f.chunkSize, "chunk-size-bytes", chunk.RecommendedSize, "Upload chunk size in bytes")
	flags.StringVar(&f.orderBy, "order-by", "", "Copy order: key, size, content-tag, last-modified (default catalog order)")
	flags.StringVar(&f.order, "order", "asc", "Sort direction: asc or desc")
	flags.StringVar(&f.checksums, "checksums", "when-supported", "Checksum mode: when-supported or when-required")
	flags.StringVar(&f.maxBandwidth, "max-bandwidth", "", "Cap combined read rate per second (e.g. 50MB, 1GiB)")
	flags.StringVar(&f.failedLog, "failed-log", "", "Append failed transfers to this JSON lines file")
	flags.DurationVar(&f.progressInterval, "progress-interval", defaultProgressInterval, "Minimum time between progress log lines")

	_ = cmd.MarkFlagRequired("src-bucket-name")
	_ = cmd.MarkFlagRequired("dest-bucket-name")
	_ = cmd.MarkFlagRequired("state-file")

	return cmd
}

func (a *App) runCopy(cmd *cobra.Command, f copyFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	field, err := ledger.ParseSortField(f.orderBy)
	if err != nil {
		return err
	}

	dir, err := ledger.ParseDirection(f.order)
	if err != nil {
		return err
	}

	var rate int64

	if f.maxBandwidth != "" {
		b, err := humanize.ParseBytes(f.maxBandwidth)
		if err != nil {
			return fmt.Errorf("invalid --max-bandwidth %q: %w", f.maxBandwidth, err)
		}

		rate = int64(b)
	}

	cfg, err := a.loadConfig(f.checksums)
	if err != nil {
		return err
	}

	src, err := a.OpenStore(ctx, cfg.Source)
	if err != nil {
		return err
	}

	dst, err := a.OpenStore(ctx, cfg.Destination)
	if err != nil {
		return err
	}

	l, err := openLedger(f.stateFile, false)
	if err != nil {
		return err
	}
	defer closeLedger(l)

	pending, err := l.CountPending(ctx)
	if err != nil {
		return err
	}

	if pending == 0 {
		fmt.Fprintln(out, "Nothing to copy.")
		return nil
	}

	var failed *migration.FailedLog

	if f.failedLog != "" {
		failed, err = migration.OpenFailedLog(f.failedLog)
		if err != nil {
			return err
		}

		defer func() {
			if err := failed.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close failed-object log")
			}
		}()
	}

	stopMetrics, err := a.startMetrics(ctx)
	if err != nil {
		return err
	}
	defer stopMetrics()

	worker := &migration.Worker{
		Source:       src,
		Destination:  dst,
		SourceBucket: f.srcBucket,
		DestBucket:   f.destBucket,
		ChunkSize:    f.chunkSize,
		Limiter:      migration.NewBandwidthLimiter(rate),
	}

	sched := migration.NewScheduler(l, worker, migration.Config{
		Concurrency:  f.concurrency,
		Order:        ledger.Order{Field: field, Direction: dir},
		Progress:     progress.NewLogSink(f.progressInterval),
		FailedLog:    failed,
		SourceBucket: f.srcBucket,
	})

	token := shutdown.NewToken()
	stopSignals := shutdown.NotifyOnSignal(token)
	defer stopSignals()

	fmt.Fprintf(out, "Using concurrency level: %d\n", sched.Concurrency())
	fmt.Fprintf(out, "Copying %d objects...\n", pending)

	log.Info().
		Str("source", f.srcBucket).
		Str("destination", f.destBucket).
		Str("order", sched.Order().String()).
		Int("chunk_size", f.chunkSize).
		Int64("max_bandwidth", rate).
		Msg("Starting copy")

	res, err := sched.Run(ctx, token)
	if err != nil {
		return fmt.Errorf("copy aborted: %w", err)
	}

	if res.Interrupted {
		log.Warn().Str("reason", token.Reason()).Msg("Copy interrupted")
		fmt.Fprintln(out, "Copy interrupted.")
	} else {
		fmt.Fprintln(out, "Copy process completed.")
	}

	fmt.Fprintf(out, "Copied %d objects (%s) in %d waves; %d failed attempts.\n",
		res.Completed, humanize.IBytes(uint64(max(res.CopiedBytes, 0))), res.Waves, res.Failed)

	return nil
}
