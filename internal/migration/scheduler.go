// Package migration copies pending ledger records from a source to a
// destination bucket in bounded waves.
//
// A run claims up to Concurrency pending records, transfers them
// concurrently and waits for the whole wave before claiming again. A failed
// transfer leaves its record pending, so it is retried by a later wave for as
// long as the run continues; there is no retry limit and no backoff. Ledger
// failures abort the run.
package migration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/piwi3910/bucketshift/internal/ledger"
	"github.com/piwi3910/bucketshift/internal/metrics"
	"github.com/piwi3910/bucketshift/internal/progress"
	"github.com/piwi3910/bucketshift/internal/shutdown"
)

// DefaultConcurrency is the default wave size.
const DefaultConcurrency = 8

// Ledger is the part of the ledger the scheduler uses.
type Ledger interface {
	CountPending(ctx context.Context) (int64, error)
	SumPendingBytes(ctx context.Context) (*int64, error)
	ClaimBatch(ctx context.Context, n int, order ledger.Order) ([]ledger.Record, error)
	MarkCopied(ctx context.Context, key string) error
}

// Transferer copies one object. *Worker implements it.
type Transferer interface {
	Transfer(ctx context.Context, rec ledger.Record) (TransferResult, error)
}

// Config configures a Scheduler.
type Config struct {
	// Concurrency is the wave size. Values below 1 are treated as 1.
	Concurrency int
	Order       ledger.Order
	Progress    progress.Sink
	// FailedLog optionally records every failed transfer.
	FailedLog *FailedLog
	// SourceBucket labels failed-log entries.
	SourceBucket string
}

// Result summarizes a copy run.
type Result struct {
	// Total and TotalBytes describe the pending work when the run started.
	Total      int64
	TotalBytes *int64

	Completed   int64
	Failed      int64
	CopiedBytes int64

	// Waves counts the waves that started at least one task.
	Waves     int
	WaveSizes []int

	// NothingToCopy is set when the ledger had no pending record.
	NothingToCopy bool
	// Interrupted is set when the run stopped because of cancellation.
	Interrupted bool

	Elapsed time.Duration
}

// Scheduler dispatches transfers for pending ledger records.
type Scheduler struct {
	ledger Ledger
	worker Transferer
	cfg    Config
}

// NewScheduler creates a scheduler.
func NewScheduler(l Ledger, w Transferer, cfg Config) *Scheduler {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	if cfg.Progress == nil {
		cfg.Progress = progress.Nop{}
	}

	return &Scheduler{ledger: l, worker: w, cfg: cfg}
}

// Concurrency returns the effective wave size.
func (s *Scheduler) Concurrency() int {
	return s.cfg.Concurrency
}

// Order returns the claim order.
func (s *Scheduler) Order() ledger.Order {
	return s.cfg.Order
}

type runState struct {
	start       time.Time
	total       int64
	totalBytes  *int64
	completed   atomic.Int64
	failed      atomic.Int64
	copiedBytes atomic.Int64

	// sinkMu serializes progress sink calls.
	sinkMu sync.Mutex
}

// Run copies pending records until none remain or token is cancelled. The
// token is checked before each wave and before each task; ctx is handed to
// in-flight transfers and should only be cancelled to abandon them. Only
// ledger failures are returned as errors.
func (s *Scheduler) Run(ctx context.Context, token *shutdown.Token) (Result, error) {
	if token == nil {
		token = shutdown.NewToken()
	}

	st := &runState{start: time.Now()}

	total, err := s.ledger.CountPending(ctx)
	if err != nil {
		return Result{}, err
	}

	if total == 0 {
		metrics.SetPendingObjects(0)
		return Result{NothingToCopy: true}, nil
	}

	totalBytes, err := s.ledger.SumPendingBytes(ctx)
	if err != nil {
		return Result{}, err
	}

	st.total = total
	st.totalBytes = totalBytes

	metrics.SetPendingObjects(total)
	s.cfg.Progress.Start(total, totalBytes)

	res := Result{Total: total, TotalBytes: totalBytes}

	for {
		if token.Cancelled() {
			res.Interrupted = true
			break
		}

		batch, err := s.ledger.ClaimBatch(ctx, s.cfg.Concurrency, s.cfg.Order)
		if err != nil {
			return s.finish(st, res), err
		}

		if len(batch) == 0 {
			break
		}

		started, err := s.runWave(ctx, token, st, batch)

		if started > 0 {
			res.Waves++
			res.WaveSizes = append(res.WaveSizes, started)
			metrics.RecordWave()
		}

		if err != nil {
			return s.finish(st, res), err
		}

		if started < len(batch) {
			res.Interrupted = true
			break
		}
	}

	res = s.finish(st, res)
	s.cfg.Progress.Finish(s.snapshot(st, ""))

	return res, nil
}

// runWave transfers batch concurrently and waits for every started task. It
// returns how many tasks were started before cancellation was observed.
func (s *Scheduler) runWave(ctx context.Context, token *shutdown.Token, st *runState, batch []ledger.Record) (int, error) {
	var g errgroup.Group

	started := 0

	for _, rec := range batch {
		if token.Cancelled() {
			break
		}

		started++

		g.Go(func() error {
			return s.runTask(ctx, st, rec)
		})
	}

	return started, g.Wait()
}

// runTask transfers one record and records the outcome. Transfer failures
// are logged and swallowed; a ledger failure is returned.
func (s *Scheduler) runTask(ctx context.Context, st *runState, rec ledger.Record) error {
	metrics.TransferStarted()

	begin := time.Now()

	tr, err := s.worker.Transfer(ctx, rec)
	if err != nil {
		op := OpPut

		var te *TransferError
		if errors.As(err, &te) {
			op = te.Op
		}

		st.failed.Add(1)
		metrics.RecordTransferFailure(op, time.Since(begin))

		log.Error().Err(err).Str("key", rec.Key).Str("op", op).Msg("Error copying object")

		if s.cfg.FailedLog != nil {
			if lerr := s.cfg.FailedLog.Record(s.cfg.SourceBucket, rec.Key, err); lerr != nil {
				log.Warn().Err(lerr).Str("key", rec.Key).Msg("Failed to write failed-object log")
			}
		}

		s.report(st, rec.Key)

		return nil
	}

	if err := s.ledger.MarkCopied(ctx, rec.Key); err != nil {
		metrics.RecordTransferFailure("ledger", time.Since(begin))
		return err
	}

	done := st.completed.Add(1)
	st.copiedBytes.Add(tr.Bytes)

	metrics.RecordTransferSuccess(tr.Bytes, time.Since(begin))
	metrics.SetPendingObjects(st.total - done)

	log.Debug().
		Str("key", rec.Key).
		Int64("bytes", tr.Bytes).
		Int("chunks", tr.Chunks).
		Dur("duration", time.Since(begin)).
		Msg("Copied object")

	s.report(st, rec.Key)

	return nil
}

func (s *Scheduler) report(st *runState, key string) {
	st.sinkMu.Lock()
	defer st.sinkMu.Unlock()

	s.cfg.Progress.Update(s.snapshot(st, key))
}

func (s *Scheduler) snapshot(st *runState, key string) progress.Snapshot {
	return progress.Snapshot{
		Total:       st.total,
		TotalBytes:  st.totalBytes,
		Completed:   st.completed.Load(),
		Failed:      st.failed.Load(),
		CopiedBytes: st.copiedBytes.Load(),
		LastKey:     key,
		Elapsed:     time.Since(st.start),
	}
}

func (s *Scheduler) finish(st *runState, res Result) Result {
	res.Completed = st.completed.Load()
	res.Failed = st.failed.Load()
	res.CopiedBytes = st.copiedBytes.Load()
	res.Elapsed = time.Since(st.start)

	return res
}
