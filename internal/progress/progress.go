// Package progress reports copy progress to an operator.
package progress

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
)

// Snapshot is the state of a run after a transfer finished.
type Snapshot struct {
	// Total is the number of pending objects when the run started.
	Total int64
	// TotalBytes is the cataloged size of those objects, nil if unknown.
	TotalBytes *int64

	Completed   int64
	Failed      int64
	CopiedBytes int64

	// LastKey is the object whose transfer produced this snapshot.
	LastKey string
	Elapsed time.Duration
}

// Done returns the number of finished transfers, successful or not.
func (s Snapshot) Done() int64 {
	return s.Completed + s.Failed
}

// Sink receives progress updates. Calls are serialized by the caller.
type Sink interface {
	Start(total int64, totalBytes *int64)
	Update(s Snapshot)
	Finish(s Snapshot)
}

// Nop discards every update.
type Nop struct{}

// Start implements Sink.
func (Nop) Start(int64, *int64) {}

// Update implements Sink.
func (Nop) Update(Snapshot) {}

// Finish implements Sink.
func (Nop) Finish(Snapshot) {}

// LogSink writes progress lines through zerolog, at most once per interval.
type LogSink struct {
	interval time.Duration

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewLogSink creates a sink that logs at most once per interval. A zero
// interval logs every update.
func NewLogSink(interval time.Duration) *LogSink {
	return &LogSink{interval: interval, now: time.Now}
}

// Start implements Sink.
func (l *LogSink) Start(total int64, totalBytes *int64) {
	evt := log.Info().Int64("objects", total)
	if totalBytes != nil {
		evt = evt.Str("size", humanize.IBytes(uint64(max(*totalBytes, 0))))
	}

	evt.Msg("Starting copy")
}

// Update implements Sink.
func (l *LogSink) Update(s Snapshot) {
	l.mu.Lock()
	now := l.now()

	if !l.last.IsZero() && now.Sub(l.last) < l.interval && s.Done() < s.Total {
		l.mu.Unlock()
		return
	}

	l.last = now
	l.mu.Unlock()

	evt := log.Info().
		Int64("done", s.Done()).
		Int64("total", s.Total).
		Int64("failed", s.Failed).
		Str("copied", humanize.IBytes(uint64(max(s.CopiedBytes, 0)))).
		Str("percent", Percent(s)).
		Str("rate", Rate(s))

	if s.LastKey != "" {
		evt = evt.Str("key", s.LastKey)
	}

	evt.Msg("Copy progress")
}

// Finish implements Sink.
func (l *LogSink) Finish(s Snapshot) {
	log.Info().
		Int64("completed", s.Completed).
		Int64("failed", s.Failed).
		Str("copied", humanize.IBytes(uint64(max(s.CopiedBytes, 0)))).
		Dur("elapsed", s.Elapsed).
		Msg("Copy finished")
}

// Percent formats the share of finished transfers, by bytes when the total
// size is known and by object count otherwise.
func Percent(s Snapshot) string {
	if s.TotalBytes != nil && *s.TotalBytes > 0 {
		return humanize.FtoaWithDigits(float64(s.CopiedBytes)*100/float64(*s.TotalBytes), 1) + "%"
	}

	if s.Total == 0 {
		return "100%"
	}

	return humanize.FtoaWithDigits(float64(s.Done())*100/float64(s.Total), 1) + "%"
}

// Rate formats the average throughput so far.
func Rate(s Snapshot) string {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return "0 B/s"
	}

	return humanize.IBytes(uint64(float64(s.CopiedBytes)/secs)) + "/s"
}
