package migration

import (
	"context"
	"io"
	"time"

	"golang.org/x/time/rate"
)

// BandwidthLimiter caps the combined read rate of every transfer of a run,
// rather than the rate per object.
type BandwidthLimiter struct {
	lim   *rate.Limiter
	burst int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewBandwidthLimiter creates a limiter allowing bps bytes per second with a
// burst of one second. A non-positive rate returns nil, which disables
// limiting.
func NewBandwidthLimiter(bps int64) *BandwidthLimiter {
	if bps <= 0 {
		return nil
	}

	return &BandwidthLimiter{
		lim:   rate.NewLimiter(rate.Limit(bps), int(bps)),
		burst: int(bps),
		now:   time.Now,
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Rate returns the configured rate in bytes per second.
func (l *BandwidthLimiter) Rate() int64 {
	return int64(l.lim.Limit())
}

// WaitN blocks until n bytes are allowed. Requests larger than the burst are
// reserved one burst at a time.
func (l *BandwidthLimiter) WaitN(ctx context.Context, n int) error {
	for n > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		take := min(n, l.burst)
		n -= take

		now := l.now()

		// ReserveN only fails for take > burst.
		res := l.lim.ReserveN(now, take)

		delay := res.DelayFrom(now)
		if delay == 0 {
			continue
		}

		if err := l.sleep(ctx, delay); err != nil {
			res.CancelAt(l.now())
			return err
		}
	}

	return nil
}

// Reader wraps r so every read is charged against the limiter.
func (l *BandwidthLimiter) Reader(ctx context.Context, r io.Reader) io.Reader {
	return &limitedReader{ctx: ctx, r: r, l: l}
}

type limitedReader struct {
	ctx context.Context
	r   io.Reader
	l   *BandwidthLimiter
}

// Read implements io.Reader. Reads are capped at the burst size so a single
// large buffer cannot overdraw the limiter.
func (lr *limitedReader) Read(p []byte) (int, error) {
	if len(p) > lr.l.burst {
		p = p[:lr.l.burst]
	}

	n, err := lr.r.Read(p)
	if n > 0 {
		if werr := lr.l.WaitN(lr.ctx, n); werr != nil {
			return n, werr
		}
	}

	return n, err
}
