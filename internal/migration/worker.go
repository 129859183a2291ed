package migration

import (
	"context"
	"errors"
	"io"

	"github.com/piwi3910/bucketshift/internal/chunk"
	"github.com/piwi3910/bucketshift/internal/ledger"
	"github.com/piwi3910/bucketshift/internal/storage/backend"
)

// TransferResult describes a successful transfer.
type TransferResult struct {
	// Bytes is the number of bytes streamed to the destination.
	Bytes int64
	// Chunks is the number of normalized chunks the body was cut into.
	Chunks int
}

// Worker copies single objects from a source to a destination bucket.
type Worker struct {
	Source       backend.ObjectStore
	Destination  backend.ObjectStore
	SourceBucket string
	DestBucket   string
	// ChunkSize is the normalized chunk size. It is clamped to chunk.MinSize.
	ChunkSize int
	// Limiter optionally caps the combined read rate of all transfers.
	Limiter *BandwidthLimiter
}

// Transfer streams rec.Key from the source through a chunk normalizer into
// the destination under the same key. The declared content length is the
// cataloged size, so a source object that changed size since cataloging
// fails with OpTransform instead of being written short or long. Every
// failure is a *TransferError. Transfer does not touch the ledger.
func (w *Worker) Transfer(ctx context.Context, rec ledger.Record) (TransferResult, error) {
	body, err := w.Source.Get(ctx, w.SourceBucket, rec.Key)
	if err != nil {
		return TransferResult{}, &TransferError{Key: rec.Key, Op: OpGet, Err: err}
	}

	defer func() { _ = body.Close() }()

	size := int64(-1)
	if rec.Size != nil {
		size = *rec.Size
	}

	chunkSize := w.ChunkSize
	if chunkSize <= 0 {
		chunkSize = chunk.RecommendedSize
	}

	cr := chunk.NewReader(body, chunkSize, chunk.WithExpectedSize(size))

	var r io.Reader = cr
	if w.Limiter != nil {
		r = w.Limiter.Reader(ctx, r)
	}

	if _, err := w.Destination.Put(ctx, w.DestBucket, rec.Key, r, size); err != nil {
		return TransferResult{}, classify(rec.Key, cr, err)
	}

	// A destination may stop reading once it has the declared length.
	// Drain one more read so a longer source is still detected.
	if streamErr := cr.Err(); streamErr == nil && size >= 0 {
		var tail [1]byte
		if _, err := cr.Read(tail[:]); err != nil && !errors.Is(err, io.EOF) {
			return TransferResult{}, classify(rec.Key, cr, err)
		}
	}

	return TransferResult{Bytes: cr.BytesRead(), Chunks: cr.Chunks()}, nil
}

// classify attributes a failed put to the stage that caused it: a broken
// or mis-sized source stream fails the put as a side effect.
func classify(key string, cr *chunk.Reader, err error) error {
	streamErr := cr.Err()

	switch {
	case errors.Is(streamErr, chunk.ErrSizeMismatch):
		return &TransferError{Key: key, Op: OpTransform, Err: streamErr}
	case streamErr != nil:
		return &TransferError{Key: key, Op: OpGet, Err: streamErr}
	default:
		return &TransferError{Key: key, Op: OpPut, Err: err}
	}
}
