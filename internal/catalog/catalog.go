// Package catalog populates the transfer ledger from a paginated source
// listing and exports ledger contents as inventory files.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/piwi3910/bucketshift/internal/ledger"
	"github.com/piwi3910/bucketshift/internal/metrics"
	"github.com/piwi3910/bucketshift/internal/storage/backend"
)

// DefaultPageSize is the number of keys requested per listing page.
const DefaultPageSize = 1000

// Ledger is the part of the ledger the cataloger writes to.
type Ledger interface {
	UpsertManyIfAbsent(ctx context.Context, recs []ledger.Record) (int, error)
}

// PageError reports a failed listing page. It aborts the catalog run.
type PageError struct {
	Bucket string
	Prefix string
	// Cursor is the continuation token the failed request was sent with,
	// empty for the first page.
	Cursor string
	Page   int
	Err    error
}

// Error implements the error interface.
func (e *PageError) Error() string {
	return fmt.Sprintf("listing page %d of bucket %q failed: %v", e.Page, e.Bucket, e.Err)
}

// Unwrap returns the underlying error.
func (e *PageError) Unwrap() error {
	return e.Err
}

// Options selects what to catalog.
type Options struct {
	Bucket string
	Prefix string
	// PageSize caps keys per listing request. Zero uses DefaultPageSize.
	PageSize int32
}

// Stats summarizes a catalog run.
type Stats struct {
	Pages    int
	Listed   int64
	Inserted int64
}

// Known returns how many listed keys were already in the ledger.
func (s Stats) Known() int64 {
	return s.Listed - s.Inserted
}

// Cataloger lists a source bucket into a ledger.
type Cataloger struct {
	store  backend.ObjectStore
	ledger Ledger
}

// New creates a cataloger reading from store and writing to l.
func New(store backend.ObjectStore, l Ledger) *Cataloger {
	return &Cataloger{store: store, ledger: l}
}

// Run walks the whole listing and inserts every key the ledger does not
// know yet. Records already present keep their original fields, so running
// twice against an unchanged listing is a no-op. A failed page aborts the run
// with a *PageError; ledger failures are returned as they are.
func (c *Cataloger) Run(ctx context.Context, opts Options) (Stats, error) {
	var stats Stats

	if opts.Bucket == "" {
		return stats, errors.New("bucket name is required")
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	cursor := ""

	for {
		page, err := c.store.List(ctx, opts.Bucket, backend.ListOptions{
			Prefix:            opts.Prefix,
			ContinuationToken: cursor,
			MaxKeys:           pageSize,
		})
		if err != nil {
			return stats, &PageError{
				Bucket: opts.Bucket,
				Prefix: opts.Prefix,
				Cursor: cursor,
				Page:   stats.Pages + 1,
				Err:    err,
			}
		}

		recs := make([]ledger.Record, 0, len(page.Objects))
		for _, obj := range page.Objects {
			if obj.Key == "" {
				continue
			}

			recs = append(recs, toRecord(obj))
		}

		inserted, err := c.ledger.UpsertManyIfAbsent(ctx, recs)
		if err != nil {
			return stats, err
		}

		stats.Pages++
		stats.Listed += int64(len(recs))
		stats.Inserted += int64(inserted)

		metrics.RecordCatalogPage(len(recs), inserted)

		log.Debug().
			Str("bucket", opts.Bucket).
			Int("page", stats.Pages).
			Int("listed", len(recs)).
			Int("inserted", inserted).
			Msg("Cataloged listing page")

		next := page.NextContinuationToken
		if next == "" {
			return stats, nil
		}

		if next == cursor {
			return stats, &PageError{
				Bucket: opts.Bucket,
				Prefix: opts.Prefix,
				Cursor: cursor,
				Page:   stats.Pages,
				Err:    errors.New("store returned the same continuation token twice"),
			}
		}

		cursor = next
	}
}

func toRecord(obj backend.ObjectInfo) ledger.Record {
	return ledger.Record{
		Key:          obj.Key,
		Size:         obj.Size,
		ContentTag:   obj.ETag,
		LastModified: obj.LastModified,
	}
}
