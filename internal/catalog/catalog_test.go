package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/bucketshift/internal/ledger"
	"github.com/piwi3910/bucketshift/internal/storage/backend"
	"github.com/piwi3910/bucketshift/internal/testutil"
	"github.com/piwi3910/bucketshift/internal/testutil/mocks"
)

func TestRun_PagesThroughListing(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockObjectStore()
	store.SetPageSize(4)
	testutil.SeedBucket(store, "src", 10)

	l := testutil.NewMemoryLedger(t)

	stats, err := New(store, l).Run(ctx, Options{Bucket: "src"})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Pages)
	assert.Equal(t, int64(10), stats.Listed)
	assert.Equal(t, int64(10), stats.Inserted)
	assert.Equal(t, int64(0), stats.Known())

	pending, err := l.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pending)

	rec, err := l.Get(ctx, "obj-003")
	require.NoError(t, err)
	require.NotNil(t, rec.Size)
	assert.Equal(t, int64(103), *rec.Size)
	assert.NotNil(t, rec.ContentTag)
	assert.NotNil(t, rec.LastModified)
	assert.False(t, rec.Copied)
}

func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockObjectStore()
	store.SetPageSize(3)
	testutil.SeedBucket(store, "src", 7)

	l := testutil.NewMemoryLedger(t)
	c := New(store, l)

	_, err := c.Run(ctx, Options{Bucket: "src"})
	require.NoError(t, err)

	first := testutil.Snapshot(t, l)

	stats, err := c.Run(ctx, Options{Bucket: "src"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), stats.Listed)
	assert.Equal(t, int64(0), stats.Inserted)
	assert.Equal(t, int64(7), stats.Known())

	assert.Equal(t, first, testutil.Snapshot(t, l))
}

func TestRun_KeepsOriginalFields(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockObjectStore()
	store.AddObject("src", "k", []byte("short"))

	l := testutil.NewMemoryLedger(t)
	c := New(store, l)

	_, err := c.Run(ctx, Options{Bucket: "src"})
	require.NoError(t, err)

	before, err := l.Get(ctx, "k")
	require.NoError(t, err)

	store.AddObject("src", "k", []byte("a much longer payload"))

	_, err = c.Run(ctx, Options{Bucket: "src"})
	require.NoError(t, err)

	after, err := l.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRun_Prefix(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockObjectStore()
	store.AddObject("src", "logs/a", []byte("a"))
	store.AddObject("src", "logs/b", []byte("b"))
	store.AddObject("src", "data/c", []byte("c"))

	l := testutil.NewMemoryLedger(t)

	stats, err := New(store, l).Run(ctx, Options{Bucket: "src", Prefix: "logs/"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Inserted)

	_, err = l.Get(ctx, "data/c")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRun_UnknownMetadata(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockObjectStore()
	store.SetOmitMetadata(true)
	store.AddObject("src", "k", []byte("abc"))

	l := testutil.NewMemoryLedger(t)

	_, err := New(store, l).Run(ctx, Options{Bucket: "src"})
	require.NoError(t, err)

	rec, err := l.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, rec.Size)
	assert.Nil(t, rec.ContentTag)
	assert.Nil(t, rec.LastModified)
}

func TestRun_PageFailureAborts(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockObjectStore()
	store.SetPageSize(2)
	testutil.SeedBucket(store, "src", 6)

	cause := errors.New("throttled")
	store.SetListErrorAfter(1, cause)

	l := testutil.NewMemoryLedger(t)

	stats, err := New(store, l).Run(ctx, Options{Bucket: "src"})
	require.Error(t, err)

	var pageErr *PageError
	require.ErrorAs(t, err, &pageErr)
	assert.Equal(t, "src", pageErr.Bucket)
	assert.Equal(t, 2, pageErr.Page)
	assert.Equal(t, "obj-001", pageErr.Cursor)
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, 1, stats.Pages)
	assert.Equal(t, 2, store.ListCalls())

	pending, err := l.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending, "rows from pages before the failure stay")
}

func TestRun_MissingBucket(t *testing.T) {
	store := mocks.NewMockObjectStore()
	l := testutil.NewMemoryLedger(t)

	_, err := New(store, l).Run(context.Background(), Options{Bucket: "nope"})

	var pageErr *PageError
	require.ErrorAs(t, err, &pageErr)
	assert.ErrorIs(t, err, backend.ErrBucketNotFound)
	assert.Empty(t, pageErr.Cursor)
}

func TestRun_RequiresBucket(t *testing.T) {
	_, err := New(mocks.NewMockObjectStore(), testutil.NewMemoryLedger(t)).Run(context.Background(), Options{})
	assert.Error(t, err)
}

type failingLedger struct{ err error }

func (f failingLedger) UpsertManyIfAbsent(context.Context, []ledger.Record) (int, error) {
	return 0, f.err
}

func TestRun_LedgerFailureIsFatal(t *testing.T) {
	store := mocks.NewMockObjectStore()
	testutil.SeedBucket(store, "src", 3)

	cause := &ledger.IOError{Op: "upsert", Err: errors.New("disk full")}

	_, err := New(store, failingLedger{err: cause}).Run(context.Background(), Options{Bucket: "src"})

	var ioErr *ledger.IOError
	require.ErrorAs(t, err, &ioErr)

	var pageErr *PageError
	assert.False(t, errors.As(err, &pageErr))
}

type stuckStore struct {
	*mocks.MockObjectStore
}

func (s stuckStore) List(ctx context.Context, bucket string, opts backend.ListOptions) (*backend.ListPage, error) {
	page, err := s.MockObjectStore.List(ctx, bucket, opts)
	if err != nil {
		return nil, err
	}

	page.NextContinuationToken = "same"

	return page, nil
}

func TestRun_RepeatedCursor(t *testing.T) {
	inner := mocks.NewMockObjectStore()
	testutil.SeedBucket(inner, "src", 1)

	_, err := New(stuckStore{inner}, testutil.NewMemoryLedger(t)).Run(context.Background(), Options{Bucket: "src"})

	var pageErr *PageError
	require.ErrorAs(t, err, &pageErr)
	assert.Equal(t, "same", pageErr.Cursor)
}
