package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()

	l, err := Open("", Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	return l
}

func ptr[T any](v T) *T {
	return &v
}

func keysOf(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Key
	}

	return out
}

func TestUpsertIfAbsent_Idempotent(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	mod := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ok, err := l.UpsertIfAbsent(ctx, Record{Key: "a.txt", Size: ptr[int64](10), ContentTag: ptr("etag-1"), LastModified: &mod})
	require.NoError(t, err)
	assert.True(t, ok)

	// Re-cataloging with different descriptive fields must not overwrite them.
	ok, err = l.UpsertIfAbsent(ctx, Record{Key: "a.txt", Size: ptr[int64](99), ContentTag: ptr("etag-2")})
	require.NoError(t, err)
	assert.False(t, ok)

	rec, err := l.Get(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(10), *rec.Size)
	assert.Equal(t, "etag-1", *rec.ContentTag)
	assert.True(t, mod.Equal(*rec.LastModified))
	assert.False(t, rec.Copied)

	count, err := l.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUpsertManyIfAbsent_DuplicatesWithinBatch(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	recs := make([]Record, 0, 600)
	for i := range 600 {
		recs = append(recs, Record{Key: fmt.Sprintf("dir-%d/obj-%04d", i%7, i), Size: ptr(int64(i))})
	}
	recs = append(recs, recs[0], recs[300])

	n, err := l.UpsertManyIfAbsent(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 600, n)

	n, err = l.UpsertManyIfAbsent(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	count, err := l.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(600), count)
}

func TestGet_NotFound(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSumPendingBytes(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	sum, err := l.SumPendingBytes(ctx)
	require.NoError(t, err)
	assert.Nil(t, sum, "empty ledger has no known size")

	_, err = l.UpsertIfAbsent(ctx, Record{Key: "unsized"})
	require.NoError(t, err)

	sum, err = l.SumPendingBytes(ctx)
	require.NoError(t, err)
	assert.Nil(t, sum)

	_, err = l.UpsertManyIfAbsent(ctx, []Record{
		{Key: "a", Size: ptr[int64](100)},
		{Key: "b", Size: ptr[int64](23)},
		{Key: "c", Size: ptr[int64](0)},
	})
	require.NoError(t, err)

	sum, err = l.SumPendingBytes(ctx)
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, int64(123), *sum)

	require.NoError(t, l.MarkCopied(ctx, "a"))

	sum, err = l.SumPendingBytes(ctx)
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, int64(23), *sum)
}

func TestClaimBatch_Orders(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	t1 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t0 := time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := l.UpsertManyIfAbsent(ctx, []Record{
		{Key: "m", Size: ptr[int64](50), ContentTag: ptr("bb"), LastModified: &t2},
		{Key: "c", Size: ptr[int64](5), ContentTag: ptr("b"), LastModified: &t1},
		{Key: "x"},
		{Key: "a", Size: ptr[int64](500), ContentTag: ptr("a"), LastModified: &t0},
	})
	require.NoError(t, err)

	tests := []struct {
		name  string
		order Order
		want  []string
	}{
		{name: "insertion", order: Order{}, want: []string{"m", "c", "x", "a"}},
		{name: "insertion desc", order: Order{Direction: Descending}, want: []string{"a", "x", "c", "m"}},
		{name: "key asc", order: Order{Field: SortKey}, want: []string{"a", "c", "m", "x"}},
		{name: "key desc", order: Order{Field: SortKey, Direction: Descending}, want: []string{"x", "m", "c", "a"}},
		{name: "size asc unknown first", order: Order{Field: SortSize}, want: []string{"x", "c", "m", "a"}},
		{name: "size desc unknown last", order: Order{Field: SortSize, Direction: Descending}, want: []string{"a", "m", "c", "x"}},
		// "b" sorts before "bb", so c precedes m.
		{name: "content tag", order: Order{Field: SortContentTag}, want: []string{"x", "a", "c", "m"}},
		{name: "last modified", order: Order{Field: SortLastModified}, want: []string{"x", "a", "c", "m"}},
		{name: "last modified desc", order: Order{Field: SortLastModified, Direction: Descending}, want: []string{"m", "c", "a", "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := l.ClaimBatch(ctx, 10, tt.order)
			require.NoError(t, err)
			assert.Equal(t, tt.want, keysOf(recs))
		})
	}
}

func TestClaimBatch_LimitAndCopiedExcluded(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	for _, k := range []string{"k1", "k2", "k3", "k4", "k5"} {
		_, err := l.UpsertIfAbsent(ctx, Record{Key: k, Size: ptr[int64](1)})
		require.NoError(t, err)
	}

	recs, err := l.ClaimBatch(ctx, 2, Order{})
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, keysOf(recs))

	// Claiming does not reserve anything.
	recs, err = l.ClaimBatch(ctx, 2, Order{})
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, keysOf(recs))

	require.NoError(t, l.MarkCopied(ctx, "k1"))
	require.NoError(t, l.MarkCopied(ctx, "k3"))

	recs, err = l.ClaimBatch(ctx, 10, Order{Field: SortSize})
	require.NoError(t, err)
	assert.Equal(t, []string{"k2", "k4", "k5"}, keysOf(recs))

	recs, err = l.ClaimBatch(ctx, 0, Order{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestMarkCopied_Monotone(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.UpsertIfAbsent(ctx, Record{Key: "obj", Size: ptr[int64](7)})
	require.NoError(t, err)

	require.NoError(t, l.MarkCopied(ctx, "obj"))
	require.NoError(t, l.MarkCopied(ctx, "obj"))
	require.NoError(t, l.MarkCopied(ctx, "never-cataloged"))

	// Re-cataloging a copied key keeps it copied.
	ok, err := l.UpsertIfAbsent(ctx, Record{Key: "obj", Size: ptr[int64](7)})
	require.NoError(t, err)
	assert.False(t, ok)

	rec, err := l.Get(ctx, "obj")
	require.NoError(t, err)
	assert.True(t, rec.Copied)
	assert.Equal(t, int64(7), *rec.Size)

	count, err := l.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLedger_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	l, err := Open(dir, Options{})
	require.NoError(t, err)

	_, err = l.UpsertManyIfAbsent(ctx, []Record{
		{Key: "first", Size: ptr[int64](1)},
		{Key: "second", Size: ptr[int64](2)},
	})
	require.NoError(t, err)
	require.NoError(t, l.MarkCopied(ctx, "first"))
	require.NoError(t, l.Close())

	l, err = Open(dir, Options{})
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	_, err = l.UpsertIfAbsent(ctx, Record{Key: "third", Size: ptr[int64](3)})
	require.NoError(t, err)

	recs, err := l.ClaimBatch(ctx, 10, Order{})
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "third"}, keysOf(recs), "insertion order continues across restarts")

	rec, err := l.Get(ctx, "first")
	require.NoError(t, err)
	assert.True(t, rec.Copied)
	assert.Equal(t, dir, l.Path())
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.UpsertManyIfAbsent(ctx, []Record{
		{Key: "a", Size: ptr[int64](10)},
		{Key: "b", Size: ptr[int64](20)},
		{Key: "c"},
	})
	require.NoError(t, err)
	require.NoError(t, l.MarkCopied(ctx, "a"))

	s, err := l.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.Total)
	assert.Equal(t, int64(2), s.Pending)
	assert.Equal(t, int64(1), s.Copied)
	assert.Equal(t, int64(10), s.CopiedBytes)
	require.NotNil(t, s.PendingBytes)
	assert.Equal(t, int64(20), *s.PendingBytes)
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.UpsertManyIfAbsent(ctx, []Record{{Key: "b"}, {Key: "a"}, {Key: "c"}})
	require.NoError(t, err)

	var seen []string
	require.NoError(t, l.Scan(ctx, func(rec Record) error {
		seen = append(seen, rec.Key)
		return nil
	}))
	assert.Equal(t, []string{"a", "b", "c"}, seen)

	stop := errors.New("stop")
	seen = nil
	err = l.Scan(ctx, func(rec Record) error {
		seen = append(seen, rec.Key)
		return stop
	})
	assert.Same(t, stop, err)
	assert.Len(t, seen, 1)
}

func TestCancelledContext(t *testing.T) {
	l := newTestLedger(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.ClaimBatch(ctx, 1, Order{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIOError(t *testing.T) {
	cause := errors.New("disk gone")
	err := ioErr("claim batch", cause)

	var ioe *IOError
	require.ErrorAs(t, err, &ioe)
	assert.Equal(t, "claim batch", ioe.Op)
	assert.ErrorIs(t, err, cause)
	assert.Same(t, err, ioErr("again", err), "already wrapped errors are not wrapped twice")
	assert.NoError(t, ioErr("noop", nil))
}

func TestParseSortField(t *testing.T) {
	tests := []struct {
		in      string
		want    SortField
		wantErr bool
	}{
		{in: "", want: SortInsertion},
		{in: "key", want: SortKey},
		{in: "SIZE", want: SortSize},
		{in: "etag", want: SortContentTag},
		{in: "content-tag", want: SortContentTag},
		{in: "lastModified", want: SortLastModified},
		{in: "size; DROP TABLE objects", wantErr: true},
		{in: "copied", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSortField(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("DESC")
	require.NoError(t, err)
	assert.Equal(t, Descending, d)

	d, err = ParseDirection("")
	require.NoError(t, err)
	assert.Equal(t, Ascending, d)

	_, err = ParseDirection("sideways")
	assert.Error(t, err)

	assert.Equal(t, "size desc", Order{Field: SortSize, Direction: Descending}.String())
}
