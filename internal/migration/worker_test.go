package migration

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/bucketshift/internal/chunk"
	"github.com/piwi3910/bucketshift/internal/ledger"
	"github.com/piwi3910/bucketshift/internal/storage/backend"
	"github.com/piwi3910/bucketshift/internal/testutil"
	"github.com/piwi3910/bucketshift/internal/testutil/mocks"
)

func ptr[T any](v T) *T { return &v }

func newWorker(src, dst *mocks.MockObjectStore) *Worker {
	return &Worker{
		Source:       src,
		Destination:  dst,
		SourceBucket: testutil.SourceBucket,
		DestBucket:   testutil.DestBucket,
		ChunkSize:    chunk.MinSize,
	}
}

func TestTransfer_CopiesBytes(t *testing.T) {
	src := mocks.NewMockObjectStore()
	dst := mocks.NewMockObjectStore()

	data := testutil.Payload(3*chunk.MinSize + 100)
	src.AddObject("src", "dir/obj", data)

	res, err := newWorker(src, dst).Transfer(context.Background(), ledger.Record{
		Key:  "dir/obj",
		Size: ptr(int64(len(data))),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(len(data)), res.Bytes)
	assert.Equal(t, 4, res.Chunks)

	got, ok := dst.GetStoredObject("dst", "dir/obj")
	require.True(t, ok)
	assert.True(t, bytes.Equal(data, got))
}

func TestTransfer_UnknownSize(t *testing.T) {
	src := mocks.NewMockObjectStore()
	dst := mocks.NewMockObjectStore()
	src.AddObject("src", "k", []byte("hello"))

	res, err := newWorker(src, dst).Transfer(context.Background(), ledger.Record{Key: "k"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Bytes)

	got, ok := dst.GetStoredObject("dst", "k")
	require.True(t, ok)
	assert.Equal(t, "hello", string(got))
}

func TestTransfer_EmptyObject(t *testing.T) {
	src := mocks.NewMockObjectStore()
	dst := mocks.NewMockObjectStore()
	src.AddObject("src", "empty", nil)

	res, err := newWorker(src, dst).Transfer(context.Background(), ledger.Record{Key: "empty", Size: ptr(int64(0))})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Bytes)

	got, ok := dst.GetStoredObject("dst", "empty")
	require.True(t, ok)
	assert.Empty(t, got)
}

func TestTransfer_Failures(t *testing.T) {
	putErr := errors.New("slow down")

	tests := []struct {
		name    string
		setup   func(src, dst *mocks.MockObjectStore)
		rec     ledger.Record
		wantOp  string
		wantErr error
	}{
		{
			name:    "missing source object",
			setup:   func(_, _ *mocks.MockObjectStore) {},
			rec:     ledger.Record{Key: "gone", Size: ptr(int64(1))},
			wantOp:  OpGet,
			wantErr: backend.ErrObjectNotFound,
		},
		{
			name: "destination rejects",
			setup: func(src, dst *mocks.MockObjectStore) {
				src.AddObject("src", "k", []byte("abc"))
				dst.SetPutErrorFor("k", putErr)
			},
			rec:     ledger.Record{Key: "k", Size: ptr(int64(3))},
			wantOp:  OpPut,
			wantErr: putErr,
		},
		{
			name: "source shrank since cataloging",
			setup: func(src, _ *mocks.MockObjectStore) {
				src.AddObject("src", "k", []byte("abc"))
			},
			rec:     ledger.Record{Key: "k", Size: ptr(int64(10))},
			wantOp:  OpTransform,
			wantErr: chunk.ErrSizeMismatch,
		},
		{
			name: "source grew since cataloging",
			setup: func(src, _ *mocks.MockObjectStore) {
				src.AddObject("src", "k", []byte("abcdefgh"))
			},
			rec:     ledger.Record{Key: "k", Size: ptr(int64(3))},
			wantOp:  OpTransform,
			wantErr: chunk.ErrSizeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := mocks.NewMockObjectStore()
			dst := mocks.NewMockObjectStore()
			tt.setup(src, dst)

			_, err := newWorker(src, dst).Transfer(context.Background(), tt.rec)
			require.Error(t, err)

			var te *TransferError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.rec.Key, te.Key)
			assert.Equal(t, tt.wantOp, te.Op)
			assert.ErrorIs(t, err, tt.wantErr)

			_, stored := dst.GetStoredObject("dst", tt.rec.Key)
			assert.False(t, stored)
		})
	}
}

// brokenBody fails after handing out a few bytes.
type brokenBody struct {
	sent bool
	err  error
}

func (b *brokenBody) Read(p []byte) (int, error) {
	if !b.sent {
		b.sent = true
		return copy(p, "abc"), nil
	}

	return 0, b.err
}

func (b *brokenBody) Close() error { return nil }

type brokenSource struct {
	*mocks.MockObjectStore
	err error
}

func (s brokenSource) Get(context.Context, string, string) (io.ReadCloser, error) {
	return &brokenBody{err: s.err}, nil
}

func TestTransfer_SourceStreamBreaks(t *testing.T) {
	reset := errors.New("connection reset by peer")
	dst := mocks.NewMockObjectStore()

	w := &Worker{
		Source:       brokenSource{MockObjectStore: mocks.NewMockObjectStore(), err: reset},
		Destination:  dst,
		SourceBucket: "src",
		DestBucket:   "dst",
	}

	_, err := w.Transfer(context.Background(), ledger.Record{Key: "k", Size: ptr(int64(100))})

	var te *TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, OpGet, te.Op)
	assert.ErrorIs(t, err, reset)
}

func TestTransfer_WithLimiter(t *testing.T) {
	src := mocks.NewMockObjectStore()
	dst := mocks.NewMockObjectStore()
	src.AddObject("src", "k", testutil.Payload(4096))

	clk := &fakeClock{now: time.Unix(0, 0)}
	lim := NewBandwidthLimiter(1024)
	clk.install(lim)

	w := newWorker(src, dst)
	w.Limiter = lim

	_, err := w.Transfer(context.Background(), ledger.Record{Key: "k", Size: ptr(int64(4096))})
	require.NoError(t, err)

	// One second of burst, then three seconds of debt at 1 KiB/s.
	assert.Equal(t, 3*time.Second, clk.slept)
}
