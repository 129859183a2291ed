package chunk

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pieceReader returns its pieces one Read at a time, like a network body.
type pieceReader struct {
	pieces [][]byte
	reads  int
	err    error
}

func (p *pieceReader) Read(b []byte) (int, error) {
	if len(p.pieces) == 0 {
		if p.err != nil {
			return 0, p.err
		}
		return 0, io.EOF
	}

	p.reads++
	n := copy(b, p.pieces[0])
	p.pieces[0] = p.pieces[0][n:]
	if len(p.pieces[0]) == 0 {
		p.pieces = p.pieces[1:]
	}

	return n, nil
}

func TestReader_PreservesBytes(t *testing.T) {
	input := pattern(100_000, 3)
	src := &pieceReader{pieces: [][]byte{input[:7], input[7:50_000], input[50_000:50_001], input[50_001:]}}

	r := NewReader(src, 10_000, withFloor(0), WithExpectedSize(int64(len(input))))
	got, err := io.ReadAll(r)
	require.NoError(t, err)

	assert.Equal(t, input, got)
	assert.Equal(t, int64(len(input)), r.BytesRead())
	// ten full chunks plus the empty final one
	assert.Equal(t, 11, r.Chunks())
}

func TestReader_SmallConsumerBuffer(t *testing.T) {
	input := pattern(1234, 9)
	r := NewReader(bytes.NewReader(input), 100, withFloor(0))

	got, err := io.ReadAll(iotest.OneByteReader(r))
	require.NoError(t, err)
	assert.Equal(t, input, got)
}

func TestReader_PullsOnlyOnDemand(t *testing.T) {
	src := &pieceReader{pieces: [][]byte{pattern(10, 0), pattern(10, 1), pattern(10, 2), pattern(10, 3)}}
	r := NewReader(src, 10, withFloor(0))

	buf := make([]byte, 5)
	_, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, src.reads, "reader must not run ahead of its consumer")

	_, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, src.reads)

	_, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, src.reads)
}

func TestReader_Truncated(t *testing.T) {
	r := NewReader(bytes.NewReader(pattern(90, 0)), 32, withFloor(0), WithExpectedSize(100))

	_, err := io.ReadAll(r)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrSizeMismatch)

	var te *TransformError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Truncated)
	assert.Equal(t, int64(100), te.Expected)
	assert.Equal(t, int64(90), te.Actual)
}

func TestReader_LongerThanDeclared(t *testing.T) {
	r := NewReader(bytes.NewReader(pattern(120, 0)), 32, withFloor(0), WithExpectedSize(100))

	_, err := io.ReadAll(r)

	var te *TransformError
	require.ErrorAs(t, err, &te)
	assert.False(t, te.Truncated)
}

func TestReader_SourceError(t *testing.T) {
	boom := errors.New("connection reset")
	src := &pieceReader{pieces: [][]byte{pattern(5, 0)}, err: boom}

	r := NewReader(src, 10, withFloor(0))
	got, err := io.ReadAll(r)

	require.ErrorIs(t, err, boom)
	assert.Empty(t, got, "partial backlog must not be emitted after a source failure")
	assert.Same(t, boom, r.Err())
}

func TestReader_EmptySource(t *testing.T) {
	r := NewReader(bytes.NewReader(nil), RecommendedSize, WithExpectedSize(0))

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, r.Err())
}

func TestReader_EmitErrorDuringPush(t *testing.T) {
	boom := errors.New("sink full")
	input := pattern(25, 1)

	r := NewReader(bytes.NewReader(input), 10, withFloor(0))

	calls := 0
	r.emit = func(c []byte) error {
		calls++
		if calls == 2 {
			return boom
		}

		return r.collect(c)
	}

	got, err := io.ReadAll(r)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, input[:10], got)
	assert.Same(t, boom, r.Err())
}

func TestReader_EmitErrorDuringFlush(t *testing.T) {
	boom := errors.New("sink closed")

	r := NewReader(bytes.NewReader(nil), 10, withFloor(0))
	r.emit = func([]byte) error { return boom }

	got, err := io.ReadAll(r)
	require.ErrorIs(t, err, boom)
	assert.Empty(t, got)
	assert.Same(t, boom, r.Err())
}
