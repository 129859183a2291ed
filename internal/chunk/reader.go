package chunk

import (
	"errors"
	"fmt"
	"io"
)

// ErrSizeMismatch is matched by every *TransformError.
var ErrSizeMismatch = errors.New("chunk: stream length does not match declared size")

// TransformError reports a stream that was shorter or longer than declared.
type TransformError struct {
	Expected int64
	Actual   int64
	// Truncated is true when the source ended before Expected bytes.
	Truncated bool
}

// Error implements the error interface.
func (e *TransformError) Error() string {
	if e.Truncated {
		return fmt.Sprintf("chunk: truncated stream: got %d of %d bytes", e.Actual, e.Expected)
	}

	return fmt.Sprintf("chunk: stream exceeds declared size: got at least %d of %d bytes", e.Actual, e.Expected)
}

// Is makes errors.Is(err, ErrSizeMismatch) hold for any TransformError.
func (e *TransformError) Is(target error) bool {
	return target == ErrSizeMismatch
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithExpectedSize makes the Reader fail with a *TransformError when the
// source does not produce exactly n bytes. Negative n disables the check.
func WithExpectedSize(n int64) ReaderOption {
	return func(r *Reader) {
		r.expected = n
	}
}

// withFloor overrides MinSize. Used by tests that need tiny chunks.
func withFloor(floor int) ReaderOption {
	return func(r *Reader) {
		r.floor = floor
	}
}

// Reader is a pull-based Normalizer. It reads from the source only when its
// own consumer asks for more data, so a slow consumer holds back the source
// and at most one chunk plus one source read is ever buffered.
type Reader struct {
	src     io.Reader
	norm    *Normalizer
	emit    EmitFunc
	scratch []byte

	out []byte
	off int

	expected int64
	seen     int64
	floor    int
	target   int

	done bool
	err  error
}

// NewReader wraps src. Bytes read from the returned Reader are exactly the
// bytes of src, produced one normalized chunk at a time.
func NewReader(src io.Reader, target int, opts ...ReaderOption) *Reader {
	r := &Reader{
		src:      src,
		expected: -1,
		floor:    MinSize,
		target:   target,
	}

	for _, opt := range opts {
		opt(r)
	}

	r.norm = newNormalizer(r.target, r.floor)
	r.emit = r.collect
	r.scratch = make([]byte, r.norm.Target())
	r.out = make([]byte, 0, 2*r.norm.Target())

	return r
}

// Chunks returns the number of normalized chunks produced so far.
func (r *Reader) Chunks() int {
	return r.norm.Emitted()
}

// BytesRead returns the number of bytes consumed from the source.
func (r *Reader) BytesRead() int64 {
	return r.seen
}

// Err returns the error that ended the stream, or nil while the stream is
// still open or after a clean end of input.
func (r *Reader) Err() error {
	if errors.Is(r.err, io.EOF) {
		return nil
	}

	return r.err
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for r.off >= len(r.out) {
		if r.done {
			return 0, r.err
		}

		r.out = r.out[:0]
		r.off = 0
		r.fill()
	}

	n := copy(p, r.out[r.off:])
	r.off += n

	return n, nil
}

func (r *Reader) collect(c []byte) error {
	r.out = append(r.out, c...)
	return nil
}

// fill performs one source read and moves whatever the normalizer emits into
// the output buffer.
func (r *Reader) fill() {
	n, err := r.src.Read(r.scratch)
	if n > 0 {
		r.seen += int64(n)
		if r.expected >= 0 && r.seen > r.expected {
			r.finish(&TransformError{Expected: r.expected, Actual: r.seen})
			return
		}

		if perr := r.norm.Push(r.scratch[:n], r.emit); perr != nil {
			r.finish(perr)
			return
		}
	}

	switch {
	case err == nil:
		return
	case errors.Is(err, io.EOF):
		if r.expected >= 0 && r.seen != r.expected {
			r.finish(&TransformError{Expected: r.expected, Actual: r.seen, Truncated: true})
			return
		}

		if ferr := r.norm.Flush(r.emit); ferr != nil {
			r.finish(ferr)
			return
		}

		r.finish(io.EOF)
	default:
		r.finish(err)
	}
}

// finish records the terminal error. On failure nothing buffered is handed
// out afterwards, so a consumer never sees the tail of a broken stream.
func (r *Reader) finish(err error) {
	r.done = true
	r.err = err

	if !errors.Is(err, io.EOF) {
		r.out = r.out[:0]
		r.off = 0
	}
}
