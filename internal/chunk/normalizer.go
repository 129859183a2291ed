// Package chunk re-buckets a byte stream made of arbitrarily sized pieces into
// fixed-size chunks.
//
// Source object bodies arrive in whatever sizes the network layer hands out.
// Destination uploads behave better with uniform chunks, so the copy path runs
// every body through a Normalizer before it reaches the destination store:
//
//	r := chunk.NewReader(body, chunk.RecommendedSize, chunk.WithExpectedSize(size))
//	_, err := dst.Put(ctx, bucket, key, r, size)
//
// The concatenation of the emitted chunks is always byte-for-byte identical to
// the concatenation of the input.
package chunk

// Chunk sizing defaults.
const (
	// RecommendedSize amortizes per-chunk overhead on S3 streaming uploads.
	RecommendedSize = 2 * 1024 * 1024
	// MinSize is the floor applied to a caller supplied target size.
	// The final chunk of a stream may still be smaller.
	MinSize = 8 * 1024
)

// EmitFunc receives one normalized chunk. The slice is only valid until the
// function returns.
type EmitFunc func(chunk []byte) error

// Normalizer accumulates input into a backlog and emits it in chunks of
// exactly Target bytes. It is not safe for concurrent use.
type Normalizer struct {
	target  int
	backlog []byte
	emitted int
}

// NewNormalizer returns a Normalizer emitting chunks of target bytes.
// Targets below MinSize are raised to MinSize.
func NewNormalizer(target int) *Normalizer {
	return newNormalizer(target, MinSize)
}

func newNormalizer(target, floor int) *Normalizer {
	target = max(target, floor, 1)

	return &Normalizer{
		target:  target,
		backlog: make([]byte, 0, target),
	}
}

// Target returns the effective chunk size.
func (n *Normalizer) Target() int {
	return n.target
}

// Buffered returns the number of bytes waiting for a full chunk.
func (n *Normalizer) Buffered() int {
	return len(n.backlog)
}

// Emitted returns the number of chunks emitted so far, including the final one.
func (n *Normalizer) Emitted() int {
	return n.emitted
}

// Push appends p to the backlog and emits every complete chunk that is now
// available. An empty p is a no-op. If emit fails, the failing chunk and
// everything after it stay in the backlog.
func (n *Normalizer) Push(p []byte, emit EmitFunc) error {
	if len(p) == 0 {
		return nil
	}

	n.backlog = append(n.backlog, p...)

	off := 0
	for len(n.backlog)-off >= n.target {
		if err := emit(n.backlog[off : off+n.target : off+n.target]); err != nil {
			n.compact(off)
			return err
		}

		n.emitted++
		off += n.target
	}

	n.compact(off)

	return nil
}

// Flush emits whatever remains in the backlog as the final chunk. The final
// chunk is shorter than Target and may be empty.
func (n *Normalizer) Flush(emit EmitFunc) error {
	if err := emit(n.backlog); err != nil {
		return err
	}

	n.emitted++
	n.backlog = n.backlog[:0]

	return nil
}

// compact moves the unconsumed tail of the backlog to the front so the
// buffer never grows past one chunk plus one input piece.
func (n *Normalizer) compact(off int) {
	if off == 0 {
		return
	}

	rest := copy(n.backlog, n.backlog[off:])
	n.backlog = n.backlog[:rest]
}
