// Package compression provides streaming codecs for inventory exports.
//
// Supported algorithms:
//
//   - Zstandard (zstd): best ratio with fast decompression
//   - LZ4: fastest, moderate ratio
//   - Gzip: widest compatibility
//
// Example usage:
//
//	zw, err := compression.NewWriter(f, compression.AlgorithmZstd, compression.LevelDefault)
//	...
//	err = zw.Close()
package compression

import (
	"fmt"
	"io"
	"strings"
)

// Algorithm represents a compression algorithm
type Algorithm string

const (
	// AlgorithmNone disables compression
	AlgorithmNone Algorithm = "none"
	// AlgorithmZstd uses Zstandard compression
	AlgorithmZstd Algorithm = "zstd"
	// AlgorithmLZ4 uses LZ4 compression
	AlgorithmLZ4 Algorithm = "lz4"
	// AlgorithmGzip uses Gzip compression
	AlgorithmGzip Algorithm = "gzip"
)

// Level represents compression level
type Level int

const (
	// LevelFastest prioritizes speed over compression ratio
	LevelFastest Level = 1
	// LevelDefault balances speed and compression
	LevelDefault Level = 3
	// LevelBest prioritizes compression ratio over speed
	LevelBest Level = 9
)

// ParseAlgorithm validates an algorithm name. Empty means none.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case "", AlgorithmNone:
		return AlgorithmNone, nil
	case AlgorithmGzip, AlgorithmZstd, AlgorithmLZ4:
		return a, nil
	case "gz":
		return AlgorithmGzip, nil
	case "zst":
		return AlgorithmZstd, nil
	default:
		return "", fmt.Errorf("unknown compression %q (allowed: none, gzip, zstd, lz4)", s)
	}
}

// Extension returns the file suffix for a, including the leading dot, or ""
// for AlgorithmNone.
func (a Algorithm) Extension() string {
	switch a {
	case AlgorithmGzip:
		return ".gz"
	case AlgorithmZstd:
		return ".zst"
	case AlgorithmLZ4:
		return ".lz4"
	default:
		return ""
	}
}

// NewWriter returns a writer compressing into w. Close flushes the codec
// but never closes w.
func NewWriter(w io.Writer, a Algorithm, level Level) (io.WriteCloser, error) {
	switch a {
	case "", AlgorithmNone:
		return nopWriteCloser{w}, nil
	case AlgorithmGzip:
		return newGzipWriter(w, level)
	case AlgorithmZstd:
		return newZstdWriter(w, level)
	case AlgorithmLZ4:
		return newLZ4Writer(w, level)
	default:
		return nil, fmt.Errorf("unknown compression algorithm: %s", a)
	}
}

// NewReader returns a reader decompressing r.
func NewReader(r io.Reader, a Algorithm) (io.ReadCloser, error) {
	switch a {
	case "", AlgorithmNone:
		return io.NopCloser(r), nil
	case AlgorithmGzip:
		return newGzipReader(r)
	case AlgorithmZstd:
		return newZstdReader(r)
	case AlgorithmLZ4:
		return newLZ4Reader(r), nil
	default:
		return nil, fmt.Errorf("unknown compression algorithm: %s", a)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
