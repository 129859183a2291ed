package compression

import (
	"io"

	"github.com/klauspost/compress/gzip"
)

func gzipLevel(level Level) int {
	switch level {
	case LevelFastest:
		return gzip.BestSpeed
	case LevelBest:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func newGzipWriter(w io.Writer, level Level) (io.WriteCloser, error) {
	zw, err := gzip.NewWriterLevel(w, gzipLevel(level))
	if err != nil {
		return nil, err
	}

	return zw, nil
}

func newGzipReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}

	return zr, nil
}
