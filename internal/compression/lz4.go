package compression

import (
	"io"

	"github.com/pierrec/lz4/v4"
)

func lz4Level(level Level) lz4.CompressionLevel {
	switch level {
	case LevelFastest:
		return lz4.Fast
	case LevelBest:
		return lz4.Level9
	default:
		return lz4.Level4
	}
}

func newLZ4Writer(w io.Writer, level Level) (io.WriteCloser, error) {
	zw := lz4.NewWriter(w)
	if err := zw.Apply(lz4.CompressionLevelOption(lz4Level(level))); err != nil {
		return nil, err
	}

	return zw, nil
}

func newLZ4Reader(r io.Reader) io.ReadCloser {
	return io.NopCloser(lz4.NewReader(r))
}
