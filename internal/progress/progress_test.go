package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer

	orig := log.Logger
	log.Logger = zerolog.New(&buf)

	t.Cleanup(func() { log.Logger = orig })

	return &buf
}

func ptr[T any](v T) *T { return &v }

func TestPercent(t *testing.T) {
	tests := []struct {
		name string
		s    Snapshot
		want string
	}{
		{name: "by bytes", s: Snapshot{Total: 4, TotalBytes: ptr(int64(200)), CopiedBytes: 50, Completed: 3}, want: "25%"},
		{name: "by count", s: Snapshot{Total: 4, Completed: 1, Failed: 1}, want: "50%"},
		{name: "fraction", s: Snapshot{Total: 3, Completed: 1}, want: "33.3%"},
		{name: "empty", s: Snapshot{}, want: "100%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Percent(tt.s))
		})
	}
}

func TestRate(t *testing.T) {
	assert.Equal(t, "0 B/s", Rate(Snapshot{}))
	assert.Equal(t, "1.0 KiB/s", Rate(Snapshot{CopiedBytes: 2048, Elapsed: 2 * time.Second}))
}

func TestLogSinkThrottles(t *testing.T) {
	buf := captureLog(t)

	now := time.Unix(0, 0)
	sink := NewLogSink(time.Minute)
	sink.now = func() time.Time { return now }

	sink.Update(Snapshot{Total: 10, Completed: 1})
	sink.Update(Snapshot{Total: 10, Completed: 2})

	now = now.Add(2 * time.Minute)
	sink.Update(Snapshot{Total: 10, Completed: 3})

	// The last transfer is always reported.
	sink.Update(Snapshot{Total: 10, Completed: 10})

	assert.Equal(t, 3, strings.Count(buf.String(), "Copy progress"))
}

func TestLogSinkStartAndFinish(t *testing.T) {
	buf := captureLog(t)

	sink := NewLogSink(0)
	sink.Start(5, ptr(int64(3*1024*1024)))
	sink.Finish(Snapshot{Completed: 4, Failed: 1, CopiedBytes: 1024})

	out := buf.String()
	assert.Contains(t, out, `"objects":5`)
	assert.Contains(t, out, "3.0 MiB")
	assert.Contains(t, out, `"completed":4`)
	assert.Contains(t, out, `"failed":1`)
}

func TestNop(t *testing.T) {
	var s Sink = Nop{}

	s.Start(1, nil)
	s.Update(Snapshot{})
	s.Finish(Snapshot{})
}
