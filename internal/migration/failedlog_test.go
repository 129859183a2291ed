package migration

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailedLog_Record(t *testing.T) {
	var buf bytes.Buffer

	fl := NewFailedLog(&buf)

	require.NoError(t, fl.Record("src", "a", &TransferError{Key: "a", Op: OpGet, Err: errors.New("no such key")}))
	require.NoError(t, fl.Record("src", "b", errors.New("boom")))
	require.NoError(t, fl.Close())

	var entries []FailedObject

	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var e FailedObject
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		entries = append(entries, e)
	}

	require.Len(t, entries, 2)

	assert.Equal(t, "a", entries[0].Key)
	assert.Equal(t, OpGet, entries[0].Op)
	assert.Equal(t, "no such key", entries[0].Error)
	assert.False(t, entries[0].Timestamp.IsZero())

	assert.Equal(t, "b", entries[1].Key)
	assert.Equal(t, OpPut, entries[1].Op)
	assert.Equal(t, "boom", entries[1].Error)
}

func TestOpenFailedLog_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed.jsonl")

	for _, key := range []string{"x", "y"} {
		fl, err := OpenFailedLog(path)
		require.NoError(t, err)
		require.NoError(t, fl.Record("src", key, errors.New("fail")))
		require.NoError(t, fl.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte("\n")))
}

func TestOpenFailedLog_BadPath(t *testing.T) {
	_, err := OpenFailedLog(filepath.Join(t.TempDir(), "missing", "failed.jsonl"))
	assert.Error(t, err)
}
