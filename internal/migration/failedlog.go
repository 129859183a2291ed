package migration

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// FailedObject is one line of the failed-object log.
type FailedObject struct {
	Timestamp time.Time `json:"timestamp"`
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	Op        string    `json:"op"`
	Error     string    `json:"error"`
}

// FailedLog appends failed transfers as JSON lines. Failed keys stay pending
// in the ledger; the log is for operators only.
type FailedLog struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// OpenFailedLog opens path for appending, creating it if needed.
func OpenFailedLog(path string) (*FailedLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open failed-object log: %w", err)
	}

	return &FailedLog{w: f, c: f}, nil
}

// NewFailedLog writes to w. Close does not close w.
func NewFailedLog(w io.Writer) *FailedLog {
	return &FailedLog{w: w}
}

// Record appends one entry for err.
func (f *FailedLog) Record(bucket, key string, err error) error {
	entry := FailedObject{
		Timestamp: time.Now().UTC(),
		Bucket:    bucket,
		Key:       key,
		Op:        OpPut,
		Error:     err.Error(),
	}

	var te *TransferError
	if errors.As(err, &te) {
		entry.Op = te.Op
		entry.Error = te.Err.Error()
	}

	data, mErr := json.Marshal(entry)
	if mErr != nil {
		return mErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	_, wErr := f.w.Write(append(data, '\n'))

	return wErr
}

// Close closes the underlying file, if FailedLog opened it.
func (f *FailedLog) Close() error {
	if f.c == nil {
		return nil
	}

	return f.c.Close()
}
