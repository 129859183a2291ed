package catalog

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/piwi3910/bucketshift/internal/compression"
	"github.com/piwi3910/bucketshift/internal/ledger"
)

// OutputFormat specifies the inventory output format.
type OutputFormat string

// Supported inventory formats.
const (
	FormatCSV     OutputFormat = "csv"
	FormatJSON    OutputFormat = "jsonl"
	FormatParquet OutputFormat = "parquet"
)

// DefaultParquetWriterConcurrency is the number of parallel parquet encoders.
const DefaultParquetWriterConcurrency = 4

// csvFields is the inventory column order.
var csvFields = []string{"key", "size", "content_tag", "last_modified", "copied"}

// RecordSource iterates ledger records.
type RecordSource interface {
	Scan(ctx context.Context, fn func(ledger.Record) error) error
}

// ExportOptions configures Export.
type ExportOptions struct {
	Format OutputFormat
	// Compression wraps CSV and JSON output. Parquet ignores it.
	Compression compression.Algorithm
	// PendingOnly skips records that were already copied.
	PendingOnly bool
}

// ParseOutputFormat validates an inventory format name.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON, "json":
		return FormatJSON, nil
	case FormatParquet:
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unknown inventory format %q (allowed: csv, jsonl, parquet)", s)
	}
}

// Extension returns the conventional file extension for the options.
func (o ExportOptions) Extension() string {
	if o.Format == FormatParquet {
		return string(o.Format)
	}

	return string(o.Format) + o.Compression.Extension()
}

// inventoryRecord is the JSON representation of a ledger record.
type inventoryRecord struct {
	Key          string     `json:"key"`
	Size         *int64     `json:"size,omitempty"`
	ContentTag   *string    `json:"content_tag,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	Copied       bool       `json:"copied"`
}

// parquetRecord is the Parquet representation of a ledger record. Unknown
// fields are written as nulls.
type parquetRecord struct {
	Key          string  `parquet:"name=key, type=BYTE_ARRAY, convertedtype=UTF8"`
	Size         *int64  `parquet:"name=size, type=INT64, repetitiontype=OPTIONAL"`
	ContentTag   *string `parquet:"name=content_tag, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	LastModified *int64  `parquet:"name=last_modified, type=INT64, convertedtype=TIMESTAMP_MILLIS, repetitiontype=OPTIONAL"`
	Copied       bool    `parquet:"name=copied, type=BOOLEAN"`
}

// Export writes every ledger record to w and returns how many were written.
// Parquet output is always Snappy compressed and ignores Compression.
func Export(ctx context.Context, src RecordSource, w io.Writer, opts ExportOptions) (int64, error) {
	if opts.Format == "" {
		opts.Format = FormatCSV
	}

	if opts.Format == FormatParquet {
		return writeParquet(ctx, src, w, opts.PendingOnly)
	}

	cw, err := compression.NewWriter(w, opts.Compression, compression.LevelDefault)
	if err != nil {
		return 0, err
	}

	var n int64

	switch opts.Format {
	case FormatCSV:
		n, err = writeCSV(ctx, src, cw, opts.PendingOnly)
	case FormatJSON:
		n, err = writeJSON(ctx, src, cw, opts.PendingOnly)
	default:
		err = fmt.Errorf("unknown inventory format %q", opts.Format)
	}

	if closeErr := cw.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to finalize %s stream: %w", opts.Compression, closeErr)
	}

	return n, err
}

// writeCSV writes records in CSV format with a header row.
func writeCSV(ctx context.Context, src RecordSource, w io.Writer, pendingOnly bool) (int64, error) {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvFields); err != nil {
		return 0, err
	}

	var n int64

	err := src.Scan(ctx, func(rec ledger.Record) error {
		if pendingOnly && rec.Copied {
			return nil
		}

		n++

		return cw.Write(recordToRow(rec))
	})
	if err != nil {
		return n, err
	}

	cw.Flush()

	return n, cw.Error()
}

func recordToRow(rec ledger.Record) []string {
	row := []string{rec.Key, "", "", "", strconv.FormatBool(rec.Copied)}

	if rec.Size != nil {
		row[1] = strconv.FormatInt(*rec.Size, 10)
	}

	if rec.ContentTag != nil {
		row[2] = *rec.ContentTag
	}

	if rec.LastModified != nil {
		row[3] = rec.LastModified.UTC().Format(time.RFC3339Nano)
	}

	return row
}

// writeJSON writes one JSON object per line.
func writeJSON(ctx context.Context, src RecordSource, w io.Writer, pendingOnly bool) (int64, error) {
	encoder := json.NewEncoder(w)

	var n int64

	err := src.Scan(ctx, func(rec ledger.Record) error {
		if pendingOnly && rec.Copied {
			return nil
		}

		n++

		return encoder.Encode(inventoryRecord{
			Key:          rec.Key,
			Size:         rec.Size,
			ContentTag:   rec.ContentTag,
			LastModified: rec.LastModified,
			Copied:       rec.Copied,
		})
	})

	return n, err
}

// writeParquet writes records to a Snappy compressed Parquet file.
func writeParquet(ctx context.Context, src RecordSource, w io.Writer, pendingOnly bool) (int64, error) {
	pw, err := writer.NewParquetWriterFromWriter(w, new(parquetRecord), DefaultParquetWriterConcurrency)
	if err != nil {
		return 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	var n int64

	err = src.Scan(ctx, func(rec ledger.Record) error {
		if pendingOnly && rec.Copied {
			return nil
		}

		n++

		if err := pw.Write(toParquetRecord(rec)); err != nil {
			return fmt.Errorf("failed to write parquet record: %w", err)
		}

		return nil
	})
	if err != nil {
		return n, err
	}

	if err := pw.WriteStop(); err != nil {
		return n, fmt.Errorf("failed to finalize parquet file: %w", err)
	}

	return n, nil
}

func toParquetRecord(rec ledger.Record) parquetRecord {
	pr := parquetRecord{
		Key:        rec.Key,
		Size:       rec.Size,
		ContentTag: rec.ContentTag,
		Copied:     rec.Copied,
	}

	if rec.LastModified != nil {
		millis := rec.LastModified.UnixMilli()
		pr.LastModified = &millis
	}

	return pr
}
