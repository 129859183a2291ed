// Package backend defines the object store contract used on both sides of a
// migration.
//
// Three implementations ship with bucketshift:
//
//   - s3backend: AWS S3 and S3-compatible endpoints through aws-sdk-go-v2
//   - miniobackend: MinIO and other S3-compatible servers through minio-go
//   - fs: plain files under a local root directory
//
// The source side is listed and read, the destination side is written.
//
// Example usage:
//
//	page, err := store.List(ctx, "bucket", backend.ListOptions{Prefix: "logs/"})
//	body, err := store.Get(ctx, "bucket", "logs/app.log")
//	res, err := store.Put(ctx, "other", "logs/app.log", body, size)
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Common backend errors.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrBucketNotFound = errors.New("bucket not found")
)

// ObjectStore is the interface for one side of a migration.
type ObjectStore interface {
	// List returns one page of the bucket listing. An empty
	// NextContinuationToken means the listing is complete.
	List(ctx context.Context, bucket string, opts ListOptions) (*ListPage, error)

	// Get opens a read stream for an object
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// Put writes body to key. size is the declared content length; a
	// negative size means unknown.
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64) (*PutResult, error)
}

// ListOptions selects a page of a bucket listing.
type ListOptions struct {
	Prefix            string
	ContinuationToken string
	// MaxKeys caps the page size. Zero uses the store default.
	MaxKeys int32
}

// ListPage is one page of a bucket listing.
type ListPage struct {
	Objects               []ObjectInfo
	NextContinuationToken string
}

// ObjectInfo describes a listed object. Optional fields are nil when the
// store did not report them.
type ObjectInfo struct {
	Key          string
	Size         *int64
	ETag         *string
	LastModified *time.Time
}

// PutResult contains the result of a put operation.
type PutResult struct {
	// ETag reported by the destination
	ETag string

	// Size is the number of bytes the destination accepted, when known
	Size int64
}

// ChecksumMode controls request checksum calculation and response checksum
// validation.
type ChecksumMode int

// Checksum modes.
const (
	// ChecksumWhenSupported checksums every operation that supports it.
	ChecksumWhenSupported ChecksumMode = iota
	// ChecksumWhenRequired checksums only operations that require it.
	ChecksumWhenRequired
)

// String implements fmt.Stringer.
func (m ChecksumMode) String() string {
	if m == ChecksumWhenRequired {
		return "when-required"
	}

	return "when-supported"
}

// ParseChecksumMode accepts when-supported/when-required in kebab, snake or
// upper case. Empty means when-supported.
func ParseChecksumMode(s string) (ChecksumMode, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")

	switch norm {
	case "", "when-supported", "supported":
		return ChecksumWhenSupported, nil
	case "when-required", "required":
		return ChecksumWhenRequired, nil
	default:
		return ChecksumWhenSupported, fmt.Errorf("unknown checksum mode %q (allowed: when-supported, when-required)", s)
	}
}
