// Package miniobackend implements backend.ObjectStore with minio-go, for MinIO
// and other S3-compatible servers.
package miniobackend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/piwi3910/bucketshift/internal/httputil"
	"github.com/piwi3910/bucketshift/internal/storage/backend"
	"github.com/piwi3910/bucketshift/pkg/s3errors"
)

const defaultMaxKeys = 1000

// Config holds connection settings for one side of a migration.
type Config struct {
	// Endpoint is host:port or a URL. An https scheme enables TLS.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	UsePathStyle    bool
	Checksum        backend.ChecksumMode
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
}

// Backend is a minio-go object store.
type Backend struct {
	client   *minio.Client
	checksum backend.ChecksumMode
}

var _ backend.ObjectStore = (*Backend)(nil)

// New creates a minio client from cfg. Static credentials are used when both
// the key id and the secret are set, the AWS environment otherwise.
func New(cfg Config) (*Backend, error) {
	host, secure, err := parseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	creds := credentials.NewEnvAWS()
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)
	}

	opts := &minio.Options{
		Creds:     creds,
		Secure:    secure,
		Region:    cfg.Region,
		Transport: httputil.NewTransport(&httputil.ClientConfig{SkipTLSVerify: cfg.InsecureSkipVerify}),
	}

	if cfg.UsePathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}

	client, err := minio.New(host, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Backend{client: client, checksum: cfg.Checksum}, nil
}

// parseEndpoint splits an endpoint into the host minio-go expects and whether
// TLS is used. A bare host defaults to TLS.
func parseEndpoint(endpoint string) (string, bool, error) {
	if endpoint == "" {
		return "", false, errors.New("minio driver requires an endpoint")
	}

	if !strings.Contains(endpoint, "://") {
		return endpoint, true, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	switch u.Scheme {
	case "http":
		return u.Host, false, nil
	case "https":
		return u.Host, true, nil
	default:
		return "", false, fmt.Errorf("invalid endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}
}

// List implements backend.ObjectStore. minio-go streams the whole listing, so
// a page is cut after MaxKeys objects and the last key becomes the
// continuation token for the next call.
func (b *Backend) List(ctx context.Context, bucket string, opts backend.ListOptions) (*backend.ListPage, error) {
	maxKeys := int(opts.MaxKeys)
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := b.client.ListObjects(listCtx, bucket, minio.ListObjectsOptions{
		Prefix:     opts.Prefix,
		StartAfter: opts.ContinuationToken,
		MaxKeys:    maxKeys,
		Recursive:  true,
	})

	page := &backend.ListPage{
		Objects: make([]backend.ObjectInfo, 0, maxKeys),
	}

	for obj := range ch {
		if obj.Err != nil {
			cancel()
			drain(ch)

			return nil, wrapErr("list", bucket, "", obj.Err)
		}

		page.Objects = append(page.Objects, toObjectInfo(obj))

		if len(page.Objects) == maxKeys {
			page.NextContinuationToken = obj.Key
			cancel()
			drain(ch)

			break
		}
	}

	return page, nil
}

func drain(ch <-chan minio.ObjectInfo) {
	for range ch {
	}
}

func toObjectInfo(obj minio.ObjectInfo) backend.ObjectInfo {
	info := backend.ObjectInfo{Key: obj.Key}

	size := obj.Size
	info.Size = &size

	if obj.ETag != "" {
		etag := obj.ETag
		info.ETag = &etag
	}

	if !obj.LastModified.IsZero() {
		mod := obj.LastModified
		info.LastModified = &mod
	}

	return info
}

// Get implements backend.ObjectStore. The object is stat'ed first so a
// missing key fails here rather than on the first read.
func (b *Backend) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapErr("get", bucket, key, err)
	}

	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, wrapErr("get", bucket, key, err)
	}

	return obj, nil
}

// Put implements backend.ObjectStore.
func (b *Backend) Put(ctx context.Context, bucket, key string, body io.Reader, size int64) (*backend.PutResult, error) {
	opts := minio.PutObjectOptions{
		SendContentMd5: b.checksum == backend.ChecksumWhenSupported,
	}

	info, err := b.client.PutObject(ctx, bucket, key, body, size, opts)
	if err != nil {
		return nil, wrapErr("put", bucket, key, err)
	}

	return &backend.PutResult{ETag: info.ETag, Size: info.Size}, nil
}

func wrapErr(op, bucket, key string, err error) error {
	loc := bucket
	if key != "" {
		loc = bucket + "/" + key
	}

	resp := minio.ToErrorResponse(err)

	if resp.Code == "" {
		return fmt.Errorf("minio %s %s: %w", op, loc, err)
	}

	switch kind := s3errors.Classify(resp.Code); kind {
	case s3errors.KindObjectMissing:
		return fmt.Errorf("minio %s %s: %w: %w", op, loc, backend.ErrObjectNotFound, err)
	case s3errors.KindBucketMissing:
		return fmt.Errorf("minio %s %s: %w: %w", op, loc, backend.ErrBucketNotFound, err)
	case s3errors.KindUnknown:
		return fmt.Errorf("minio %s %s (%s): %w", op, loc, resp.Code, err)
	default:
		return fmt.Errorf("minio %s %s (%s, %s): %w", op, loc, resp.Code, kind, err)
	}
}
