// Package fs implements a filesystem object store.
//
// Objects are stored as plain files:
//
//	{root}/{bucket}/{key}
//
// Key separators become directories, so a bucket directory can be browsed or
// copied with ordinary tools. It is useful for:
//
//   - Migrating into or out of a local or network-attached filesystem
//   - Development and testing without an S3 endpoint
//
// Writes go to a temporary file in the target directory and are renamed
// into place, so a reader never observes a partial object.
package fs

import (
	"context"
	"crypto/md5" //nolint:gosec // G501: MD5 required for S3 ETag compatibility
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/piwi3910/bucketshift/internal/storage/backend"
)

// Directory permission constant.
const dirPermissions = 0o750

const (
	tmpPrefix      = ".tmp-"
	defaultMaxKeys = 1000
)

// Config holds filesystem store configuration.
type Config struct {
	RootDir string
}

// Backend implements backend.ObjectStore on the local filesystem.
type Backend struct {
	root string
}

var _ backend.ObjectStore = (*Backend)(nil)

// New creates a filesystem store rooted at cfg.RootDir, creating the
// directory if needed.
func New(cfg Config) (*Backend, error) {
	if cfg.RootDir == "" {
		return nil, errors.New("root directory is required")
	}

	if err := os.MkdirAll(cfg.RootDir, dirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	return &Backend{root: cfg.RootDir}, nil
}

// bucketPath returns the filesystem path for a bucket.
func (b *Backend) bucketPath(bucket string) (string, error) {
	if bucket == "" || !filepath.IsLocal(bucket) || strings.ContainsRune(bucket, '/') {
		return "", fmt.Errorf("invalid bucket name %q", bucket)
	}

	return filepath.Join(b.root, bucket), nil
}

// objectPath returns the filesystem path for an object. Keys that would
// escape the bucket directory are rejected.
func (b *Backend) objectPath(bucket, key string) (string, error) {
	dir, err := b.bucketPath(bucket)
	if err != nil {
		return "", err
	}

	rel := filepath.FromSlash(key)
	if key == "" || strings.HasSuffix(key, "/") || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("key %q cannot be stored as a file", key)
	}

	if strings.HasPrefix(filepath.Base(rel), tmpPrefix) {
		return "", fmt.Errorf("key %q uses a reserved name", key)
	}

	return filepath.Join(dir, rel), nil
}

// List implements backend.ObjectStore. Keys are walked in lexical order and
// the continuation token is the last key of a full page. ETags are not
// reported.
func (b *Backend) List(ctx context.Context, bucket string, opts backend.ListOptions) (*backend.ListPage, error) {
	dir, err := b.bucketPath(bucket)
	if err != nil {
		return nil, err
	}

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("list %s: %w", bucket, backend.ErrBucketNotFound)
	}

	limit := defaultMaxKeys
	if opts.MaxKeys > 0 {
		limit = int(opts.MaxKeys)
	}

	type entry struct {
		key  string
		size int64
		mod  time.Time
	}

	var entries []entry

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() || strings.HasPrefix(d.Name(), tmpPrefix) {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, opts.Prefix) || key <= opts.ContinuationToken {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		entries = append(entries, entry{key: key, size: info.Size(), mod: info.ModTime().UTC()})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", bucket, err)
	}

	// WalkDir orders by path, which differs from key order around '/'.
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	page := &backend.ListPage{}

	if len(entries) > limit {
		entries = entries[:limit]
		page.NextContinuationToken = entries[len(entries)-1].key
	}

	for _, e := range entries {
		size, mod := e.size, e.mod
		page.Objects = append(page.Objects, backend.ObjectInfo{
			Key:          e.key,
			Size:         &size,
			LastModified: &mod,
		})
	}

	return page, nil
}

// Get implements backend.ObjectStore.
func (b *Backend) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	path, err := b.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}

	//nolint:gosec // G304: path is confined to the bucket directory
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("get %s/%s: %w", bucket, key, backend.ErrObjectNotFound)
		}

		return nil, fmt.Errorf("failed to open object: %w", err)
	}

	return file, nil
}

// Put implements backend.ObjectStore. The bucket directory must exist. A
// non-negative size must match the number of bytes written.
func (b *Backend) Put(ctx context.Context, bucket, key string, body io.Reader, size int64) (*backend.PutResult, error) {
	dir, err := b.bucketPath(bucket)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("put %s/%s: %w", bucket, key, backend.ErrBucketNotFound)
	}

	path, err := b.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create object directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), tmpPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	tmpPath := tmpFile.Name()

	defer func() { _ = os.Remove(tmpPath) }() // no-op after the rename

	hash := md5.New() //nolint:gosec // G401: MD5 required for S3 ETag compatibility

	written, err := io.Copy(io.MultiWriter(tmpFile, hash), contextReader{ctx: ctx, r: body})
	if err != nil {
		_ = tmpFile.Close()
		return nil, fmt.Errorf("failed to write object: %w", err)
	}

	if size >= 0 && written != size {
		_ = tmpFile.Close()
		return nil, fmt.Errorf("put %s/%s: declared %d bytes, received %d", bucket, key, size, written)
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return nil, fmt.Errorf("failed to sync object: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("failed to rename object: %w", err)
	}

	return &backend.PutResult{
		ETag: hex.EncodeToString(hash.Sum(nil)),
		Size: written,
	}, nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}
