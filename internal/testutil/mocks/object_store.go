package mocks

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // ETag emulation only
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/piwi3910/bucketshift/internal/storage/backend"
)

const defaultPageSize = 1000

type mockObject struct {
	data     []byte
	etag     string
	modified time.Time
}

// MockObjectStore implements backend.ObjectStore for testing.
// It provides thread-safe in-memory storage with configurable error injection
// and records how many puts were in flight at once.
type MockObjectStore struct {
	mu sync.RWMutex

	// bucket -> key -> object
	objects map[string]map[string]*mockObject

	pageSize     int
	omitMetadata bool
	clock        time.Time

	// Error injection
	listErr      error
	listErrAfter int
	getErr       error
	putErr       error
	getErrByKey  map[string]error
	putErrByKey  map[string]error

	// Hooks run inside Put while the call counts as in flight.
	putHook func(key string)

	// Call accounting
	listCalls   int
	getCalls    map[string]int
	putCalls    map[string]int
	inFlight    int
	maxInFlight int
}

var _ backend.ObjectStore = (*MockObjectStore)(nil)

// NewMockObjectStore creates a new MockObjectStore with initialized maps.
func NewMockObjectStore() *MockObjectStore {
	return &MockObjectStore{
		objects:      make(map[string]map[string]*mockObject),
		pageSize:     defaultPageSize,
		listErrAfter: -1,
		clock:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		getErrByKey:  make(map[string]error),
		putErrByKey:  make(map[string]error),
		getCalls:     make(map[string]int),
		putCalls:     make(map[string]int),
	}
}

// SetPageSize caps the number of objects per List page.
func (m *MockObjectStore) SetPageSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageSize = n
}

// SetOmitMetadata makes List report objects without size, ETag or
// modification time.
func (m *MockObjectStore) SetOmitMetadata(omit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.omitMetadata = omit
}

// SetListError sets the error to return on List calls.
func (m *MockObjectStore) SetListError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
	m.listErrAfter = 0
}

// SetListErrorAfter makes List fail with err once pages pages were served.
func (m *MockObjectStore) SetListErrorAfter(pages int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
	m.listErrAfter = pages
}

// SetGetError sets the error to return on Get calls.
func (m *MockObjectStore) SetGetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

// SetPutError sets the error to return on Put calls.
func (m *MockObjectStore) SetPutError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}

// SetGetErrorFor makes Get fail for a single key. A nil err clears it.
func (m *MockObjectStore) SetGetErrorFor(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.getErrByKey, key)
		return
	}

	m.getErrByKey[key] = err
}

// SetPutErrorFor makes Put fail for a single key. A nil err clears it.
func (m *MockObjectStore) SetPutErrorFor(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.putErrByKey, key)
		return
	}

	m.putErrByKey[key] = err
}

// SetPutHook installs fn to run inside every Put before the body is read.
func (m *MockObjectStore) SetPutHook(fn func(key string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putHook = fn
}

// AddObject adds an object directly to the mock store (for test setup).
// Modification times increase with every call.
func (m *MockObjectStore) AddObject(bucket, key string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeLocked(bucket, key, content)
}

func (m *MockObjectStore) storeLocked(bucket, key string, content []byte) *mockObject {
	if m.objects[bucket] == nil {
		m.objects[bucket] = make(map[string]*mockObject)
	}

	m.clock = m.clock.Add(time.Second)

	sum := md5.Sum(content) //nolint:gosec // ETag emulation only
	obj := &mockObject{
		data:     bytes.Clone(content),
		etag:     `"` + hex.EncodeToString(sum[:]) + `"`,
		modified: m.clock,
	}
	m.objects[bucket][key] = obj

	return obj
}

// GetStoredObject returns the stored object content (for test assertions).
func (m *MockObjectStore) GetStoredObject(bucket, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if objs, ok := m.objects[bucket]; ok {
		if obj, ok := objs[key]; ok {
			return bytes.Clone(obj.data), true
		}
	}

	return nil, false
}

// ObjectCount returns the number of objects in bucket.
func (m *MockObjectStore) ObjectCount(bucket string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects[bucket])
}

// ListCalls returns how many times List was called.
func (m *MockObjectStore) ListCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCalls
}

// GetCalls returns how many times Get was called for key.
func (m *MockObjectStore) GetCalls(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCalls[key]
}

// PutCalls returns how many times Put was called for key.
func (m *MockObjectStore) PutCalls(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.putCalls[key]
}

// MaxConcurrentPuts returns the highest number of Put calls observed in
// flight at the same time.
func (m *MockObjectStore) MaxConcurrentPuts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxInFlight
}

// List implements backend.ObjectStore. Keys are returned in lexical order
// and the continuation token is the last key of a full page.
func (m *MockObjectStore) List(ctx context.Context, bucket string, opts backend.ListOptions) (*backend.ListPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCalls++

	if m.listErr != nil && m.listErrAfter >= 0 && m.listCalls > m.listErrAfter {
		return nil, m.listErr
	}

	objs, ok := m.objects[bucket]
	if !ok {
		return nil, fmt.Errorf("list %s: %w", bucket, backend.ErrBucketNotFound)
	}

	limit := m.pageSize
	if opts.MaxKeys > 0 && int(opts.MaxKeys) < limit {
		limit = int(opts.MaxKeys)
	}

	keys := make([]string, 0, len(objs))
	for k := range objs {
		if len(k) >= len(opts.Prefix) && k[:len(opts.Prefix)] == opts.Prefix && k > opts.ContinuationToken {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	page := &backend.ListPage{}
	if len(keys) > limit {
		keys = keys[:limit]
		page.NextContinuationToken = keys[len(keys)-1]
	}

	for _, k := range keys {
		info := backend.ObjectInfo{Key: k}

		if !m.omitMetadata {
			obj := objs[k]
			size := int64(len(obj.data))
			etag := obj.etag
			mod := obj.modified
			info.Size = &size
			info.ETag = &etag
			info.LastModified = &mod
		}

		page.Objects = append(page.Objects, info)
	}

	return page, nil
}

// Get implements backend.ObjectStore.
func (m *MockObjectStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.getCalls[key]++

	if m.getErr != nil {
		return nil, m.getErr
	}

	if err, ok := m.getErrByKey[key]; ok {
		return nil, err
	}

	obj, ok := m.objects[bucket][key]
	if !ok {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, backend.ErrObjectNotFound)
	}

	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Put implements backend.ObjectStore. A non-negative size must match the
// number of bytes read from body.
func (m *MockObjectStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64) (*backend.PutResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.putCalls[key]++

	if err := m.putErr; err != nil {
		m.mu.Unlock()
		return nil, err
	}

	if err, ok := m.putErrByKey[key]; ok {
		m.mu.Unlock()
		return nil, err
	}

	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}

	hook := m.putHook
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if hook != nil {
		hook(key)
	}

	content, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	if size >= 0 && int64(len(content)) != size {
		return nil, fmt.Errorf("put %s/%s: declared %d bytes, received %d", bucket, key, size, len(content))
	}

	m.mu.Lock()
	obj := m.storeLocked(bucket, key, content)
	m.mu.Unlock()

	return &backend.PutResult{
		ETag: obj.etag,
		Size: int64(len(content)),
	}, nil
}
