package testutil

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/bucketshift/internal/ledger"
	"github.com/piwi3910/bucketshift/internal/testutil/mocks"
)

// AssertLedgerCounts asserts how many records are pending and copied.
func AssertLedgerCounts(t *testing.T, l *ledger.Ledger, pending, copied int64) {
	t.Helper()

	s, err := l.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, pending, s.Pending, "pending records")
	assert.Equal(t, copied, s.Copied, "copied records")
}

// AssertObjectsCopied asserts every key exists in dst with the same content
// as in src.
func AssertObjectsCopied(t *testing.T, src, dst *mocks.MockObjectStore, keys ...string) {
	t.Helper()

	for _, key := range keys {
		want, ok := src.GetStoredObject(SourceBucket, key)
		require.True(t, ok, "source object %s should exist", key)

		got, ok := dst.GetStoredObject(DestBucket, key)
		if !assert.True(t, ok, "destination object %s should exist", key) {
			continue
		}

		assert.True(t, bytes.Equal(want, got), "content of %s should match", key)
	}
}

// AssertObjectsAbsent asserts none of keys exist in dst.
func AssertObjectsAbsent(t *testing.T, dst *mocks.MockObjectStore, keys ...string) {
	t.Helper()

	for _, key := range keys {
		_, ok := dst.GetStoredObject(DestBucket, key)
		assert.False(t, ok, "destination object %s should not exist", key)
	}
}
