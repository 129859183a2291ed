// Package testutil provides shared fixtures and assertions for bucketshift
// tests.
//
// Usage:
//
//	import (
//		"github.com/piwi3910/bucketshift/internal/testutil"
//		"github.com/piwi3910/bucketshift/internal/testutil/mocks"
//	)
//
//	func TestSomething(t *testing.T) {
//		src := mocks.NewMockObjectStore()
//		recs := testutil.SeedBucket(src, testutil.SourceBucket, 5)
//		l := testutil.NewMemoryLedger(t)
//
//		// Run test...
//		testutil.AssertLedgerCounts(t, l, 0, 5)
//	}
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/piwi3910/bucketshift/internal/ledger"
)

// NewMemoryLedger opens an in-memory ledger that is closed when the test
// ends.
func NewMemoryLedger(t *testing.T) *ledger.Ledger {
	t.Helper()

	l, err := ledger.Open("", ledger.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	return l
}

// Snapshot returns every ledger record keyed by object key.
func Snapshot(t *testing.T, l *ledger.Ledger) map[string]ledger.Record {
	t.Helper()

	out := make(map[string]ledger.Record)
	require.NoError(t, l.Scan(context.Background(), func(rec ledger.Record) error {
		out[rec.Key] = rec
		return nil
	}))

	return out
}
