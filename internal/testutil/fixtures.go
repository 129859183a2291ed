package testutil

import (
	"fmt"

	"github.com/piwi3910/bucketshift/internal/ledger"
	"github.com/piwi3910/bucketshift/internal/testutil/mocks"
)

// Bucket names used across tests.
const (
	SourceBucket = "src"
	DestBucket   = "dst"
)

// Payload returns n bytes of deterministic data.
func Payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*31 + 7)
	}

	return b
}

// ObjectKey is the key SeedBucket uses for object i.
func ObjectKey(i int) string {
	return fmt.Sprintf("obj-%03d", i)
}

// SeedBucket adds n objects to bucket. Object i is ObjectKey(i) with
// Payload(100+i) as content. The returned records carry the key and size,
// ready to be inserted into a ledger.
func SeedBucket(store *mocks.MockObjectStore, bucket string, n int) []ledger.Record {
	recs := make([]ledger.Record, 0, n)

	for i := range n {
		data := Payload(100 + i)
		size := int64(len(data))

		store.AddObject(bucket, ObjectKey(i), data)
		recs = append(recs, ledger.Record{Key: ObjectKey(i), Size: &size})
	}

	return recs
}
