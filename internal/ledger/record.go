package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Record is the transfer state of one object key.
//
// Size, ContentTag and LastModified are captured the first time the key is
// cataloged and never change afterwards. Copied only moves from false to true.
type Record struct {
	Key          string
	Size         *int64
	ContentTag   *string
	LastModified *time.Time
	Copied       bool
}

// SizeOrZero returns the cataloged size, or 0 when it is unknown.
func (r Record) SizeOrZero() int64 {
	if r.Size == nil {
		return 0
	}

	return *r.Size
}

// storedRecord is the on-disk value for a record.
type storedRecord struct {
	Size         *int64     `json:"size,omitempty"`
	ContentTag   *string    `json:"content_tag,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	Copied       bool       `json:"copied"`
	Seq          uint64     `json:"seq"`
}

func encodeRecord(rec Record, seq uint64) ([]byte, error) {
	return json.Marshal(storedRecord{
		Size:         rec.Size,
		ContentTag:   rec.ContentTag,
		LastModified: rec.LastModified,
		Copied:       rec.Copied,
		Seq:          seq,
	})
}

func decodeRecord(key string, data []byte) (Record, uint64, error) {
	var s storedRecord
	if err := json.Unmarshal(data, &s); err != nil {
		return Record{}, 0, fmt.Errorf("corrupt record %q: %w", key, err)
	}

	return Record{
		Key:          key,
		Size:         s.Size,
		ContentTag:   s.ContentTag,
		LastModified: s.LastModified,
		Copied:       s.Copied,
	}, s.Seq, nil
}

// SortField is a record field pending records can be claimed in order of.
type SortField int

// Allowed sort fields.
const (
	SortInsertion SortField = iota
	SortKey
	SortSize
	SortContentTag
	SortLastModified
)

var sortFieldNames = map[SortField]string{
	SortInsertion:    "insertion",
	SortKey:          "key",
	SortSize:         "size",
	SortContentTag:   "content-tag",
	SortLastModified: "last-modified",
}

// String implements fmt.Stringer.
func (f SortField) String() string {
	if name, ok := sortFieldNames[f]; ok {
		return name
	}

	return fmt.Sprintf("SortField(%d)", int(f))
}

// ParseSortField maps a user supplied field name onto the allow-list.
// The empty string selects insertion order.
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "insertion":
		return SortInsertion, nil
	case "key":
		return SortKey, nil
	case "size":
		return SortSize, nil
	case "content-tag", "contenttag", "content_tag", "etag":
		return SortContentTag, nil
	case "last-modified", "lastmodified", "last_modified":
		return SortLastModified, nil
	default:
		return SortInsertion, fmt.Errorf("unknown sort field %q (allowed: key, size, content-tag, last-modified)", s)
	}
}

// Direction is ascending or descending.
type Direction int

// Sort directions.
const (
	Ascending Direction = iota
	Descending
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}

	return "asc"
}

// ParseDirection accepts asc/desc (case-insensitive). Empty means ascending.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	default:
		return Ascending, fmt.Errorf("unknown sort direction %q (allowed: asc, desc)", s)
	}
}

// Order selects how ClaimBatch walks pending records. The zero value is
// insertion order.
type Order struct {
	Field     SortField
	Direction Direction
}

// String implements fmt.Stringer.
func (o Order) String() string {
	return o.Field.String() + " " + o.Direction.String()
}
