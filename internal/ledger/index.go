package ledger

import (
	"bytes"
	"encoding/binary"
)

// Key layout:
//
//	r/<key>                         record value (JSON)
//	m/seq                           insertion sequence lease
//	p/seq/<seq>                     pending, insertion order
//	p/key/<key>                     pending, key order
//	p/size/<present><size><key>     pending, size order
//	p/tag/<present><tag>\x00<key>   pending, content tag order
//	p/mod/<present><nanos><key>     pending, last-modified order
//
// Every p/ entry stores the object key as its value and exists only while the
// record is pending. A presence byte of 0 marks an unknown optional field, so
// unknown values sort first ascending and last descending.
const (
	prefixRecord = "r/"
	keySequence  = "m/seq"

	prefixPendingSeq  = "p/seq/"
	prefixPendingKey  = "p/key/"
	prefixPendingSize = "p/size/"
	prefixPendingTag  = "p/tag/"
	prefixPendingMod  = "p/mod/"

	absent  = 0x00
	present = 0x01

	signFlip = uint64(1) << 63
)

func recordKey(key string) []byte {
	return []byte(prefixRecord + key)
}

func indexPrefix(f SortField) []byte {
	switch f {
	case SortKey:
		return []byte(prefixPendingKey)
	case SortSize:
		return []byte(prefixPendingSize)
	case SortContentTag:
		return []byte(prefixPendingTag)
	case SortLastModified:
		return []byte(prefixPendingMod)
	default:
		return []byte(prefixPendingSeq)
	}
}

// indexKeys returns every pending index entry for rec.
func indexKeys(rec Record, seq uint64) [][]byte {
	return [][]byte{
		seqIndexKey(rec.Key, seq),
		[]byte(prefixPendingKey + rec.Key),
		sizeIndexKey(rec),
		tagIndexKey(rec),
		modIndexKey(rec),
	}
}

func seqIndexKey(key string, seq uint64) []byte {
	b := make([]byte, 0, len(prefixPendingSeq)+8+len(key))
	b = append(b, prefixPendingSeq...)
	b = binary.BigEndian.AppendUint64(b, seq)

	return append(b, key...)
}

func sizeIndexKey(rec Record) []byte {
	b := make([]byte, 0, len(prefixPendingSize)+9+len(rec.Key))
	b = append(b, prefixPendingSize...)

	if rec.Size == nil {
		b = append(b, absent)
		b = binary.BigEndian.AppendUint64(b, 0)
	} else {
		b = append(b, present)
		b = binary.BigEndian.AppendUint64(b, uint64(*rec.Size)^signFlip)
	}

	return append(b, rec.Key...)
}

func tagIndexKey(rec Record) []byte {
	b := make([]byte, 0, len(prefixPendingTag)+len(rec.Key)+34)
	b = append(b, prefixPendingTag...)

	if rec.ContentTag == nil {
		b = append(b, absent)
	} else {
		b = append(b, present)
		// NUL terminates the tag; store-provided tags never contain one.
		b = append(b, bytes.ReplaceAll([]byte(*rec.ContentTag), []byte{0}, []byte{1})...)
	}

	b = append(b, 0)

	return append(b, rec.Key...)
}

func modIndexKey(rec Record) []byte {
	b := make([]byte, 0, len(prefixPendingMod)+9+len(rec.Key))
	b = append(b, prefixPendingMod...)

	if rec.LastModified == nil {
		b = append(b, absent)
		b = binary.BigEndian.AppendUint64(b, 0)
	} else {
		b = append(b, present)
		b = binary.BigEndian.AppendUint64(b, uint64(rec.LastModified.UnixNano())^signFlip)
	}

	return append(b, rec.Key...)
}

// decodeSizeIndexKey extracts the size from a p/size/ key.
func decodeSizeIndexKey(k []byte) (int64, bool) {
	rest := k[len(prefixPendingSize):]
	if len(rest) < 9 || rest[0] != present {
		return 0, false
	}

	return int64(binary.BigEndian.Uint64(rest[1:9]) ^ signFlip), true
}

// seekPastPrefix returns a key that sorts after every key with the prefix,
// the starting point of a reverse iteration.
func seekPastPrefix(prefix []byte) []byte {
	return append(append([]byte{}, prefix...), bytes.Repeat([]byte{0xFF}, 16)...)
}
