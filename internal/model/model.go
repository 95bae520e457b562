package model

// IdxOffset - Byte offset into the index file. Zero is the nil pointer (end of chain / empty bucket).
type IdxOffset int64

// DatOffset - Byte offset into the data file
type DatOffset int64

// Layout - Fixed widths and table size of a pair of database files. It is resolved once when a database
// is opened and then handed to everything that encodes or decodes index file contents.
//   - NumberOfBuckets is the number of hash buckets (nhash)
//   - PointerSize is the width in digits of every pointer field
//   - IdxLenSize is the width in digits of the payload length field
type Layout struct {
	NumberOfBuckets int64
	PointerSize     int64
	IdxLenSize      int64
}

// HeaderLength - Length of the index file header, free list slot and buckets plus the trailing newline
func (L Layout) HeaderLength() int64 {
	return (L.NumberOfBuckets+1)*L.PointerSize + 1
}

// RecordsStart - Offset of the first index record
func (L Layout) RecordsStart() IdxOffset {
	return IdxOffset(L.HeaderLength())
}

// BucketSlot - Offset of the header slot holding the chain head for bucketNo (0 based)
func (L Layout) BucketSlot(bucketNo int64) IdxOffset {
	return IdxOffset((bucketNo + 1) * L.PointerSize)
}

// MaxPointer - Largest value that fits in a pointer field
func (L Layout) MaxPointer() int64 {
	return pow10(L.PointerSize) - 1
}

// MaxIdxLen - Largest payload length that fits in the length field
func (L Layout) MaxIdxLen() int64 {
	return pow10(L.IdxLenSize) - 1
}

// RecordHeaderLength - Length of the fixed part of an index record (next pointer and payload length)
func (L Layout) RecordHeaderLength() int64 {
	return L.PointerSize + L.IdxLenSize
}

// IndexRecord - Represents one index record as stored in the records region
type IndexRecord struct {
	Offset    IdxOffset
	Next      IdxOffset
	Key       string
	DatOffset DatOffset
	DatSize   int64
	Length    int64
}

// ChainPosition - The outcome of a successful chain walk. PrevSlot is the pointer field that references the
// record, either the bucket slot itself or the next field of the preceding record, and it is the field to
// rewrite when unlinking the record.
type ChainPosition struct {
	Record   IndexRecord
	Offset   IdxOffset
	PrevSlot IdxOffset
}

func pow10(n int64) int64 {
	p := int64(1)
	for i := int64(0); i < n; i++ {
		p *= 10
	}
	return p
}
