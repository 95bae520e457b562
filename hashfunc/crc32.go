package hashfunc

import (
	"hash/crc32"
	"math/bits"
)

// CRC32HashAlgorithm - Bucket selection using crc32.ChecksumIEEE over the key. When the table size is a power of
// two the bucket is hash & (tableSize - 1), otherwise hash % tableSize.
type CRC32HashAlgorithm struct {
	tableSize int64
	mask      int64
}

// NewCRC32HashAlgorithm - Returns a pointer to a new CRC32HashAlgorithm instance
func NewCRC32HashAlgorithm(tableSize int64) *CRC32HashAlgorithm {
	ha := &CRC32HashAlgorithm{}
	ha.SetTableSize(tableSize)
	return ha
}

// SetTableSize - Sets the table size for the hash algorithm.
//   - tableSize is the number of buckets the index file addresses
func (C *CRC32HashAlgorithm) SetTableSize(tableSize int64) {
	C.tableSize = tableSize
	C.mask = 0
	if tableSize > 0 && bits.OnesCount64(uint64(tableSize)) == 1 {
		C.mask = tableSize - 1
	}
}

// HashFunc - Given key it generates a bucket number between 0 and table size - 1
func (C *CRC32HashAlgorithm) HashFunc(key []byte) int64 {
	if C.tableSize <= 0 {
		return -1
	}

	h := int64(crc32.ChecksumIEEE(key))
	if C.mask > 0 || C.tableSize == 1 {
		return h & C.mask
	}

	return h % C.tableSize
}

// GetTableSize - Returns the table size the implemented hash function is supporting
func (C *CRC32HashAlgorithm) GetTableSize() int64 {
	return C.tableSize
}
