package hashfunc

import "github.com/cespare/xxhash/v2"

// XXHashAlgorithm - Bucket selection using the unseeded 64 bit xxHash digest of the key reduced modulo the
// table size. It spreads keys far better than the positional sum used by default, at the price of files
// that only this algorithm can read back correctly.
type XXHashAlgorithm struct {
	tableSize int64
}

// NewXXHashAlgorithm - Returns a pointer to a new XXHashAlgorithm instance
func NewXXHashAlgorithm(tableSize int64) *XXHashAlgorithm {
	ha := &XXHashAlgorithm{}
	ha.SetTableSize(tableSize)
	return ha
}

// SetTableSize - Sets the table size for the hash algorithm.
//   - tableSize is the number of buckets the index file addresses
func (X *XXHashAlgorithm) SetTableSize(tableSize int64) {
	X.tableSize = tableSize
}

// HashFunc - Given key it generates a bucket number between 0 and table size - 1
func (X *XXHashAlgorithm) HashFunc(key []byte) int64 {
	if X.tableSize <= 0 {
		return -1
	}
	return int64(xxhash.Sum64(key) % uint64(X.tableSize))
}

// GetTableSize - Returns the table size the implemented hash function is supporting
func (X *XXHashAlgorithm) GetTableSize() int64 {
	return X.tableSize
}
