package hash

import "math/bits"

// PositionalSumAlgorithm - The internally used bucket selection algorithm. Every code point of the key is
// weighted by its 1 based position and the sum is reduced modulo the table size:
//
//	bucket = sum(codepoint(key[i]) * (i+1)) mod tableSize
//
// The reduction is applied per term on 128 bit products, which gives the same result as reducing the full sum
// without overflow for long keys or large tables. Nothing is seeded, so every process computes the same bucket
// for the same key.
type PositionalSumAlgorithm struct {
	tableSize int64
}

// NewPositionalSumAlgorithm - Returns a pointer to a new PositionalSumAlgorithm instance
func NewPositionalSumAlgorithm(tableSize int64) *PositionalSumAlgorithm {
	ha := &PositionalSumAlgorithm{}
	ha.SetTableSize(tableSize)
	return ha
}

// SetTableSize - Sets the table size for the hash algorithm.
//   - tableSize is the number of buckets the index file addresses
func (P *PositionalSumAlgorithm) SetTableSize(tableSize int64) {
	P.tableSize = tableSize
}

// HashFunc - Given key it generates an index (bucket) between 0 and table size - 1
func (P *PositionalSumAlgorithm) HashFunc(key []byte) int64 {
	if P.tableSize <= 0 {
		return -1
	}

	t := uint64(P.tableSize)
	var h, position uint64
	for _, r := range string(key) {
		position++
		hi, lo := bits.Mul64(uint64(r)%t, position%t)
		h = (h + bits.Rem64(hi, lo, t)) % t
	}

	return int64(h)
}

// GetTableSize - Returns the table size the implemented hash function is supporting
func (P *PositionalSumAlgorithm) GetTableSize() int64 {
	return P.tableSize
}
