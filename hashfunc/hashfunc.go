package hashfunc

// HashAlgorithm - Interface that permits an implementation using the database to supply a custom bucket
// selection algorithm suited for its particular distribution of keys.
// The on-disk format does not record which algorithm was used, so a database created with a custom algorithm
// has to be reopened with that same algorithm.
type HashAlgorithm interface {
	// SetTableSize - Sets the table size for the hash algorithm.
	// It is called both when creating a new database and when opening an existing one, with the number of
	// buckets found in (or written to) the index file header.
	//   - tableSize is the number of buckets the index file addresses
	SetTableSize(tableSize int64)

	// HashFunc - Given key it generates a bucket number between 0 and table size - 1.
	// It must be deterministic across runs and processes, any number returned outside the range results in
	// an error down stream.
	HashFunc(key []byte) int64

	// GetTableSize - Returns the table size the implemented hash function is supporting
	GetTableSize() int64
}
