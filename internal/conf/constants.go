package conf

import "time"

// DefaultNumberOfBuckets - Hash table size used when none is given at creation time
const DefaultNumberOfBuckets int64 = 256

// DefaultPointerSize - Width in ascii digits of every pointer field (bucket slots and record next pointers)
const DefaultPointerSize int64 = 7

// DefaultIdxLenSize - Width in ascii digits of the payload length field of an index record
const DefaultIdxLenSize int64 = 4

// MaxFieldSize - Upper bound for pointer and length widths, keeps 10^width within int64
const MaxFieldSize int64 = 18

// IdxLenMin - Smallest possible payload: one byte key, two separators, two one digit numbers and newline
const IdxLenMin int64 = 6

// FreeListSlot - Header slot reserved for a free list, never populated
const FreeListSlot int64 = 0

// Separator - Delimiter between payload fields
const Separator byte = ':'

// Newline - Terminates the header, every payload and every data run
const Newline byte = '\n'

// IdxFileSuffix - Appended to the database name to form the index file name
const IdxFileSuffix string = ".idx"

// DatFileSuffix - Appended to the database name to form the data file name
const DatFileSuffix string = ".dat"

// ReorgSuffix - Appended to the database name to form the name of a reorganized copy
const ReorgSuffix string = "-reorg"

// DefaultLockTimeout - How long lock acquisition is retried before giving up
const DefaultLockTimeout = 5 * time.Second

// LockRetryInterval - Pause between non-blocking lock attempts
const LockRetryInterval = time.Millisecond

// FileMode - Permission bits for newly created database files
const FileMode = 0644
