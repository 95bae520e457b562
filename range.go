package filedbm

import (
	"fmt"
	"github.com/gostonefire/filedbm/internal/model"
)

// keyValue - One live record as handed to the callback of Range
type keyValue struct {
	key   string
	value string
}

// Range - Calls fn for every live record, bucket by bucket and most recently inserted first within a bucket.
// A bucket is share locked only while its chain and values are read, nothing is held while fn is called, so
// fn may itself insert or delete. Records inserted or deleted during the walk may or may not be visited.
//   - fn is called with key and value of each record, returning false stops the walk
func (D *DB) Range(fn func(key, value string) bool) (err error) {
	var kvs []keyValue
	for i := int64(0); i < D.layout.NumberOfBuckets; i++ {
		kvs, err = D.bucketContents(i)
		if err != nil {
			return
		}

		for _, kv := range kvs {
			if !fn(kv.key, kv.value) {
				return
			}
		}
	}

	return
}

// bucketContents - Returns key and value of the live records of the chain of bucketNo, read under a shared
// bucket lock
func (D *DB) bucketContents(bucketNo int64) (kvs []keyValue, err error) {
	done, err := D.use()
	if err != nil {
		return
	}
	defer done()

	unlock, err := D.lockBucket(bucketNo, false)
	if err != nil {
		return
	}
	defer func() {
		if uErr := unlock(); uErr != nil && err == nil {
			err = uErr
		}
	}()

	iter, err := D.chainIterator(bucketNo)
	if err != nil {
		return
	}

	var position model.ChainPosition
	var value string
	for iter.HasNext() {
		position, err = iter.Next()
		if err != nil {
			return
		}

		value, err = D.datFile.Read(position.Record.DatOffset, position.Record.DatSize)
		if err != nil {
			err = fmt.Errorf("error while reading value of key %q: %w", position.Record.Key, err)
			return
		}

		kvs = append(kvs, keyValue{key: position.Record.Key, value: value})
	}

	return
}
