package filedbm

import (
	"errors"
	"fmt"
	"github.com/gostonefire/filedbm/dbmerrors"
	"github.com/gostonefire/filedbm/internal/chain"
	"github.com/gostonefire/filedbm/internal/conf"
	"github.com/gostonefire/filedbm/internal/flock"
	"github.com/gostonefire/filedbm/internal/model"
	"github.com/gostonefire/filedbm/internal/utils"
)

// Insert - Adds a new record. Insert is create only, an existing live record is never overwritten.
// The value is appended to the data file and made durable before the index record referencing it is written,
// and the index record is written before the bucket is repointed to it. An error half way thus leaves only
// unreachable bytes behind, never a dangling pointer.
//   - key is the identifier of the record, non-empty and without ':' or newline
//   - value is the value to store, non-empty and without ':' or newline
//
// It returns:
//   - err is either of type dbmerrors.InvalidArgument, dbmerrors.DuplicateKey, dbmerrors.LockTimeout, dbmerrors.FormatError or a standard error
func (D *DB) Insert(key, value string) (err error) {
	err = utils.ValidateField("key", key)
	if err != nil {
		return
	}
	err = utils.ValidateField("value", value)
	if err != nil {
		return
	}

	done, err := D.use()
	if err != nil {
		return
	}
	defer done()

	bucketNo, err := D.GetBucketNo(key)
	if err != nil {
		return
	}

	unlock, err := D.lockBucket(bucketNo, true)
	if err != nil {
		return
	}
	defer func() {
		if uErr := unlock(); uErr != nil && err == nil {
			err = uErr
		}
	}()

	// Keys hash to exactly one bucket, so checking the chain of that bucket covers the whole table
	_, err = D.find(bucketNo, key)
	if err == nil {
		err = dbmerrors.NewDuplicateKey("key %q already exists", key)
		return
	}
	if !errors.Is(err, dbmerrors.NoRecordFound{}) {
		return
	}

	datOffset, datSize, err := D.datFile.Append(value)
	if err != nil {
		return
	}

	head, err := D.idxFile.ReadBucket(bucketNo)
	if err != nil {
		return
	}

	newHead, err := D.idxFile.AppendRecord(model.IndexRecord{
		Next:      head,
		Key:       key,
		DatOffset: datOffset,
		DatSize:   datSize,
	})
	if err != nil {
		err = fmt.Errorf("error while adding index record for key %q: %w", key, err)
		return
	}

	err = D.idxFile.WriteBucket(bucketNo, newHead)
	if err != nil {
		return
	}

	D.logger.Debug("record inserted", "key", key, "bucket", bucketNo, "offset", newHead, "next", head)

	return
}

// Fetch - Gets the value of the live record with key.
//   - key is the identifier of the record
//
// It returns:
//   - value is the value of the matching record if found
//   - err is either of type dbmerrors.NoRecordFound, dbmerrors.InvalidArgument, dbmerrors.LockTimeout, dbmerrors.FormatError or a standard error
func (D *DB) Fetch(key string) (value string, err error) {
	err = utils.ValidateField("key", key)
	if err != nil {
		return
	}

	done, err := D.use()
	if err != nil {
		return
	}
	defer done()

	bucketNo, err := D.GetBucketNo(key)
	if err != nil {
		return
	}

	unlock, err := D.lockBucket(bucketNo, false)
	if err != nil {
		return
	}
	defer func() {
		if uErr := unlock(); uErr != nil && err == nil {
			err = uErr
		}
	}()

	position, err := D.find(bucketNo, key)
	if err != nil {
		return
	}

	value, err = D.datFile.Read(position.Record.DatOffset, position.Record.DatSize)
	if err != nil {
		err = fmt.Errorf("error while reading value of key %q: %w", key, err)
	}

	return
}

// Delete - Removes the live record with key by splicing it out of its chain. The bytes of the index record
// and of the value stay in the files as a tombstone, and the key can be inserted again.
//   - key is the identifier of the record
//
// It returns:
//   - err is either of type dbmerrors.NoRecordFound, dbmerrors.InvalidArgument, dbmerrors.LockTimeout, dbmerrors.FormatError or a standard error
func (D *DB) Delete(key string) (err error) {
	err = utils.ValidateField("key", key)
	if err != nil {
		return
	}

	done, err := D.use()
	if err != nil {
		return
	}
	defer done()

	bucketNo, err := D.GetBucketNo(key)
	if err != nil {
		return
	}

	unlock, err := D.lockBucket(bucketNo, true)
	if err != nil {
		return
	}
	defer func() {
		if uErr := unlock(); uErr != nil && err == nil {
			err = uErr
		}
	}()

	position, err := D.find(bucketNo, key)
	if err != nil {
		return
	}

	err = D.idxFile.OverwritePointer(position.PrevSlot, position.Record.Next)
	if err != nil {
		return
	}

	D.logger.Debug("record deleted", "key", key, "bucket", bucketNo, "offset", position.Offset, "prevSlot", position.PrevSlot)

	return
}

// GetBucketNo - Returns which bucket number that the given key results in
//   - key is the identifier of a record
func (D *DB) GetBucketNo(key string) (bucketNo int64, err error) {
	bucketNo = D.hashAlgorithm.HashFunc([]byte(key))
	if bucketNo < 0 || bucketNo >= D.layout.NumberOfBuckets {
		err = fmt.Errorf("received bucket number %d from bucket algorithm is outside permitted range 0-%d", bucketNo, D.layout.NumberOfBuckets-1)
		return
	}

	return
}

// find - Walks the chain of bucketNo looking for key. The bucket must be locked by the caller.
// It returns:
//   - position is the record found together with the pointer field referencing it
//   - err is either of type dbmerrors.NoRecordFound, dbmerrors.FormatError or a standard error
func (D *DB) find(bucketNo int64, key string) (position model.ChainPosition, err error) {
	iter, err := D.chainIterator(bucketNo)
	if err != nil {
		return
	}

	return chain.Find(iter, key)
}

// chainIterator - Returns an iterator over the chain of bucketNo, the bucket must be locked by the caller
func (D *DB) chainIterator(bucketNo int64) (iter *chain.Iterator, err error) {
	head, err := D.idxFile.ReadBucket(bucketNo)
	if err != nil {
		return
	}

	size, err := D.idxFile.Size()
	if err != nil {
		return
	}

	// No chain can be longer than the number of smallest possible records that fit in the records region
	maxSteps := (size - int64(D.layout.RecordsStart())) / (D.layout.RecordHeaderLength() + conf.IdxLenMin)

	iter = chain.NewIterator(D.idxFile.ReadRecord, D.idxFile.BucketSlot(bucketNo), head, maxSteps)

	return
}

// lockBucket - Locks a bucket and logs if the lock could not be acquired in time
func (D *DB) lockBucket(bucketNo int64, exclusive bool) (unlock flock.Unlock, err error) {
	unlock, err = D.idxFile.LockBucket(bucketNo, exclusive)
	if errors.Is(err, dbmerrors.LockTimeout{}) {
		D.logger.Warn("bucket lock timeout", "bucket", bucketNo, "exclusive", exclusive)
	}

	return
}
