package chain

import (
	"fmt"
	"github.com/gostonefire/filedbm/dbmerrors"
	"github.com/gostonefire/filedbm/internal/model"
)

// Iterator - Is used to walk the chain of a bucket record by record, most recently inserted first.
// Besides each record it keeps track of the pointer field that referenced it, which is what a delete has to
// rewrite to unlink the record.
type Iterator struct {
	readRecordFunc func(model.IdxOffset) (model.IndexRecord, error)
	prevSlot       model.IdxOffset
	cursor         model.IdxOffset
	steps          int64
	maxSteps       int64
}

// NewIterator - Returns a pointer to a new Iterator
//   - readRecordFunc reads the index record at a given offset
//   - bucketSlot is the offset of the bucket slot the chain hangs off
//   - head is the pointer currently stored in the bucket slot
//   - maxSteps is the number of records the records region can possibly hold, walking further means a cycle
func NewIterator(readRecordFunc func(model.IdxOffset) (model.IndexRecord, error), bucketSlot, head model.IdxOffset, maxSteps int64) *Iterator {

	return &Iterator{
		readRecordFunc: readRecordFunc,
		prevSlot:       bucketSlot,
		cursor:         head,
		maxSteps:       maxSteps,
	}
}

// HasNext - Returns true if there are more records to be fetched from a call to Next.
func (C *Iterator) HasNext() bool {
	return C.cursor != 0
}

// Next - Returns the next record of the chain together with its position.
// It returns:
//   - position holds the record, its offset and the pointer field referencing it.
//   - err is of type dbmerrors.NoRecordFound when called past the end of the chain, dbmerrors.FormatError on a cycle, or a standard error
func (C *Iterator) Next() (position model.ChainPosition, err error) {
	if C.cursor == 0 {
		err = dbmerrors.NoRecordFound{}
		return
	}

	C.steps++
	if C.steps > C.maxSteps {
		err = dbmerrors.NewFormatError("chain longer than %d records, the index file contains a cycle", C.maxSteps)
		return
	}

	record, err := C.readRecordFunc(C.cursor)
	if err != nil {
		err = fmt.Errorf("error while retrieving chain record at offset %d: %w", C.cursor, err)
		return
	}

	position = model.ChainPosition{
		Record:   record,
		Offset:   C.cursor,
		PrevSlot: C.prevSlot,
	}

	// The next pointer is the first field of a record, so the record offset is also the offset of its next field
	C.prevSlot = C.cursor
	C.cursor = record.Next

	return
}

// Find - Walks the chain until a record with key is found
// It returns:
//   - position of the matching record
//   - err is of type dbmerrors.NoRecordFound if the chain has no such record, or any error from Next
func Find(iter *Iterator, key string) (position model.ChainPosition, err error) {
	for iter.HasNext() {
		position, err = iter.Next()
		if err != nil {
			return
		}
		if position.Record.Key == key {
			return
		}
	}

	position = model.ChainPosition{}
	err = dbmerrors.NewNoRecordFound("no record found for key %q", key)

	return
}
