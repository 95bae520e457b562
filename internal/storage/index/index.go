package index

import (
	"errors"
	"fmt"
	"github.com/gostonefire/filedbm/dbmerrors"
	"github.com/gostonefire/filedbm/internal/codec"
	"github.com/gostonefire/filedbm/internal/conf"
	"github.com/gostonefire/filedbm/internal/flock"
	"github.com/gostonefire/filedbm/internal/model"
	"github.com/gostonefire/filedbm/internal/storage"
	"io"
	"os"
	"time"
)

// IdxFile - Represents the index file of a database: the fixed size hash table header followed by the append
// only records region. All reads and writes are positional so that goroutines sharing an IdxFile never
// depend on a shared file cursor.
type IdxFile struct {
	fileName   string
	file       *os.File
	layout      model.Layout
	locker      *flock.Locker
	lockTimeout time.Duration
	syncWrites  bool
}

// Create - Creates (or truncates) the index file and writes a fresh header. Truncation and header write
// happen under an exclusive lock of the whole file, so a concurrent opener never sees a half written header.
//   - name is the database name, the file name is derived from it
//   - layout gives number of buckets and field widths
//   - lockTimeout is the max time to wait for any lock on the file
//   - syncWrites set to true makes every appended record durable before AppendRecord returns
//
// It returns:
//   - idxFile which is a pointer to the created instance
//   - err which is a standard Go type of error
func Create(name string, layout model.Layout, lockTimeout time.Duration, syncWrites bool) (idxFile *IdxFile, err error) {
	header, err := storage.HeaderToBytes(layout)
	if err != nil {
		return
	}

	fileName := storage.GetIdxFileName(name)
	file, err := os.OpenFile(fileName, os.O_RDWR|os.O_CREATE, conf.FileMode)
	if err != nil {
		err = fmt.Errorf("unable to create index file: %w", err)
		return
	}

	idxFile = &IdxFile{
		fileName:    fileName,
		file:        file,
		layout:      layout,
		locker:      flock.NewLocker(file, lockTimeout),
		lockTimeout: lockTimeout,
		syncWrites:  syncWrites,
	}

	err = idxFile.writeHeader(header)
	if err != nil {
		_ = file.Close()
		idxFile = nil
	}

	return
}

// Open - Opens an existing index file without truncating it and validates its header
//   - name is the database name, the file name is derived from it
//   - pointerSize and idxLenSize are the widths the file was created with
//   - lockTimeout is the max time to wait for any lock on the file
//   - syncWrites set to true makes every appended record durable before AppendRecord returns
//
// It returns:
//   - idxFile which is a pointer to the opened instance
//   - err is of type dbmerrors.FormatError if the header is invalid, or a standard error
func Open(name string, pointerSize, idxLenSize int64, lockTimeout time.Duration, syncWrites bool) (idxFile *IdxFile, err error) {
	fileName := storage.GetIdxFileName(name)
	file, err := os.OpenFile(fileName, os.O_RDWR, conf.FileMode)
	if err != nil {
		err = fmt.Errorf("unable to open existing index file: %w", err)
		return
	}

	if lockTimeout <= 0 {
		lockTimeout = conf.DefaultLockTimeout
	}

	idxFile = &IdxFile{
		fileName:    fileName,
		file:        file,
		locker:      flock.NewLocker(file, lockTimeout),
		lockTimeout: lockTimeout,
		syncWrites:  syncWrites,
	}

	err = idxFile.readHeader(pointerSize, idxLenSize)
	if err != nil {
		_ = file.Close()
		idxFile = nil
	}

	return
}

// Layout - Returns the layout of the index file
func (I *IdxFile) Layout() model.Layout {
	return I.layout
}

// FileName - Returns the name of the index file
func (I *IdxFile) FileName() string {
	return I.fileName
}

// Size - Returns the current size of the index file
func (I *IdxFile) Size() (size int64, err error) {
	stat, err := I.file.Stat()
	if err != nil {
		return
	}
	size = stat.Size()

	return
}

// Close - Flushes and closes the index file, which also releases every lock held through it
func (I *IdxFile) Close() (err error) {
	if I.file == nil {
		return
	}

	err = I.file.Sync()
	cErr := I.file.Close()
	if err == nil {
		err = cErr
	}
	I.file = nil

	return
}

// LockBucket - Locks the header slot of a bucket. An exclusive lock is needed to change the chain of the
// bucket, a shared lock to walk it.
func (I *IdxFile) LockBucket(bucketNo int64, exclusive bool) (unlock flock.Unlock, err error) {
	err = I.checkBucketNo(bucketNo)
	if err != nil {
		return
	}

	return I.locker.Lock(flock.Region{Start: int64(I.layout.BucketSlot(bucketNo)), Len: 1}, exclusive)
}

// LockRecords - Locks the records region from its start to beyond the end of file
func (I *IdxFile) LockRecords(exclusive bool) (unlock flock.Unlock, err error) {
	return I.locker.Lock(flock.Region{Start: int64(I.layout.RecordsStart()), Len: 0}, exclusive)
}

// BucketSlot - Returns the offset of the header slot of a bucket
func (I *IdxFile) BucketSlot(bucketNo int64) model.IdxOffset {
	return I.layout.BucketSlot(bucketNo)
}

// ReadBucket - Returns the chain head pointer stored in a bucket, zero means an empty chain
func (I *IdxFile) ReadBucket(bucketNo int64) (ptr model.IdxOffset, err error) {
	err = I.checkBucketNo(bucketNo)
	if err != nil {
		return
	}

	ptr, err = I.readPointer(I.layout.BucketSlot(bucketNo))
	if err != nil {
		return
	}

	err = I.checkPointer(ptr)

	return
}

// WriteBucket - Sets the chain head pointer of a bucket
func (I *IdxFile) WriteBucket(bucketNo int64, ptr model.IdxOffset) (err error) {
	err = I.checkBucketNo(bucketNo)
	if err != nil {
		return
	}

	return I.OverwritePointer(I.layout.BucketSlot(bucketNo), ptr)
}

// OverwritePointer - Rewrites a fixed width pointer field in place, either a bucket slot or the next field of
// an index record. No other byte of the file is touched.
//   - offset is the position of the pointer field
//   - ptr is the new pointer value
func (I *IdxFile) OverwritePointer(offset model.IdxOffset, ptr model.IdxOffset) (err error) {
	buf, err := codec.EncodePointer(I.layout, ptr)
	if err != nil {
		return
	}

	_, err = I.file.WriteAt(buf, int64(offset))
	if err != nil {
		err = fmt.Errorf("error while writing pointer at offset %d: %w", offset, err)
	}

	return
}

// AppendRecord - Writes a new index record at the end of the file.
// The records region is locked exclusively while the end of file is determined and the record written, so
// concurrent appenders never share an offset.
//   - record is the record to write, Next, Key, DatOffset and DatSize must be set
//
// It returns:
//   - offset is where the record was written, it becomes the new chain head
//   - err is of type dbmerrors.FormatError if the offset or a field does not fit its width, or a standard error
func (I *IdxFile) AppendRecord(record model.IndexRecord) (offset model.IdxOffset, err error) {
	unlock, err := I.LockRecords(true)
	if err != nil {
		return
	}
	defer func() {
		if uErr := unlock(); uErr != nil && err == nil {
			err = uErr
		}
	}()

	size, err := I.Size()
	if err != nil {
		return
	}
	if size > I.layout.MaxPointer() {
		err = dbmerrors.NewFormatError("index file %s reached offset %d, beyond the largest %d digit pointer", I.fileName, size, I.layout.PointerSize)
		return
	}

	buf, err := codec.EncodeRecord(I.layout, record)
	if err != nil {
		return
	}

	_, err = I.file.WriteAt(buf, size)
	if err != nil {
		err = fmt.Errorf("error while appending index record: %w", err)
		return
	}

	if I.syncWrites {
		err = I.file.Sync()
		if err != nil {
			return
		}
	}

	offset = model.IdxOffset(size)

	return
}

// ReadRecord - Reads and decodes the index record at offset
// It returns:
//   - record is the decoded record, with Offset and Length set
//   - err is of type dbmerrors.FormatError if offset is outside the records region or the record is malformed
func (I *IdxFile) ReadRecord(offset model.IdxOffset) (record model.IndexRecord, err error) {
	if offset == 0 {
		err = dbmerrors.NewFormatError("nil pointer dereferenced in %s", I.fileName)
		return
	}
	err = I.checkPointer(offset)
	if err != nil {
		return
	}

	hdr := make([]byte, I.layout.RecordHeaderLength())
	_, err = I.file.ReadAt(hdr, int64(offset))
	if errors.Is(err, io.EOF) {
		err = dbmerrors.NewFormatError("truncated index record at offset %d in %s", offset, I.fileName)
		return
	}
	if err != nil {
		return
	}

	next, length, err := codec.DecodeRecordHeader(I.layout, hdr)
	if err != nil {
		err = fmt.Errorf("error in index record at offset %d: %w", offset, err)
		return
	}
	err = I.checkPointer(next)
	if err != nil {
		return
	}

	size, err := I.Size()
	if err != nil {
		return
	}
	if length > size-int64(offset)-I.layout.RecordHeaderLength() {
		err = dbmerrors.NewFormatError("index record at offset %d in %s has length %d beyond end of file", offset, I.fileName, length)
		return
	}

	payload := make([]byte, length)
	_, err = I.file.ReadAt(payload, int64(offset)+I.layout.RecordHeaderLength())
	if errors.Is(err, io.EOF) {
		err = dbmerrors.NewFormatError("truncated index record payload at offset %d in %s", offset, I.fileName)
		return
	}
	if err != nil {
		return
	}

	key, datOffset, datSize, err := codec.DecodePayload(payload)
	if err != nil {
		err = fmt.Errorf("error in index record at offset %d: %w", offset, err)
		return
	}

	record = model.IndexRecord{
		Offset:    offset,
		Next:      next,
		Key:       key,
		DatOffset: datOffset,
		DatSize:   datSize,
		Length:    length,
	}

	return
}

// ScanRecords - Visits every record slot of the records region in file order, live records and tombstones
// alike. The records region is share locked during the scan so no append is seen half written.
//   - fn is called for each record, returning false stops the scan
func (I *IdxFile) ScanRecords(fn func(record model.IndexRecord) bool) (err error) {
	unlock, err := I.LockRecords(false)
	if err != nil {
		return
	}
	defer func() {
		if uErr := unlock(); uErr != nil && err == nil {
			err = uErr
		}
	}()

	size, err := I.Size()
	if err != nil {
		return
	}

	var record model.IndexRecord
	offset := I.layout.RecordsStart()
	for int64(offset) < size {
		record, err = I.ReadRecord(offset)
		if err != nil {
			return
		}
		if !fn(record) {
			return
		}
		offset += model.IdxOffset(I.layout.RecordHeaderLength() + record.Length)
	}

	return
}

// writeHeader - Truncates the file and writes header, all under an exclusive lock of the whole file
func (I *IdxFile) writeHeader(header []byte) (err error) {
	unlock, err := I.locker.Lock(flock.Region{Start: 0, Len: 0}, true)
	if err != nil {
		return
	}
	defer func() {
		if uErr := unlock(); uErr != nil && err == nil {
			err = uErr
		}
	}()

	err = I.file.Truncate(0)
	if err != nil {
		err = fmt.Errorf("unable to truncate index file: %w", err)
		return
	}

	_, err = I.file.WriteAt(header, 0)
	if err != nil {
		err = fmt.Errorf("index file header write error: %w", err)
		return
	}

	err = I.file.Sync()

	return
}

// readHeader - Reads and validates the header. An empty file is a header a concurrent creator has not written
// yet, reading is retried until the lock timeout has passed.
func (I *IdxFile) readHeader(pointerSize, idxLenSize int64) (err error) {
	deadline := time.Now().Add(I.lockTimeout)

	var empty bool
	for {
		empty, err = I.tryReadHeader(pointerSize, idxLenSize)
		if err != nil || !empty {
			return
		}
		if time.Now().After(deadline) {
			err = dbmerrors.NewFormatError("index file %s has no header", I.fileName)
			return
		}
		time.Sleep(conf.LockRetryInterval)
	}
}

// tryReadHeader - Reads the header under a shared lock of the free list slot. Bucket and records locks never
// cover that slot, only the whole file lock of writeHeader does.
func (I *IdxFile) tryReadHeader(pointerSize, idxLenSize int64) (empty bool, err error) {
	unlock, err := I.locker.Lock(flock.Region{Start: 0, Len: pointerSize}, false)
	if err != nil {
		return
	}
	defer func() {
		if uErr := unlock(); uErr != nil && err == nil {
			err = uErr
		}
	}()

	size, err := I.Size()
	if err != nil || size == 0 {
		empty = err == nil
		return
	}

	I.layout, err = storage.ReadLayout(I.file, pointerSize, idxLenSize)

	return
}

// readPointer - Reads a fixed width pointer field at offset
func (I *IdxFile) readPointer(offset model.IdxOffset) (ptr model.IdxOffset, err error) {
	buf := make([]byte, I.layout.PointerSize)
	_, err = I.file.ReadAt(buf, int64(offset))
	if errors.Is(err, io.EOF) {
		err = dbmerrors.NewFormatError("truncated pointer at offset %d in %s", offset, I.fileName)
		return
	}
	if err != nil {
		return
	}

	ptr, err = codec.DecodePointer(I.layout, buf)

	return
}

// checkBucketNo - Verifies that bucketNo addresses a bucket of the header
func (I *IdxFile) checkBucketNo(bucketNo int64) (err error) {
	if bucketNo < 0 || bucketNo >= I.layout.NumberOfBuckets {
		err = dbmerrors.NewInvalidArgument("bucket number %d outside permitted range 0-%d", bucketNo, I.layout.NumberOfBuckets-1)
	}

	return
}

// checkPointer - Verifies that a non nil pointer references the records region
func (I *IdxFile) checkPointer(ptr model.IdxOffset) (err error) {
	if ptr != 0 && ptr < I.layout.RecordsStart() {
		err = dbmerrors.NewFormatError("pointer %d references the header of %s", ptr, I.fileName)
	}

	return
}
