package data

import (
	"errors"
	"fmt"
	"github.com/gostonefire/filedbm/dbmerrors"
	"github.com/gostonefire/filedbm/internal/conf"
	"github.com/gostonefire/filedbm/internal/flock"
	"github.com/gostonefire/filedbm/internal/model"
	"github.com/gostonefire/filedbm/internal/storage"
	"io"
	"os"
	"time"
)

// DatFile - Represents the data file of a database, an append only sequence of newline terminated values
type DatFile struct {
	fileName   string
	file       *os.File
	locker     *flock.Locker
	syncWrites bool
}

// Create - Creates (or truncates) the data file of the named database
func Create(name string, lockTimeout time.Duration, syncWrites bool) (datFile *DatFile, err error) {
	datFile, err = open(name, os.O_RDWR|os.O_CREATE, lockTimeout, syncWrites)
	if err != nil {
		return
	}

	err = datFile.truncate()
	if err != nil {
		_ = datFile.file.Close()
		datFile = nil
	}

	return
}

// Open - Opens the existing data file of the named database without truncating it
func Open(name string, lockTimeout time.Duration, syncWrites bool) (datFile *DatFile, err error) {
	return open(name, os.O_RDWR, lockTimeout, syncWrites)
}

// FileName - Returns the name of the data file
func (D *DatFile) FileName() string {
	return D.fileName
}

// Size - Returns the current size of the data file
func (D *DatFile) Size() (size int64, err error) {
	stat, err := D.file.Stat()
	if err != nil {
		return
	}
	size = stat.Size()

	return
}

// Close - Flushes and closes the data file
func (D *DatFile) Close() (err error) {
	if D.file == nil {
		return
	}

	err = D.file.Sync()
	cErr := D.file.Close()
	if err == nil {
		err = cErr
	}
	D.file = nil

	return
}

// Append - Writes value followed by a newline at the end of the data file.
// The file is locked exclusively while the end of file is determined and the value written.
//   - value is the value to store, it must not contain a newline
//
// It returns:
//   - offset is where the value starts
//   - size is the length of value, the newline excluded
//   - err is a standard error if the write failed
func (D *DatFile) Append(value string) (offset model.DatOffset, size int64, err error) {
	unlock, err := D.locker.Lock(flock.Region{Start: 0, Len: 0}, true)
	if err != nil {
		return
	}
	defer func() {
		if uErr := unlock(); uErr != nil && err == nil {
			err = uErr
		}
	}()

	end, err := D.Size()
	if err != nil {
		return
	}

	buf := make([]byte, 0, len(value)+1)
	buf = append(buf, value...)
	buf = append(buf, conf.Newline)

	_, err = D.file.WriteAt(buf, end)
	if err != nil {
		err = fmt.Errorf("error while appending to data file: %w", err)
		return
	}

	if D.syncWrites {
		err = D.file.Sync()
		if err != nil {
			return
		}
	}

	offset = model.DatOffset(end)
	size = int64(len(value))

	return
}

// Read - Reads the value at offset. Size bytes of value plus the terminating newline are read and the
// newline is stripped.
// It returns:
//   - value is the stored value
//   - err is of type dbmerrors.FormatError if the run is truncated or not newline terminated
func (D *DatFile) Read(offset model.DatOffset, size int64) (value string, err error) {
	if offset < 0 || size < 0 {
		err = dbmerrors.NewFormatError("invalid data reference %d+%d", offset, size)
		return
	}

	end, err := D.Size()
	if err != nil {
		return
	}
	if int64(offset) >= end || size > end-int64(offset)-1 {
		err = dbmerrors.NewFormatError("data reference %d+%d beyond end of %s", offset, size, D.fileName)
		return
	}

	buf := make([]byte, size+1)
	_, err = D.file.ReadAt(buf, int64(offset))
	if errors.Is(err, io.EOF) {
		err = dbmerrors.NewFormatError("data reference %d+%d beyond end of %s", offset, size, D.fileName)
		return
	}
	if err != nil {
		return
	}

	if buf[size] != conf.Newline {
		err = dbmerrors.NewFormatError("data run at %d+%d in %s not terminated by newline", offset, size, D.fileName)
		return
	}

	value = string(buf[:size])

	return
}

// open - Opens the data file with flag
func open(name string, flag int, lockTimeout time.Duration, syncWrites bool) (datFile *DatFile, err error) {
	fileName := storage.GetDatFileName(name)
	file, err := os.OpenFile(fileName, flag, conf.FileMode)
	if err != nil {
		err = fmt.Errorf("unable to open data file: %w", err)
		return
	}

	datFile = &DatFile{
		fileName:   fileName,
		file:       file,
		locker:     flock.NewLocker(file, lockTimeout),
		syncWrites: syncWrites,
	}

	return
}

// truncate - Empties the data file under an exclusive lock
func (D *DatFile) truncate() (err error) {
	unlock, err := D.locker.Lock(flock.Region{Start: 0, Len: 0}, true)
	if err != nil {
		return
	}
	defer func() {
		if uErr := unlock(); uErr != nil && err == nil {
			err = uErr
		}
	}()

	err = D.file.Truncate(0)
	if err != nil {
		err = fmt.Errorf("unable to truncate data file: %w", err)
	}

	return
}
