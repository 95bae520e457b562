package storage

import (
	"bufio"
	"errors"
	"fmt"
	"github.com/gostonefire/filedbm/dbmerrors"
	"github.com/gostonefire/filedbm/internal/codec"
	"github.com/gostonefire/filedbm/internal/conf"
	"github.com/gostonefire/filedbm/internal/model"
	"io"
	"os"
)

// GetIdxFileName - Return the index file name given the database name
func GetIdxFileName(name string) (fileName string) {
	return name + conf.IdxFileSuffix
}

// GetDatFileName - Return the data file name given the database name
func GetDatFileName(name string) (fileName string) {
	return name + conf.DatFileSuffix
}

// FilesExist - Returns true if both the index and the data file of the named database exist as regular files
func FilesExist(name string) bool {
	return isRegularFile(GetIdxFileName(name)) && isRegularFile(GetDatFileName(name))
}

// AnyFileExists - Returns true if at least one of the files of the named database exists
func AnyFileExists(name string) bool {
	return isRegularFile(GetIdxFileName(name)) || isRegularFile(GetDatFileName(name))
}

// HeaderToBytes - Builds a fresh index file header: the free list slot and one slot per bucket, all zero,
// followed by a newline
func HeaderToBytes(layout model.Layout) (buf []byte, err error) {
	zero, err := codec.EncodePointer(layout, 0)
	if err != nil {
		return
	}

	buf = make([]byte, 0, layout.HeaderLength())
	for i := int64(0); i <= layout.NumberOfBuckets; i++ {
		buf = append(buf, zero...)
	}
	buf = append(buf, conf.Newline)

	return
}

// ReadLayout - Reads the header line of an index file and derives the layout from it.
// The number of buckets is not stored explicitly, it follows from the header length and the pointer size, so
// the pointer size has to be known up front. The free list slot must be zero and every bucket slot must parse.
//   - file is the open index file
//   - pointerSize is the pointer width the file was created with
//   - idxLenSize is the payload length width the file was created with
//
// It returns:
//   - layout is the resolved layout of the file
//   - err is of type dbmerrors.FormatError if the header is not valid for the given widths
func ReadLayout(file *os.File, pointerSize, idxLenSize int64) (layout model.Layout, err error) {
	stat, err := file.Stat()
	if err != nil {
		return
	}

	reader := bufio.NewReader(io.NewSectionReader(file, 0, stat.Size()))
	line, err := reader.ReadBytes(conf.Newline)
	if errors.Is(err, io.EOF) {
		err = dbmerrors.NewFormatError("index file %s has no complete header", file.Name())
		return
	}
	if err != nil {
		return
	}

	// Buckets are set only after their record is written, so the size after the read bounds every pointer seen
	stat, err = file.Stat()
	if err != nil {
		return
	}

	slots := int64(len(line) - 1)
	if slots%pointerSize != 0 || slots/pointerSize < 2 {
		err = dbmerrors.NewFormatError("index file %s header length %d does not match pointer size %d", file.Name(), slots, pointerSize)
		return
	}

	layout = model.Layout{
		NumberOfBuckets: slots/pointerSize - 1,
		PointerSize:     pointerSize,
		IdxLenSize:      idxLenSize,
	}

	var ptr model.IdxOffset
	for i := int64(0); i < slots; i += pointerSize {
		ptr, err = codec.DecodePointer(layout, line[i:i+pointerSize])
		if err != nil {
			err = fmt.Errorf("error in header slot %d of %s: %w", i/pointerSize, file.Name(), err)
			return
		}
		if i/pointerSize == conf.FreeListSlot && ptr != 0 {
			err = dbmerrors.NewFormatError("free list slot of %s is %d, expected 0", file.Name(), ptr)
			return
		}
		if ptr != 0 && (ptr < layout.RecordsStart() || int64(ptr) >= stat.Size()) {
			err = dbmerrors.NewFormatError("bucket %d of %s points outside the records region (%d)", i/pointerSize-1, file.Name(), ptr)
			return
		}
	}

	return
}

// RemoveFiles - Removes the index and data file of the named database, make sure to close them first
func RemoveFiles(name string) (err error) {
	// Only try to remove if exists, and are not by accident directories
	for _, fileName := range []string{GetDatFileName(name), GetIdxFileName(name)} {
		if stat, ok := os.Stat(fileName); ok == nil {
			if !stat.IsDir() {
				err = os.Remove(fileName)
				if err != nil {
					err = fmt.Errorf("error while removing %s: %w", fileName, err)
					return
				}
			}
		}
	}

	return
}

// isRegularFile - True if fileName exists and is not a directory
func isRegularFile(fileName string) bool {
	stat, err := os.Stat(fileName)
	return err == nil && !stat.IsDir()
}
