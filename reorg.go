package filedbm

import (
	"github.com/gostonefire/filedbm/dbmerrors"
	"github.com/gostonefire/filedbm/hashfunc"
	"github.com/gostonefire/filedbm/internal/conf"
	"github.com/gostonefire/filedbm/internal/storage"
	"log/slog"
)

// ReorgConf - Is a struct used in the call to Reorg holding configuration for the new file structure.
// Zero values mean "same as the existing database".
//   - NumberOfBuckets is the hash table size of the new database
//   - PointerSize is the pointer width of the new database
//   - IdxLenSize is the payload length width of the new database
//   - NewHashAlgorithm is the algorithm to use in the new database, nil gives the built-in algorithm
//   - OldHashAlgorithm is the algorithm that was used in the existing database, nil if it used the built-in one
//   - OldPointerSize is the pointer width of the existing database, zero for the default
//   - OldIdxLenSize is the payload length width of the existing database, zero for the default
//   - Logger is an optional structured logger used for both databases
type ReorgConf struct {
	NumberOfBuckets  int64
	PointerSize      int64
	IdxLenSize       int64
	NewHashAlgorithm hashfunc.HashAlgorithm
	OldHashAlgorithm hashfunc.HashAlgorithm
	OldPointerSize   int64
	OldIdxLenSize    int64
	Logger           *slog.Logger
}

// Reorg - Is used when an existing database needs to reflect new conditions as compared to when it was first
// created. For instance if the number of buckets turned out too small and chains grew long, if wider pointer
// fields are needed for the index file to grow further, or if a better hash algorithm has been found for the
// particular set of keys.
//
// Every live record is copied into a new database named by appending "-reorg" to name, tombstones are left
// behind. The existing files are not touched, to prevent data loss due to mistakes. Any earlier "-reorg" files
// are recreated.
//
// The reorganization will happen only if there are detectable changes coming from the ReorgConf struct: a
// NumberOfBuckets, PointerSize or IdxLenSize that differs from the existing database, a non nil
// NewHashAlgorithm, or a nil NewHashAlgorithm when the existing database uses a custom one. To copy anyway,
// for instance just to get rid of tombstones, use the force flag.
//   - name is the name of an existing database (including correct path)
//   - reorgConf is an instance of the ReorgConf struct.
//   - force set to true forces a reorganization regardless of what is changed from the ReorgConf struct
//
// It returns:
//   - fromDBInfo is information about the existing database
//   - toDBInfo is information about the new database, zero valued if nothing was done
//   - err is of type dbmerrors.InvalidArgument if the database does not exist, or any error from opening, reading or inserting
func Reorg(name string, reorgConf ReorgConf, force bool) (fromDBInfo, toDBInfo DBInfo, err error) {
	if !storage.FilesExist(name) {
		err = dbmerrors.NewInvalidArgument("database %s does not exist", name)
		return
	}

	from, fromDBInfo, err := Open(Config{
		Name:          name,
		PointerSize:   reorgConf.OldPointerSize,
		IdxLenSize:    reorgConf.OldIdxLenSize,
		HashAlgorithm: reorgConf.OldHashAlgorithm,
		Logger:        reorgConf.Logger,
	})
	if err != nil {
		return
	}
	defer func() {
		if cErr := from.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	// Sort out new settings and also make sure there are any changes at all (unless force flag has already overridden that)
	hasChanges := force
	toConf := Config{
		Name:            name + conf.ReorgSuffix,
		NumberOfBuckets: fromDBInfo.NumberOfBuckets,
		PointerSize:     fromDBInfo.PointerSize,
		IdxLenSize:      fromDBInfo.IdxLenSize,
		ForceRecreate:   true,
		DisableSync:     true, // synced once by Close
		HashAlgorithm:   reorgConf.NewHashAlgorithm,
		Logger:          reorgConf.Logger,
	}
	if reorgConf.NumberOfBuckets > 0 && reorgConf.NumberOfBuckets != fromDBInfo.NumberOfBuckets {
		toConf.NumberOfBuckets = reorgConf.NumberOfBuckets
		hasChanges = true
	}
	if reorgConf.PointerSize > 0 && reorgConf.PointerSize != fromDBInfo.PointerSize {
		toConf.PointerSize = reorgConf.PointerSize
		hasChanges = true
	}
	if reorgConf.IdxLenSize > 0 && reorgConf.IdxLenSize != fromDBInfo.IdxLenSize {
		toConf.IdxLenSize = reorgConf.IdxLenSize
		hasChanges = true
	}
	if reorgConf.NewHashAlgorithm != nil || !fromDBInfo.InternalAlgorithm {
		hasChanges = true
	}
	if !hasChanges {
		return
	}

	to, _, err := Open(toConf)
	if err != nil {
		return
	}
	defer func() {
		if cErr := to.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	err = reorgRecords(from, to)
	if err != nil {
		return
	}

	toDBInfo, err = to.Info()
	if err != nil {
		return
	}

	from.logger.Info("database reorganized",
		"to", toConf.Name,
		"buckets", toDBInfo.NumberOfBuckets,
		"idxFileSize", toDBInfo.IdxFileSize,
		"datFileSize", toDBInfo.DatFileSize)

	return
}

// reorgRecords - Reads bucket by bucket, record by record, and inserts into the new database
func reorgRecords(from *DB, to *DB) (err error) {
	rangeErr := from.Range(func(key, value string) bool {
		err = to.Insert(key, value)
		return err == nil
	})
	if err == nil {
		err = rangeErr
	}

	return
}
