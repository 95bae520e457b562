package filedbm

import (
	"fmt"
	"github.com/gostonefire/filedbm/dbmerrors"
	"github.com/gostonefire/filedbm/hashfunc"
	"github.com/gostonefire/filedbm/internal/conf"
	"github.com/gostonefire/filedbm/internal/hash"
	"github.com/gostonefire/filedbm/internal/model"
	"github.com/gostonefire/filedbm/internal/storage"
	"github.com/gostonefire/filedbm/internal/storage/data"
	"github.com/gostonefire/filedbm/internal/storage/index"
	"github.com/gostonefire/filedbm/internal/utils"
	"log/slog"
	"sync"
	"time"
)

// Config - Parameters used when opening or creating a database.
// NumberOfBuckets, PointerSize and IdxLenSize are fixed when the files are created and must be the same on
// every later open, a zero value means the default (or, for NumberOfBuckets on open, whatever the header says).
//   - Name is the base name of the database, ".idx" and ".dat" are appended to form the file names
//   - NumberOfBuckets is the size of the hash table, default 256
//   - PointerSize is the width in digits of every pointer field, default 7
//   - IdxLenSize is the width in digits of the payload length field, default 4
//   - ForceRecreate set to true truncates any existing files and writes a fresh header
//   - LockTimeout is the max time to wait for a file lock, default 5 seconds
//   - DisableSync set to true skips the fsync after each data and index append
//   - HashAlgorithm is an optional custom bucket selection algorithm, nil gives the positional sum algorithm
//   - Logger is an optional structured logger, nil discards all logging
type Config struct {
	Name            string
	NumberOfBuckets int64
	PointerSize     int64
	IdxLenSize      int64
	ForceRecreate   bool
	LockTimeout     time.Duration
	DisableSync     bool
	HashAlgorithm   hashfunc.HashAlgorithm
	Logger          *slog.Logger
}

// DBInfo - Information about an opened database
//   - Name is the base name of the database
//   - NumberOfBuckets is the size of the hash table
//   - PointerSize is the width of pointer fields
//   - IdxLenSize is the width of payload length fields
//   - IdxFileSize is the size of the index file in bytes
//   - DatFileSize is the size of the data file in bytes
//   - Created is true if the files were created (or recreated) by the open call
//   - InternalAlgorithm is true if the built-in hash algorithm is used
type DBInfo struct {
	Name              string
	NumberOfBuckets   int64
	PointerSize       int64
	IdxLenSize        int64
	IdxFileSize       int64
	DatFileSize       int64
	Created           bool
	InternalAlgorithm bool
}

// DB - The main implementation struct, a handle on one pair of index and data files.
// A DB may be shared between goroutines, and any number of DB handles (in this or other processes) may have the
// same files open at the same time. Coordination happens solely through file locks.
type DB struct {
	name              string
	idxFile           *index.IdxFile
	datFile           *data.DatFile
	layout            model.Layout
	hashAlgorithm     hashfunc.HashAlgorithm
	internalAlgorithm bool
	logger            *slog.Logger
	created           bool
	mu                sync.RWMutex
	closed            bool
}

// OpenOrCreate - Opens the named database if both of its files exist, otherwise creates it. Defaults are used
// for everything but the number of buckets.
//   - name is the base name of the database
//   - numberOfBuckets is the hash table size for a new database, zero gives the default for a new database and accepts whatever an existing one has
//   - forceRecreate set to true destroys any existing contents
//
// It returns:
//   - db is a pointer to the open database
//   - err is of type dbmerrors.InvalidArgument, dbmerrors.FormatError, dbmerrors.LockTimeout or a standard error
func OpenOrCreate(name string, numberOfBuckets int64, forceRecreate bool) (db *DB, err error) {
	db, _, err = Open(Config{
		Name:            name,
		NumberOfBuckets: numberOfBuckets,
		ForceRecreate:   forceRecreate,
	})

	return
}

// Open - Opens or creates a database as given by dbConf.
// If both files exist and ForceRecreate is false they are opened read/write without truncation and the index
// header is validated. Otherwise both files are created fresh and the header is written under an exclusive lock.
//   - dbConf is the configuration, see Config
//
// It returns:
//   - db is a pointer to the open database, close it with Close, preferably in a "defer" directly after the call
//   - dbInfo holds information about the database opened
//   - err is of type dbmerrors.InvalidArgument, dbmerrors.FormatError, dbmerrors.LockTimeout or a standard error
func Open(dbConf Config) (db *DB, dbInfo DBInfo, err error) {
	dbConf, err = resolveConfig(dbConf)
	if err != nil {
		return
	}

	var idxFile *index.IdxFile
	var datFile *data.DatFile
	created := dbConf.ForceRecreate || !storage.FilesExist(dbConf.Name)
	if created {
		idxFile, datFile, err = createFiles(dbConf)
	} else {
		idxFile, datFile, err = openFiles(dbConf)
	}
	if err != nil {
		return
	}

	layout := idxFile.Layout()
	hashAlgorithm := dbConf.HashAlgorithm
	internalAlgorithm := hashAlgorithm == nil
	if internalAlgorithm {
		hashAlgorithm = hash.NewPositionalSumAlgorithm(layout.NumberOfBuckets)
	} else {
		hashAlgorithm.SetTableSize(layout.NumberOfBuckets)
	}

	db = &DB{
		name:              dbConf.Name,
		idxFile:           idxFile,
		datFile:           datFile,
		layout:            layout,
		hashAlgorithm:     hashAlgorithm,
		internalAlgorithm: internalAlgorithm,
		logger:            dbConf.Logger.With("db", dbConf.Name),
		created:           created,
	}

	dbInfo, err = db.Info()
	if err != nil {
		_ = db.Close()
		db = nil
		return
	}

	db.logger.Info("database opened",
		"created", created,
		"buckets", layout.NumberOfBuckets,
		"idxFileSize", dbInfo.IdxFileSize,
		"datFileSize", dbInfo.DatFileSize)

	return
}

// Info - Returns information about the database
func (D *DB) Info() (dbInfo DBInfo, err error) {
	done, err := D.use()
	if err != nil {
		return
	}
	defer done()

	idxSize, err := D.idxFile.Size()
	if err != nil {
		return
	}
	datSize, err := D.datFile.Size()
	if err != nil {
		return
	}

	dbInfo = DBInfo{
		Name:              D.name,
		NumberOfBuckets:   D.layout.NumberOfBuckets,
		PointerSize:       D.layout.PointerSize,
		IdxLenSize:        D.layout.IdxLenSize,
		IdxFileSize:       idxSize,
		DatFileSize:       datSize,
		Created:           D.created,
		InternalAlgorithm: D.internalAlgorithm,
	}

	return
}

// Close - Flushes and closes both files, which releases every lock held through them.
// Operations called after Close return an error of type dbmerrors.InvalidArgument, calling Close again is a no-op.
func (D *DB) Close() (err error) {
	D.mu.Lock()
	defer D.mu.Unlock()

	if D.closed {
		return
	}
	D.closed = true

	err = D.idxFile.Close()
	if dErr := D.datFile.Close(); dErr != nil && err == nil {
		err = dErr
	}

	D.logger.Info("database closed")

	return
}

// RemoveFiles - Closes the database and removes both of its files
func (D *DB) RemoveFiles() (err error) {
	err = D.Close()
	if err != nil {
		return
	}

	err = storage.RemoveFiles(D.name)
	if err != nil {
		return
	}

	D.logger.Info("database files removed")

	return
}

// use - Guards an operation against a concurrent Close, done must be called when the operation has finished
func (D *DB) use() (done func(), err error) {
	D.mu.RLock()
	if D.closed {
		D.mu.RUnlock()
		err = dbmerrors.NewInvalidArgument("database %s is closed", D.name)
		return
	}

	done = D.mu.RUnlock

	return
}

// resolveConfig - Validates dbConf and fills in defaults
func resolveConfig(dbConf Config) (resolved Config, err error) {
	resolved = dbConf

	if resolved.Name == "" {
		err = dbmerrors.NewInvalidArgument("name can not be empty, it will be used to name physical files")
		return
	}
	if resolved.NumberOfBuckets < 0 {
		err = dbmerrors.NewInvalidArgument("number of buckets can not be negative, got %d", resolved.NumberOfBuckets)
		return
	}
	if resolved.LockTimeout < 0 {
		err = dbmerrors.NewInvalidArgument("lock timeout can not be negative, got %s", resolved.LockTimeout)
		return
	}

	if resolved.PointerSize == 0 {
		resolved.PointerSize = conf.DefaultPointerSize
	}
	if resolved.IdxLenSize == 0 {
		resolved.IdxLenSize = conf.DefaultIdxLenSize
	}
	if resolved.LockTimeout == 0 {
		resolved.LockTimeout = conf.DefaultLockTimeout
	}
	if resolved.Logger == nil {
		resolved.Logger = slog.New(slog.DiscardHandler)
	}

	err = utils.ValidateWidth("pointer size", resolved.PointerSize)
	if err != nil {
		return
	}
	err = utils.ValidateWidth("index length size", resolved.IdxLenSize)

	return
}

// createFiles - Creates both files fresh and writes the index header
func createFiles(dbConf Config) (idxFile *index.IdxFile, datFile *data.DatFile, err error) {
	numberOfBuckets := dbConf.NumberOfBuckets
	if numberOfBuckets == 0 {
		numberOfBuckets = conf.DefaultNumberOfBuckets
	}

	layout := model.Layout{
		NumberOfBuckets: numberOfBuckets,
		PointerSize:     dbConf.PointerSize,
		IdxLenSize:      dbConf.IdxLenSize,
	}
	if int64(layout.RecordsStart()) > layout.MaxPointer() {
		err = dbmerrors.NewInvalidArgument("a pointer size of %d can not address records beyond a header of %d buckets", layout.PointerSize, numberOfBuckets)
		return
	}

	if storage.AnyFileExists(dbConf.Name) {
		dbConf.Logger.Warn("recreating database, existing contents are discarded", "db", dbConf.Name)
	}

	idxFile, err = index.Create(dbConf.Name, layout, dbConf.LockTimeout, !dbConf.DisableSync)
	if err != nil {
		return
	}

	datFile, err = data.Create(dbConf.Name, dbConf.LockTimeout, !dbConf.DisableSync)
	if err != nil {
		_ = idxFile.Close()
		idxFile = nil
	}

	return
}

// openFiles - Opens both existing files and validates the index header against dbConf
func openFiles(dbConf Config) (idxFile *index.IdxFile, datFile *data.DatFile, err error) {
	idxFile, err = index.Open(dbConf.Name, dbConf.PointerSize, dbConf.IdxLenSize, dbConf.LockTimeout, !dbConf.DisableSync)
	if err != nil {
		return
	}

	numberOfBuckets := idxFile.Layout().NumberOfBuckets
	if dbConf.NumberOfBuckets != 0 && dbConf.NumberOfBuckets != numberOfBuckets {
		_ = idxFile.Close()
		idxFile = nil
		err = dbmerrors.NewInvalidArgument("database %s has %d buckets, %d requested", dbConf.Name, numberOfBuckets, dbConf.NumberOfBuckets)
		return
	}

	datFile, err = data.Open(dbConf.Name, dbConf.LockTimeout, !dbConf.DisableSync)
	if err != nil {
		_ = idxFile.Close()
		idxFile = nil
		err = fmt.Errorf("error while opening data file of %s: %w", dbConf.Name, err)
	}

	return
}
