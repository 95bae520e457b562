//go:build integration

package filedbm

import (
	"fmt"
	"github.com/gostonefire/filedbm/dbmerrors"
	"github.com/gostonefire/filedbm/hashfunc"
	"github.com/gostonefire/filedbm/internal/storage"
	"github.com/stretchr/testify/assert"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// outOfRangeHash - Hash algorithm that always misses the table
type outOfRangeHash struct {
	tableSize int64
}

func (O *outOfRangeHash) SetTableSize(tableSize int64) { O.tableSize = tableSize }
func (O *outOfRangeHash) HashFunc(_ []byte) int64 { return O.tableSize }
func (O *outOfRangeHash) GetTableSize() int64 { return O.tableSize }

func TestDB_Insert(t *testing.T) {
	t.Run("inserts records that can be fetched", func(t *testing.T) {
		// Prepare
		db, _ := newTestDB(t, 256)

		// Execute
		err := db.Insert("hello", "world")

		// Check
		assert.NoError(t, err, "inserts")
		value, err := db.Fetch("hello")
		assert.NoError(t, err, "fetches")
		assert.Equal(t, "world", value, "round trip")
	})

	t.Run("writes bit exact files", func(t *testing.T) {
		// Prepare
		db, name := newTestDB(t, 1)

		// Execute
		err := db.Insert("hello", "world")

		// Check
		assert.NoError(t, err, "inserts")
		idx, err := os.ReadFile(storage.GetIdxFileName(name))
		assert.NoError(t, err, "reads index file")
		assert.Equal(t, "00000000000015\n00000000010hello:0:5\n", string(idx), "index file")
		dat, err := os.ReadFile(storage.GetDatFileName(name))
		assert.NoError(t, err, "reads data file")
		assert.Equal(t, "world\n", string(dat), "data file")

		// Execute
		err = db.Insert("hero", "superman")

		// Check
		assert.NoError(t, err, "inserts")
		idx, err = os.ReadFile(storage.GetIdxFileName(name))
		assert.NoError(t, err, "reads index file")
		assert.Equal(t, "00000000000036\n00000000010hello:0:5\n00000150009hero:6:8\n", string(idx), "new head links to old head")
	})

	t.Run("rejects duplicate keys and keeps the first value", func(t *testing.T) {
		// Prepare
		db, _ := newTestDB(t, 256)
		assert.NoError(t, db.Insert("key", "first"), "inserts")

		// Execute
		err := db.Insert("key", "second")

		// Check
		assert.ErrorIs(t, err, dbmerrors.DuplicateKey{}, "duplicate rejected")
		value, err := db.Fetch("key")
		assert.NoError(t, err, "fetches")
		assert.Equal(t, "first", value, "first value kept")
	})

	t.Run("rejects invalid keys and values without touching the files", func(t *testing.T) {
		// Prepare
		db, _ := newTestDB(t, 16)
		before, err := db.Info()
		assert.NoError(t, err, "gets info")

		tests := []struct {
			desc  string
			key   string
			value string
		}{
			{desc: "empty key", key: "", value: "v"},
			{desc: "empty value", key: "k", value: ""},
			{desc: "colon in key", key: "k:1", value: "v"},
			{desc: "newline in key", key: "k\n", value: "v"},
			{desc: "colon in value", key: "k", value: "a:b"},
			{desc: "newline in value", key: "k", value: "a\nb"},
		}

		for _, test := range tests {
			// Execute
			err = db.Insert(test.key, test.value)

			// Check
			assert.ErrorIs(t, err, dbmerrors.InvalidArgument{}, test.desc)
		}

		after, err := db.Info()
		assert.NoError(t, err, "gets info")
		assert.Equal(t, before, after, "files unchanged")
	})

	t.Run("leaves no reachable record when the index record does not fit", func(t *testing.T) {
		// Prepare
		name := filepath.Join(t.TempDir(), "test")
		db, _, err := Open(Config{Name: name, NumberOfBuckets: 1, IdxLenSize: 1})
		assert.NoError(t, err, "creates database")
		defer func() { _ = db.Close() }()

		// Execute
		err = db.Insert("longkey", "v")

		// Check
		assert.ErrorIs(t, err, dbmerrors.FormatError{}, "payload does not fit the length field")
		_, err = db.Fetch("longkey")
		assert.ErrorIs(t, err, dbmerrors.NoRecordFound{}, "record not reachable")
		assert.NoError(t, db.Insert("k", "v"), "database still usable")
	})

	t.Run("reports a hash algorithm going out of range", func(t *testing.T) {
		// Prepare
		name := filepath.Join(t.TempDir(), "test")
		db, _, err := Open(Config{Name: name, NumberOfBuckets: 4, HashAlgorithm: &outOfRangeHash{}})
		assert.NoError(t, err, "creates database")
		defer func() { _ = db.Close() }()

		// Execute
		err = db.Insert("k", "v")

		// Check
		assert.Error(t, err, "bucket out of range")
	})
}

func TestDB_Fetch(t *testing.T) {
	t.Run("not found for keys never inserted or already deleted", func(t *testing.T) {
		// Prepare
		db, _ := newTestDB(t, 8)
		assert.NoError(t, db.Insert("gone", "soon"), "inserts")
		assert.NoError(t, db.Delete("gone"), "deletes")

		// Execute
		_, errNever := db.Fetch("never")
		_, errGone := db.Fetch("gone")

		// Check
		assert.ErrorIs(t, errNever, dbmerrors.NoRecordFound{}, "never inserted")
		assert.ErrorIs(t, errGone, dbmerrors.NoRecordFound{}, "already deleted")
	})

	t.Run("rejects an invalid key", func(t *testing.T) {
		// Prepare
		db, _ := newTestDB(t, 8)

		// Execute
		_, err := db.Fetch("")

		// Check
		assert.ErrorIs(t, err, dbmerrors.InvalidArgument{}, "empty key")
	})

	t.Run("reports a truncated data file as a format error", func(t *testing.T) {
		// Prepare
		db, name := newTestDB(t, 8)
		assert.NoError(t, db.Insert("key", "value"), "inserts")
		assert.NoError(t, os.Truncate(storage.GetDatFileName(name), 3), "truncates data file")

		// Execute
		_, err := db.Fetch("key")

		// Check
		assert.ErrorIs(t, err, dbmerrors.FormatError{}, "truncated value")
	})

	t.Run("reports corrupt size fields as format errors", func(t *testing.T) {
		// Prepare
		records := map[string]string{
			"largest data size": "00000000024a:0:9223372036854775807\n",
			"huge data size":    "00000000020a:0:999999999999999\n",
		}

		for desc, record := range records {
			name := filepath.Join(t.TempDir(), "test")
			assert.NoError(t, os.WriteFile(storage.GetIdxFileName(name), []byte("00000000000015\n"+record), 0644), desc)
			assert.NoError(t, os.WriteFile(storage.GetDatFileName(name), []byte("x\n"), 0644), desc)

			db, _, err := Open(Config{Name: name})
			assert.NoError(t, err, desc)
			if err != nil {
				continue
			}

			// Execute
			_, fetchErr := db.Fetch("a")
			deleteErr := db.Delete("a")
			insertErr := db.Insert("b", "y")

			// Check
			assert.ErrorIs(t, fetchErr, dbmerrors.FormatError{}, desc)
			assert.NoError(t, deleteErr, "index record itself is intact, "+desc)
			assert.NoError(t, insertErr, "other operations are unaffected, "+desc)

			// Clean up
			assert.NoError(t, db.Close(), desc)
		}
	})

	t.Run("detects a cycle in a chain", func(t *testing.T) {
		// Prepare
		db, _ := newTestDB(t, 1)
		assert.NoError(t, db.Insert("a", "x"), "inserts")
		head := db.layout.RecordsStart()
		assert.NoError(t, db.idxFile.OverwritePointer(head, head), "links record to itself")

		// Execute
		_, fetchErr := db.Fetch("b")
		insertErr := db.Insert("b", "y")
		deleteErr := db.Delete("b")

		// Check
		assert.ErrorIs(t, fetchErr, dbmerrors.FormatError{}, "fetch detects cycle")
		assert.ErrorIs(t, insertErr, dbmerrors.FormatError{}, "insert detects cycle")
		assert.ErrorIs(t, deleteErr, dbmerrors.FormatError{}, "delete detects cycle")
	})
}

func TestDB_Delete(t *testing.T) {
	t.Run("not found for keys never inserted or already deleted", func(t *testing.T) {
		// Prepare
		db, _ := newTestDB(t, 8)
		assert.NoError(t, db.Insert("gone", "soon"), "inserts")

		// Execute
		errFirst := db.Delete("gone")
		errSecond := db.Delete("gone")
		errNever := db.Delete("never")

		// Check
		assert.NoError(t, errFirst, "deletes")
		assert.ErrorIs(t, errSecond, dbmerrors.NoRecordFound{}, "already deleted")
		assert.ErrorIs(t, errNever, dbmerrors.NoRecordFound{}, "never inserted")
	})

	t.Run("keeps chain order when unlinking the head", func(t *testing.T) {
		// Prepare
		db, _ := newTestDB(t, 1)
		assert.NoError(t, db.Insert("k1", "v1"), "inserts k1")
		assert.NoError(t, db.Insert("k2", "v2"), "inserts k2")

		// Execute
		err := db.Delete("k2")

		// Check
		assert.NoError(t, err, "deletes k2")
		value, err := db.Fetch("k1")
		assert.NoError(t, err, "k1 still fetchable")
		assert.Equal(t, "v1", value, "k1 value")

		assert.NoError(t, db.Delete("k1"), "deletes k1")
		assert.NoError(t, db.Insert("k2", "v2 again"), "reinserts k2")
		value, err = db.Fetch("k2")
		assert.NoError(t, err, "k2 fetchable")
		assert.Equal(t, "v2 again", value, "new k2 value")
		_, err = db.Fetch("k1")
		assert.ErrorIs(t, err, dbmerrors.NoRecordFound{}, "k1 not fetchable")
	})

	t.Run("unlinks from the middle and the tail of a chain", func(t *testing.T) {
		// Prepare
		db, _ := newTestDB(t, 1)
		for _, key := range []string{"tail", "middle", "head"} {
			assert.NoError(t, db.Insert(key, key+"-value"), "inserts")
		}

		// Execute
		errMiddle := db.Delete("middle")
		errTail := db.Delete("tail")

		// Check
		assert.NoError(t, errMiddle, "deletes middle")
		assert.NoError(t, errTail, "deletes tail")
		value, err := db.Fetch("head")
		assert.NoError(t, err, "head remains")
		assert.Equal(t, "head-value", value, "head value")
		stat, err := db.Stat(false)
		assert.NoError(t, err, "gets stat")
		assert.Equal(t, int64(1), stat.Records, "one live record")
		assert.Equal(t, int64(2), stat.Tombstones, "two tombstones")
	})
}

func TestDB_ForcedCollision(t *testing.T) {
	t.Run("all keys in one bucket", func(t *testing.T) {
		// Prepare
		db, _ := newTestDB(t, 1)
		records := map[string]string{"hello": "world", "hero": "superman", "greece": "parthenon"}
		for _, key := range []string{"hello", "hero", "greece"} {
			assert.NoError(t, db.Insert(key, records[key]), "inserts")
		}

		for key, expected := range records {
			value, err := db.Fetch(key)
			assert.NoError(t, err, "fetches")
			assert.Equal(t, expected, value, "correct value")
		}

		// Execute
		err := db.Delete("hello")

		// Check
		assert.NoError(t, err, "deletes hello")
		_, err = db.Fetch("hello")
		assert.ErrorIs(t, err, dbmerrors.NoRecordFound{}, "hello gone")

		value, err := db.Fetch("hero")
		assert.NoError(t, err, "hero remains")
		assert.Equal(t, "superman", value, "hero value")
		value, err = db.Fetch("greece")
		assert.NoError(t, err, "greece remains")
		assert.Equal(t, "parthenon", value, "greece value")

		assert.NoError(t, db.Insert("hello", "doge"), "reinserts hello")
		value, err = db.Fetch("hello")
		assert.NoError(t, err, "hello back")
		assert.Equal(t, "doge", value, "new hello value")
	})
}

func TestDB_RandomOperations(t *testing.T) {
	t.Run("every live key fetches its value after interleaved inserts and deletes", func(t *testing.T) {
		// Prepare
		db, name := newTestDB(t, 16)
		rng := rand.New(rand.NewSource(4711))
		live := make(map[string]string)
		const keySpace = 300

		// Execute
		for i := 0; i < 3000; i++ {
			key := fmt.Sprintf("key%d", rng.Intn(keySpace))
			_, isLive := live[key]
			switch {
			case isLive && rng.Intn(2) == 0:
				assert.NoError(t, db.Delete(key), "deletes live key")
				delete(live, key)
			case isLive:
				assert.ErrorIs(t, db.Insert(key, "other"), dbmerrors.DuplicateKey{}, "duplicate")
			default:
				value := fmt.Sprintf("value%d", rng.Int63())
				assert.NoError(t, db.Insert(key, value), "inserts")
				live[key] = value
			}
		}

		// Check
		for i := 0; i < keySpace; i++ {
			key := fmt.Sprintf("key%d", i)
			value, err := db.Fetch(key)
			if expected, ok := live[key]; ok {
				assert.NoError(t, err, "fetches live key")
				assert.Equal(t, expected, value, "correct value")
			} else {
				assert.ErrorIs(t, err, dbmerrors.NoRecordFound{}, "dead key not found")
			}
		}

		// Same picture after reopening
		assert.NoError(t, db.Close(), "closes")
		reopened, _, err := Open(Config{Name: name})
		assert.NoError(t, err, "reopens")
		defer func() { _ = reopened.Close() }()

		stat, err := reopened.Stat(false)
		assert.NoError(t, err, "gets stat")
		assert.Equal(t, int64(len(live)), stat.Records, "live records")
		for key, expected := range live {
			value, fErr := reopened.Fetch(key)
			assert.NoError(t, fErr, "fetches live key")
			assert.Equal(t, expected, value, "correct value")
		}
	})
}

func TestDB_GetBucketNo(t *testing.T) {
	t.Run("uses the positional sum by default", func(t *testing.T) {
		// Prepare
		db, _ := newTestDB(t, 256)

		// Execute
		bucketNo, err := db.GetBucketNo("hello")

		// Check
		assert.NoError(t, err, "gets bucket")
		assert.Equal(t, int64(81), bucketNo, "bucket of hello")
	})
}

func TestDB_Stat(t *testing.T) {
	t.Run("counts records, tombstones and buckets", func(t *testing.T) {
		// Prepare
		db, _ := newTestDB(t, 4)
		for i, key := range []string{"a", "b", "c", "e"} {
			assert.NoError(t, db.Insert(key, fmt.Sprint(i)), "inserts")
		}
		assert.NoError(t, db.Delete("b"), "deletes")

		// Execute
		stat, err := db.Stat(true)

		// Check
		assert.NoError(t, err, "gets stat")
		assert.Equal(t, int64(3), stat.Records, "live records")
		assert.Equal(t, int64(4), stat.RecordSlots, "record slots")
		assert.Equal(t, int64(1), stat.Tombstones, "tombstones")
		assert.Equal(t, int64(2), stat.EmptyBuckets, "empty buckets")
		assert.Equal(t, int64(2), stat.LongestChain, "longest chain")
		assert.Equal(t, []int64{0, 2, 0, 1}, stat.BucketDistribution, "distribution")
		assert.Equal(t, int64(5*7+1+4*17), stat.IdxFileSize, "index file size")
		assert.Equal(t, int64(8), stat.DatFileSize, "data file size")
		assert.Equal(t, "records: 3, tombstones: 1, empty buckets: 2, longest chain: 2, index file: 104 B, data file: 8 B", stat.String(), "rendered")
	})

	t.Run("leaves out the distribution when not asked for", func(t *testing.T) {
		// Prepare
		db, _ := newTestDB(t, 4)

		// Execute
		stat, err := db.Stat(false)

		// Check
		assert.NoError(t, err, "gets stat")
		assert.Nil(t, stat.BucketDistribution, "no distribution")
		assert.Equal(t, int64(4), stat.EmptyBuckets, "all buckets empty")
	})
}

func TestDB_Range(t *testing.T) {
	t.Run("visits live records bucket by bucket, newest first", func(t *testing.T) {
		// Prepare
		db, _ := newTestDB(t, 4)
		for _, key := range []string{"a", "b", "c", "e"} {
			assert.NoError(t, db.Insert(key, key+"-value"), "inserts")
		}
		assert.NoError(t, db.Delete("b"), "deletes")

		// Execute
		var keys []string
		err := db.Range(func(key, value string) bool {
			assert.Equal(t, key+"-value", value, "value matches key")
			keys = append(keys, key)
			return true
		})

		// Check
		assert.NoError(t, err, "ranges")
		assert.Equal(t, []string{"e", "a", "c"}, keys, "visit order")
	})

	t.Run("stops when asked to", func(t *testing.T) {
		// Prepare
		db, _ := newTestDB(t, 4)
		for _, key := range []string{"a", "c", "e"} {
			assert.NoError(t, db.Insert(key, key), "inserts")
		}

		// Execute
		var n int
		err := db.Range(func(key, value string) bool {
			n++
			return false
		})

		// Check
		assert.NoError(t, err, "ranges")
		assert.Equal(t, 1, n, "one visit")
	})

	t.Run("allows mutation from the callback", func(t *testing.T) {
		// Prepare
		db, _ := newTestDB(t, 4)
		for _, key := range []string{"a", "c", "e"} {
			assert.NoError(t, db.Insert(key, key), "inserts")
		}

		// Execute
		err := db.Range(func(key, value string) bool {
			return db.Delete(key) == nil
		})

		// Check
		assert.NoError(t, err, "ranges")
		stat, err := db.Stat(false)
		assert.NoError(t, err, "gets stat")
		assert.Equal(t, int64(0), stat.Records, "everything deleted")
	})
}

func TestReorg(t *testing.T) {
	t.Run("copies live records into a new bucket count", func(t *testing.T) {
		// Prepare
		db, name := newTestDB(t, 4)
		for _, key := range []string{"a", "b", "c", "e"} {
			assert.NoError(t, db.Insert(key, key+"-value"), "inserts")
		}
		assert.NoError(t, db.Delete("b"), "deletes")
		assert.NoError(t, db.Close(), "closes")

		// Execute
		from, to, err := Reorg(name, ReorgConf{NumberOfBuckets: 16}, false)

		// Check
		assert.NoError(t, err, "reorganizes")
		assert.Equal(t, int64(4), from.NumberOfBuckets, "old bucket count")
		assert.Equal(t, int64(16), to.NumberOfBuckets, "new bucket count")
		assert.Equal(t, name+"-reorg", to.Name, "new name")

		reorged, _, err := Open(Config{Name: name + "-reorg"})
		assert.NoError(t, err, "opens new database")
		defer func() { _ = reorged.Close() }()

		for _, key := range []string{"a", "c", "e"} {
			value, fErr := reorged.Fetch(key)
			assert.NoError(t, fErr, "fetches")
			assert.Equal(t, key+"-value", value, "value copied")
		}
		_, err = reorged.Fetch("b")
		assert.ErrorIs(t, err, dbmerrors.NoRecordFound{}, "deleted record not copied")

		stat, err := reorged.Stat(false)
		assert.NoError(t, err, "gets stat")
		assert.Equal(t, int64(0), stat.Tombstones, "no tombstones")

		assert.True(t, storage.FilesExist(name), "original files kept")
	})

	t.Run("does nothing without changes unless forced", func(t *testing.T) {
		// Prepare
		db, name := newTestDB(t, 4)
		assert.NoError(t, db.Insert("a", "1"), "inserts")
		assert.NoError(t, db.Close(), "closes")

		// Execute
		from, to, err := Reorg(name, ReorgConf{NumberOfBuckets: 4}, false)

		// Check
		assert.NoError(t, err, "nothing to do")
		assert.Equal(t, int64(4), from.NumberOfBuckets, "from info")
		assert.Equal(t, DBInfo{}, to, "no new database")
		assert.False(t, storage.AnyFileExists(name+"-reorg"), "no files created")

		// Execute
		_, to, err = Reorg(name, ReorgConf{}, true)

		// Check
		assert.NoError(t, err, "forced reorganization")
		assert.Equal(t, int64(4), to.NumberOfBuckets, "same bucket count")
		assert.True(t, storage.FilesExist(name+"-reorg"), "files created")
	})

	t.Run("switches hash algorithm", func(t *testing.T) {
		// Prepare
		db, name := newTestDB(t, 8)
		for i := 0; i < 50; i++ {
			assert.NoError(t, db.Insert(fmt.Sprintf("key-%d", i), fmt.Sprintf("value-%d", i)), "inserts")
		}
		assert.NoError(t, db.Close(), "closes")

		// Execute
		_, to, err := Reorg(name, ReorgConf{NewHashAlgorithm: hashfunc.NewCRC32HashAlgorithm(0)}, false)

		// Check
		assert.NoError(t, err, "reorganizes")
		assert.False(t, to.InternalAlgorithm, "custom algorithm")

		reorged, _, err := Open(Config{Name: name + "-reorg", HashAlgorithm: hashfunc.NewCRC32HashAlgorithm(0)})
		assert.NoError(t, err, "opens new database")
		defer func() { _ = reorged.Close() }()

		for i := 0; i < 50; i++ {
			value, fErr := reorged.Fetch(fmt.Sprintf("key-%d", i))
			assert.NoError(t, fErr, "fetches")
			assert.Equal(t, fmt.Sprintf("value-%d", i), value, "value copied")
		}
	})

	t.Run("fails for a database that does not exist", func(t *testing.T) {
		// Execute
		_, _, err := Reorg(filepath.Join(t.TempDir(), "missing"), ReorgConf{}, true)

		// Check
		assert.ErrorIs(t, err, dbmerrors.InvalidArgument{}, "no database")
	})
}
