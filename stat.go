package filedbm

import (
	"fmt"
	"github.com/dustin/go-humanize"
	"github.com/gostonefire/filedbm/internal/chain"
	"github.com/gostonefire/filedbm/internal/model"
)

// DBStat - Statistics on the overall usage and distribution over buckets
//   - Records is the number of live records
//   - RecordSlots is the number of index records in the file, live records and tombstones alike
//   - Tombstones is the number of index records that have been deleted
//   - EmptyBuckets is the number of buckets with an empty chain
//   - LongestChain is the number of live records in the longest chain
//   - IdxFileSize is the size of the index file in bytes
//   - DatFileSize is the size of the data file in bytes
//   - BucketDistribution is the number of live records in each bucket
type DBStat struct {
	Records            int64
	RecordSlots        int64
	Tombstones         int64
	EmptyBuckets       int64
	LongestChain       int64
	IdxFileSize        int64
	DatFileSize        int64
	BucketDistribution []int64
}

// Stat - Walks through the entire set of buckets and produce a DBStat struct with information.
// Each bucket is share locked while its chain is walked, so the figures are consistent per bucket but not
// necessarily across buckets if other handles are writing at the same time.
// If the index file is very big this can take a considerable amount of time and the DBStat.BucketDistribution
// slice can be memory heavy (there will be one entry per bucket).
//   - includeDistribution set to true will include a slice of length NumberOfBuckets with number of records per bucket, false will set DBStat.BucketDistribution to nil.
func (D *DB) Stat(includeDistribution bool) (dbStat *DBStat, err error) {
	done, err := D.use()
	if err != nil {
		return
	}
	defer done()

	var stat DBStat
	if includeDistribution {
		stat.BucketDistribution = make([]int64, D.layout.NumberOfBuckets)
	}

	var n int64
	for i := int64(0); i < D.layout.NumberOfBuckets; i++ {
		n, err = D.chainLength(i)
		if err != nil {
			return
		}

		stat.Records += n
		if n == 0 {
			stat.EmptyBuckets++
		}
		if n > stat.LongestChain {
			stat.LongestChain = n
		}
		if includeDistribution {
			stat.BucketDistribution[i] = n
		}
	}

	err = D.idxFile.ScanRecords(func(record model.IndexRecord) bool {
		stat.RecordSlots++
		return true
	})
	if err != nil {
		return
	}
	stat.Tombstones = max(stat.RecordSlots-stat.Records, 0)

	stat.IdxFileSize, err = D.idxFile.Size()
	if err != nil {
		return
	}
	stat.DatFileSize, err = D.datFile.Size()
	if err != nil {
		return
	}

	dbStat = &stat

	return
}

// String - Renders the statistics on one line with human readable numbers
func (S *DBStat) String() string {
	return fmt.Sprintf("records: %s, tombstones: %s, empty buckets: %s, longest chain: %s, index file: %s, data file: %s",
		humanize.Comma(S.Records),
		humanize.Comma(S.Tombstones),
		humanize.Comma(S.EmptyBuckets),
		humanize.Comma(S.LongestChain),
		humanize.Bytes(uint64(S.IdxFileSize)),
		humanize.Bytes(uint64(S.DatFileSize)))
}

// chainLength - Counts the records of the chain of bucketNo under a shared bucket lock
func (D *DB) chainLength(bucketNo int64) (n int64, err error) {
	unlock, err := D.lockBucket(bucketNo, false)
	if err != nil {
		return
	}
	defer func() {
		if uErr := unlock(); uErr != nil && err == nil {
			err = uErr
		}
	}()

	var iter *chain.Iterator
	iter, err = D.chainIterator(bucketNo)
	if err != nil {
		return
	}

	for iter.HasNext() {
		_, err = iter.Next()
		if err != nil {
			return
		}
		n++
	}

	return
}
