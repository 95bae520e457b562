package flock

import (
	"errors"
	"fmt"
	"github.com/gostonefire/filedbm/dbmerrors"
	"github.com/gostonefire/filedbm/internal/conf"
	"golang.org/x/sys/unix"
	"os"
	"sync"
	"time"
)

// Region - A byte range of a file to lock. A Len of zero extends the range to the end of the file, including
// bytes appended later.
type Region struct {
	Start int64
	Len   int64
}

// Unlock - Releases a lock acquired through Locker.Lock. Calling it more than once is a no-op.
type Unlock func() error

// Locker - Byte range locking on one open file. Locks are fcntl record locks, so they coordinate with every
// other handle on the same file, and each region also carries an in-process sync.RWMutex so goroutines
// sharing the handle exclude each other as well.
type Locker struct {
	file    *os.File
	timeout time.Duration
	mu      sync.Mutex
	regions map[Region]*regionLock
}

type regionLock struct {
	rw      sync.RWMutex
	refs    int
	readers int
}

// NewLocker - Returns a pointer to a new Locker for file
//   - file is the open file to lock regions of
//   - timeout is how long Lock keeps retrying before returning dbmerrors.LockTimeout, zero or less gives conf.DefaultLockTimeout
func NewLocker(file *os.File, timeout time.Duration) *Locker {
	if timeout <= 0 {
		timeout = conf.DefaultLockTimeout
	}

	return &Locker{
		file:    file,
		timeout: timeout,
		regions: make(map[Region]*regionLock),
	}
}

// Lock - Locks region, shared or exclusive.
// Acquisition never waits forever, non-blocking attempts are repeated every conf.LockRetryInterval until the
// timeout of the Locker has passed.
//   - region is the byte range to lock
//   - exclusive set to true takes a write lock, false a read lock
//
// It returns:
//   - unlock is the function to release the lock with, it must be called on every exit path (preferably deferred)
//   - err is either of type dbmerrors.LockTimeout or a standard error if the lock could not be set
func (L *Locker) Lock(region Region, exclusive bool) (unlock Unlock, err error) {
	rl := L.ref(region)
	deadline := time.Now().Add(L.timeout)

	var acquired bool
	for {
		if exclusive {
			acquired, err = L.tryExclusive(rl, region)
		} else {
			acquired, err = L.tryShared(rl, region)
		}
		if err != nil {
			L.unref(region)
			err = fmt.Errorf("error while locking %s region %d+%d: %w", L.file.Name(), region.Start, region.Len, err)
			return
		}
		if acquired {
			break
		}
		if !time.Now().Before(deadline) {
			L.unref(region)
			err = dbmerrors.NewLockTimeout("timeout after %s while locking %s region %d+%d", L.timeout, L.file.Name(), region.Start, region.Len)
			return
		}
		time.Sleep(conf.LockRetryInterval)
	}

	var once sync.Once
	unlock = func() (uErr error) {
		once.Do(func() {
			if exclusive {
				uErr = L.releaseExclusive(rl, region)
			} else {
				uErr = L.releaseShared(rl, region)
			}
			L.unref(region)
		})
		return
	}

	return
}

// tryExclusive - One non-blocking attempt at an exclusive lock
func (L *Locker) tryExclusive(rl *regionLock, region Region) (acquired bool, err error) {
	if !rl.rw.TryLock() {
		return
	}

	err = setLock(L.file.Fd(), unix.F_WRLCK, region)
	if err != nil {
		rl.rw.Unlock()
		if isContention(err) {
			err = nil
		}
		return
	}

	acquired = true
	return
}

// tryShared - One non-blocking attempt at a shared lock. The file lock is set by the first reader in this
// process and released by the last.
func (L *Locker) tryShared(rl *regionLock, region Region) (acquired bool, err error) {
	if !rl.rw.TryRLock() {
		return
	}

	L.mu.Lock()
	defer L.mu.Unlock()

	if rl.readers == 0 {
		err = setLock(L.file.Fd(), unix.F_RDLCK, region)
		if err != nil {
			rl.rw.RUnlock()
			if isContention(err) {
				err = nil
			}
			return
		}
	}
	rl.readers++

	acquired = true
	return
}

// releaseExclusive - Releases the file lock and the in-process lock of an exclusive holder
func (L *Locker) releaseExclusive(rl *regionLock, region Region) (err error) {
	err = setLock(L.file.Fd(), unix.F_UNLCK, region)
	rl.rw.Unlock()
	if err != nil {
		err = fmt.Errorf("error while unlocking %s region %d+%d: %w", L.file.Name(), region.Start, region.Len, err)
	}

	return
}

// releaseShared - Releases the in-process lock of a shared holder, and the file lock if it was the last one
func (L *Locker) releaseShared(rl *regionLock, region Region) (err error) {
	L.mu.Lock()
	rl.readers--
	if rl.readers == 0 {
		err = setLock(L.file.Fd(), unix.F_UNLCK, region)
	}
	L.mu.Unlock()
	rl.rw.RUnlock()

	if err != nil {
		err = fmt.Errorf("error while unlocking %s region %d+%d: %w", L.file.Name(), region.Start, region.Len, err)
	}

	return
}

// ref - Returns the in-process lock for region, creating it if needed
func (L *Locker) ref(region Region) *regionLock {
	L.mu.Lock()
	defer L.mu.Unlock()

	rl, ok := L.regions[region]
	if !ok {
		rl = &regionLock{}
		L.regions[region] = rl
	}
	rl.refs++

	return rl
}

// unref - Drops a reference and forgets the region when nobody holds or waits for it
func (L *Locker) unref(region Region) {
	L.mu.Lock()
	defer L.mu.Unlock()

	rl, ok := L.regions[region]
	if !ok {
		return
	}
	rl.refs--
	if rl.refs == 0 {
		delete(L.regions, region)
	}
}

// isContention - True if err means the lock is held by someone else
func isContention(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EACCES)
}

// setLock - Sets, or with unix.F_UNLCK clears, a non-blocking fcntl lock on region
func setLock(fd uintptr, lockType int16, region Region) error {
	lock := unix.Flock_t{
		Type:   lockType,
		Whence: 0,
		Start:  region.Start,
		Len:    region.Len,
	}
	return unix.FcntlFlock(fd, setLockCmd, &lock)
}
