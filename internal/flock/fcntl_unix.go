//go:build unix && !linux

package flock

import "golang.org/x/sys/unix"

// setLockCmd - Classic process owned record locks. They coordinate separate processes, handles inside one
// process only exclude each other through the in-process region locks.
const setLockCmd = unix.F_SETLK
