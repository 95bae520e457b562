//go:build linux

package flock

import "golang.org/x/sys/unix"

// setLockCmd - Open file description locks belong to the open file rather than the process, so two handles
// on the same file inside one process exclude each other the same way two processes do.
const setLockCmd = unix.F_OFD_SETLK
