//go:build linux
// +build linux

package node

import "golang.org/x/sys/unix"

func isFDValid(fd int) bool {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return err == nil
}

// closeFd closes fd if it still looks valid, so double-close of an
// already-released descriptor is harmless during shutdown.
func closeFd(fd int) error {
	if isFDValid(fd) {
		return unix.Close(fd)
	}
	return nil
}
