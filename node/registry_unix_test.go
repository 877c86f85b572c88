//go:build linux
// +build linux

package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestRegistry(t *testing.T) (*Registry, int) {
	t.Helper()
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	require.NoError(t, err)
	t.Cleanup(func() { unix.Close(epfd) })

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return NewRegistry(epfd), fds[0]
}

func TestRegistryInstallAndWiden(t *testing.T) {
	r, fd := newTestRegistry(t)

	require.NoError(t, r.registerRead(fd))
	assert.True(t, r.registered(fd))

	// Widening and narrowing go through EPOLL_CTL_MOD on an existing fd.
	require.NoError(t, r.registerReadWrite(fd))
	require.NoError(t, r.deregisterWrite(fd))
	require.NoError(t, r.registerWrite(fd))

	// Re-installing the current interest set is a no-op.
	require.NoError(t, r.registerWrite(fd))
}

func TestRegistryUnregisterIdempotent(t *testing.T) {
	r, fd := newTestRegistry(t)

	require.NoError(t, r.registerRead(fd))
	require.NoError(t, r.unregister(fd))
	assert.False(t, r.registered(fd))

	// A second unregister of the same fd must be a no-op, not an error.
	require.NoError(t, r.unregister(fd))
}
