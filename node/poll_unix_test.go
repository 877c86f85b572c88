//go:build linux
// +build linux

package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// newTestPoll builds a Poll around a bare epoll instance, without a listener
// or eventfd, for exercising teardown and interest-set handling directly.
func newTestPoll(t *testing.T) *Poll {
	t.Helper()
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFd(epfd) })

	return &Poll{
		Registry: NewRegistry(epfd),
		epollFd:  epfd,
		cfg:      NewConfig(),
		hub:      NewHub(),
		done:     make(chan struct{}),
	}
}

func TestTeardownDefersCloseUntilBatchEnd(t *testing.T) {
	p := newTestPoll(t)
	c, _ := newConnPair(t)
	require.NoError(t, p.registerRead(c.fd))
	p.hub.Add(c)

	p.teardown(c)

	// The connection is gone from the registry and the hub, but the fd must
	// stay open until the batch ends so the kernel cannot reuse its number
	// for a connection accepted later in the same batch.
	assert.Equal(t, StateClosed, c.State())
	assert.Nil(t, p.hub.Get(c.fd))
	assert.False(t, p.registered(c.fd))
	assert.True(t, isFDValid(c.fd))

	p.flushPendingCloses()
	assert.False(t, isFDValid(c.fd))
	assert.Empty(t, p.pendingCloses)
}

func TestTeardownRunsOnce(t *testing.T) {
	p := newTestPoll(t)
	c, _ := newConnPair(t)
	require.NoError(t, p.registerRead(c.fd))
	p.hub.Add(c)

	p.teardown(c)
	require.Len(t, p.pendingCloses, 1)

	// A second teardown, e.g. discard followed by the reap path, must not
	// queue the fd for closing again.
	p.teardown(c)
	assert.Len(t, p.pendingCloses, 1)
}

func TestWriteTaskDropsWriteInterestOnError(t *testing.T) {
	p := newTestPoll(t)
	c, peer := newConnPair(t)
	require.NoError(t, p.registerRead(c.fd))
	p.hub.Add(c)

	c.EnqueueOutbound([]byte("undeliverable\n"))
	require.NoError(t, p.scheduleWrite(c))
	assert.Equal(t, uint32(readWriteEvents), p.epollSet[c.fd])

	require.NoError(t, unix.Close(peer))
	p.resumeWrite(c, EventWritable)

	// The drain failed, so the task ended and writable interest must be
	// gone; a dead-but-writable socket would otherwise wake the loop until
	// the read side errors too.
	assert.Nil(t, c.writeTask)
	assert.Equal(t, StateClosing, c.State())
	assert.Equal(t, uint32(readEvents), p.epollSet[c.fd])
}
