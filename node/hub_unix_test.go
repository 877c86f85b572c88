//go:build linux
// +build linux

package node

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type stubScheduler struct {
	scheduled []*Conn
	discarded []*Conn
}

func (s *stubScheduler) scheduleWrite(c *Conn) error {
	s.scheduled = append(s.scheduled, c)
	return nil
}

func (s *stubScheduler) discard(c *Conn) {
	s.discarded = append(s.discarded, c)
}

func TestBroadcastExcludesSender(t *testing.T) {
	hub := NewHub()
	sched := &stubScheduler{}

	a, aPeer := newConnPair(t)
	b, bPeer := newConnPair(t)
	c, cPeer := newConnPair(t)
	hub.Add(a)
	hub.Add(b)
	hub.Add(c)

	hub.Broadcast(a.Fd(), []byte("hi\n"), sched)

	assert.Equal(t, "hi\n", string(readAvailable(t, bPeer)))
	assert.Equal(t, "hi\n", string(readAvailable(t, cPeer)))
	assert.Empty(t, readAvailable(t, aPeer))
	assert.False(t, a.HasPendingOutbound())
	assert.Empty(t, sched.scheduled)
	assert.Empty(t, sched.discarded)
}

func TestBroadcastSkipsNonOpenConnections(t *testing.T) {
	hub := NewHub()
	sched := &stubScheduler{}

	a, _ := newConnPair(t)
	b, bPeer := newConnPair(t)
	hub.Add(a)
	hub.Add(b)
	b.markClosing()

	hub.Broadcast(a.Fd(), []byte("hi\n"), sched)

	assert.Empty(t, readAvailable(t, bPeer))
	assert.False(t, b.HasPendingOutbound())
}

func TestBroadcastSlowReaderDoesNotBlockOthers(t *testing.T) {
	hub := NewHub()
	sched := &stubScheduler{}

	a, _ := newConnPair(t)
	b, _ := newConnPair(t)
	c, cPeer := newConnPair(t)
	hub.Add(a)
	hub.Add(b)
	hub.Add(c)

	// Saturate b's socket buffer so the next send must hit backpressure.
	require.NoError(t, unix.SetsockoptInt(b.Fd(), unix.SOL_SOCKET, unix.SO_SNDBUF, 4096))
	filler := make([]byte, 4096)
	for {
		_, err := unix.Write(b.Fd(), filler)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			break
		}
		require.NoError(t, err)
	}

	msg := append(bytes.Repeat([]byte("x"), 10*1024), '\n')
	hub.Broadcast(a.Fd(), msg, sched)

	// c got the whole message in the same pass.
	assert.Equal(t, msg, readAvailable(t, cPeer))

	// b is queued behind backpressure with exactly one write task requested.
	assert.True(t, b.HasPendingOutbound())
	require.Len(t, sched.scheduled, 1)
	assert.Same(t, b, sched.scheduled[0])
	assert.Empty(t, sched.discarded)
}

func TestBroadcastLeavesExistingWriteTaskAlone(t *testing.T) {
	hub := NewHub()
	sched := &stubScheduler{}

	a, _ := newConnPair(t)
	b, bPeer := newConnPair(t)
	hub.Add(a)
	hub.Add(b)

	// Simulate a suspended write task: broadcast must only enqueue.
	b.writeTask = &task{}
	hub.Broadcast(a.Fd(), []byte("queued\n"), sched)

	assert.Empty(t, readAvailable(t, bPeer))
	assert.True(t, b.HasPendingOutbound())
	assert.Empty(t, sched.scheduled)
}

func TestBroadcastDiscardsErroredTarget(t *testing.T) {
	hub := NewHub()
	sched := &stubScheduler{}

	a, _ := newConnPair(t)
	b, bPeer := newConnPair(t)
	hub.Add(a)
	hub.Add(b)
	require.NoError(t, unix.Close(bPeer))

	hub.Broadcast(a.Fd(), []byte("hi\n"), sched)

	require.Len(t, sched.discarded, 1)
	assert.Same(t, b, sched.discarded[0])
	assert.Equal(t, StateClosing, b.State())
}
