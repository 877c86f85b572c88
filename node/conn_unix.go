//go:build linux
// +build linux

package node

import (
	"bytes"
	"strings"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"
)

type ConnState uint8

const (
	StateOpen ConnState = iota
	StateClosing
	StateClosed
)

// DrainResult reports the outcome of a non-blocking attempt to flush the
// outbound queue.
type DrainResult uint8

const (
	// DrainComplete means the queue and the in-flight partial are empty.
	DrainComplete DrainResult = iota
	// DrainPartial means the socket stopped accepting data before the queue
	// emptied. Not an error; the caller suspends until writability.
	DrainPartial
	// DrainError means an irrecoverable write error; no further sends may be
	// attempted on this connection.
	DrainError
)

// Conn is the per-socket state: identity, nickname, the inbound line buffer,
// the outbound FIFO, and the suspended task handles. All fields are owned by
// the event-loop goroutine; there is no locking because exactly one task
// touches a Conn at a time.
type Conn struct {
	fd       int
	ip       string
	nickname string
	state    ConnState

	inBuf      bytes.Buffer
	outQueue   *queue.Queue // of []byte, FIFO of fully-formed messages
	outPartial []byte       // unsent tail of the message currently in flight

	// At most one suspended continuation per direction. Non-nil only while
	// the task is alive and not yet completed.
	readTask  *task
	writeTask *task
}

func NewConn(fd int, ip string) *Conn {
	return &Conn{
		fd:       fd,
		ip:       ip,
		nickname: GenerateNickname(),
		state:    StateOpen,
		outQueue: queue.New(),
	}
}

func (c *Conn) Fd() int          { return c.fd }
func (c *Conn) Ip() string       { return c.ip }
func (c *Conn) State() ConnState { return c.state }

func (c *Conn) Nickname() string { return c.nickname }

// SetNickname is only called from this connection's own command handling.
func (c *Conn) SetNickname(name string) { c.nickname = name }

// markClosing moves an open connection to CLOSING. Once a connection has
// been fully torn down (CLOSED) the state is final.
func (c *Conn) markClosing() {
	if c.state == StateOpen {
		c.state = StateClosing
	}
}

// AppendInbound accumulates raw bytes until line terminators show up.
func (c *Conn) AppendInbound(data []byte) {
	c.inBuf.Write(data)
}

// ExtractLines splits off every complete line buffered so far, stripping the
// terminator and at most one carriage return preceding it; any other bytes
// pass through untouched. The unterminated remainder stays buffered, so
// calling this again without new data yields nothing and leaves the buffer
// unchanged.
func (c *Conn) ExtractLines() []string {
	var lines []string
	for {
		idx := bytes.IndexByte(c.inBuf.Bytes(), '\n')
		if idx < 0 {
			return lines
		}
		raw := c.inBuf.Next(idx + 1)
		lines = append(lines, strings.TrimSuffix(string(raw[:idx]), "\r"))
	}
}

// InboundLen returns the number of buffered bytes not yet forming a line.
func (c *Conn) InboundLen() int {
	return c.inBuf.Len()
}

// EnqueueOutbound appends a fully-formed message to the outbound FIFO.
// Insertion order is delivery order; partial sends never interleave messages.
func (c *Conn) EnqueueOutbound(msg []byte) {
	c.outQueue.Add(msg)
}

// HasPendingOutbound reports whether any bytes are still waiting to be sent.
func (c *Conn) HasPendingOutbound() bool {
	return len(c.outPartial) > 0 || c.outQueue.Length() > 0
}

// TryDrainOutbound sends as much of the outbound queue as the socket accepts
// without blocking. It drains message after message until the queue empties
// (DrainComplete) or the send would block (DrainPartial, with the unsent
// remainder retained for the next attempt). Any other write error is
// irrecoverable and reported as DrainError.
func (c *Conn) TryDrainOutbound() DrainResult {
	for {
		if len(c.outPartial) == 0 {
			if c.outQueue.Length() == 0 {
				return DrainComplete
			}
			c.outPartial = c.outQueue.Remove().([]byte)
		}

		n, err := unix.Write(c.fd, c.outPartial)
		if n > 0 {
			BytesOut.Add(float64(n))
			c.outPartial = c.outPartial[n:]
		}
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return DrainPartial
			}
			return DrainError
		}
	}
}

// readChunk issues one non-blocking read into buf.
func (c *Conn) readChunk(buf []byte) (int, error) {
	return unix.Read(c.fd, buf)
}

func (c *Conn) closeFd() error {
	return unix.Close(c.fd)
}
