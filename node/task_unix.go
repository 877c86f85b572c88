//go:build linux
// +build linux

package node

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/zhangbiao2009/linerelay/log"
)

type taskStatus uint8

const (
	// taskSuspended means the task yielded at an I/O-would-block point and
	// its continuation stays parked in the connection's handle slot.
	taskSuspended taskStatus = iota
	// taskDone means the task completed; its handle slot is cleared.
	taskDone
)

// task is a cooperative unit of control flow. Between resumptions the stored
// closure is the task's continuation; the event loop resumes it with the
// readiness mask that triggered the wakeup. A task carries no ownership of
// the descriptor, only control flow.
type task struct {
	resume func(mask EventMask) taskStatus
}

// resumeRead hands the readiness mask to the connection's suspended read
// task, if any, clearing the handle when the task completes.
func (p *Poll) resumeRead(c *Conn, mask EventMask) {
	t := c.readTask
	if t == nil {
		return
	}
	if t.resume(mask) == taskDone {
		c.readTask = nil
	}
}

func (p *Poll) resumeWrite(c *Conn, mask EventMask) {
	t := c.writeTask
	if t == nil {
		return
	}
	if t.resume(mask) == taskDone {
		c.writeTask = nil
	}
}

// spawnReadTask installs the per-connection read task. It is created at
// accept time and lives until the connection closes: on every resumption it
// drains the socket to EAGAIN in fixed-size chunks, extracting and
// delivering complete lines after each chunk so an incomplete trailing line
// never delays lines that already arrived. EOF, hangup and fatal read errors
// all take the same path: deliver what is already complete, then move the
// connection to CLOSING.
func (p *Poll) spawnReadTask(c *Conn) {
	buf := make([]byte, p.cfg.ReadBufferSize)
	c.readTask = &task{resume: func(mask EventMask) taskStatus {
		if mask&(EventHangup|EventError) != 0 {
			p.deliverLines(c)
			c.markClosing()
			return taskDone
		}
		for {
			n, err := c.readChunk(buf)
			if n > 0 {
				BytesIn.Add(float64(n))
				c.AppendInbound(buf[:n])
				p.deliverLines(c)
			}
			if err != nil {
				if err == unix.EINTR {
					continue
				}
				if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
					// Drained; suspend until the next readable event.
					return taskSuspended
				}
				log.Logger.Debug("read error", zap.Int("fd", c.fd), zap.Error(err))
				c.markClosing()
				return taskDone
			}
			if n == 0 {
				// EOF: peer closed its write side.
				c.markClosing()
				return taskDone
			}
		}
	}}
}

// scheduleWrite creates the connection's write task lazily, the first time a
// send hit backpressure, and widens the epoll interest set to include
// writability. Creating a second write task while one is suspended is a
// programming error; callers guard with the writeTask check. The task ends
// itself as soon as the queue drains, dropping write interest again, so
// well-behaved peers carry no suspended-task overhead.
func (p *Poll) scheduleWrite(c *Conn) error {
	if c.writeTask != nil {
		return nil
	}
	if err := p.registerReadWrite(c.fd); err != nil {
		return err
	}
	WriteTasksStarted.Inc()
	c.writeTask = &task{resume: func(mask EventMask) taskStatus {
		if mask&(EventHangup|EventError) != 0 {
			c.markClosing()
			return taskDone
		}
		switch c.TryDrainOutbound() {
		case DrainComplete:
			if err := p.deregisterWrite(c.fd); err != nil {
				log.Logger.Debug("deregister write", zap.Int("fd", c.fd), zap.Error(err))
			}
			return taskDone
		case DrainPartial:
			return taskSuspended
		default:
			// Drop write interest here too: the read side may still be
			// live, and a dead-but-writable socket would otherwise wake
			// the loop on every tick.
			if err := p.deregisterWrite(c.fd); err != nil {
				log.Logger.Debug("deregister write", zap.Int("fd", c.fd), zap.Error(err))
			}
			c.markClosing()
			return taskDone
		}
	}}
	return nil
}

// deliverLines pulls every complete line out of the inbound buffer and
// routes it: command lines go to the command handler and are never
// broadcast, everything else is formatted and fanned out to the other
// connections.
func (p *Poll) deliverLines(c *Conn) {
	for _, line := range c.ExtractLines() {
		p.hooks.line(c.fd, line)
		if isCommand(line) {
			MessagesTotal.WithLabelValues("command").Inc()
			if reply := parseAndApplyCommand(c, line); reply != "" {
				p.sendTo(c, []byte(reply))
			}
			continue
		}
		MessagesTotal.WithLabelValues("broadcast").Inc()
		p.hub.Broadcast(c.fd, formatMessage(c.nickname, line), p)
	}
}

// sendTo queues a message for a single connection using the same
// enqueue-then-drain path as broadcast.
func (p *Poll) sendTo(c *Conn, msg []byte) {
	if c.state != StateOpen {
		return
	}
	c.EnqueueOutbound(msg)
	if c.writeTask != nil {
		return
	}
	switch c.TryDrainOutbound() {
	case DrainComplete:
	case DrainPartial:
		if err := p.scheduleWrite(c); err != nil {
			c.markClosing()
			p.discard(c)
		}
	case DrainError:
		c.markClosing()
		p.discard(c)
	}
}
