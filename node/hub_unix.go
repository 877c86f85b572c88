//go:build linux
// +build linux

package node

// drainScheduler is what Broadcast needs from the event loop: a way to start
// a lazy write task when an immediate send could not finish, and a way to
// discard a connection whose socket errored mid-send.
type drainScheduler interface {
	scheduleWrite(c *Conn) error
	discard(c *Conn)
}

// Hub owns all live connections, keyed by descriptor. It is mutated only by
// the event-loop goroutine.
type Hub struct {
	conns map[int]*Conn
}

func NewHub() *Hub {
	return &Hub{conns: make(map[int]*Conn)}
}

func (h *Hub) Add(c *Conn) {
	h.conns[c.fd] = c
}

func (h *Hub) Remove(fd int) {
	delete(h.conns, fd)
}

func (h *Hub) Get(fd int) *Conn {
	return h.conns[fd]
}

func (h *Hub) Len() int {
	return len(h.conns)
}

// Broadcast fans msg out to every open connection except the sender:
// enqueue, then an immediate drain attempt. Only when the drain reports
// backpressure is a write task started for that one target, so a slow reader
// never stalls delivery to the rest. Targets whose sockets error are
// discarded on the spot.
func (h *Hub) Broadcast(senderFd int, msg []byte, sched drainScheduler) {
	for fd, c := range h.conns {
		if fd == senderFd || c.state != StateOpen {
			continue
		}
		c.EnqueueOutbound(msg)
		if c.writeTask != nil {
			// A suspended write task already owns the drain; it will pick
			// this message up in FIFO order when the socket is writable.
			continue
		}
		switch c.TryDrainOutbound() {
		case DrainComplete:
		case DrainPartial:
			if err := sched.scheduleWrite(c); err != nil {
				c.markClosing()
				sched.discard(c)
			}
		case DrainError:
			c.markClosing()
			sched.discard(c)
		}
	}
}
