//go:build linux
// +build linux

package node

import (
	"fmt"
	"net"
	"time"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/zhangbiao2009/linerelay/log"
)

type pipeSignal uint64

const (
	SignalStop pipeSignal = 1
)

// Poll is the event loop. It owns the epoll instance, the listening socket,
// an eventfd used as a stop-signal pipe, and the Hub of live connections.
// All of it runs on a single goroutine: readiness events are dispatched to
// the suspended task continuations, and connections are reaped once both
// tasks have terminated.
type Poll struct {
	*Registry
	epollFd int
	lnFd    int
	efd     int
	cfg     *Config
	hub     *Hub
	hooks   Hooks
	done    chan struct{}

	// Descriptors torn down while an event batch is being processed. The
	// close(2) itself is deferred to the end of the batch so the kernel
	// cannot hand the same fd number to an accept in the same batch, where
	// a still-queued stale event would hit the fresh connection.
	pendingCloses []int
}

func NewPoll(done chan struct{}, cfg *Config, lnFd int, hooks Hooks) (*Poll, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		log.Logger.Error("failed to create epoll", zap.Error(err))
		return nil, err
	}

	r := NewRegistry(epfd)

	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		log.Logger.Error("failed to create eventfd", zap.Error(err))
		return nil, err
	}

	if err := r.registerRead(efd); err != nil {
		log.Logger.Error("failed to add eventfd to epoll", zap.Error(err))
		return nil, err
	}

	if err := r.registerRead(lnFd); err != nil {
		log.Logger.Error("failed to add listener to epoll", zap.Error(err))
		return nil, err
	}

	return &Poll{
		Registry: r,
		epollFd:  epfd,
		lnFd:     lnFd,
		efd:      efd,
		cfg:      cfg,
		hub:      NewHub(),
		hooks:    hooks,
		done:     done,
	}, nil
}

// poll is the blocking event loop. Wait is bounded by cfg.PollTimeout so the
// loop keeps ticking even when no descriptor is active. Only multiplexer
// failures terminate it; per-connection errors never escape their tasks.
func (p *Poll) poll() {
	events := make([]unix.EpollEvent, p.cfg.MaxConnections+2)
	msec := int(p.cfg.PollTimeout / time.Millisecond)

	defer close(p.done)
	defer p.CloseGracefully()

	for {
		n, err := unix.EpollWait(p.epollFd, events, msec)
		if n < 0 && err == unix.EINTR {
			continue
		}
		if err != nil {
			log.Logger.Error("epoll wait error", zap.Error(err))
			return
		}
		if n == 0 {
			// Timeout tick; nothing ready.
			continue
		}

		for i := 0; i < n; i++ {
			ev := &events[i]
			switch err := p.processEvent(int(ev.Fd), ev); err {
			case nil:
			case ErrSignalStopped:
				return
			default:
				log.Logger.Error("failed to process event", zap.Error(err))
				return
			}
		}
		p.flushPendingCloses()
	}
}

// processEvent routes one readiness event. Listener readiness accepts new
// connections; anything else resumes the matching suspended task(s), passing
// the mask through, and reaps the connection once it is CLOSING with both
// task handles clear.
func (p *Poll) processEvent(fd int, ev *unix.EpollEvent) error {
	if fd == p.efd {
		return p.handleSignal(fd)
	}
	if fd == p.lnFd {
		return p.acceptPending()
	}

	c := p.hub.Get(fd)
	if c == nil {
		// Torn down earlier in this batch; stale event.
		return nil
	}

	mask := maskFromEpoll(ev.Events)
	if mask&(EventHangup|EventError) != 0 {
		p.resumeRead(c, mask)
		p.resumeWrite(c, mask)
	} else {
		if mask&EventReadable != 0 {
			p.resumeRead(c, mask)
		}
		if mask&EventWritable != 0 {
			p.resumeWrite(c, mask)
		}
	}

	if c.state == StateClosing {
		if c.readTask == nil && c.writeTask == nil {
			p.teardown(c)
		} else if c.readTask == nil {
			// Read side is finished but output is still draining; stop
			// watching readability so a permanently-readable EOF socket
			// cannot spin the loop.
			if err := p.registerWrite(c.fd); err != nil {
				p.teardown(c)
			}
		}
	}
	return nil
}

// acceptPending accepts every connection queued on the listener. Accept
// failures are logged and skipped, never fatal to the loop.
func (p *Poll) acceptPending() error {
	for {
		connFd, sa, err := unix.Accept(p.lnFd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return nil
			}
			if err == unix.EINTR {
				continue
			}
			log.Logger.Error("accept error", zap.Error(err))
			return nil
		}

		if p.hub.Len() >= p.cfg.MaxConnections {
			log.Logger.Warn("dropping connection", zap.Int("fd", connFd), zap.Error(ErrServerFull))
			_ = unix.Close(connFd)
			continue
		}

		if err := unix.SetNonblock(connFd, true); err != nil {
			log.Logger.Error("set nonblock error", zap.Int("fd", connFd), zap.Error(err))
			_ = unix.Close(connFd)
			continue
		}

		if err := p.registerRead(connFd); err != nil {
			log.Logger.Error("register read error", zap.Int("fd", connFd), zap.Error(err))
			_ = unix.Close(connFd)
			continue
		}

		c := NewConn(connFd, sockaddrIP(sa))
		p.spawnReadTask(c)
		p.hub.Add(c)
		ConnectedClients.Set(float64(p.hub.Len()))

		log.Logger.Debug("new connection",
			zap.Int("fd", connFd), zap.String("ip", c.ip), zap.String("nickname", c.nickname))
		p.hooks.accepted(connFd, c.ip, c.nickname)

		MessagesTotal.WithLabelValues("system").Inc()
		p.hub.Broadcast(connFd, systemNotice(c.nickname+" joined"), p)
	}
}

// teardown closes a connection exactly once: the descriptor leaves the epoll
// set, any suspended continuations are dropped so the tasks can never be
// resumed again, the socket is closed, and the others are told.
func (p *Poll) teardown(c *Conn) {
	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	c.readTask = nil
	c.writeTask = nil

	if err := p.unregister(c.fd); err != nil {
		log.Logger.Debug("failed to unregister fd", zap.Int("fd", c.fd), zap.Error(err))
	}
	p.hub.Remove(c.fd)
	p.pendingCloses = append(p.pendingCloses, c.fd)

	ConnectedClients.Set(float64(p.hub.Len()))
	log.Logger.Debug("connection closed", zap.Int("fd", c.fd), zap.String("nickname", c.nickname))
	p.hooks.closed(c.fd, c.nickname)

	MessagesTotal.WithLabelValues("system").Inc()
	p.hub.Broadcast(c.fd, systemNotice(c.nickname+" left"), p)
}

// flushPendingCloses closes every descriptor deferred during the batch that
// just finished.
func (p *Poll) flushPendingCloses() {
	for _, fd := range p.pendingCloses {
		if err := closeFd(fd); err != nil {
			log.Logger.Debug("failed to close fd", zap.Int("fd", fd), zap.Error(err))
		}
	}
	p.pendingCloses = p.pendingCloses[:0]
}

// discard is the drainScheduler teardown path for targets whose sockets
// errored mid-broadcast.
func (p *Poll) discard(c *Conn) {
	p.teardown(c)
}

// handleSignal reads one signal value off the eventfd.
func (p *Poll) handleSignal(fd int) error {
	var buf uint64
	_, err := unix.Read(fd, (*(*[8]byte)(unsafe.Pointer(&buf)))[:])
	if err != nil {
		log.Logger.Error("failed to read from eventfd", zap.Error(err))
		return nil
	}
	switch pipeSignal(buf) {
	case SignalStop:
		return ErrSignalStopped
	}
	return nil
}

// sendSignal wakes the poll loop through the eventfd. This is the only entry
// point other goroutines may touch.
func (p *Poll) sendSignal(sig pipeSignal) error {
	_, err := unix.Write(p.efd, (*(*[8]byte)(unsafe.Pointer(&sig)))[:])
	if err != nil {
		log.Logger.Error("failed to write to eventfd", zap.Error(err))
	}
	return err
}

// CloseGracefully releases everything in order: eventfd, listener,
// connections, then the epoll fd itself, to prevent fd leaks.
func (p *Poll) CloseGracefully() error {
	var errs MultiError

	// The loop may have exited mid-batch with deferred closes outstanding.
	p.flushPendingCloses()

	if err := p.unregister(p.efd); err != nil {
		errs = append(errs, fmt.Errorf("unregister eventfd: %w", err))
	}
	if err := closeFd(p.efd); err != nil {
		errs = append(errs, fmt.Errorf("close eventfd: %w", err))
	}

	if err := p.unregister(p.lnFd); err != nil {
		errs = append(errs, fmt.Errorf("unregister listener: %w", err))
	}
	if err := closeFd(p.lnFd); err != nil {
		errs = append(errs, fmt.Errorf("close listener: %w", err))
	}

	for _, c := range p.hub.conns {
		c.state = StateClosed
		c.readTask = nil
		c.writeTask = nil
		if err := p.unregister(c.fd); err != nil {
			errs = append(errs, fmt.Errorf("unregister fd %d: %w", c.fd, err))
		}
		if err := closeFd(c.fd); err != nil {
			errs = append(errs, fmt.Errorf("close fd %d: %w", c.fd, err))
		}
		p.hub.Remove(c.fd)
		p.hooks.closed(c.fd, c.nickname)
	}
	ConnectedClients.Set(0)

	if err := closeFd(p.epollFd); err != nil {
		errs = append(errs, fmt.Errorf("close epoll: %w", err))
	}

	if len(errs) > 0 {
		log.Logger.Debug("close gracefully", zap.Error(errs))
		return errs
	}
	return nil
}

func sockaddrIP(sa unix.Sockaddr) string {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IPv4(addr.Addr[0], addr.Addr[1], addr.Addr[2], addr.Addr[3]).String()
	case *unix.SockaddrInet6:
		return net.IP(addr.Addr[:]).String()
	default:
		return ""
	}
}
