//go:build linux
// +build linux

package node

import (
	"os"

	"golang.org/x/sys/unix"
)

const (
	readEvents      = unix.EPOLLPRI | unix.EPOLLIN
	writeEvents     = unix.EPOLLOUT
	readWriteEvents = readEvents | writeEvents
)

// EventMask is the readiness mask handed to resumed tasks. Bits may co-occur.
type EventMask uint32

const (
	EventReadable EventMask = 1 << iota
	EventWritable
	EventHangup
	EventError
)

func maskFromEpoll(events uint32) EventMask {
	var m EventMask
	if events&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		m |= EventReadable
	}
	if events&unix.EPOLLOUT != 0 {
		m |= EventWritable
	}
	if events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		m |= EventHangup
	}
	if events&unix.EPOLLERR != 0 {
		m |= EventError
	}
	return m
}

// Registry is a wrapper around epoll_ctl. It keeps track of the interest set
// currently installed for each registered fd so callers can register/modify
// without knowing whether the fd is already present.
type Registry struct {
	epollFd  int
	epollSet map[int]uint32
}

func NewRegistry(epollFd int) *Registry {
	return &Registry{
		epollFd:  epollFd,
		epollSet: make(map[int]uint32),
	}
}

// registerRead installs read-only interest for fd.
func (r *Registry) registerRead(fd int) error {
	return r.install(fd, readEvents)
}

// registerWrite installs write-only interest, used once a connection's read
// side has finished but queued output is still draining.
func (r *Registry) registerWrite(fd int) error {
	return r.install(fd, writeEvents)
}

// registerReadWrite widens fd's interest to include writability. Read
// interest is kept so inbound data and EOF are still noticed while a write
// task is suspended.
func (r *Registry) registerReadWrite(fd int) error {
	return r.install(fd, readWriteEvents)
}

func (r *Registry) install(fd int, events uint32) (err error) {
	current, ok := r.epollSet[fd]
	if ok && current == events {
		return nil
	}
	if ok {
		err = r.ctlMod(fd, events)
	} else {
		err = r.ctlAdd(fd, events)
	}
	if err != nil {
		return err
	}
	r.epollSet[fd] = events
	return
}

// deregisterWrite narrows fd's interest back to read events once the
// outbound queue has drained.
func (r *Registry) deregisterWrite(fd int) error {
	return r.registerRead(fd)
}

// unregister removes fd from epoll. Unregistering an unknown fd is a no-op,
// so teardown paths can call this without tracking whether it already ran.
func (r *Registry) unregister(fd int) (err error) {
	if _, ok := r.epollSet[fd]; !ok {
		return nil
	}
	err = unix.EpollCtl(r.epollFd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil {
		return err
	}
	delete(r.epollSet, fd)
	return
}

// registered reports whether fd currently has an installed interest set.
func (r *Registry) registered(fd int) bool {
	_, ok := r.epollSet[fd]
	return ok
}

func (r *Registry) ctlAdd(fd int, events uint32) error {
	return os.NewSyscallError("epoll_ctl add",
		unix.EpollCtl(r.epollFd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events}))
}

func (r *Registry) ctlMod(fd int, events uint32) error {
	return os.NewSyscallError("epoll_ctl mod",
		unix.EpollCtl(r.epollFd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events}))
}
