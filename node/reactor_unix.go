//go:build linux
// +build linux

package node

import (
	"net"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/zhangbiao2009/linerelay/log"
)

// Reactor ties a TCP listener to a Poll and runs the loop on its own
// goroutine.
type Reactor struct {
	ln net.Listener
	// lnFile keeps the duplicated listener descriptor alive; dropping the
	// reference would let a finalizer close it under the loop.
	lnFile *os.File
	poll   *Poll
	done   chan struct{}
}

func NewReactor(ln net.Listener, cfg *Config, hooks Hooks) (*Reactor, error) {
	f, err := ln.(*net.TCPListener).File()
	if err != nil {
		log.Logger.Error("failed to get listener fd", zap.Error(err))
		return nil, err
	}

	lnFd := int(f.Fd())
	// File() hands back a blocking duplicate; the accept loop drains to
	// EAGAIN and needs it non-blocking.
	if err := unix.SetNonblock(lnFd, true); err != nil {
		log.Logger.Error("failed to set listener non-blocking", zap.Error(err))
		return nil, err
	}

	done := make(chan struct{})
	poll, err := NewPoll(done, cfg, lnFd, hooks)
	if err != nil {
		return nil, err
	}

	return &Reactor{
		ln:     ln,
		lnFile: f,
		poll:   poll,
		done:   done,
	}, nil
}

// Start launches the poll loop.
func (r *Reactor) Start() {
	go r.poll.poll()
}

// Done is closed when the poll loop has fully terminated and released its
// descriptors.
func (r *Reactor) Done() <-chan struct{} {
	return r.done
}

// Stop signals the loop through the eventfd and waits for it to wind down.
func (r *Reactor) Stop() {
	select {
	case <-r.done:
	default:
		_ = r.poll.sendSignal(SignalStop)
	}
	<-r.done
	_ = r.ln.Close()
}
