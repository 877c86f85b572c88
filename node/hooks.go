package node

// Hooks are observer callbacks invoked from the event-loop goroutine. They
// must not block; a nil field is skipped. None of them can alter connection
// state.
type Hooks struct {
	// OnAccept fires after a new connection is registered.
	OnAccept func(fd int, ip, nickname string)

	// OnClosed fires exactly once, after the descriptor has been
	// unregistered and closed.
	OnClosed func(fd int, nickname string)

	// OnLine fires for every complete inbound line, commands included.
	OnLine func(fd int, line string)
}

func (h Hooks) accepted(fd int, ip, nickname string) {
	if h.OnAccept != nil {
		h.OnAccept(fd, ip, nickname)
	}
}

func (h Hooks) closed(fd int, nickname string) {
	if h.OnClosed != nil {
		h.OnClosed(fd, nickname)
	}
}

func (h Hooks) line(fd int, line string) {
	if h.OnLine != nil {
		h.OnLine(fd, line)
	}
}
