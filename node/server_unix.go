//go:build linux
// +build linux

package node

import (
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/zhangbiao2009/linerelay/log"
)

// Server wires a Config and observer Hooks into a listener plus reactor.
type Server struct {
	cfg     *Config
	hooks   Hooks
	ln      net.Listener
	reactor *Reactor
}

func NewServer(cfg *Config) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	c := sanitizeConfig(*cfg)
	return &Server{cfg: &c}
}

// SetHooks installs observer callbacks. Must be called before Start.
func (s *Server) SetHooks(hooks Hooks) {
	s.hooks = hooks
}

// Start binds the listener and launches the event loop. Non-blocking.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		log.Logger.Error("listen error", zap.Error(err))
		return err
	}

	reactor, err := NewReactor(ln, s.cfg, s.hooks)
	if err != nil {
		_ = ln.Close()
		return err
	}

	s.ln = ln
	s.reactor = reactor
	reactor.Start()

	log.Logger.Info("listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound listener address, useful when ListenAddr held
// port 0.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Stop shuts the event loop down and waits until every descriptor is
// released.
func (s *Server) Stop() {
	if s.reactor != nil {
		s.reactor.Stop()
	}
}

// Done is closed once the event loop has terminated.
func (s *Server) Done() <-chan struct{} {
	return s.reactor.Done()
}

// Run starts the server and blocks until an OS signal arrives or the event
// loop dies on its own.
func (s *Server) Run() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	if err := s.Start(); err != nil {
		return err
	}

	select {
	case <-sigCh:
		log.Logger.Info("signal received")
		s.Stop()
	case <-s.reactor.Done():
	}

	log.Logger.Info("shutting down server")
	return nil
}
