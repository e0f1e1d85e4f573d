// Package server accepts TCP streams and turns each one into a Connected
// connection.
package server

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/mgray/tempest/internal/workers"
	"github.com/mgray/tempest/pkg/connection"
	"github.com/mgray/tempest/pkg/errors"
	"github.com/mgray/tempest/pkg/logs"
	"github.com/mgray/tempest/pkg/message"
	"github.com/mgray/tempest/pkg/registry"
)

const (
	serverCaller = "Server"

	maxAcceptBackoff = time.Second
)

type options struct {
	connOpts   []connection.Option
	onAccepted func(c *connection.Connection)
	onClosed   func(c *connection.Connection)
	pool       *workers.Pool
	logger     *log.Logger
}

type Option func(*options)

// ConnectionOptions apply to every accepted connection.
func ConnectionOptions(opts ...connection.Option) Option {
	return func(o *options) {
		o.connOpts = append(o.connOpts, opts...)
	}
}

// OnAcceptedOption runs once per accepted connection, after its loops start.
func OnAcceptedOption(fn func(c *connection.Connection)) Option {
	return func(o *options) {
		o.onAccepted = fn
	}
}

// OnClosedOption runs once an accepted connection has finished.
func OnClosedOption(fn func(c *connection.Connection)) Option {
	return func(o *options) {
		o.onClosed = fn
	}
}

func PoolOption(p *workers.Pool) Option {
	return func(o *options) {
		o.pool = p
	}
}

func LoggerOption(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

type Server struct {
	registry *registry.Registry
	opts     options
	logger   *log.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[uuid.UUID]*connection.Connection
	handlers sync.WaitGroup

	closed atomic.Bool
	active atomic.Int64
}

func New(reg *registry.Registry, opts ...Option) (*Server, error) {
	if reg == nil {
		return nil, errors.New(errors.KindInvalidArgument, "nil registry", serverCaller)
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pool == nil {
		o.pool = workers.Default()
	}
	if o.logger == nil {
		o.logger = logs.NewLogger(serverCaller)
	}
	return &Server{
		registry: reg,
		opts:     o,
		logger:   o.logger,
		conns:    map[uuid.UUID]*connection.Connection{},
	}, nil
}

// ListenAndServe listens on the TCP address addr and serves until Close.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(errors.KindTransport, err, "listening on "+addr, serverCaller)
	}
	return s.Serve(ln)
}

// Serve accepts streams from ln until Close. It returns nil after Close and
// the accept error otherwise.
func (s *Server) Serve(ln net.Listener) error {
	if ln == nil {
		return errors.New(errors.KindInvalidArgument, "nil listener", serverCaller)
	}
	s.mu.Lock()
	if s.closed.Load() || s.listener != nil {
		s.mu.Unlock()
		_ = ln.Close()
		return errors.New(errors.KindInvalidState, "server is closed or already serving", serverCaller)
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Infof("Listening on addr: %s", ln.Addr())
	var backoff time.Duration
	for {
		stream, err := ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				backoff = nextBackoff(backoff)
				s.logger.Warnf("accept failed, retrying in %s: %s", backoff, err)
				time.Sleep(backoff)
				continue
			}
			return errors.Wrap(errors.KindTransport, err, "accepting", serverCaller)
		}
		backoff = 0

		s.mu.Lock()
		if s.closed.Load() {
			s.mu.Unlock()
			_ = stream.Close()
			return nil
		}
		s.handlers.Add(1)
		s.mu.Unlock()
		if err := s.opts.pool.Submit(func() { s.handle(stream) }); err != nil {
			s.handlers.Done()
			s.logger.Errorf("dropping stream from %s: %s", stream.RemoteAddr(), err)
			_ = stream.Close()
		}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > maxAcceptBackoff {
		d = maxAcceptBackoff
	}
	return d
}

// handle wraps an accepted stream and registers the connection. It runs on
// a pool worker and returns at once; watch waits out the connection's life
// on its own goroutine.
func (s *Server) handle(stream net.Conn) {
	c, err := connection.Accept(stream, s.registry, s.opts.connOpts...)
	if err != nil {
		s.handlers.Done()
		s.logger.Errorf("rejecting stream from %s: %s", stream.RemoteAddr(), err)
		_ = stream.Close()
		return
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		_ = c.Disconnect()
	} else {
		s.conns[c.ID()] = c
		s.mu.Unlock()
	}
	s.active.Inc()
	if fn := s.opts.onAccepted; fn != nil {
		fn(c)
	}
	go s.watch(c)
}

func (s *Server) watch(c *connection.Connection) {
	defer s.handlers.Done()
	<-c.Done()

	s.mu.Lock()
	delete(s.conns, c.ID())
	s.mu.Unlock()
	s.active.Dec()
	if fn := s.opts.onClosed; fn != nil {
		fn(c)
	}
}

// Addr is the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Active counts accepted connections that have not finished.
func (s *Server) Active() int64 {
	return s.active.Load()
}

func (s *Server) Connections() []*connection.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*connection.Connection, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

// Broadcast sends m to every live connection and returns how many accepted
// it.
func (s *Server) Broadcast(m message.Message) int {
	sent := 0
	for _, c := range s.Connections() {
		if err := c.Send(m); err != nil {
			s.logger.WithField("conn", c.ID().String()).Debugf("broadcast skipped: %s", err)
			continue
		}
		sent++
	}
	return sent
}

// Close stops accepting, disconnects every connection and waits for them
// to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed.Swap(true) {
		s.mu.Unlock()
		return nil
	}
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	conns := make([]*connection.Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Disconnect()
	}
	s.handlers.Wait()
	s.logger.Infof("closed")
	return err
}
