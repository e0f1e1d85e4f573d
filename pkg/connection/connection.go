// Package connection carries typed messages over a reliable byte stream.
//
// A Connection owns one stream. Outgoing messages are framed as
//
//	[type u16 LE][payload length u32 LE][payload]
//
// and queued for a dedicated writer; incoming bytes are accumulated by a
// reader that cuts frames, rebuilds messages through a registry and hands
// them to the OnMessage handler in receive order.
package connection

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/mgray/tempest/internal/workers"
	"github.com/mgray/tempest/pkg/errors"
	"github.com/mgray/tempest/pkg/logs"
	"github.com/mgray/tempest/pkg/message"
	"github.com/mgray/tempest/pkg/registry"
)

const connectionCaller = "Connection"

// Stats counts a connection's traffic.
type Stats struct {
	FramesSent     uint64
	FramesReceived uint64
	BytesSent      uint64
	BytesReceived  uint64
	UnknownFrames  uint64
	SendsAborted   uint64
}

type counters struct {
	framesSent     atomic.Uint64
	framesReceived atomic.Uint64
	bytesSent      atomic.Uint64
	bytesReceived  atomic.Uint64
	unknownFrames  atomic.Uint64
	sendsAborted   atomic.Uint64
}

type Connection struct {
	id       uuid.UUID
	registry *registry.Registry
	opts     options
	pool     *workers.Pool
	logger   *log.Entry

	mu     sync.Mutex
	state  State
	used   bool
	cause  error
	conn   net.Conn
	remote net.Addr
	// cancelDial aborts an in-flight dial; set only while Connecting.
	cancelDial func()
	// done is closed when Disconnecting begins.
	done chan struct{}
	// finished is closed once the connection settles in Disconnected for good.
	finished chan struct{}

	sendQueue chan []byte
	// rbuf belongs to the read loop; nothing else touches it while the
	// loop runs.
	rbuf *receiveBuffer

	stats counters
}

func newConnection(reg *registry.Registry, opts ...Option) (*Connection, error) {
	if reg == nil {
		return nil, errors.New(errors.KindInvalidArgument, "nil registry", connectionCaller)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logs.NewLogger(connectionCaller)
	}
	pool := o.pool
	if pool == nil {
		pool = workers.Default()
	}

	id := uuid.New()
	return &Connection{
		id:        id,
		registry:  reg,
		opts:      o,
		pool:      pool,
		logger:    o.logger.WithField("conn", id.String()),
		state:     Disconnected,
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		sendQueue: make(chan []byte, o.config.SendQueueSize),
	}, nil
}

// Accept wraps a stream that is already established. The returned
// connection is Connected and its loops are running.
func Accept(conn net.Conn, reg *registry.Registry, opts ...Option) (*Connection, error) {
	if conn == nil {
		return nil, errors.New(errors.KindInvalidArgument, "nil stream", connectionCaller)
	}
	c, err := newConnection(reg, opts...)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.used = true
	c.remote = conn.RemoteAddr()
	c.attach(conn)
	c.mu.Unlock()

	c.logger.Infof("accepted stream from %s", c.remote)
	c.start()
	return c, nil
}

func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RemoteAddr is the peer address, or nil before a connect is requested.
func (c *Connection) RemoteAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

// Cause is the reason the connection left Connected, if it has.
func (c *Connection) Cause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// Done is closed once the connection has finished: after OnDisconnected, or
// after OnConnectionFailed for a connect that never completed.
func (c *Connection) Done() <-chan struct{} {
	return c.finished
}

func (c *Connection) Registry() *registry.Registry {
	return c.registry
}

func (c *Connection) Stats() Stats {
	return Stats{
		FramesSent:     c.stats.framesSent.Load(),
		FramesReceived: c.stats.framesReceived.Load(),
		BytesSent:      c.stats.bytesSent.Load(),
		BytesReceived:  c.stats.bytesReceived.Load(),
		UnknownFrames:  c.stats.unknownFrames.Load(),
		SendsAborted:   c.stats.sendsAborted.Load(),
	}
}

// Send frames m and queues it for the writer. It fails with InvalidState
// unless the connection is Connected; delivery itself is not confirmed.
// Every accepted frame ends up in FramesSent or SendsAborted.
func (c *Connection) Send(m message.Message) error {
	if m == nil {
		return errors.New(errors.KindInvalidArgument, "nil message", connectionCaller)
	}
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != Connected {
		return errors.Newf(errors.KindInvalidState, connectionCaller, "cannot send while %s", state)
	}

	frame, err := EncodeFrame(c.registry.Cache(), m, c.opts.config.MaxFrameSize)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != Connected {
		state := c.state
		c.mu.Unlock()
		return errors.Newf(errors.KindInvalidState, connectionCaller, "cannot send while %s", state)
	}
	select {
	case c.sendQueue <- frame:
		c.mu.Unlock()
		return nil
	default:
	}
	c.mu.Unlock()

	// Queue full: wait for room without holding c.mu.
	select {
	case c.sendQueue <- frame:
	case <-c.done:
		return errors.New(errors.KindInvalidState, "connection is disconnecting", connectionCaller)
	}

	// An accepted frame is either written or counted as aborted. If finish
	// already emptied the queue, nobody else will see this one.
	c.mu.Lock()
	if c.state == Disconnected {
		c.drainQueue()
	}
	c.mu.Unlock()
	return nil
}

// Disconnect closes the connection. The OnDisconnected handler, or
// OnConnectionFailed for a connect still in flight, reports an Aborted cause.
func (c *Connection) Disconnect() error {
	cause := errors.New(errors.KindAborted, "disconnect requested", connectionCaller)
	if !c.beginDisconnect(cause) {
		return errors.Newf(errors.KindInvalidState, connectionCaller, "cannot disconnect while %s", c.State())
	}
	return nil
}

// attach installs a live stream and moves to Connected. Must hold c.mu.
func (c *Connection) attach(conn net.Conn) {
	c.conn = conn
	c.rbuf = newReceiveBuffer(c.opts.config.ReceiveBufferSize, c.opts.config.MaxFrameSize)
	c.setState(Connected)
}

// setState moves the lifecycle forward. Must hold c.mu.
func (c *Connection) setState(to State) {
	if !canTransition(c.state, to) {
		panic("connection: illegal transition from " + c.state.String() + " to " + to.String())
	}
	c.logger.Debugf("%s -> %s", c.state, to)
	c.state = to
}

// beginDisconnect records cause and tears the stream down. Only the first
// caller wins; it reports false when there was nothing to disconnect.
func (c *Connection) beginDisconnect(cause error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Connecting:
		c.cause = cause
		c.setState(Disconnecting)
		close(c.done)
		if c.cancelDial != nil {
			c.cancelDial()
		}
		return true
	case Connected:
		c.cause = cause
		c.setState(Disconnecting)
		close(c.done)
		if err := c.conn.Close(); err != nil {
			c.logger.Debugf("closing stream: %s", err)
		}
		return true
	}
	return false
}

// start runs the read and write loops under a supervisor that finishes the
// connection once both have stopped. The loops live as long as the stream,
// so they get their own goroutines rather than pool workers.
func (c *Connection) start() {
	go c.supervise()
}

func (c *Connection) supervise() {
	var g errgroup.Group
	g.Go(c.readLoop)
	g.Go(c.writeLoop)
	if err := g.Wait(); err != nil {
		c.logger.Debugf("loops stopped: %s", err)
	}
	c.finish()
}

// finish settles a connection that reached Connected into Disconnected and
// raises OnDisconnected exactly once.
func (c *Connection) finish() {
	c.mu.Lock()
	c.setState(Disconnected)
	c.drainQueue()
	cause := c.cause
	c.rbuf = nil
	c.mu.Unlock()

	c.logStats(cause)
	defer close(c.finished)
	if fn := c.opts.handlers.onDisconnected; fn != nil {
		fn(c, cause)
	}
}

// drainQueue discards queued frames and counts them as aborted. Must hold c.mu.
func (c *Connection) drainQueue() {
	for {
		select {
		case <-c.sendQueue:
			c.stats.sendsAborted.Inc()
		default:
			return
		}
	}
}

func (c *Connection) logStats(cause error) {
	s := c.Stats()
	entry := c.logger.WithFields(log.Fields{
		"sent":     s.FramesSent,
		"received": s.FramesReceived,
		"unknown":  s.UnknownFrames,
		"aborted":  s.SendsAborted,
	})
	if errors.KindOf(cause) == errors.KindAborted {
		entry.Infof("disconnected: %s", cause)
		return
	}
	entry.Warnf("disconnected: %s", cause)
}

// fail disconnects on behalf of a loop and returns cause for the errgroup.
func (c *Connection) fail(cause error) error {
	if c.beginDisconnect(cause) {
		c.logger.Warnf("connection failed: %s", cause)
	}
	return cause
}

func (c *Connection) readLoop() error {
	for {
		space := c.rbuf.writable()
		n, err := c.conn.Read(space)
		if n > 0 {
			c.rbuf.advance(n)
			c.stats.bytesReceived.Add(uint64(n))
			if ferr := c.drainFrames(); ferr != nil {
				return c.fail(ferr)
			}
		}
		if err != nil {
			return c.fail(errors.Wrap(errors.KindTransport, err, "reading stream", connectionCaller))
		}
		if n == 0 {
			return c.fail(errors.New(errors.KindTransport, "stream returned no data", connectionCaller))
		}
	}
}

// drainFrames delivers every complete frame in the receive buffer. Frames
// with an unregistered tag are skipped; any other decode failure is fatal.
func (c *Connection) drainFrames() error {
	defer c.rbuf.compact()
	for {
		tag, payload, ok, err := c.rbuf.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		c.stats.framesReceived.Inc()

		m, err := DecodeFrame(c.registry, tag, payload)
		if err != nil {
			if errors.KindOf(err) != errors.KindUnknownMessageType {
				return err
			}
			c.stats.unknownFrames.Inc()
			c.logger.Warnf("dropping frame: %s", err)
			if fn := c.opts.handlers.onError; fn != nil {
				fn(c, err)
			}
			continue
		}
		if fn := c.opts.handlers.onMessage; fn != nil {
			fn(c, m)
		}
	}
}

func (c *Connection) writeLoop() error {
	for {
		select {
		case <-c.done:
			return nil
		case frame := <-c.sendQueue:
			select {
			case <-c.done:
				c.stats.sendsAborted.Inc()
				return nil
			default:
			}
			if err := c.write(frame); err != nil {
				c.stats.sendsAborted.Inc()
				return c.fail(errors.Wrap(errors.KindTransport, err, "writing stream", connectionCaller))
			}
		}
	}
}

func (c *Connection) write(frame []byte) error {
	if wt := c.opts.config.WriteTimeout; wt > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(wt)); err != nil {
			return err
		}
	}
	n, err := c.conn.Write(frame)
	c.stats.bytesSent.Add(uint64(n))
	if err != nil {
		return err
	}
	c.stats.framesSent.Inc()
	return nil
}
