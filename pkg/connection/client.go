package connection

import (
	"context"
	"net"
	"reflect"

	"github.com/mgray/tempest/pkg/errors"
	"github.com/mgray/tempest/pkg/registry"
)

// ClientConnection is a Connection that dials its own stream.
type ClientConnection struct {
	*Connection
}

func NewClientConnection(reg *registry.Registry, opts ...Option) (*ClientConnection, error) {
	c, err := newConnection(reg, opts...)
	if err != nil {
		return nil, err
	}
	return &ClientConnection{Connection: c}, nil
}

// Connect starts dialing addr and returns at once. The outcome is reported
// through OnConnected or OnConnectionFailed. A connection dials at most
// once; only the reliable channel is available.
func (c *ClientConnection) Connect(addr net.Addr, types MessageTypes) error {
	if isNilAddr(addr) {
		return errors.New(errors.KindInvalidArgument, "nil address", connectionCaller)
	}
	if types == 0 || types&^(Reliable|Unreliable) != 0 {
		return errors.Newf(errors.KindInvalidArgument, connectionCaller, "invalid message types %s", types)
	}
	if types.Has(Unreliable) {
		return errors.New(errors.KindUnsupportedCapability, "unreliable messages are not supported", connectionCaller)
	}

	c.mu.Lock()
	if c.used || c.state != Disconnected {
		state := c.state
		c.mu.Unlock()
		if state == Disconnected {
			return errors.New(errors.KindInvalidState, "connection has already been used", connectionCaller)
		}
		return errors.Newf(errors.KindInvalidState, connectionCaller, "cannot connect while %s", state)
	}
	c.used = true
	c.remote = addr
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.config.DialTimeout)
	c.cancelDial = cancel
	c.setState(Connecting)
	c.mu.Unlock()

	c.logger.Infof("connecting to %s over %s", addr, types)
	if err := c.pool.Submit(func() { c.dial(ctx, addr) }); err != nil {
		cancel()
		c.connectFailed(errors.Wrap(errors.KindTransport, err, "scheduling dial", connectionCaller))
	}
	return nil
}

func (c *ClientConnection) dial(ctx context.Context, addr net.Addr) {
	conn, err := c.opts.dialer.DialContext(ctx, addr.Network(), addr.String())

	c.mu.Lock()
	cancel := c.cancelDial
	c.cancelDial = nil
	c.mu.Unlock()
	cancel()

	if err != nil {
		c.connectFailed(errors.Wrap(errors.KindTransport, err, "dialing "+addr.String(), connectionCaller))
		return
	}

	c.mu.Lock()
	if c.state != Connecting {
		c.mu.Unlock()
		_ = conn.Close()
		c.connectFailed(nil)
		return
	}
	c.attach(conn)
	c.mu.Unlock()

	c.logger.Infof("connected to %s", addr)
	if fn := c.opts.handlers.onConnected; fn != nil {
		fn(c.Connection)
	}
	c.start()
}

// connectFailed settles a connect that never reached Connected. A cause
// recorded by Disconnect takes precedence over err.
func (c *ClientConnection) connectFailed(err error) {
	c.mu.Lock()
	if c.cause != nil {
		err = c.cause
	} else {
		c.cause = err
	}
	remote := c.remote
	c.setState(Disconnected)
	c.mu.Unlock()

	c.logger.Warnf("connect to %s failed: %s", remote, err)
	defer close(c.finished)
	if fn := c.opts.handlers.onConnectionFailed; fn != nil {
		fn(c.Connection, err)
	}
}

func isNilAddr(addr net.Addr) bool {
	if addr == nil {
		return true
	}
	v := reflect.ValueOf(addr)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
