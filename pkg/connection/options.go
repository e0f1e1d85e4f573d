package connection

import (
	"context"
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/mgray/tempest/configs"
	"github.com/mgray/tempest/internal/workers"
	"github.com/mgray/tempest/pkg/message"
)

// Dialer opens the reliable stream for a client connection.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// handlers receive connection notifications. They run on the connection's
// own goroutines; onMessage and onError run on the read loop in receive
// order. Any of them may be nil.
type handlers struct {
	onConnected        func(c *Connection)
	onConnectionFailed func(c *Connection, err error)
	onMessage          func(c *Connection, m message.Message)
	onDisconnected     func(c *Connection, cause error)
	onError            func(c *Connection, err error)
}

type options struct {
	config   configs.TransportConfig
	logger   *log.Logger
	dialer   Dialer
	pool     *workers.Pool
	handlers handlers
}

// Option configures a Connection.
type Option func(*options)

func defaultOptions() options {
	return options{
		config: configs.Default(),
		dialer: &net.Dialer{},
	}
}

// ConfigOption replaces the transport settings. Unset fields fall back to
// their defaults.
func ConfigOption(conf configs.TransportConfig) Option {
	return func(o *options) {
		o.config = conf.Normalize()
	}
}

// MaxFrameSizeOption bounds the payload length accepted in either direction.
func MaxFrameSizeOption(n uint32) Option {
	return func(o *options) {
		if n > 0 {
			o.config.MaxFrameSize = n
		}
	}
}

func LoggerOption(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func DialerOption(d Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// PoolOption runs the connection's dial and loops on p instead of the
// process-wide pool.
func PoolOption(p *workers.Pool) Option {
	return func(o *options) {
		o.pool = p
	}
}

func OnConnectedOption(fn func(c *Connection)) Option {
	return func(o *options) {
		o.handlers.onConnected = fn
	}
}

func OnConnectionFailedOption(fn func(c *Connection, err error)) Option {
	return func(o *options) {
		o.handlers.onConnectionFailed = fn
	}
}

func OnMessageOption(fn func(c *Connection, m message.Message)) Option {
	return func(o *options) {
		o.handlers.onMessage = fn
	}
}

func OnDisconnectedOption(fn func(c *Connection, cause error)) Option {
	return func(o *options) {
		o.handlers.onDisconnected = fn
	}
}

// OnErrorOption receives recoverable errors, such as frames carrying an
// unregistered type tag.
func OnErrorOption(fn func(c *Connection, err error)) Option {
	return func(o *options) {
		o.handlers.onError = fn
	}
}
