package transport

import (
	"context"
	"grocketmq/protocol"
	"net"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTimeout       = 10 * time.Second
	DefaultQueueCapacity = 1024
)

// Dialer opens the connection to addr. It must honour ctx cancellation.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

type options struct {
	timeout       time.Duration
	queueCapacity int
	maxFrameSize  uint32
	dialer        Dialer
	logger        *zap.Logger
}

// Option configures a Channel.
type Option func(*options)

// WithTimeout bounds the connect, the write acknowledgement and the response wait, each on its own.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithQueueCapacity sets how many submissions may wait for the actor before Request fails fast.
func WithQueueCapacity(n int) Option {
	return func(o *options) { o.queueCapacity = n }
}

// WithMaxFrameSize bounds inbound frames. A larger declared frame tears the connection down.
func WithMaxFrameSize(n uint32) Option {
	return func(o *options) { o.maxFrameSize = n }
}

// WithDialer replaces the TCP dialer.
func WithDialer(d Dialer) Option {
	return func(o *options) { o.dialer = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func defaultOptions() options {
	return options{
		timeout:       DefaultTimeout,
		queueCapacity: DefaultQueueCapacity,
		maxFrameSize:  protocol.DefaultMaxFrameSize,
		dialer:        dialTCP,
		logger:        zap.NewNop(),
	}
}

func dialTCP(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	return conn, nil
}
