// Package transport implements the client side of the remoting protocol.
//
// A Channel multiplexes many concurrent requests over one lazily established TCP
// connection. Callers never touch the socket: they hand requests to a single actor
// goroutine through a bounded queue and wait on two signals, the write
// acknowledgement and the response. Responses are matched to callers by opaque id,
// so they may arrive in any order.
//
//	goroutine-1 ──Request(opaque=1)──┐                   ┌──→ write frame
//	goroutine-2 ──Request(opaque=2)──┼──→ queue ──→ actor┤
//	goroutine-3 ──Request(opaque=3)──┘                   └──← reader: frame(opaque=2) → pending[2] → goroutine-2
package transport

import (
	"context"
	"fmt"
	"grocketmq/message"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Channel is the caller-facing handle. It is safe for concurrent use.
type Channel struct {
	addr    string
	timeout time.Duration
	opts    options
	logger  *zap.Logger

	requests chan *request // bounded submission queue, drained only by the actor
	cancels  chan uint64   // opaques whose callers stopped waiting
	inbound  chan inbound  // frames and read errors from the connection reader

	ctx       context.Context // cancelled by Close
	cancel    context.CancelFunc
	done      chan struct{} // closed when the actor has exited
	closeOnce sync.Once

	counters counters
}

// request is one submission. written and response have room for exactly one value
// so the actor never blocks on a caller that has gone away.
type request struct {
	cmd       *message.Command
	oneway    bool
	written   chan error
	response  chan result
	abandoned atomic.Bool
}

type result struct {
	cmd *message.Command
	err error
}

// NewChannel validates addr and starts the actor. No connection is made until the first request.
func NewChannel(addr string, opts ...Option) (*Channel, error) {
	if err := validateAddress(addr); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	if o.queueCapacity <= 0 {
		o.queueCapacity = DefaultQueueCapacity
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		addr:     addr,
		timeout:  o.timeout,
		opts:     o,
		logger:   o.logger.With(zap.String("addr", addr)),
		requests: make(chan *request, o.queueCapacity),
		cancels:  make(chan uint64, o.queueCapacity),
		inbound:  make(chan inbound, 64),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.run()
	return c, nil
}

func validateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidAddress, addr, err)
	}
	if host == "" {
		return fmt.Errorf("%w: %q: missing host", ErrInvalidAddress, addr)
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil || p == 0 {
		return fmt.Errorf("%w: %q: bad port %q", ErrInvalidAddress, addr, port)
	}
	return nil
}

// Addr returns the remote address the channel connects to.
func (c *Channel) Addr() string {
	return c.addr
}

// Timeout returns the per-phase request timeout.
func (c *Channel) Timeout() time.Duration {
	return c.timeout
}

// Request sends cmd and waits for the reply carrying the same opaque.
//
// Submission never blocks: a full queue fails with ErrQueueFull. After that the
// caller waits for the write acknowledgement and then for the response, each for
// at most the channel timeout. ctx can cut either wait short.
func (c *Channel) Request(ctx context.Context, cmd *message.Command) (*message.Command, error) {
	req, err := c.submit(cmd, false)
	if err != nil {
		return nil, err
	}
	if err := c.awaitWritten(ctx, req); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-req.response:
		return res.cmd, res.err
	case <-timer.C:
		c.abandon(req)
		return nil, fmt.Errorf("%w: no response for opaque %d within %s", ErrTimeout, cmd.Opaque(), c.timeout)
	case <-ctx.Done():
		c.abandon(req)
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrChannelClosed
	}
}

// RequestOneway sends cmd with the oneway flag and returns once it is on the wire.
func (c *Channel) RequestOneway(ctx context.Context, cmd *message.Command) error {
	cmd.MarkOnewayRPC()
	req, err := c.submit(cmd, true)
	if err != nil {
		return err
	}
	return c.awaitWritten(ctx, req)
}

func (c *Channel) submit(cmd *message.Command, oneway bool) (*request, error) {
	if c.ctx.Err() != nil {
		return nil, ErrChannelClosed
	}
	req := &request{
		cmd:      cmd,
		oneway:   oneway,
		written:  make(chan error, 1),
		response: make(chan result, 1),
	}
	select {
	case c.requests <- req:
		return req, nil
	default:
		return nil, ErrQueueFull
	}
}

func (c *Channel) awaitWritten(ctx context.Context, req *request) error {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case err := <-req.written:
		return err
	case <-timer.C:
		c.abandon(req)
		return fmt.Errorf("%w: write of opaque %d not acknowledged within %s", ErrTimeout, req.cmd.Opaque(), c.timeout)
	case <-ctx.Done():
		c.abandon(req)
		return ctx.Err()
	case <-c.done:
		return ErrChannelClosed
	}
}

// abandon tells the actor nobody is waiting any more. If the cancel queue is full the
// pending entry lingers until its response arrives or the connection is torn down.
func (c *Channel) abandon(req *request) {
	req.abandoned.Store(true)
	select {
	case c.cancels <- req.cmd.Opaque():
	default:
	}
}

// Close stops the actor and drops the connection. Requests still queued are not
// serviced; every waiting caller returns ErrChannelClosed. Close is idempotent.
func (c *Channel) Close() error {
	c.closeOnce.Do(c.cancel)
	<-c.done
	return nil
}

// Stats is a snapshot of the channel counters.
type Stats struct {
	Connects        uint64 // connections established
	ConnectFailures uint64
	Written         uint64 // frames fully written
	Delivered       uint64 // responses handed to a waiting caller
	Unmatched       uint64 // responses whose opaque had no pending entry
	DecodeFailures  uint64 // inbound frames that could not be decoded
	Pending         int64  // entries in the pending table right now
}

type counters struct {
	connects        atomic.Uint64
	connectFailures atomic.Uint64
	written         atomic.Uint64
	delivered       atomic.Uint64
	unmatched       atomic.Uint64
	decodeFailures  atomic.Uint64
	pending         atomic.Int64
}

func (c *Channel) Stats() Stats {
	return Stats{
		Connects:        c.counters.connects.Load(),
		ConnectFailures: c.counters.connectFailures.Load(),
		Written:         c.counters.written.Load(),
		Delivered:       c.counters.delivered.Load(),
		Unmatched:       c.counters.unmatched.Load(),
		DecodeFailures:  c.counters.decodeFailures.Load(),
		Pending:         c.counters.pending.Load(),
	}
}
