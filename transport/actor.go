package transport

import (
	"context"
	"errors"
	"fmt"
	"grocketmq/message"
	"grocketmq/protocol"
	"io"
	"net"
	"time"

	"go.uber.org/zap"
)

const readBufferSize = 64 * 1024

// inbound is what the connection reader reports to the actor. gen identifies the
// connection so events from a connection that was already torn down are ignored.
type inbound struct {
	gen   uint64
	cmd   *message.Command
	err   error
	fatal bool // the connection is unusable
}

// actor holds everything the run goroutine owns. Nothing else reads or writes these fields.
type actor struct {
	ch      *Channel
	conn    net.Conn
	gen     uint64
	pending map[uint64]*request
}

func (c *Channel) run() {
	defer close(c.done)

	a := &actor{
		ch:      c,
		pending: make(map[uint64]*request),
	}
	for {
		select {
		case <-c.ctx.Done():
			a.teardown(ErrChannelClosed)
			c.logger.Debug("channel closed")
			return
		case req := <-c.requests:
			a.send(req)
		case ev := <-c.inbound:
			a.receive(ev)
		case opaque := <-c.cancels:
			a.forget(opaque)
		}
	}
}

func (a *actor) send(req *request) {
	c := a.ch
	if req.abandoned.Load() {
		return
	}

	opaque := req.cmd.Opaque()
	if _, dup := a.pending[opaque]; dup && !req.oneway {
		req.written <- fmt.Errorf("%w: opaque %d", ErrDuplicateOpaque, opaque)
		return
	}

	frame, err := protocol.Encode(req.cmd)
	if err != nil {
		req.written <- err
		return
	}

	if a.conn == nil {
		if err := a.connect(); err != nil {
			req.written <- fmt.Errorf("%w: %s: %v", ErrUnavailable, c.addr, err)
			return
		}
	}

	if err := a.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		c.logger.Warn("set write deadline failed, dropping connection",
			zap.Uint64("opaque", opaque), zap.Error(err))
		req.written <- fmt.Errorf("transport: write opaque %d: %w", opaque, err)
		a.teardown(ErrConnectionClosed)
		return
	}
	if _, err := a.conn.Write(frame); err != nil {
		c.logger.Warn("write failed, dropping connection",
			zap.Uint64("opaque", opaque), zap.Error(err))
		req.written <- fmt.Errorf("transport: write opaque %d: %w", opaque, err)
		a.teardown(ErrConnectionClosed)
		return
	}
	c.counters.written.Add(1)

	// Interest in the reply is registered only once the request is really on the wire.
	if !req.oneway && !req.abandoned.Load() {
		a.pending[opaque] = req
		c.counters.pending.Store(int64(len(a.pending)))
	}
	req.written <- nil
}

func (a *actor) connect() error {
	c := a.ch
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	conn, err := c.opts.dialer(ctx, c.addr)
	if err != nil {
		c.counters.connectFailures.Add(1)
		c.logger.Warn("connect failed", zap.Error(err))
		return err
	}

	a.gen++
	a.conn = conn
	c.counters.connects.Add(1)
	c.logger.Info("connected", zap.String("local", conn.LocalAddr().String()))
	go c.readLoop(conn, a.gen)
	return nil
}

func (a *actor) receive(ev inbound) {
	c := a.ch
	if a.conn == nil || ev.gen != a.gen {
		return
	}

	switch {
	case ev.fatal:
		if errors.Is(ev.err, protocol.ErrMalformedFrame) || errors.Is(ev.err, protocol.ErrFrameTooLarge) {
			c.counters.decodeFailures.Add(1)
			c.logger.Warn("unusable frame, dropping connection", zap.Error(ev.err))
		} else if errors.Is(ev.err, io.EOF) {
			c.logger.Info("connection closed by peer")
		} else {
			c.logger.Warn("read failed, dropping connection", zap.Error(ev.err))
		}
		a.teardown(ErrConnectionClosed)

	case ev.err != nil:
		// The frame boundary was intact, so the stream stays usable.
		c.counters.decodeFailures.Add(1)
		c.logger.Warn("dropping undecodable frame", zap.Error(ev.err))

	default:
		opaque := ev.cmd.Opaque()
		req, ok := a.pending[opaque]
		if !ok {
			c.counters.unmatched.Add(1)
			c.logger.Debug("dropping unmatched response",
				zap.Uint64("opaque", opaque), zap.Uint8("code", ev.cmd.Code()))
			return
		}
		delete(a.pending, opaque)
		c.counters.pending.Store(int64(len(a.pending)))
		req.response <- result{cmd: ev.cmd}
		c.counters.delivered.Add(1)
	}
}

func (a *actor) forget(opaque uint64) {
	if _, ok := a.pending[opaque]; !ok {
		return
	}
	delete(a.pending, opaque)
	a.ch.counters.pending.Store(int64(len(a.pending)))
}

// teardown closes the connection and fails everyone still waiting on it.
// The next request connects again.
func (a *actor) teardown(reason error) {
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	for opaque, req := range a.pending {
		req.response <- result{err: reason}
		delete(a.pending, opaque)
	}
	a.ch.counters.pending.Store(0)
}

// readLoop owns the read half of conn and its reassembly buffer. It exits on the
// first read error; closing conn from the actor is what stops it.
func (c *Channel) readLoop(conn net.Conn, gen uint64) {
	frames := protocol.NewFrameBuffer(c.opts.maxFrameSize)
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			frames.Write(buf[:n])
			for {
				frame, ok, ferr := frames.Next()
				if ferr != nil {
					c.post(inbound{gen: gen, err: ferr, fatal: true})
					return
				}
				if !ok {
					break
				}
				cmd, derr := protocol.Decode(frame)
				if !c.post(inbound{gen: gen, cmd: cmd, err: derr}) {
					return
				}
			}
		}
		if err != nil {
			c.post(inbound{gen: gen, err: err, fatal: true})
			return
		}
	}
}

func (c *Channel) post(ev inbound) bool {
	select {
	case c.inbound <- ev:
		return true
	case <-c.done:
		return false
	}
}
