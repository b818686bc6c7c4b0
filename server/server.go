// Package server implements the responder side of the remoting protocol: it
// accepts broker-style connections, dispatches each Command to the processor
// registered for its code and writes the reply back on the same connection.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (single goroutine reads frames)
//	  → for each request: go handleRequest (parallel processing)
//	    → Middleware Chain → dispatch (processor by code) → write response with the request opaque
package server

import (
	"context"
	"errors"
	"fmt"
	"grocketmq/message"
	"grocketmq/middleware"
	"grocketmq/protocol"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Server dispatches remoting Commands to processors keyed by request code.
type Server struct {
	mu         sync.RWMutex
	processors map[uint8]middleware.HandlerFunc // request code → processor
	listener   net.Listener
	conns      map[net.Conn]struct{}

	wg          sync.WaitGroup          // Tracks in-flight requests for graceful shutdown
	shutdown    atomic.Bool             // Set to true during shutdown to suppress Accept errors
	middlewares []middleware.Middleware // Registered middlewares (applied in order)
	handler     middleware.HandlerFunc  // middleware(middleware(...(dispatch)))

	logger       *zap.Logger
	maxFrameSize uint32
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMaxFrameSize bounds inbound frames; a larger declaration closes the connection.
func WithMaxFrameSize(n uint32) Option {
	return func(s *Server) { s.maxFrameSize = n }
}

// NewServer creates a server with no processors.
func NewServer(opts ...Option) *Server {
	s := &Server{
		processors:   make(map[uint8]middleware.HandlerFunc),
		conns:        make(map[net.Conn]struct{}),
		logger:       zap.NewNop(),
		maxFrameSize: protocol.DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterProcessor binds a handler to a request code, replacing any previous one.
func (svr *Server) RegisterProcessor(code uint8, h middleware.HandlerFunc) {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	svr.processors[code] = h
}

// Use registers a middleware. Middlewares are applied in the order they are added
// and must be registered before Serve.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// ListenAndServe listens on the given address and calls Serve.
func (svr *Server) ListenAndServe(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.Serve(listener)
}

// Serve accepts connections on listener until Shutdown. It returns nil after a
// Shutdown and the Accept error otherwise.
func (svr *Server) Serve(listener net.Listener) error {
	// Chain(A, B, C)(dispatch) → A(B(C(dispatch)))
	svr.handler = middleware.Chain(svr.middlewares...)(svr.dispatch)

	svr.mu.Lock()
	svr.listener = listener
	svr.mu.Unlock()
	svr.logger.Info("remoting server listening", zap.String("addr", listener.Addr().String()))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		go svr.handleConn(conn)
	}
}

// Addr returns the listen address, or nil before Serve.
func (svr *Server) Addr() net.Addr {
	svr.mu.RLock()
	defer svr.mu.RUnlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

// handleConn runs the single reader of one connection and hands every request to
// its own goroutine. writeMu keeps concurrent replies from interleaving.
func (svr *Server) handleConn(conn net.Conn) {
	if !svr.track(conn) {
		conn.Close()
		return
	}
	defer svr.untrack(conn)

	logger := svr.logger.With(zap.String("remote", conn.RemoteAddr().String()))
	writeMu := &sync.Mutex{}
	for {
		req, err := protocol.ReadCommand(conn, svr.maxFrameSize)
		if err != nil {
			if errors.Is(err, protocol.ErrHeaderDecode) || errors.Is(err, protocol.ErrFrameTooLarge) ||
				errors.Is(err, protocol.ErrMalformedFrame) {
				logger.Warn("bad frame, closing connection", zap.Error(err))
			}
			return
		}
		if req.IsResponseType() {
			logger.Debug("ignoring response frame", zap.Uint64("opaque", req.Opaque()))
			continue
		}

		if !svr.begin() {
			return
		}
		go svr.handleRequest(req, conn, writeMu, logger)
	}
}

// begin registers an in-flight request unless Shutdown has started.
// The check and the Add share mu with Shutdown so Wait never races an Add from zero.
func (svr *Server) begin() bool {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.wg.Add(1)
	return true
}

func (svr *Server) handleRequest(req *message.Command, conn net.Conn, writeMu *sync.Mutex, logger *zap.Logger) {
	defer svr.wg.Done()

	resp, err := svr.handler(context.Background(), req)
	if req.IsOnewayRPC() {
		if err != nil {
			logger.Warn("oneway request failed", zap.Uint8("code", req.Code()), zap.Error(err))
		}
		return
	}
	resp = svr.reply(req, resp, err)

	writeMu.Lock()
	defer writeMu.Unlock()
	if err := protocol.WriteCommand(conn, resp); err != nil {
		logger.Warn("write response failed", zap.Uint64("opaque", req.Opaque()), zap.Error(err))
	}
}

// reply turns a processor outcome into the Command sent back. The reply always
// carries the request opaque and the response flag.
func (svr *Server) reply(req, resp *message.Command, err error) *message.Command {
	switch {
	case errors.Is(err, middleware.ErrRateLimited):
		resp = message.NewResponseCommand(message.SystemBusy, req.Opaque())
		resp.SetRemark(err.Error())
	case err != nil:
		resp = message.NewResponseCommand(message.SystemError, req.Opaque())
		resp.SetRemark(err.Error())
	case resp == nil:
		resp = message.NewResponseCommand(message.Success, req.Opaque())
	case resp.Opaque() != req.Opaque():
		h := resp.Header()
		h.Opaque = req.Opaque()
		resp = message.FromHeader(h, resp.Body())
	}
	resp.MarkResponseType()
	return resp
}

// dispatch is the terminal handler of the middleware chain.
func (svr *Server) dispatch(ctx context.Context, req *message.Command) (*message.Command, error) {
	svr.mu.RLock()
	h, ok := svr.processors[req.Code()]
	svr.mu.RUnlock()
	if !ok {
		resp := message.NewResponseCommand(message.RequestCodeNotSupported, req.Opaque())
		resp.SetRemark(fmt.Sprintf("request code %d not supported", req.Code()))
		return resp, nil
	}
	return h(ctx, req)
}

func (svr *Server) track(conn net.Conn) bool {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.conns[conn] = struct{}{}
	return true
}

func (svr *Server) untrack(conn net.Conn) {
	svr.mu.Lock()
	delete(svr.conns, conn)
	svr.mu.Unlock()
	conn.Close()
}

// Shutdown performs graceful shutdown:
//  1. Set shutdown flag (so Accept error is recognized as intentional)
//  2. Close the listener (stop accepting new connections)
//  3. Wait for in-flight requests to finish (with timeout)
//  4. Close every open connection
func (svr *Server) Shutdown(timeout time.Duration) error {
	svr.mu.Lock()
	svr.shutdown.Store(true)
	listener := svr.listener
	svr.mu.Unlock()
	if listener != nil {
		listener.Close()
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("timeout waiting for ongoing requests to finish")
	}

	svr.mu.Lock()
	for conn := range svr.conns {
		conn.Close()
	}
	svr.mu.Unlock()
	return err
}
