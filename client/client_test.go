package client

import (
	"context"
	"errors"
	"grocketmq/message"
	"grocketmq/middleware"
	"grocketmq/server"
	"grocketmq/transport"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

const (
	codeAdd  uint8 = 10
	codeNote uint8 = 12
)

type Args struct {
	A, B int
}

type Reply struct {
	Result int
}

func startServer(t *testing.T) (*server.Server, string) {
	t.Helper()
	svr := server.NewServer()
	svr.RegisterProcessor(codeAdd, server.JSONProcessor(func(ctx context.Context, args *Args) (*Reply, error) {
		return &Reply{Result: args.A + args.B}, nil
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go svr.Serve(ln)
	t.Cleanup(func() { svr.Shutdown(time.Second) })
	return svr, ln.Addr().String()
}

func newClient(t *testing.T, addr string, opts ...Option) *Client {
	t.Helper()
	cli, err := New(addr, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cli.Close() })
	return cli
}

func TestClientCall(t *testing.T) {
	_, addr := startServer(t)
	cli := newClient(t, addr)

	// Call Add(1, 2) = 3
	reply := &Reply{}
	if err := cli.Call(context.Background(), codeAdd, &Args{A: 1, B: 2}, reply); err != nil {
		t.Fatal(err)
	}
	if reply.Result != 3 {
		t.Fatalf("expect 3, got %v", reply.Result)
	}

	// Call again: Add(10, 20) = 30
	reply2 := &Reply{}
	if err := cli.Call(context.Background(), codeAdd, &Args{A: 10, B: 20}, reply2); err != nil {
		t.Fatal(err)
	}
	if reply2.Result != 30 {
		t.Fatalf("expect 30, got %v", reply2.Result)
	}

	if stats := cli.Channel().Stats(); stats.Connects != 1 || stats.Delivered != 2 {
		t.Fatalf("expect one connection reused, got %+v", stats)
	}
}

func TestClientCallRemoteError(t *testing.T) {
	_, addr := startServer(t)
	cli := newClient(t, addr)

	err := cli.Call(context.Background(), 77, nil, nil)
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Code != message.RequestCodeNotSupported {
		t.Fatalf("expect RemoteError with RequestCodeNotSupported, got %v", err)
	}
}

func TestClientInvokeOneway(t *testing.T) {
	svr, addr := startServer(t)
	noted := make(chan struct{}, 1)
	svr.RegisterProcessor(codeNote, func(ctx context.Context, req *message.Command) (*message.Command, error) {
		noted <- struct{}{}
		return nil, nil
	})
	cli := newClient(t, addr)

	if err := cli.InvokeOneway(context.Background(), message.NewCommand(codeNote)); err != nil {
		t.Fatal(err)
	}
	select {
	case <-noted:
	case <-time.After(5 * time.Second):
		t.Fatal("oneway command never processed")
	}
}

func TestClientMiddlewareOrder(t *testing.T) {
	_, addr := startServer(t)

	var calls atomic.Int32
	count := func(next middleware.HandlerFunc) middleware.HandlerFunc {
		return func(ctx context.Context, req *message.Command) (*message.Command, error) {
			calls.Add(1)
			return next(ctx, req)
		}
	}
	cli := newClient(t, addr, WithMiddleware(count, middleware.TimeoutMiddleware(time.Second)))

	if err := cli.Call(context.Background(), codeAdd, &Args{A: 2, B: 2}, &Reply{}); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expect middleware to run once, got %d", calls.Load())
	}
}

func TestClientRetriesUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cli := newClient(t, addr,
		WithChannelOptions(transport.WithTimeout(time.Second)),
		WithMiddleware(middleware.RetryMiddleware(2, time.Millisecond, Retryable, nil)))

	err = cli.Call(context.Background(), codeAdd, &Args{}, &Reply{})
	if !errors.Is(err, transport.ErrUnavailable) || !Retryable(err) {
		t.Fatalf("expect ErrUnavailable, got %v", err)
	}
	if stats := cli.Channel().Stats(); stats.ConnectFailures != 3 {
		t.Fatalf("expect 1 attempt plus 2 retries, got %+v", stats)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{transport.ErrUnavailable, true},
		{transport.ErrTimeout, false},
		{transport.ErrConnectionClosed, false},
		{transport.ErrQueueFull, false},
		{nil, false},
	}
	for _, c := range cases {
		if got := Retryable(c.err); got != c.want {
			t.Errorf("Retryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestNewInvalidAddress(t *testing.T) {
	if _, err := New("no-port"); !errors.Is(err, transport.ErrInvalidAddress) {
		t.Fatalf("expect ErrInvalidAddress, got %v", err)
	}
}
