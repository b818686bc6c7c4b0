// Package client is the caller-facing remoting client: one transport Channel to a
// broker wrapped in a client-side middleware chain.
package client

import (
	"context"
	"errors"
	"fmt"
	"grocketmq/codec"
	"grocketmq/message"
	"grocketmq/middleware"
	"grocketmq/transport"

	"go.uber.org/zap"
)

// RemoteError is a reply whose code is not Success.
type RemoteError struct {
	Code   uint8
	Remark string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error: code %d: %s", e.Code, e.Remark)
}

type Client struct {
	channel *transport.Channel
	handler middleware.HandlerFunc // middleware(...(channel.Request))
	codec   codec.Codec
	logger  *zap.Logger
}

type options struct {
	channelOpts []transport.Option
	middlewares []middleware.Middleware
	logger      *zap.Logger
}

type Option func(*options)

// WithChannelOptions passes options through to the underlying Channel.
func WithChannelOptions(opts ...transport.Option) Option {
	return func(o *options) { o.channelOpts = append(o.channelOpts, opts...) }
}

// WithMiddleware appends client-side middlewares. The first one is the outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a client for the broker at addr. No connection is made until the first request.
func New(addr string, opts ...Option) (*Client, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	channelOpts := append([]transport.Option{transport.WithLogger(o.logger)}, o.channelOpts...)
	ch, err := transport.NewChannel(addr, channelOpts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		channel: ch,
		handler: middleware.Chain(o.middlewares...)(ch.Request),
		codec:   codec.GetCodec(codec.CodecTypeJSON),
		logger:  o.logger,
	}, nil
}

// Invoke sends cmd through the middleware chain and returns the raw reply.
func (c *Client) Invoke(ctx context.Context, cmd *message.Command) (*message.Command, error) {
	return c.handler(ctx, cmd)
}

// InvokeOneway sends cmd without waiting for a reply. It bypasses the middleware chain.
func (c *Client) InvokeOneway(ctx context.Context, cmd *message.Command) error {
	return c.channel.RequestOneway(ctx, cmd)
}

// Call encodes args as the JSON body of a request with the given code and decodes
// a Success reply body into reply. Any other reply code is returned as *RemoteError.
func (c *Client) Call(ctx context.Context, code uint8, args any, reply any) error {
	req := message.NewCommand(code)
	if args != nil {
		body, err := c.codec.Encode(args)
		if err != nil {
			return fmt.Errorf("encode args: %w", err)
		}
		req.SetBody(body)
	}

	resp, err := c.Invoke(ctx, req)
	if err != nil {
		return err
	}
	if resp.Code() != message.Success {
		return &RemoteError{Code: resp.Code(), Remark: resp.Remark()}
	}
	if reply == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := c.codec.Decode(resp.Body(), reply); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

// Channel exposes the underlying transport, mainly for Stats.
func (c *Client) Channel() *transport.Channel {
	return c.channel
}

func (c *Client) Close() error {
	return c.channel.Close()
}

// Retryable reports whether err means the command never reached the socket.
// Those are the only failures safe to resend.
func Retryable(err error) bool {
	return errors.Is(err, transport.ErrUnavailable)
}
