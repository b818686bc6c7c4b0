// Package middleware wraps Command handlers in the onion model. The same chain
// type serves the client (terminal handler is the transport) and the server
// (terminal handler is a processor).
package middleware

import (
	"context"
	"errors"
	"grocketmq/message"
)

var (
	ErrTimeout     = errors.New("middleware: request timed out")
	ErrRateLimited = errors.New("middleware: rate limit exceeded")
)

type HandlerFunc func(ctx context.Context, req *message.Command) (*message.Command, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain 将多个中间件组合成一个中间件, 第一个中间件在最外层
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
