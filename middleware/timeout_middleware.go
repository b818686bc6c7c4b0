package middleware

import (
	"context"
	"fmt"
	"grocketmq/message"
	"time"
)

func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Command) (*message.Command, error) {
			parent := ctx
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type result struct {
				resp *message.Command
				err  error
			}
			done := make(chan result, 1)
			go func() {
				resp, err := next(ctx, req)
				done <- result{resp, err}
			}()

			select {
			case r := <-done:
				return r.resp, r.err
			case <-ctx.Done():
				if err := parent.Err(); err != nil {
					return nil, err
				}
				return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
			}
		}
	}
}
