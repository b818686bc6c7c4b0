package middleware

import (
	"context"
	"fmt"
	"grocketmq/message"

	"golang.org/x/time/rate"
)

// RateLimitMiddleware 创建一个基于令牌桶算法的限流中间件. 超出速率的请求直接失败, 不排队.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Command) (*message.Command, error) {
			if !limiter.Allow() {
				return nil, fmt.Errorf("%w: code %d", ErrRateLimited, req.Code())
			}
			return next(ctx, req)
		}
	}
}
