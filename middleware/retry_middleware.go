package middleware

import (
	"context"
	"grocketmq/message"
	"time"

	"go.uber.org/zap"
)

// RetryMiddleware re-sends a request while retryable reports true for its error,
// backing off baseDelay, 2*baseDelay, 4*baseDelay, ...
//
// Every attempt reuses the same Command and therefore the same opaque. Only errors
// raised before the command reached the socket should be retryable.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, retryable func(error) bool, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Command) (*message.Command, error) {
			resp, err := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if err == nil || !retryable(err) {
					return resp, err
				}
				logger.Info("retrying request",
					zap.Int("attempt", i+1), zap.Uint8("code", req.Code()),
					zap.Uint64("opaque", req.Opaque()), zap.Error(err))

				timer := time.NewTimer(baseDelay * time.Duration(1<<i))
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				}
				resp, err = next(ctx, req)
			}
			return resp, err
		}
	}
}
