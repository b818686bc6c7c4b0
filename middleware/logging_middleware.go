package middleware

import (
	"context"
	"grocketmq/message"
	"time"

	"go.uber.org/zap"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Command) (*message.Command, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			fields := []zap.Field{
				zap.Uint8("code", req.Code()),
				zap.Uint64("opaque", req.Opaque()),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("request failed", append(fields, zap.Error(err))...)
				return resp, err
			}
			if resp != nil {
				fields = append(fields, zap.Uint8("response_code", resp.Code()))
			}
			logger.Debug("request done", fields...)
			return resp, nil
		}
	}
}
