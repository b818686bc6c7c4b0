package proxy

import (
	"context"
	"grocketmq/message"
	"time"

	"go.uber.org/zap"
)

// Invoker sends one Command and waits for the reply. client.Client implements it.
type Invoker interface {
	Invoke(ctx context.Context, cmd *message.Command) (*message.Command, error)
}

// Probe checks broker liveness by sending a Command with Code every Interval.
// Any reply counts as alive, whatever its response code: the broker answered.
type Probe struct {
	Broker   Invoker
	Code     uint8
	Interval time.Duration
	Timeout  time.Duration
	// Report is called on the first result and then on every change.
	Report func(alive bool)
	Logger *zap.Logger
}

// Run probes until ctx is done. It always returns ctx.Err().
func (p *Probe) Run(ctx context.Context) error {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	first := true
	var last bool
	for {
		alive := p.check(ctx, logger)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if first || alive != last {
			logger.Info("broker liveness", zap.Bool("alive", alive))
			if p.Report != nil {
				p.Report(alive)
			}
			first, last = false, alive
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Probe) check(ctx context.Context, logger *zap.Logger) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = p.Interval
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := p.Broker.Invoke(ctx, message.NewCommand(p.Code))
	if err != nil {
		logger.Debug("probe failed", zap.Error(err))
		return false
	}
	logger.Debug("probe answered", zap.Uint8("code", resp.Code()))
	return true
}
