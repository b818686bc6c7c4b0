package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"

	"grocketmq/client"
	"grocketmq/middleware"
	"grocketmq/proxy"
	"grocketmq/transport"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC front end until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

// newClient builds the broker client with the configured middleware chain.
func (a *app) newClient() (*client.Client, error) {
	cfg := a.cfg
	mws := []middleware.Middleware{middleware.LoggingMiddleware(a.logger)}
	// outside the retries so the deadline covers every attempt
	if cfg.CallTimeout > 0 {
		mws = append(mws, middleware.TimeoutMiddleware(cfg.CallTimeout))
	}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	}
	if cfg.Retry.MaxRetries > 0 {
		mws = append(mws, middleware.RetryMiddleware(cfg.Retry.MaxRetries, cfg.Retry.BaseDelay, client.Retryable, a.logger))
	}
	return client.New(cfg.BrokerAddr,
		client.WithLogger(a.logger),
		client.WithMiddleware(mws...),
		client.WithChannelOptions(
			transport.WithTimeout(cfg.RequestTimeout),
			transport.WithQueueCapacity(cfg.QueueCapacity),
			transport.WithMaxFrameSize(cfg.MaxFrameSize),
		))
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	cli, err := a.newClient()
	if err != nil {
		return err
	}
	defer cli.Close()

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	srv := proxy.NewServer(proxy.Unimplemented{Logger: logger}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		srv.GracefulStop()
		return nil
	})

	if cfg.Probe.Interval > 0 {
		probe := &proxy.Probe{
			Broker:   cli,
			Code:     cfg.Probe.Code,
			Interval: cfg.Probe.Interval,
			Timeout:  cfg.RequestTimeout,
			Report:   srv.SetServing,
			Logger:   logger,
		}
		g.Go(func() error {
			probe.Run(gctx)
			return nil
		})
	} else {
		srv.SetServing(true)
	}

	changes, err := store.Watch(gctx)
	if err != nil {
		logger.Warn("topic table will not be reloaded", zap.Error(err))
	} else {
		g.Go(func() error {
			for list := range changes {
				logger.Info("topic table changed", zap.Int("topics", len(list)))
			}
			return nil
		})
	}

	return g.Wait()
}
