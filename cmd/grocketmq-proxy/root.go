package main

import (
	"fmt"

	"grocketmq/config"
	"grocketmq/topicconfig"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app is the state shared by all subcommands, filled in by PersistentPreRunE.
type app struct {
	// global flags
	cfgFile    string
	brokerAddr string
	listenAddr string
	topicDir   string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "grocketmq-proxy",
		Short:         "RocketMQ proxy: gRPC front end over the remoting protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// Override config with flags
			if a.brokerAddr != "" {
				cfg.BrokerAddr = a.brokerAddr
			}
			if a.listenAddr != "" {
				cfg.ListenAddr = a.listenAddr
			}
			if a.topicDir != "" {
				cfg.TopicConfigDir = a.topicDir
			}
			if a.logLevel != "" {
				cfg.LogLevel = a.logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	root.PersistentFlags().StringVar(&a.brokerAddr, "broker", "", "broker address host:port")
	root.PersistentFlags().StringVar(&a.listenAddr, "listen", "", "gRPC listen address")
	root.PersistentFlags().StringVar(&a.topicDir, "topic-dir", "", "directory holding topic_config.json")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(a.serveCmd(), a.topicCmd(), a.invokeCmd())
	return root
}

// newLogger builds a development logger for debug and a production logger otherwise.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func (a *app) openStore() (topicconfig.Store, error) {
	switch a.cfg.TopicStore {
	case config.StoreEtcd:
		return topicconfig.NewEtcdStore(a.cfg.EtcdEndpoints, a.logger)
	default:
		m := topicconfig.NewManager(a.cfg.TopicConfigDir, a.logger)
		if err := m.Load(); err != nil {
			return nil, err
		}
		return m, nil
	}
}
