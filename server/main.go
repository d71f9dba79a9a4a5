package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/burntcarrot/pairboard/authority"
	"github.com/burntcarrot/pairboard/checkpoint"
	"github.com/burntcarrot/pairboard/commons"
	"github.com/burntcarrot/pairboard/config"
	"github.com/burntcarrot/pairboard/store"
	"github.com/burntcarrot/pairboard/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath     string
		generateConfig bool
		addr           string
	)

	cmd := &cobra.Command{
		Use:   "pairboard-server",
		Short: "Runs the pairboard authority",
		Long: `pairboard-server holds the canonical whiteboard, arbitrates concurrent
edits from connected clients and keeps the checkpoint history.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if generateConfig {
				if err := config.SaveDefaultConfig(configPath); err != nil {
					return err
				}
				color.Green("Configuration file generated at %s", configPath)
				return nil
			}

			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, configPath)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")
	cmd.Flags().BoolVar(&generateConfig, "generate-config", false, "Write a default configuration file to --config and exit")
	cmd.Flags().StringVar(&addr, "addr", "", "Server's network address (overrides config)")
	cmd.AddCommand(newFollowCmd(&configPath))
	return cmd
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(cfg.Level())
	return logger
}

func run(ctx context.Context, cfg *config.Config, configPath string) error {
	logger := newLogger(cfg)

	var checkpoints checkpoint.Store
	if !cfg.Checkpoints.InMemory {
		st, err := store.Open(store.Config{
			Path:       cfg.Checkpoints.Path,
			SyncWrites: true,
			Logger:     logger.WithField("component", "badger"),
		})
		if err != nil {
			return err
		}
		defer st.Close()
		checkpoints = st
	}

	history, err := checkpoint.NewHistory(ctx, checkpoints, logger.WithField("component", "checkpoint"))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := transport.NewHub(logger.WithField("component", "hub"),
		transport.WithCheckOrigin(func(*http.Request) bool { return true }))

	g, gctx := errgroup.WithContext(ctx)

	publishers := authority.Publishers{
		&broadcaster{transport: hub, module: cfg.Module, codec: commons.JSONCodec{}, logger: logger},
	}
	if cfg.Relay.RedisAddr != "" {
		relay, err := transport.NewRelay(ctx, cfg.Relay.RedisAddr, cfg.Relay.Channel, logger)
		if err != nil {
			return err
		}
		defer relay.Close()

		rp := newRelayPublisher(relay, logger.WithField("component", "relay"))
		publishers = append(publishers, rp)
		g.Go(func() error { return rp.run(gctx) })
	}

	auth := authority.New(history,
		authority.WithPublisher(publishers),
		authority.WithLogger(logger.WithField("component", "authority")),
		authority.WithMetrics(authority.NewMetrics(reg)),
	)
	hub.Subscribe(cfg.Module, newDispatcher(auth, hub, cfg.Module, logger.WithField("component", "dispatch"), color.Output))

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: newRouter(&api{auth: auth, logger: logger}, hub, reg),
	}

	g.Go(func() error {
		color.Green("Starting server on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		color.Yellow("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hub.Close()
		return srv.Shutdown(shutdownCtx)
	})

	if configPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, configPath, logger, func(c *config.Config) {
				logger.SetLevel(c.Level())
			})
		})
	}

	return g.Wait()
}
