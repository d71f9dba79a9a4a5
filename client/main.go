package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/burntcarrot/pairboard/commons"
	"github.com/burntcarrot/pairboard/config"
	"github.com/burntcarrot/pairboard/mirror"
	"github.com/burntcarrot/pairboard/transport"
	"github.com/burntcarrot/pairboard/tui"
)

// Flags represents the command-line flags that are passed to pairboard's client.
type Flags struct {
	Config string
	Server string
	User   string
	Level  int
	Debug  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags Flags

	cmd := &cobra.Command{
		Use:   "pairboard",
		Short: "Joins a shared whiteboard",
		Long: `pairboard connects to a pairboard server and opens the shared board in
the terminal. Edits show up immediately and are reconciled with the server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(flags.Config)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("server") {
				cfg.Client.Server = flags.Server
			}
			if cmd.Flags().Changed("level") {
				cfg.Client.Level = flags.Level
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.Config, "config", "c", "", "Path to the configuration file")
	cmd.Flags().StringVar(&flags.Server, "server", "", "WebSocket URL of the server (overrides config)")
	cmd.Flags().StringVarP(&flags.User, "user", "u", "", "User id shown to other participants")
	cmd.Flags().IntVar(&flags.Level, "level", 0, "Rank used to arbitrate concurrent edits (overrides config)")
	cmd.Flags().BoolVar(&flags.Debug, "debug", false, "Enable debugging mode to show more verbose logs")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, flags Flags) error {
	logger := logrus.New()
	logFile, debugLogFile, err := setupLogger(logger, logDir(), flags.Debug)
	if err != nil {
		return err
	}
	defer closeLogFiles(logFile, debugLogFile)

	color.Green("Connecting to %s as %s", cfg.Client.Server, flags.User)
	dialLogger := logger.WithField("component", "transport")
	first, err := transport.Dial(ctx, cfg.Client.Server, 30*time.Second, dialLogger)
	if err != nil {
		color.Red("Connection error: %s", err)
		return err
	}

	// The first connection is already open; later ones retry until the user quits.
	dial := func(ctx context.Context) (conn, error) {
		if first != nil {
			c := first
			first = nil
			return c, nil
		}
		return transport.Dial(ctx, cfg.Client.Server, 0, dialLogger)
	}

	out := newOutbox(1024, logger.WithField("component", "outbox"))
	m := mirror.New(out, mirror.WithLogger(logger.WithField("component", "mirror")))
	m.Start()
	m.SetUser(flags.User, cfg.Client.Level)

	p := tea.NewProgram(tui.New(m, logger.WithField("component", "tui")), tea.WithAltScreen(), tea.WithContext(ctx))
	in := inbound{program: p, codec: commons.JSONCodec{}, logger: logger.WithField("component", "inbound")}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	netErr := make(chan error, 1)
	go func() {
		netErr <- connect(runCtx, dial, in, out, cfg.Module, logger)
	}()

	_, uiErr := p.Run()
	cancel()

	if err := <-netErr; err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Warn("connection closed")
	}
	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return fmt.Errorf("board view: %w", uiErr)
	}
	return nil
}
