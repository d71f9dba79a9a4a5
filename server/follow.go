package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/burntcarrot/pairboard/commons"
	"github.com/burntcarrot/pairboard/config"
	"github.com/burntcarrot/pairboard/transport"
)

// follower is the part of *transport.Relay the follow command reads from.
type follower interface {
	Follow(ctx context.Context, fn func(data string)) error
}

func newFollowCmd(configPath *string) *cobra.Command {
	var redisAddr string

	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Prints the deltas other servers publish on the relay",
		Long: `follow subscribes to the Redis relay channel and prints one line per
accepted batch, restore and checkpoint, without joining the board.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			if redisAddr != "" {
				cfg.Relay.RedisAddr = redisAddr
			}
			if cfg.Relay.RedisAddr == "" {
				return errors.New("no relay configured: set relay.redis_addr or --redis")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := newLogger(cfg)
			relay, err := transport.NewRelay(ctx, cfg.Relay.RedisAddr, cfg.Relay.Channel, logger)
			if err != nil {
				return err
			}
			defer relay.Close()

			color.Green("Following %s on %s", cfg.Relay.Channel, cfg.Relay.RedisAddr)
			err = follow(ctx, relay, color.Output, logger)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&redisAddr, "redis", "", "Redis address of the relay (overrides config)")
	return cmd
}

// follow prints a line per relayed message until ctx is done.
func follow(ctx context.Context, f follower, out io.Writer, logger logrus.FieldLogger) error {
	codec := commons.JSONCodec{}
	return f.Follow(ctx, func(data string) {
		var msg commons.Message
		if err := codec.Decode(data, &msg); err != nil {
			logger.WithError(err).Warn("dropping undecodable relay message")
			return
		}

		t := time.Now().Format(time.ANSIC)
		switch {
		case msg.Type == commons.SaveCheckpointMessage:
			green.Fprintf(out, "%s >> %s saved checkpoint, %d total\n", t, msg.Requester, msg.Checkpoints)
		case msg.Full:
			yellow.Fprintf(out, "%s >> %s %s: epoch %d, %d shape(s)\n", t, msg.Requester, msg.Type, msg.Epoch, len(msg.Shapes))
		default:
			green.Fprintf(out, "%s >> %s %s: %d shape(s)\n", t, msg.Requester, msg.Type, len(msg.Shapes))
		}
	})
}
