package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ehrlich-b/clawchat/internal/relay"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print a line each time the conversation changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, closeLog, err := setup()
			if err != nil {
				return err
			}
			defer closeLog()

			// reading and watching never talk to the gateway
			rl := relay.New(sessionPointer(cfg), nil, relay.Options{Logger: log})
			sub := rl.Subscribe()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			r := rendererFor(os.Stdout)
			out := cmd.OutOrStdout()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				defer rl.Close()
				return rl.Watcher(cfg.PollInterval).Run(ctx)
			})
			g.Go(func() error {
				for ev := range sub.C {
					fmt.Fprint(out, r.Event(ev))
				}
				return nil
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
