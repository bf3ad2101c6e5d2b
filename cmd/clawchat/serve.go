package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ehrlich-b/clawchat/internal/relay"
)

func serveCmd() *cobra.Command {
	var addrFlag string
	var staticFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, closeLog, err := setup()
			if err != nil {
				return err
			}
			defer closeLog()

			if addrFlag != "" {
				cfg.Addr = addrFlag
			}
			if staticFlag != "" {
				cfg.StaticDir = staticFlag
			}

			id, err := loadIdentity(cfg)
			if err != nil {
				return err
			}
			log.Info("device identity", "device_id", id.DeviceID, "fingerprint", id.Fingerprint())

			rl := relay.New(sessionPointer(cfg), newGatewayClient(cfg, id, log), relay.Options{
				Retries:   cfg.Gateway.Retries,
				SendRate:  cfg.Gateway.SendRate,
				SendBurst: cfg.Gateway.SendBurst,
				Logger:    log,
			})
			defer rl.Close()

			httpSrv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           relay.NewServer(rl, cfg.StaticDir, log),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return rl.Watcher(cfg.PollInterval).Run(ctx)
			})
			g.Go(func() error {
				log.Info("clawchat listening", "addr", "http://"+cfg.Addr, "gateway", cfg.Gateway.URL)
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("listen: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				// open event streams only end when their subscriptions close
				rl.Close()
				shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return httpSrv.Shutdown(shutCtx)
			})

			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				log.Info("clawchat stopped")
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&staticFlag, "static", "", "directory of UI assets served at /")
	return cmd
}
