package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ehrlich-b/clawchat/internal/relay"
)

func sendCmd() *cobra.Command {
	var retriesFlag int

	cmd := &cobra.Command{
		Use:   "send [text]",
		Short: "Send one message to the agent",
		Long:  "Sends a chat message through the gateway. With no argument the text is read from stdin when stdin is not a terminal.",
		Args:  cobra.MaximumNArgs(1),

		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			retries := -1
			if cmd.Flags().Changed("retries") {
				retries = retriesFlag
			}
			err := runSend(cmd, args, retries)
			if err != nil {
				fmt.Fprint(cmd.ErrOrStderr(), rendererFor(os.Stderr).Error(err))
			}
			return err
		},
	}
	cmd.Flags().IntVar(&retriesFlag, "retries", 0, "retries on transport errors (overrides config)")
	return cmd
}

// runSend delivers one message. A negative retries uses the configured value.
func runSend(cmd *cobra.Command, args []string, retries int) error {
	cfg, log, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()

	text, err := messageText(args, os.Stdin)
	if err != nil {
		return err
	}

	id, err := loadIdentity(cfg)
	if err != nil {
		return err
	}
	if retries < 0 {
		retries = cfg.Gateway.Retries
	}
	rl := relay.New(sessionPointer(cfg), newGatewayClient(cfg, id, log), relay.Options{
		Retries: retries,
		Logger:  log,
	})
	defer rl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	payload, err := rl.SendMessage(ctx, text)
	if err != nil {
		return err
	}
	if len(payload) > 0 && string(payload) != "null" {
		fmt.Fprintln(cmd.OutOrStdout(), string(payload))
	}
	return nil
}

// messageText returns the argument, or stdin's contents when there is no
// argument and stdin is not a terminal.
func messageText(args []string, stdin *os.File) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if term.IsTerminal(int(stdin.Fd())) {
		return "", errors.New("no message given (pass it as an argument or pipe it on stdin)")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimRight(string(data), "\n")
	if strings.TrimSpace(text) == "" {
		return "", relay.ErrEmptyMessage
	}
	return text, nil
}
