package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/clawchat/internal/auth"
	"github.com/ehrlich-b/clawchat/internal/config"
	"github.com/ehrlich-b/clawchat/internal/logger"
	"github.com/ehrlich-b/clawchat/internal/sessionlog"
	"github.com/ehrlich-b/clawchat/internal/ws"
)

var (
	configFlag   string
	logLevelFlag string
)

func main() {
	root := &cobra.Command{
		Use:          "clawchat",
		Short:        "Local chat relay for an agent gateway",
		Long:         "Serves a chat UI backed by the gateway's session log, and relays messages to the gateway over an authenticated websocket.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default ~/.clawchat/config.yaml)")
	root.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		serveCmd(),
		sendCmd(),
		historyCmd(),
		identityCmd(),
		watchCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and installs the default logger. The returned
// func closes the log file, if any.
func setup() (*config.Config, *slog.Logger, func() error, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, nil, nil, err
	}
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	log, closeLog, err := logger.Init(cfg.Logging.Level, config.ExpandHome(cfg.Logging.File))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return cfg, log, closeLog, nil
}

func loadIdentity(cfg *config.Config) (*auth.Identity, error) {
	id, err := auth.LoadOrCreateIdentity(cfg.IdentityFile)
	if err != nil {
		return nil, fmt.Errorf("device identity: %w", err)
	}
	return id, nil
}

func newGatewayClient(cfg *config.Config, id *auth.Identity, log *slog.Logger) *ws.Client {
	return &ws.Client{
		URL:         cfg.Gateway.URL,
		Origin:      cfg.Gateway.Origin,
		Token:       cfg.Gateway.Token,
		SessionKey:  cfg.Gateway.SessionKey,
		Identity:    id,
		CallTimeout: cfg.Gateway.CallTimeout,
		Locale:      cfg.Gateway.Locale,
		UserAgent:   cfg.Gateway.UserAgent,
		Logger:      log,
		OnStateChange: func(state string, err error) {
			if err != nil {
				log.Debug("gateway connection", "state", state, "error", err)
				return
			}
			log.Debug("gateway connection", "state", state)
		},
	}
}

func sessionPointer(cfg *config.Config) sessionlog.Pointer {
	return sessionlog.Pointer{
		SessionsFile: cfg.SessionsFile,
		SessionKey:   cfg.Gateway.SessionKey,
	}
}
