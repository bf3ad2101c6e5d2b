package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Dir returns the clawchat home directory: $CLAWCHAT_HOME or ~/.clawchat.
func Dir() (string, error) {
	if d := os.Getenv("CLAWCHAT_HOME"); d != "" {
		return d, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".clawchat"), nil
}

// GatewayStateDir returns the gateway's state directory, ~/.openclaw.
func GatewayStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".openclaw"), nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
