package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func identityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "Show this device's identity, creating it if absent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, closeLog, err := setup()
			if err != nil {
				return err
			}
			defer closeLog()

			id, err := loadIdentity(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "device id:   %s\n", id.DeviceID)
			fmt.Fprintf(out, "public key:  %s\n", id.PublicKeyString())
			fmt.Fprintf(out, "fingerprint: %s\n", id.Fingerprint())
			fmt.Fprintf(out, "ssh key:     %s\n", id.AuthorizedKey())
			fmt.Fprintf(out, "file:        %s\n", cfg.IdentityFile)
			return nil
		},
	}
}
