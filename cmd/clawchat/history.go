package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ehrlich-b/clawchat/internal/sessionlog"
	"github.com/ehrlich-b/clawchat/internal/ui"
)

func historyCmd() *cobra.Command {
	var jsonFlag bool
	var lastFlag int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the current conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, closeLog, err := setup()
			if err != nil {
				return err
			}
			defer closeLog()

			path, err := sessionPointer(cfg).Resolve()
			if err != nil {
				return err
			}
			msgs, err := sessionlog.ParseFile(path)
			if err != nil {
				log.Warn("session log unreadable", "path", path, "error", err)
			}
			if lastFlag > 0 && len(msgs) > lastFlag {
				msgs = msgs[len(msgs)-lastFlag:]
			}

			out := cmd.OutOrStdout()
			if jsonFlag {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(msgs)
			}
			fmt.Fprint(out, rendererFor(os.Stdout).Conversation(msgs))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print messages as JSON")
	cmd.Flags().IntVarP(&lastFlag, "last", "n", 0, "only the last N messages")
	return cmd
}

func rendererFor(f *os.File) *ui.Renderer {
	if term.IsTerminal(int(f.Fd())) {
		return ui.NewRenderer(ui.DefaultTheme())
	}
	return ui.NewPlainRenderer()
}
