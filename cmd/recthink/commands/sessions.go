package commands

import (
	"context"
	"errors"
	"os"

	"github.com/recthink/recthink-client/internal/cli"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage backend sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backend sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newCommandApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.ctrl.LoadSessions(context.Background()) {
			return errors.New(a.ctrl.Snapshot().Error)
		}
		cli.NewRenderer(os.Stdout, os.Stderr, flagNoColor).Sessions(a.ctrl.Snapshot().Sessions, "")
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a backend session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newCommandApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.ctrl.DeleteSession(context.Background(), args[0]) {
			return errors.New(a.ctrl.Snapshot().Error)
		}
		cli.NewRenderer(os.Stdout, os.Stderr, flagNoColor).Info("deleted %s", args[0])
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

func newCommandApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, setupLogger(os.Stderr, cfg.SlogLevel()))
}
