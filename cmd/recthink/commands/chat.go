package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/recthink/recthink-client/internal/cli"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session in the terminal.

Type a message and press enter to send it. End a line with a backslash to
continue on the next line. Type /help for the list of commands.`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Logs go to stderr so they never interleave with the conversation.
	logger := setupLogger(os.Stderr, cfg.SlogLevel())

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	if !a.ctrl.HasCredential() {
		logger.Warn("No API key configured, set RECTHINK_API_KEY or use .env")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	renderer := cli.NewRenderer(os.Stdout, os.Stderr, flagNoColor)
	return cli.NewREPL(a.ctrl, renderer, os.Stdin, os.Stdout).Run(ctx)
}
