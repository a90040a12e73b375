// Package commands provides the CLI commands for the RecThink client.
package commands

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/recthink/recthink-client/internal/config"
	"github.com/recthink/recthink-client/internal/domain"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

// Global flags. Each overrides its environment variable when set.
var (
	flagAPIURL       string
	flagWSURL        string
	flagModel        string
	flagRounds       string
	flagAlternatives int
	flagShowThinking bool
	flagJournal      string
	flagLogLevel     string
	flagNoColor      bool
)

var rootCmd = &cobra.Command{
	Use:   "recthink",
	Short: "RecThink - recursive thinking chat client",
	Long: `RecThink talks to a recursive thinking backend that refines every answer
over several internal rounds before replying.

Run 'recthink chat' for an interactive terminal session, or 'recthink serve'
to expose the session to a browser UI.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagAPIURL, "api-url", "", "Backend REST base URL (RECTHINK_API_URL)")
	pf.StringVar(&flagWSURL, "ws-url", "", "Backend push stream base URL (RECTHINK_WS_URL)")
	pf.StringVar(&flagModel, "model", "", "Model identifier (RECTHINK_MODEL)")
	pf.StringVar(&flagRounds, "rounds", "", `Thinking rounds, "auto" or a number (RECTHINK_THINKING_ROUNDS)`)
	pf.IntVar(&flagAlternatives, "alternatives", 0, "Alternatives per round (RECTHINK_ALTERNATIVES)")
	pf.BoolVar(&flagShowThinking, "show-thinking", false, "Show the thinking process (RECTHINK_SHOW_THINKING)")
	pf.StringVar(&flagJournal, "journal", "", `Transcript journal path, "off" disables (RECTHINK_JOURNAL_PATH)`)
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level debug|info|warn|error (RECTHINK_LOG_LEVEL)")
	pf.BoolVar(&flagNoColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads .env, the environment and the optional YAML file, then
// applies explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("api-url") {
		cfg.APIURL = flagAPIURL
	}
	if flags.Changed("ws-url") {
		cfg.StreamURL = flagWSURL
	}
	if flags.Changed("model") {
		cfg.Model = flagModel
	}
	if flags.Changed("rounds") {
		rounds, err := domain.ParseRoundPolicy(flagRounds)
		if err != nil {
			return nil, fmt.Errorf("--rounds: %w", err)
		}
		cfg.ThinkingRounds = rounds
	}
	if flags.Changed("alternatives") {
		cfg.Alternatives = flagAlternatives
	}
	if flags.Changed("show-thinking") {
		cfg.ShowThinking = flagShowThinking
	}
	if flags.Changed("journal") {
		cfg.JournalPath = flagJournal
		if flagJournal == "off" {
			cfg.JournalPath = ""
		}
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLogger installs a JSON slog handler writing to w as the default.
func setupLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
