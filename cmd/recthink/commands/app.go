package commands

import (
	"fmt"
	"log/slog"

	"github.com/recthink/recthink-client/internal/config"
	"github.com/recthink/recthink-client/internal/journal"
	"github.com/recthink/recthink-client/internal/session"
	"github.com/recthink/recthink-client/internal/state"
	"github.com/recthink/recthink-client/internal/transport"
)

// app bundles the wired controller with its cleanup.
type app struct {
	ctrl    *session.Controller
	journal *journal.SQLite
	logger  *slog.Logger
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	client, err := transport.NewClient(cfg.ClientConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("create backend client: %w", err)
	}

	a := &app{logger: logger}
	opts := session.Options{Credential: cfg.APIKey, Logger: logger}
	if cfg.JournalPath != "" {
		j, err := journal.OpenSQLite(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.journal = j
		opts.Journal = j
		logger.Info("Journal opened", "path", cfg.JournalPath)
	}

	store := state.NewStore(cfg.Settings())
	a.ctrl = session.NewController(client, store, opts)
	return a, nil
}

func (a *app) Close() {
	if err := a.ctrl.Close(); err != nil {
		a.logger.Error("Failed to close controller", "error", err)
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Error("Failed to close journal", "error", err)
		}
	}
}
