package session

import (
	"context"
	"strings"

	"github.com/recthink/recthink-client/internal/domain"
	"github.com/recthink/recthink-client/internal/journal"
	"github.com/recthink/recthink-client/internal/transport"
)

// exchange is one user message awaiting its reply. Terminal events are
// matched against the latest exchange; anything else is stale.
type exchange struct {
	id        string
	sessionID string
	// pending is true until a terminal event or a REST failure ends the wait.
	pending bool
	// appended is set once the assistant reply has been added to history.
	appended bool
	// failed is set when a REST error or stream error frame ended the wait.
	failed bool
}

// SendMessage appends the user message, submits it and applies the reply.
// It reports whether a reply was applied for this exchange.
func (c *Controller) SendMessage(ctx context.Context, content string) bool {
	c.store.ClearError()

	if strings.TrimSpace(content) == "" {
		c.fail("send", &domain.Error{Kind: domain.ErrValidation, Op: "send", Message: "message cannot be empty"})
		return false
	}

	c.mu.Lock()
	if c.busyLocked() {
		c.mu.Unlock()
		c.fail("send", &domain.Error{Kind: domain.ErrValidation, Op: "send", Err: ErrBusy})
		return false
	}
	needSession := c.session == nil
	c.mu.Unlock()

	if needSession && !c.StartSession(ctx) {
		return false
	}

	c.mu.Lock()
	if c.closed || c.session == nil {
		c.mu.Unlock()
		return false
	}
	if c.busyLocked() {
		c.mu.Unlock()
		c.fail("send", &domain.Error{Kind: domain.ErrValidation, Op: "send", Err: ErrBusy})
		return false
	}

	ex := &exchange{id: c.newID(), sessionID: c.session.ID, pending: true}
	c.exch = ex
	settings := c.settings

	msg := domain.Message{Role: domain.RoleUser, Content: content, ExchangeID: ex.id, CreatedAt: c.now()}
	c.store.AppendMessage(msg)
	c.store.BeginExchange()
	c.recordLocked(func(ctx context.Context, r journal.Recorder) error {
		return r.RecordMessage(ctx, ex.sessionID, msg)
	})
	c.mu.Unlock()

	opts := transport.SendOptions{
		AlternativesPerRound: settings.AlternativesPerRound,
		ExchangeID:           ex.id,
	}
	if n, ok := settings.ThinkingRounds.Rounds(); ok {
		opts.ThinkingRounds = &n
	}

	c.logger.Debug("Sending message", "session_id", ex.sessionID, "exchange_id", ex.id, "thinking_rounds", settings.ThinkingRounds.String())
	reply, err := c.backend.SendMessage(ctx, ex.sessionID, content, opts)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		return c.failExchangeLocked(ex, err)
	}
	return c.applyTerminalLocked(ex, *reply, "rest")
}

// busyLocked reports whether an exchange is still waiting for its reply.
func (c *Controller) busyLocked() bool {
	return c.exch != nil && c.exch.pending
}

// applyTerminalLocked applies a terminal success. History receives the reply
// at most once per exchange; the thinking snapshot follows the latest arrival.
func (c *Controller) applyTerminalLocked(ex *exchange, reply domain.Reply, source string) bool {
	if ex == nil || ex != c.exch {
		c.logger.Debug("Discarding stale reply", "source", source)
		return false
	}

	process := domain.NewThinkingProcess(reply)

	if !ex.appended {
		ex.appended = true
		if ex.failed {
			// A late success supersedes the earlier failure.
			ex.failed = false
			c.store.ClearError()
		}
		msg := domain.Message{Role: domain.RoleAssistant, Content: reply.Response, ExchangeID: ex.id, CreatedAt: c.now()}
		c.store.AppendMessage(msg)
		c.recordLocked(func(ctx context.Context, r journal.Recorder) error {
			return r.RecordMessage(ctx, ex.sessionID, msg)
		})
	} else {
		c.logger.Debug("Reply already applied, refreshing thinking process", "exchange_id", ex.id, "source", source)
	}

	c.store.SetThinking(process)
	c.recordLocked(func(ctx context.Context, r journal.Recorder) error {
		return r.RecordThinking(ctx, ex.sessionID, ex.id, process)
	})

	if ex.pending {
		ex.pending = false
		c.store.EndExchange()
	}
	c.logger.Info("Reply applied", "session_id", ex.sessionID, "exchange_id", ex.id, "source", source, "rounds", process.Rounds)
	return true
}

// failExchangeLocked handles a failed REST call. The user message stays in
// history; the exchange remains resolvable by a stream final until the next
// one begins.
func (c *Controller) failExchangeLocked(ex *exchange, err error) bool {
	if ex != c.exch {
		c.logger.Debug("Ignoring failure of abandoned exchange", "exchange_id", ex.id, "error", err)
		return false
	}
	if ex.appended {
		// The stream already delivered the reply.
		c.logger.Debug("REST call failed after stream reply", "exchange_id", ex.id, "error", err)
		return true
	}

	c.logger.Warn("Send failed", "session_id", ex.sessionID, "exchange_id", ex.id, "error", err)
	c.store.SetError(err.Error())
	ex.failed = true
	if ex.pending {
		ex.pending = false
		c.store.EndExchange()
	}
	return false
}
