package session

import (
	"context"
	"log/slog"

	"github.com/recthink/recthink-client/internal/domain"
	"github.com/recthink/recthink-client/internal/transport"
)

// attachStreamLocked installs stream as the live push channel and starts
// its reader.
func (c *Controller) attachStreamLocked(stream transport.EventStream) {
	c.streamGen++
	gen := c.streamGen
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.stream = stream
	c.streamCancel = cancel
	c.store.SetStatus(domain.StatusConnected)

	c.readers.Add(1)
	go c.readStream(ctx, stream, gen)
}

// releaseStreamLocked detaches the live stream. Its reader is cancelled and
// any event it still delivers is ignored.
func (c *Controller) releaseStreamLocked() {
	c.streamGen++
	if c.streamCancel != nil {
		c.streamCancel()
		c.streamCancel = nil
	}
	if c.stream != nil {
		go closeStream(c.logger, c.stream)
		c.stream = nil
	}
}

func closeStream(logger *slog.Logger, stream transport.EventStream) {
	if err := stream.Close(); err != nil {
		logger.Debug("Stream close failed", "session_id", stream.SessionID(), "error", err)
	}
}

func (c *Controller) readStream(ctx context.Context, stream transport.EventStream, gen uint64) {
	defer c.readers.Done()

	for ev, err := range stream.Events(ctx) {
		if err != nil {
			c.streamFailed(gen, stream, err)
			return
		}
		c.handleEvent(gen, ev)
	}
	c.streamEnded(gen, stream)
}

func (c *Controller) handleEvent(gen uint64, ev transport.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.streamGen {
		return
	}

	ex := c.matchExchangeLocked(ev.ExchangeID)
	if ev.IsTerminal() && ex == nil && ev.ExchangeID != "" {
		c.logger.Debug("Ignoring stale terminal frame", "exchange_id", ev.ExchangeID)
		return
	}

	switch ev.Kind {
	case transport.EventChunk:
		if ex == nil || !ex.pending {
			c.logger.Debug("Ignoring chunk without pending exchange", "exchange_id", ev.ExchangeID)
			return
		}
		c.store.AppendProgress(ev.Content)

	case transport.EventFinal:
		if ex == nil || ev.Reply == nil {
			c.logger.Debug("Ignoring unmatched final", "exchange_id", ev.ExchangeID)
			return
		}
		c.applyTerminalLocked(ex, *ev.Reply, "stream")

	case transport.EventError:
		c.logger.Warn("Stream reported error", "exchange_id", ev.ExchangeID, "error", ev.Message)
		c.store.SetError(ev.Message)
		if ex != nil && ex.pending {
			ex.pending = false
			ex.failed = true
			c.store.EndExchange()
		}
	}
}

// matchExchangeLocked returns the latest exchange when the frame belongs to
// it. Frames without an id are attributed to the latest exchange, so an
// untagged final that arrives late for exchange N is taken as the reply to
// N+1 when N+1 is pending.
func (c *Controller) matchExchangeLocked(id string) *exchange {
	if c.exch == nil {
		return nil
	}
	if id != "" && id != c.exch.id {
		return nil
	}
	return c.exch
}

func (c *Controller) streamFailed(gen uint64, stream transport.EventStream, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.streamGen {
		return
	}
	c.logger.Warn("Stream failed", "session_id", stream.SessionID(), "error", err)
	c.releaseStreamLocked()
	c.store.SetStatus(domain.StatusError)
	c.store.SetError(err.Error())
}

func (c *Controller) streamEnded(gen uint64, stream transport.EventStream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.streamGen {
		return
	}
	c.logger.Info("Stream closed", "session_id", stream.SessionID())
	c.releaseStreamLocked()
	c.store.SetStatus(domain.StatusDisconnected)
}
