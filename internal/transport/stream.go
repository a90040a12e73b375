package transport

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/recthink/recthink-client/internal/domain"
)

var errStreamConsumed = errors.New("stream events already consumed")

// Stream is the push channel bound to exactly one session.
type Stream struct {
	conn      *websocket.Conn
	sessionID string
	logger    *slog.Logger

	consumed  atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// OpenStream dials the push channel of a session. A successful return is the
// open acknowledgement.
func (c *Client) OpenStream(ctx context.Context, sessionID string) (EventStream, error) {
	target := c.streamURL + "/" + url.PathEscape(sessionID)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	//nolint:bodyclose // The response body is owned by the websocket library on success.
	conn, _, err := websocket.Dial(dialCtx, target, nil)
	if err != nil {
		if isTimeout(err) {
			return nil, &domain.Error{Kind: domain.ErrTimeout, Op: "open_stream", Err: err}
		}
		return nil, &domain.Error{Kind: domain.ErrStream, Op: "open_stream", Err: err}
	}
	conn.SetReadLimit(c.cfg.ReadLimit)

	c.logger.Info("Stream connected", "session_id", sessionID)
	return &Stream{
		conn:      conn,
		sessionID: sessionID,
		logger:    c.logger,
	}, nil
}

// SessionID returns the session the stream is scoped to.
func (s *Stream) SessionID() string {
	return s.sessionID
}

// Events returns the lazy sequence of decoded frames. The sequence ends
// without error when either side closes the stream cleanly, and yields a
// single StreamError on failure. It can be ranged over only once.
func (s *Stream) Events(ctx context.Context) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			yield(Event{}, &domain.Error{Kind: domain.ErrStream, Op: "stream", Err: errStreamConsumed})
			return
		}

		for {
			_, data, err := s.conn.Read(ctx)
			if err != nil {
				if s.isCleanClose(ctx, err) {
					s.logger.Debug("Stream closed", "session_id", s.sessionID)
					return
				}
				s.logger.Warn("Stream read error", "session_id", s.sessionID, "error", err)
				yield(Event{}, &domain.Error{Kind: domain.ErrStream, Op: "stream", Err: err})
				return
			}

			ev, err := DecodeEvent(data)
			if err != nil {
				s.logger.Warn("Skipping stream frame", "session_id", s.sessionID, "error", err)
				continue
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func (s *Stream) isCleanClose(ctx context.Context, err error) bool {
	if s.closed.Load() || ctx.Err() != nil {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

// Close releases the connection. Safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if err := s.conn.Close(websocket.StatusNormalClosure, "client closed"); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				s.closeErr = fmt.Errorf("close stream: %w", err)
			}
		}
	})
	return s.closeErr
}
