package session

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/recthink/recthink-client/internal/domain"
	"github.com/recthink/recthink-client/internal/state"
	"github.com/recthink/recthink-client/internal/transport"
	"github.com/stretchr/testify/require"
)

type streamItem struct {
	ev  transport.Event
	err error
}

type fakeStream struct {
	id        string
	events    chan streamItem
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeStream(id string) *fakeStream {
	return &fakeStream{id: id, events: make(chan streamItem, 32), closed: make(chan struct{})}
}

func (s *fakeStream) SessionID() string { return s.id }

func (s *fakeStream) Events(ctx context.Context) iter.Seq2[transport.Event, error] {
	return func(yield func(transport.Event, error) bool) {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.closed:
				return
			case it, ok := <-s.events:
				if !ok {
					return
				}
				if !yield(it.ev, it.err) || it.err != nil {
					return
				}
			}
		}
	}
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeStream) push(ev transport.Event) { s.events <- streamItem{ev: ev} }

func (s *fakeStream) fail(err error) { s.events <- streamItem{err: err} }

// hangUp ends the stream from the server side.
func (s *fakeStream) hangUp() { close(s.events) }

type nopRecorder struct{}

func (nopRecorder) RecordSession(context.Context, domain.Session) error { return nil }

func (nopRecorder) RecordMessage(context.Context, string, domain.Message) error { return nil }

func (nopRecorder) RecordThinking(context.Context, string, string, *domain.ThinkingProcess) error {
	return nil
}

func (nopRecorder) ForgetSession(context.Context, string) error { return nil }

func (nopRecorder) Close() error { return nil }

type sendCall struct {
	sessionID string
	content   string
	opts      transport.SendOptions
}

type fakeBackend struct {
	mu sync.Mutex

	initErr  error
	openErr  error
	saveErr  error
	listErr  error
	delErr   error
	sessions []domain.SessionSummary

	// send answers SendMessage. Nil replies with a fixed reply.
	send func(ctx context.Context, call sendCall) (*domain.Reply, error)

	inits    int
	streams  []*fakeStream
	calls    []sendCall
	saved    []string
	deleted  []string
	fullLogs []bool
}

func (b *fakeBackend) Initialize(_ context.Context, credential, model string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initErr != nil {
		return "", b.initErr
	}
	b.inits++
	return fmt.Sprintf("sess-%d", b.inits), nil
}

func (b *fakeBackend) SendMessage(ctx context.Context, sessionID, content string, opts transport.SendOptions) (*domain.Reply, error) {
	call := sendCall{sessionID: sessionID, content: content, opts: opts}
	b.mu.Lock()
	b.calls = append(b.calls, call)
	send := b.send
	b.mu.Unlock()

	if send == nil {
		return &domain.Reply{Response: "reply to " + content, ThinkingRounds: 1,
			ThinkingHistory: []domain.ThinkingStep{{Round: 1, Response: "reply to " + content, Selected: true}}}, nil
	}
	return send(ctx, call)
}

func (b *fakeBackend) SaveConversation(_ context.Context, _ string, filename *string, fullLog bool) (*transport.SaveResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return nil, b.saveErr
	}
	b.saved = append(b.saved, *filename)
	b.fullLogs = append(b.fullLogs, fullLog)
	return &transport.SaveResult{Status: "saved", Filename: *filename}, nil
}

func (b *fakeBackend) ListSessions(context.Context) ([]domain.SessionSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	return append([]domain.SessionSummary(nil), b.sessions...), nil
}

func (b *fakeBackend) DeleteSession(_ context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.delErr != nil {
		return b.delErr
	}
	b.deleted = append(b.deleted, sessionID)
	return nil
}

func (b *fakeBackend) OpenStream(_ context.Context, sessionID string) (transport.EventStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	s := newFakeStream(sessionID)
	b.streams = append(b.streams, s)
	return s, nil
}

func (b *fakeBackend) lastStream(t *testing.T) *fakeStream {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.streams, "no stream opened")
	return b.streams[len(b.streams)-1]
}

func (b *fakeBackend) sendCalls() []sendCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sendCall(nil), b.calls...)
}

// gate lets a test hold a SendMessage call until it decides the outcome.
type gate struct {
	started chan sendCall
	release chan gateResult
}

type gateResult struct {
	reply *domain.Reply
	err   error
}

func newGate() *gate {
	return &gate{started: make(chan sendCall, 1), release: make(chan gateResult, 1)}
}

func (g *gate) send(_ context.Context, call sendCall) (*domain.Reply, error) {
	g.started <- call
	res := <-g.release
	return res.reply, res.err
}

func (g *gate) waitStarted(t *testing.T) sendCall {
	t.Helper()
	select {
	case call := <-g.started:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("SendMessage was not called")
		return sendCall{}
	}
}

func newTestController(t *testing.T, b *fakeBackend) *Controller {
	t.Helper()
	store := state.NewStore(domain.DefaultSettings())
	c := NewController(b, store, Options{Credential: "secret"})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitForState(t *testing.T, c *Controller, cond func(state.State) bool) state.State {
	t.Helper()
	require.Eventually(t, func() bool { return cond(c.Snapshot()) }, 2*time.Second, 5*time.Millisecond)
	return c.Snapshot()
}

func reply(text string, rounds int, steps ...domain.ThinkingStep) *domain.Reply {
	return &domain.Reply{Response: text, ThinkingRounds: rounds, ThinkingHistory: steps}
}

func step(round int, text string, selected bool) domain.ThinkingStep {
	return domain.ThinkingStep{Round: round, Response: text, Selected: selected}
}
