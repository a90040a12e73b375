package transport

import (
	"context"
	"iter"

	"github.com/recthink/recthink-client/internal/domain"
)

// Backend is the transport contract consumed by the session controller.
// It is implemented by Client.
type Backend interface {
	// Initialize creates a session for the credential and model.
	Initialize(ctx context.Context, credential, model string) (string, error)

	// SendMessage submits a user message and returns the terminal reply.
	SendMessage(ctx context.Context, sessionID, content string, opts SendOptions) (*domain.Reply, error)

	// SaveConversation persists the conversation on the backend side.
	SaveConversation(ctx context.Context, sessionID string, filename *string, fullLog bool) (*SaveResult, error)

	// ListSessions lists backend sessions.
	ListSessions(ctx context.Context) ([]domain.SessionSummary, error)

	// DeleteSession removes a backend session.
	DeleteSession(ctx context.Context, sessionID string) error

	// OpenStream opens the push channel of a session.
	OpenStream(ctx context.Context, sessionID string) (EventStream, error)
}

// EventStream is a persistent push channel scoped to one session.
type EventStream interface {
	SessionID() string
	// Events is lazy, unbounded and not restartable.
	Events(ctx context.Context) iter.Seq2[Event, error]
	Close() error
}

// Ensure Client implements Backend.
var (
	_ Backend     = (*Client)(nil)
	_ EventStream = (*Stream)(nil)
)
