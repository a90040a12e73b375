// Package journal records conversation transcripts locally.
package journal

import (
	"context"

	"github.com/recthink/recthink-client/internal/domain"
)

// Recorder receives every appended message and installed thinking snapshot.
type Recorder interface {
	// RecordSession registers a freshly initialized session.
	RecordSession(ctx context.Context, sess domain.Session) error

	// RecordMessage appends a message to the session transcript.
	RecordMessage(ctx context.Context, sessionID string, msg domain.Message) error

	// RecordThinking stores the thinking snapshot of one exchange. A later
	// snapshot for the same exchange replaces the earlier one.
	RecordThinking(ctx context.Context, sessionID, exchangeID string, p *domain.ThinkingProcess) error

	// ForgetSession removes a session and its transcript.
	ForgetSession(ctx context.Context, sessionID string) error

	// Close releases the underlying storage.
	Close() error
}

// Entry is one stored transcript line.
type Entry struct {
	Seq     int64
	Message domain.Message
}

var _ Recorder = (*SQLite)(nil)
