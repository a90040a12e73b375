package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/recthink/recthink-client/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *SQLite {
	t.Helper()
	j, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndReadTranscript(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j := openTestJournal(t)

	sess := domain.Session{ID: "sess-1", Model: "gpt-4o", CreatedAt: time.Now()}
	require.NoError(t, j.RecordSession(ctx, sess))
	require.NoError(t, j.RecordSession(ctx, sess))

	msgs := []domain.Message{
		domain.NewWelcomeMessage(),
		{Role: domain.RoleUser, Content: "hello", ExchangeID: "ex-1", CreatedAt: time.Now()},
		{Role: domain.RoleAssistant, Content: "hi", ExchangeID: "ex-1"},
	}
	for _, m := range msgs {
		require.NoError(t, j.RecordMessage(ctx, sess.ID, m))
	}
	require.NoError(t, j.RecordMessage(ctx, "other", domain.Message{Role: domain.RoleUser, Content: "elsewhere"}))

	entries, err := j.Messages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, msgs[i].Role, e.Message.Role)
		assert.Equal(t, msgs[i].Content, e.Message.Content)
		assert.Equal(t, msgs[i].ExchangeID, e.Message.ExchangeID)
		assert.False(t, e.Message.CreatedAt.IsZero())
	}
	assert.Less(t, entries[0].Seq, entries[2].Seq)
}

func TestRecordThinkingReplacesPerExchange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j := openTestJournal(t)

	first := &domain.ThinkingProcess{Rounds: 1, History: []domain.ThinkingStep{{Round: 1, Response: "a", Selected: true}}}
	second := &domain.ThinkingProcess{Rounds: 2, History: []domain.ThinkingStep{
		{Round: 1, Response: "a"},
		{Round: 2, Response: "b", Selected: true, Explanation: "sharper"},
	}}
	require.NoError(t, j.RecordThinking(ctx, "sess-1", "ex-1", first))
	require.NoError(t, j.RecordThinking(ctx, "sess-1", "ex-1", second))
	require.NoError(t, j.RecordThinking(ctx, "sess-1", "ex-2", nil))

	got, err := j.Thinking(ctx, "sess-1", "ex-1")
	require.NoError(t, err)
	assert.Equal(t, second, got)

	missing, err := j.Thinking(ctx, "sess-1", "ex-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestForgetSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j := openTestJournal(t)

	require.NoError(t, j.RecordSession(ctx, domain.Session{ID: "sess-1", Model: "m"}))
	require.NoError(t, j.RecordMessage(ctx, "sess-1", domain.Message{Role: domain.RoleUser, Content: "x"}))
	require.NoError(t, j.RecordThinking(ctx, "sess-1", "ex-1", &domain.ThinkingProcess{Rounds: 1}))
	require.NoError(t, j.RecordMessage(ctx, "sess-2", domain.Message{Role: domain.RoleUser, Content: "y"}))

	require.NoError(t, j.ForgetSession(ctx, "sess-1"))

	entries, err := j.Messages(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
	p, err := j.Thinking(ctx, "sess-1", "ex-1")
	require.NoError(t, err)
	assert.Nil(t, p)

	entries, err = j.Messages(ctx, "sess-2")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWithBusyRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	calls := 0
	err := withBusyRetry(ctx, "test", func() error {
		calls++
		if calls < 2 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	plain := errors.New("constraint failed")
	err = withBusyRetry(ctx, "test", func() error {
		calls++
		return plain
	})
	assert.ErrorIs(t, err, plain)
	assert.Equal(t, 1, calls)

	assert.True(t, isConflictError(errors.New("SQLITE_BUSY")))
	assert.False(t, isConflictError(nil))
}
