package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		frame   string
		kind    EventKind
		check   func(t *testing.T, ev Event)
		wantErr error
	}{
		{
			name:  "string chunk",
			frame: `{"type":"chunk","content":"partial","exchange_id":"ex-1"}`,
			kind:  EventChunk,
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, "partial", ev.Content)
				assert.Equal(t, "ex-1", ev.ExchangeID)
				assert.JSONEq(t, `"partial"`, string(ev.Payload))
			},
		},
		{
			name:  "structured chunk",
			frame: `{"type":"chunk","content":{"round":2}}`,
			kind:  EventChunk,
			check: func(t *testing.T, ev Event) {
				assert.Empty(t, ev.Content)
				assert.JSONEq(t, `{"round":2}`, string(ev.Payload))
			},
		},
		{
			name: "final",
			frame: `{"type":"final","response":"answer","thinking_rounds":2,"thinking_history":[
				{"round":1,"alternative_number":1,"response":"draft","selected":false},
				{"round":2,"response":"answer","selected":true,"explanation":"clearer"}]}`,
			kind: EventFinal,
			check: func(t *testing.T, ev Event) {
				require.NotNil(t, ev.Reply)
				assert.Equal(t, "answer", ev.Reply.Response)
				assert.Equal(t, 2, ev.Reply.ThinkingRounds)
				require.Len(t, ev.Reply.ThinkingHistory, 2)
				require.NotNil(t, ev.Reply.ThinkingHistory[0].Alternative)
				assert.Equal(t, 1, *ev.Reply.ThinkingHistory[0].Alternative)
				assert.Equal(t, "clearer", ev.Reply.ThinkingHistory[1].Explanation)
				assert.True(t, ev.IsTerminal())
			},
		},
		{
			name:  "untyped error",
			frame: `{"error":"Session not found"}`,
			kind:  EventError,
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, "Session not found", ev.Message)
				assert.True(t, ev.IsTerminal())
			},
		},
		{
			name:  "typed error without message",
			frame: `{"type":"error","error":""}`,
			kind:  EventError,
			check: func(t *testing.T, ev Event) {
				assert.NotEmpty(t, ev.Message)
			},
		},
		{name: "unknown type", frame: `{"type":"progress"}`, wantErr: errUnknownFrame},
		{name: "not json", frame: `hello`, wantErr: errMalformedFrame},
		{name: "array", frame: `[1,2]`, wantErr: errMalformedFrame},
		{name: "bad final", frame: `{"type":"final","thinking_rounds":"two"}`, wantErr: errMalformedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev, err := DecodeEvent([]byte(tt.frame))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ev.Kind)
			if tt.check != nil {
				tt.check(t, ev)
			}
		})
	}
}

func TestChunkIsNotTerminal(t *testing.T) {
	t.Parallel()
	assert.False(t, Event{Kind: EventChunk}.IsTerminal())
}
