package transport

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/recthink/recthink-client/internal/domain"
	"github.com/tidwall/gjson"
)

var (
	errMalformedFrame = errors.New("malformed stream frame")
	errUnknownFrame   = errors.New("unknown stream frame")
)

// EventKind classifies push-stream frames.
type EventKind string

const (
	// EventChunk is a non-terminal partial payload.
	EventChunk EventKind = "chunk"
	// EventFinal is a terminal success carrying a full reply.
	EventFinal EventKind = "final"
	// EventError is a terminal failure reported by the backend.
	EventError EventKind = "error"
)

// Event is one decoded push-stream frame.
type Event struct {
	Kind EventKind
	// ExchangeID echoes the exchange the frame belongs to. Empty when the
	// backend does not tag frames.
	ExchangeID string
	// Content is the chunk text when the chunk payload is a string.
	Content string
	// Payload is the raw chunk payload. Its shape is owned by the backend.
	Payload json.RawMessage
	// Reply is set for final frames.
	Reply *domain.Reply
	// Message is set for error frames.
	Message string
}

// IsTerminal reports whether the event ends a pending exchange.
func (e Event) IsTerminal() bool {
	return e.Kind == EventFinal || e.Kind == EventError
}

// DecodeEvent classifies a JSON frame.
//
// Frames are {"type":"chunk",...}, {"type":"final",...} or {"error":"..."}.
// The error variant has no type field.
func DecodeEvent(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return Event{}, errMalformedFrame
	}
	frame := gjson.ParseBytes(data)
	if !frame.IsObject() {
		return Event{}, errMalformedFrame
	}

	ev := Event{ExchangeID: frame.Get("exchange_id").String()}
	typ := frame.Get("type")

	if errField := frame.Get("error"); errField.Exists() && (!typ.Exists() || typ.String() == string(EventError)) {
		ev.Kind = EventError
		ev.Message = errField.String()
		if ev.Message == "" {
			ev.Message = "stream reported an error"
		}
		return ev, nil
	}

	switch typ.String() {
	case string(EventChunk):
		ev.Kind = EventChunk
		content := frame.Get("content")
		if content.Exists() {
			ev.Payload = json.RawMessage(content.Raw)
			if content.Type == gjson.String {
				ev.Content = content.String()
			}
		}
		return ev, nil
	case string(EventFinal):
		var reply domain.Reply
		if err := json.Unmarshal(data, &reply); err != nil {
			return Event{}, fmt.Errorf("%w: %v", errMalformedFrame, err)
		}
		ev.Kind = EventFinal
		ev.Reply = &reply
		return ev, nil
	default:
		return Event{}, fmt.Errorf("%w: type %q", errUnknownFrame, typ.String())
	}
}
