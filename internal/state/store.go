// Package state holds the session state consumed by the presentation layer.
package state

import (
	"context"
	"sync"

	"github.com/recthink/recthink-client/internal/domain"
)

// subscriberBuffer is the channel depth per subscriber.
const subscriberBuffer = 16

// State is a point-in-time copy of the session state. Callers may keep and
// read it freely; it shares no memory with the Store.
type State struct {
	Session    *domain.Session         `json:"session"`
	Messages   []domain.Message        `json:"messages"`
	Thinking   *domain.ThinkingProcess `json:"thinking_process"`
	IsThinking bool                    `json:"is_thinking"`
	Progress   string                  `json:"progress,omitempty"`
	Error      string                  `json:"error,omitempty"`
	Status     domain.ConnectionStatus `json:"connection_status"`
	Settings   domain.Settings         `json:"settings"`
	Sessions   []domain.SessionSummary `json:"sessions"`
	// Version increases by one on every mutation.
	Version uint64 `json:"version"`
}

// SessionID returns the active session id, or "" when there is none.
func (s State) SessionID() string {
	if s.Session == nil {
		return ""
	}
	return s.Session.ID
}

// Store is the single source of truth for presentation. It is passive: it
// holds data and fans out snapshots, while the session controller decides
// every mutation.
type Store struct {
	mu       sync.RWMutex
	cur      State
	progress *ProgressBuffer
	subs     map[chan State]struct{}
	done     chan struct{}
	closed   bool
}

// NewStore creates a store with the given initial settings.
func NewStore(settings domain.Settings) *Store {
	return &Store{
		cur: State{
			Messages: []domain.Message{},
			Status:   domain.StatusDisconnected,
			Settings: settings,
			Sessions: []domain.SessionSummary{},
		},
		progress: NewProgressBuffer(defaultProgressSize),
		subs:     make(map[chan State]struct{}),
		done:     make(chan struct{}),
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	out := s.cur
	if s.cur.Session != nil {
		sess := *s.cur.Session
		out.Session = &sess
	}
	out.Messages = append([]domain.Message(nil), s.cur.Messages...)
	if out.Messages == nil {
		out.Messages = []domain.Message{}
	}
	out.Thinking = s.cur.Thinking.Clone()
	out.Sessions = append([]domain.SessionSummary(nil), s.cur.Sessions...)
	if out.Sessions == nil {
		out.Sessions = []domain.SessionSummary{}
	}
	out.Progress = s.progress.String()
	return out
}

// Subscribe returns a channel receiving a snapshot after every mutation.
// A slow subscriber only loses intermediate snapshots, never the latest one.
// The channel closes when ctx ends or the store is closed.
func (s *Store) Subscribe(ctx context.Context) <-chan State {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch
	}
	s.subs[ch] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}()

	return ch
}

// subscriberCount returns the number of live subscribers.
func (s *Store) subscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Close detaches every subscriber.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}

// update applies fn under the write lock and publishes the result.
func (s *Store) update(fn func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.cur)
	s.cur.Version++
	snap := s.snapshotLocked()

	for ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Drop the oldest pending snapshot so the latest always lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// StartConversation installs a freshly initialized session with a history
// holding only the welcome message.
func (s *Store) StartConversation(sess domain.Session, welcome domain.Message) {
	s.update(func(st *State) {
		st.Session = &sess
		st.Messages = []domain.Message{welcome}
		st.Thinking = nil
		st.IsThinking = false
		st.Status = domain.StatusDisconnected
		s.progress.Reset()
	})
}

// ResetConversation clears session, history and thinking snapshot, as if no
// session had ever been initialized.
func (s *Store) ResetConversation() {
	s.update(func(st *State) {
		st.Session = nil
		st.Messages = []domain.Message{}
		st.Thinking = nil
		st.IsThinking = false
		st.Status = domain.StatusDisconnected
		s.progress.Reset()
	})
}

// AppendMessage adds a message to the end of the history.
func (s *Store) AppendMessage(m domain.Message) {
	s.update(func(st *State) {
		st.Messages = append(st.Messages, m)
	})
}

// SetThinking replaces the thinking snapshot wholesale.
func (s *Store) SetThinking(p *domain.ThinkingProcess) {
	p = p.Clone()
	s.update(func(st *State) {
		st.Thinking = p
	})
}

// BeginExchange marks a send as in flight.
func (s *Store) BeginExchange() {
	s.update(func(st *State) {
		st.IsThinking = true
		s.progress.Reset()
	})
}

// EndExchange clears the in-flight flag and the transient progress.
func (s *Store) EndExchange() {
	s.update(func(st *State) {
		st.IsThinking = false
		s.progress.Reset()
	})
}

// AppendProgress adds partial output of the pending exchange.
func (s *Store) AppendProgress(text string) {
	s.update(func(*State) {
		s.progress.WriteString(text)
	})
}

// SetError replaces the client-visible error message.
func (s *Store) SetError(msg string) {
	s.update(func(st *State) {
		st.Error = msg
	})
}

// ClearError empties the error field. It does not publish when the field is
// already empty.
func (s *Store) ClearError() {
	s.mu.RLock()
	empty := s.cur.Error == ""
	s.mu.RUnlock()
	if empty {
		return
	}
	s.SetError("")
}

// SetStatus records the push-stream connection status.
func (s *Store) SetStatus(status domain.ConnectionStatus) {
	s.update(func(st *State) {
		st.Status = status
	})
}

// SetSettings replaces the conversation settings.
func (s *Store) SetSettings(settings domain.Settings) {
	s.update(func(st *State) {
		st.Settings = settings
	})
}

// SetSessions replaces the session listing wholesale.
func (s *Store) SetSessions(list []domain.SessionSummary) {
	list = append([]domain.SessionSummary(nil), list...)
	s.update(func(st *State) {
		st.Sessions = list
	})
}

// RemoveSession drops one id from the session listing.
func (s *Store) RemoveSession(id string) {
	s.update(func(st *State) {
		kept := st.Sessions[:0:0]
		for _, sum := range st.Sessions {
			if sum.ID != id {
				kept = append(kept, sum)
			}
		}
		st.Sessions = kept
	})
}
