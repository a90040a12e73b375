// Package session implements the session controller: it owns the session
// lifecycle and reconciles REST replies with push-stream events.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/recthink/recthink-client/internal/domain"
	"github.com/recthink/recthink-client/internal/journal"
	"github.com/recthink/recthink-client/internal/state"
	"github.com/recthink/recthink-client/internal/transport"
)

// journalQueueSize bounds pending transcript writes.
const journalQueueSize = 256

// ErrBusy is reported when a send is attempted while another is pending.
var ErrBusy = errors.New("a message is already being processed")

// Options configures a Controller.
type Options struct {
	// Credential is passed through to initialize. It is never logged.
	Credential string
	// Journal receives the transcript. Nil disables journaling.
	Journal journal.Recorder
	Logger  *slog.Logger
	// Now and NewExchangeID are replaced in tests.
	Now           func() time.Time
	NewExchangeID func() string
}

// Controller is the only writer of the state store.
type Controller struct {
	backend transport.Backend
	store   *state.Store
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string

	baseCtx    context.Context
	baseCancel context.CancelFunc
	readers    sync.WaitGroup

	records     chan recordFunc
	journalDone chan struct{}

	mu           sync.Mutex
	credential   string
	settings     domain.Settings
	session      *domain.Session
	sessionSeq   uint64
	stream       transport.EventStream
	streamGen    uint64
	streamCancel context.CancelFunc
	exch         *exchange
	closed       bool
}

// NewController creates a controller writing into store.
func NewController(backend transport.Backend, store *state.Store, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewExchangeID
	if newID == nil {
		newID = uuid.NewString
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backend:    backend,
		store:      store,
		logger:     logger,
		now:        now,
		newID:      newID,
		baseCtx:    ctx,
		baseCancel: cancel,
		credential: opts.Credential,
		settings:   store.Snapshot().Settings,
	}

	if opts.Journal != nil {
		c.records = make(chan recordFunc, journalQueueSize)
		c.journalDone = make(chan struct{})
		go c.runJournal(opts.Journal)
	}
	return c
}

// Store returns the state store the controller writes into.
func (c *Controller) Store() *state.Store {
	return c.store
}

// Snapshot is shorthand for Store().Snapshot().
func (c *Controller) Snapshot() state.State {
	return c.store.Snapshot()
}

// InitializeSession creates a backend session and opens its push stream.
// Empty arguments fall back to the configured credential and model. It
// reports whether a session was created; failures land in the error field.
func (c *Controller) InitializeSession(ctx context.Context, credential, model string) bool {
	c.store.ClearError()

	c.mu.Lock()
	if credential == "" {
		credential = c.credential
	}
	if model == "" {
		model = c.settings.Model
	}
	c.mu.Unlock()

	if strings.TrimSpace(model) == "" {
		c.fail("initialize", &domain.Error{Kind: domain.ErrValidation, Op: "initialize", Message: "model cannot be empty"})
		return false
	}

	id, err := c.backend.Initialize(ctx, credential, model)
	if err != nil {
		c.fail("initialize", err)
		return false
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.releaseStreamLocked()
	c.exch = nil
	c.sessionSeq++
	seq := c.sessionSeq
	sess := domain.Session{ID: id, Model: model, CreatedAt: c.now()}
	c.session = &sess
	c.settings.Model = model
	c.store.SetSettings(c.settings)

	welcome := domain.NewWelcomeMessage()
	welcome.CreatedAt = c.now()
	c.store.StartConversation(sess, welcome)
	c.recordLocked(func(ctx context.Context, r journal.Recorder) error {
		if err := r.RecordSession(ctx, sess); err != nil {
			return err
		}
		return r.RecordMessage(ctx, sess.ID, welcome)
	})
	c.mu.Unlock()

	c.logger.Info("Session initialized", "session_id", id, "model", model, "credential_set", credential != "")

	stream, err := c.backend.OpenStream(ctx, id)
	if err != nil {
		c.mu.Lock()
		if c.sessionSeq == seq {
			c.store.SetStatus(domain.StatusError)
			c.store.SetError(err.Error())
		}
		c.mu.Unlock()
		c.logger.Warn("Failed to open stream", "session_id", id, "error", err)
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.sessionSeq != seq {
		// Superseded by a newer session or by Close.
		go closeStream(c.logger, stream)
		return true
	}
	c.attachStreamLocked(stream)
	return true
}

// StartSession initializes a session with the configured credential and model.
func (c *Controller) StartSession(ctx context.Context) bool {
	return c.InitializeSession(ctx, "", "")
}

// SaveConversation asks the backend to persist the active conversation. An
// empty filename is replaced by a timestamped suggestion.
func (c *Controller) SaveConversation(ctx context.Context, filename string, fullLog bool) (*transport.SaveResult, bool) {
	c.store.ClearError()

	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		c.fail("save", &domain.Error{Kind: domain.ErrValidation, Op: "save", Message: "no active session"})
		return nil, false
	}

	if strings.TrimSpace(filename) == "" {
		filename = SuggestedFilename(c.now())
	}

	res, err := c.backend.SaveConversation(ctx, sess.ID, &filename, fullLog)
	if err != nil {
		c.fail("save", err)
		return nil, false
	}
	c.logger.Info("Conversation saved", "session_id", sess.ID, "location", res.Location(), "full_log", fullLog)
	return res, true
}

// SuggestedFilename is the default name used when saving.
func SuggestedFilename(t time.Time) string {
	return fmt.Sprintf("recthink_conversation_%s.json", t.UTC().Format("2006-01-02T15-04-05"))
}

// DeleteSession deletes a backend session. Deleting the active session
// resets the conversation as if none had been initialized.
func (c *Controller) DeleteSession(ctx context.Context, id string) bool {
	c.store.ClearError()

	if strings.TrimSpace(id) == "" {
		c.fail("delete", &domain.Error{Kind: domain.ErrValidation, Op: "delete", Message: "session id cannot be empty"})
		return false
	}

	if err := c.backend.DeleteSession(ctx, id); err != nil {
		c.fail("delete", err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.RemoveSession(id)
	if c.session != nil && c.session.ID == id {
		c.releaseStreamLocked()
		c.session = nil
		c.exch = nil
		c.sessionSeq++
		c.store.ResetConversation()
	}
	c.recordLocked(func(ctx context.Context, r journal.Recorder) error {
		return r.ForgetSession(ctx, id)
	})
	c.logger.Info("Session deleted", "session_id", id)
	return true
}

// LoadSessions replaces the session listing with the backend's.
func (c *Controller) LoadSessions(ctx context.Context) bool {
	c.store.ClearError()

	list, err := c.backend.ListSessions(ctx)
	if err != nil {
		c.fail("list_sessions", err)
		return false
	}
	c.store.SetSessions(list)
	return true
}

// SetCredential replaces the credential used by later initialize calls.
func (c *Controller) SetCredential(credential string) {
	c.store.ClearError()
	c.mu.Lock()
	c.credential = credential
	c.mu.Unlock()
}

// HasCredential reports whether a credential is configured.
func (c *Controller) HasCredential() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.credential != ""
}

// SetModel selects the model for later sessions.
func (c *Controller) SetModel(model string) bool {
	return c.updateSettings(func(s *domain.Settings) { s.Model = strings.TrimSpace(model) })
}

// SetThinkingRounds sets the round policy for later messages.
func (c *Controller) SetThinkingRounds(p domain.RoundPolicy) bool {
	return c.updateSettings(func(s *domain.Settings) { s.ThinkingRounds = p })
}

// SetAlternativesPerRound sets the number of drafts per round.
func (c *Controller) SetAlternativesPerRound(n int) bool {
	return c.updateSettings(func(s *domain.Settings) { s.AlternativesPerRound = n })
}

// SetShowThinkingProcess toggles the display preference.
func (c *Controller) SetShowThinkingProcess(show bool) bool {
	return c.updateSettings(func(s *domain.Settings) { s.ShowThinkingProcess = show })
}

// UpdateSettings replaces all settings at once.
func (c *Controller) UpdateSettings(next domain.Settings) bool {
	return c.updateSettings(func(s *domain.Settings) { *s = next })
}

func (c *Controller) updateSettings(fn func(*domain.Settings)) bool {
	c.store.ClearError()

	c.mu.Lock()
	next := c.settings
	fn(&next)
	if err := next.Validate(); err != nil {
		c.mu.Unlock()
		c.fail("settings", err)
		return false
	}
	c.settings = next
	c.store.SetSettings(next)
	c.mu.Unlock()
	return true
}

// Close releases the stream, stops the journal and detaches subscribers.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.releaseStreamLocked()
	c.exch = nil
	c.mu.Unlock()

	c.baseCancel()
	c.readers.Wait()

	if c.records != nil {
		close(c.records)
		<-c.journalDone
	}
	c.store.Close()
	return nil
}

// fail logs err and surfaces it through the error field.
func (c *Controller) fail(op string, err error) {
	c.logger.Warn("Operation failed", "op", op, "error", err)
	c.store.SetError(err.Error())
}

// Subscribe forwards to the store; see state.Store.Subscribe.
func (c *Controller) Subscribe(ctx context.Context) <-chan state.State {
	return c.store.Subscribe(ctx)
}
