//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/recthink/recthink-client/internal/domain"
	"github.com/recthink/recthink-client/internal/state"
	"github.com/recthink/recthink-client/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu         sync.Mutex
	st         state.State
	fail       bool
	credential string
	sent       []string
	deleted    []string
	saved      []string
	updates    chan state.State
}

func newFakeController() *fakeController {
	return &fakeController{
		st:      state.State{Settings: domain.DefaultSettings(), Status: domain.StatusDisconnected},
		updates: make(chan state.State, 4),
	}
}

func (f *fakeController) Snapshot() state.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

func (f *fakeController) Subscribe(context.Context) <-chan state.State { return f.updates }

func (f *fakeController) result(errMsg string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		f.st.Error = errMsg
		return false
	}
	return true
}

func (f *fakeController) InitializeSession(_ context.Context, credential, _ string) bool {
	f.mu.Lock()
	f.credential = credential
	f.mu.Unlock()
	if !f.result("initialize: authentication failed") {
		return false
	}
	f.mu.Lock()
	f.st.Session = &domain.Session{ID: "sess-1"}
	f.mu.Unlock()
	return true
}

func (f *fakeController) SendMessage(_ context.Context, content string) bool {
	f.mu.Lock()
	f.sent = append(f.sent, content)
	f.mu.Unlock()
	return f.result("send_message: service error")
}

func (f *fakeController) SaveConversation(_ context.Context, filename string, _ bool) (*transport.SaveResult, bool) {
	f.mu.Lock()
	f.saved = append(f.saved, filename)
	f.mu.Unlock()
	if !f.result("save: save failed") {
		return nil, false
	}
	return &transport.SaveResult{Status: "saved", Filename: filename}, true
}

func (f *fakeController) DeleteSession(_ context.Context, id string) bool {
	f.mu.Lock()
	f.deleted = append(f.deleted, id)
	f.mu.Unlock()
	return f.result("delete_session: session not found")
}

func (f *fakeController) LoadSessions(context.Context) bool {
	if !f.result("list_sessions: service error") {
		return false
	}
	f.mu.Lock()
	f.st.Sessions = []domain.SessionSummary{{ID: "sess-1", MessageCount: 2}}
	f.mu.Unlock()
	return true
}

func (f *fakeController) SetCredential(credential string) {
	f.mu.Lock()
	f.credential = credential
	f.mu.Unlock()
}

func (f *fakeController) UpdateSettings(next domain.Settings) bool {
	if err := next.Validate(); err != nil {
		f.mu.Lock()
		f.st.Error = err.Error()
		f.mu.Unlock()
		return false
	}
	f.mu.Lock()
	f.st.Settings = next
	f.mu.Unlock()
	return true
}

func newTestRouter(ctrl Controller) http.Handler {
	r := chi.NewRouter()
	NewHandler(ctrl, nil).RegisterRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestHandleState(t *testing.T) {
	ctrl := newFakeController()
	w := do(t, newTestRouter(ctrl), http.MethodGet, "/api/state", "")

	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "disconnected", got["connection_status"])
	settings := got["settings"].(map[string]any)
	assert.Equal(t, "auto", settings["thinking_rounds"])
}

func TestHandleInitialize(t *testing.T) {
	ctrl := newFakeController()
	h := newTestRouter(ctrl)

	w := do(t, h, http.MethodPost, "/api/initialize", `{"api_key":"k","model":"gpt-4o"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "k", ctrl.credential)
	assert.Contains(t, w.Body.String(), `"session_id":"sess-1"`)

	ctrl.fail = true
	w = do(t, h, http.MethodPost, "/api/initialize", "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "authentication failed")
}

func TestHandleSendMessage(t *testing.T) {
	ctrl := newFakeController()
	h := newTestRouter(ctrl)

	w := do(t, h, http.MethodPost, "/api/messages", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"hello"}, ctrl.sent)

	w = do(t, h, http.MethodPost, "/api/messages", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ctrl.fail = true
	w = do(t, h, http.MethodPost, "/api/messages", `{"message":"again"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "send_message: service error", body["error"])
}

func TestHandleSaveAndSessions(t *testing.T) {
	ctrl := newFakeController()
	h := newTestRouter(ctrl)

	w := do(t, h, http.MethodPost, "/api/save", `{"filename":"chat.json","full_log":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"filename":"chat.json"`)

	w = do(t, h, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"message_count":2`)

	w = do(t, h, http.MethodDelete, "/api/sessions/sess-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"sess-1"}, ctrl.deleted)
	assert.Contains(t, w.Body.String(), `"status":"deleted"`)
}

func TestHandleConfigMergesFields(t *testing.T) {
	ctrl := newFakeController()
	h := newTestRouter(ctrl)

	w := do(t, h, http.MethodPut, "/api/config", `{"thinking_rounds":3,"api_key":"new"}`)
	require.Equal(t, http.StatusOK, w.Code)

	st := ctrl.Snapshot().Settings
	n, ok := st.ThinkingRounds.Rounds()
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	assert.Equal(t, domain.DefaultModel, st.Model)
	assert.Equal(t, "new", ctrl.credential)

	w = do(t, h, http.MethodPut, "/api/config", `{"alternatives_per_round":0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, domain.DefaultAlternativesPerRound, ctrl.Snapshot().Settings.AlternativesPerRound)

	w = do(t, h, http.MethodPut, "/api/config", `{"thinking_rounds":"often"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleEvents(t *testing.T) {
	ctrl := newFakeController()
	srv := httptest.NewServer(newTestRouter(ctrl))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				return event, data
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
	}

	event, data := readEvent()
	assert.Equal(t, "state", event)
	assert.Contains(t, data, `"connection_status":"disconnected"`)

	ctrl.updates <- state.State{Status: domain.StatusConnected, Version: 7, Settings: domain.DefaultSettings()}
	event, data = readEvent()
	assert.Equal(t, "state", event)
	assert.Contains(t, data, `"connection_status":"connected"`)
	assert.Contains(t, data, `"version":7`)
}
