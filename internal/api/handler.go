// Package api exposes the session controller to a local presentation layer
// over HTTP.
//
//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/recthink/recthink-client/internal/domain"
	"github.com/recthink/recthink-client/internal/state"
	"github.com/recthink/recthink-client/internal/transport"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Controller is the subset of the session controller used by the bridge.
type Controller interface {
	Snapshot() state.State
	Subscribe(ctx context.Context) <-chan state.State
	InitializeSession(ctx context.Context, credential, model string) bool
	SendMessage(ctx context.Context, content string) bool
	SaveConversation(ctx context.Context, filename string, fullLog bool) (*transport.SaveResult, bool)
	DeleteSession(ctx context.Context, id string) bool
	LoadSessions(ctx context.Context) bool
	SetCredential(credential string)
	UpdateSettings(next domain.Settings) bool
}

// Handler serves the bridge endpoints.
type Handler struct {
	ctrl      Controller
	logger    *slog.Logger
	keepalive time.Duration
}

// NewHandler creates a Handler for ctrl.
func NewHandler(ctrl Controller, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{ctrl: ctrl, logger: logger, keepalive: 15 * time.Second}
}

// RegisterRoutes registers the bridge routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.HandleState)
		r.Post("/initialize", h.HandleInitialize)
		r.Post("/messages", h.HandleSendMessage)
		r.Post("/save", h.HandleSave)
		r.Get("/sessions", h.HandleListSessions)
		r.Delete("/sessions/{id}", h.HandleDeleteSession)
		r.Put("/config", h.HandleConfig)
		r.Get("/events", h.HandleEvents)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// failure reports a controller operation that returned false. The message is
// taken from the state's error field.
func (h *Handler) failure(w http.ResponseWriter) {
	st := h.ctrl.Snapshot()
	msg := st.Error
	if msg == "" {
		msg = "operation failed"
	}
	JSON(w, http.StatusUnprocessableEntity, map[string]any{"error": msg, "state": st})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// HandleState returns the current snapshot.
func (h *Handler) HandleState(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.ctrl.Snapshot())
}

type initializeRequest struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

// HandleInitialize starts a new session.
func (h *Handler) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	if !h.ctrl.InitializeSession(r.Context(), req.APIKey, req.Model) {
		h.failure(w)
		return
	}
	JSON(w, http.StatusOK, h.ctrl.Snapshot())
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// HandleSendMessage submits a user message and waits for its reply.
func (h *Handler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	// A disconnecting browser must not abandon an exchange half way.
	ctx := context.WithoutCancel(r.Context())
	if !h.ctrl.SendMessage(ctx, req.Message) {
		h.failure(w)
		return
	}
	JSON(w, http.StatusOK, h.ctrl.Snapshot())
}

type saveRequest struct {
	Filename string `json:"filename"`
	FullLog  bool   `json:"full_log"`
}

// HandleSave asks the backend to save the conversation.
func (h *Handler) HandleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	res, ok := h.ctrl.SaveConversation(r.Context(), req.Filename, req.FullLog)
	if !ok {
		h.failure(w)
		return
	}
	JSON(w, http.StatusOK, res)
}

// HandleListSessions refreshes and returns the session listing.
func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	if !h.ctrl.LoadSessions(r.Context()) {
		h.failure(w)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"sessions": h.ctrl.Snapshot().Sessions})
}

// HandleDeleteSession deletes a backend session.
func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.ctrl.DeleteSession(r.Context(), id) {
		h.failure(w)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted", "session_id": id})
}

type configRequest struct {
	APIKey *string `json:"api_key"`
	domain.Settings
}

// HandleConfig merges the given fields into the current settings.
func (h *Handler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	req := configRequest{Settings: h.ctrl.Snapshot().Settings}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.APIKey != nil {
		h.ctrl.SetCredential(*req.APIKey)
	}
	if !h.ctrl.UpdateSettings(req.Settings) {
		h.failure(w)
		return
	}
	JSON(w, http.StatusOK, h.ctrl.Snapshot().Settings)
}
