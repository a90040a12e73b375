// Package transport implements the request/response and push-stream channels
// to the RecThink backend.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/recthink/recthink-client/internal/domain"
)

// maxErrorBodySize bounds how much of an error response is read.
const maxErrorBodySize = 64 << 10

// Client talks to the backend REST API and opens per-session streams.
type Client struct {
	http      *http.Client
	baseURL   string
	streamURL string
	cfg       ClientConfig
	logger    *slog.Logger
}

// ClientConfig holds configuration for the transport client.
type ClientConfig struct {
	// BaseURL is the REST root, e.g. http://localhost:8000/api.
	BaseURL string
	// StreamURL is the push-stream root, e.g. ws://localhost:8000/ws.
	// Derived from BaseURL when empty.
	StreamURL      string
	RequestTimeout time.Duration
	DialTimeout    time.Duration
	// ReadLimit caps a single stream frame. Final frames carry the whole
	// thinking history and routinely exceed the websocket default.
	ReadLimit int64
}

// DefaultClientConfig returns default configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:        "http://localhost:8000/api",
		RequestTimeout: 120 * time.Second,
		DialTimeout:    10 * time.Second,
		ReadLimit:      16 << 20,
	}
}

// NewClient creates a transport client. No network I/O happens here.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultClientConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = def.ReadLimit
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", cfg.BaseURL)
	}

	streamURL := cfg.StreamURL
	if streamURL == "" {
		streamURL = deriveStreamURL(base)
	}

	return &Client{
		http:      &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		streamURL: strings.TrimRight(streamURL, "/"),
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// deriveStreamURL maps http(s)://host/api to ws(s)://host/ws.
func deriveStreamURL(base *url.URL) string {
	scheme := "ws"
	if base.Scheme == "https" {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/ws", scheme, base.Host)
}

// SendOptions are the per-message generation knobs.
type SendOptions struct {
	// ThinkingRounds is nil when the backend should decide.
	ThinkingRounds       *int
	AlternativesPerRound int
	// ExchangeID identifies the exchange so stream frames can be matched.
	ExchangeID string
}

// SaveResult is the backend acknowledgement of a save.
type SaveResult struct {
	Status   string `json:"status"`
	Filename string `json:"filename,omitempty"`
	Path     string `json:"path,omitempty"`
}

// Location returns where the backend stored the conversation.
func (r *SaveResult) Location() string {
	if r.Path != "" {
		return r.Path
	}
	return r.Filename
}

type initializeRequest struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

type initializeResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

type sendMessageRequest struct {
	SessionID            string `json:"session_id"`
	Message              string `json:"message"`
	ThinkingRounds       *int   `json:"thinking_rounds,omitempty"`
	AlternativesPerRound int    `json:"alternatives_per_round"`
	ExchangeID           string `json:"exchange_id,omitempty"`
}

type saveRequest struct {
	SessionID string  `json:"session_id"`
	Filename  *string `json:"filename"`
	FullLog   bool    `json:"full_log"`
}

type listSessionsResponse struct {
	Sessions []domain.SessionSummary `json:"sessions"`
}

// Initialize creates a backend session and returns its identifier.
func (c *Client) Initialize(ctx context.Context, credential, model string) (string, error) {
	var resp initializeResponse
	err := c.doJSON(ctx, "initialize", http.MethodPost, "/initialize", initializeRequest{
		APIKey: credential,
		Model:  model,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", &domain.Error{Kind: domain.ErrService, Op: "initialize", Message: "backend returned no session id"}
	}
	c.logger.Info("Backend session initialized", "session_id", resp.SessionID, "model", model, "credential_set", credential != "")
	return resp.SessionID, nil
}

// SendMessage submits one user message and waits for the final reply.
func (c *Client) SendMessage(ctx context.Context, sessionID, content string, opts SendOptions) (*domain.Reply, error) {
	var reply domain.Reply
	err := c.doJSON(ctx, "send_message", http.MethodPost, "/send_message", sendMessageRequest{
		SessionID:            sessionID,
		Message:              content,
		ThinkingRounds:       opts.ThinkingRounds,
		AlternativesPerRound: opts.AlternativesPerRound,
		ExchangeID:           opts.ExchangeID,
	}, &reply)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// SaveConversation asks the backend to persist the conversation. A nil
// filename lets the backend pick one.
func (c *Client) SaveConversation(ctx context.Context, sessionID string, filename *string, fullLog bool) (*SaveResult, error) {
	var result SaveResult
	err := c.doJSON(ctx, "save", http.MethodPost, "/save", saveRequest{
		SessionID: sessionID,
		Filename:  filename,
		FullLog:   fullLog,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListSessions returns every session the backend knows about.
func (c *Client) ListSessions(ctx context.Context) ([]domain.SessionSummary, error) {
	var resp listSessionsResponse
	if err := c.doJSON(ctx, "list_sessions", http.MethodGet, "/sessions", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Sessions == nil {
		resp.Sessions = []domain.SessionSummary{}
	}
	return resp.Sessions, nil
}

// DeleteSession removes a backend session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, "delete_session", http.MethodDelete, "/sessions/"+url.PathEscape(sessionID), nil, nil)
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &domain.Error{Kind: domain.ErrValidation, Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &domain.Error{Kind: domain.ErrValidation, Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Backend request failed", "op", op, "error", err)
		return classifyTransportError(op, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close response body", "op", op, "error", closeErr)
		}
	}()

	c.logger.Debug("Backend request completed", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode >= http.StatusBadRequest {
		return classifyStatus(op, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTimeout(err) {
			return &domain.Error{Kind: domain.ErrTimeout, Op: op, Err: err}
		}
		return &domain.Error{Kind: domain.ErrService, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func classifyTransportError(op string, err error) error {
	if isTimeout(err) {
		return &domain.Error{Kind: domain.ErrTimeout, Op: op, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &domain.Error{Kind: domain.ErrService, Op: op, Message: "request canceled", Err: err}
	}
	return &domain.Error{Kind: domain.ErrService, Op: op, Message: "backend unreachable", Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func classifyStatus(op string, resp *http.Response) error {
	detail := readErrorDetail(resp.Body)
	if detail == "" {
		detail = resp.Status
	}

	kind := domain.ErrService
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = domain.ErrAuth
	case resp.StatusCode == http.StatusNotFound:
		kind = domain.ErrSessionNotFound
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		kind = domain.ErrTimeout
	case op == "save":
		kind = domain.ErrIO
	case op == "initialize" && resp.StatusCode == http.StatusUnprocessableEntity:
		kind = domain.ErrAuth
	}
	return &domain.Error{Kind: kind, Op: op, Status: resp.StatusCode, Message: detail}
}

// readErrorDetail extracts {"detail": ...} or {"error": ...} from a body.
func readErrorDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data))
	}
	if body.Error != "" {
		return body.Error
	}
	switch d := body.Detail.(type) {
	case string:
		return d
	case nil:
		return ""
	default:
		encoded, _ := json.Marshal(d)
		return string(encoded)
	}
}
