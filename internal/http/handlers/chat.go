package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/dialogue"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/http/middleware"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/observability/metrics"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/pkg/logging"
)

// Transcript is the slice of the history store the chat handler needs.
// Append is best-effort; List/Clear back the /ai/history endpoints.
type Transcript interface {
	Append(ctx context.Context, sessionKey string, msgs ...dialogue.ChatMessage)
	List(ctx context.Context, sessionKey string, limit int) ([]dialogue.TranscriptEntry, error)
	Clear(ctx context.Context, sessionKey string) (int64, error)
}

// ChatHandler serves the conversational endpoint.
type ChatHandler struct {
	engine     dialogue.Engine
	engineName string
	sessions   dialogue.SessionStore
	transcript Transcript
	metrics    *metrics.DialogueMetrics
	logger     *logging.Logger
}

// NewChatHandler creates the handler. transcript and metrics may be nil.
func NewChatHandler(engine dialogue.Engine, engineName string, sessions dialogue.SessionStore, transcript Transcript, m *metrics.DialogueMetrics, logger *logging.Logger) *ChatHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatHandler{
		engine:     engine,
		engineName: engineName,
		sessions:   sessions,
		transcript: transcript,
		metrics:    m,
		logger:     logger,
	}
}

// chatRequest tolerates the field names the various front-end versions have
// used for the message body.
type chatRequest struct {
	Prompt  string `json:"prompt"`
	Input   string `json:"input"`
	Message string `json:"message"`
	Text    string `json:"text"`
}

func (r chatRequest) text() string {
	for _, v := range []string{r.Prompt, r.Input, r.Message, r.Text} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// Chat advances the conversation by one turn.
// POST /ai/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	text := req.text()
	if text == "" {
		jsonError(w, "el mensaje está vacío", http.StatusBadRequest)
		return
	}

	identity, _ := middleware.IdentityFromContext(r.Context())
	key := sessionKey(r, identity.UserID)

	if strings.EqualFold(r.Header.Get("X-Reset-Session"), "true") {
		if err := h.sessions.Delete(r.Context(), key); err != nil {
			h.logger.Warn("chat: session reset failed", "error", err, "session", key)
		}
	}

	state, found, err := h.sessions.Get(r.Context(), key)
	if err != nil {
		h.turnError(w, "no pude cargar tu sesión", err, "error", start)
		return
	}
	if !found {
		state = dialogue.NewState()
	}

	result, err := h.engine.Turn(r.Context(), state, dialogue.TurnInput{
		Text:        text,
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName(),
	})
	if err != nil {
		h.turnError(w, "no pude procesar tu mensaje", err, "error", start)
		return
	}

	if err := h.sessions.Set(r.Context(), key, result.State); err != nil {
		h.turnError(w, "no pude guardar tu sesión", err, "error", start)
		return
	}

	if h.transcript != nil {
		h.transcript.Append(r.Context(), key,
			dialogue.ChatMessage{Role: "user", Content: text},
			dialogue.ChatMessage{Role: "model", Content: result.Message})
	}

	h.metrics.ObserveTurn(h.engineName, string(result.State.Step), "ok", time.Since(start).Seconds())

	w.Header().Set("X-Session-ID", key)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(result.Message))
}

// turnError reports a backend failure for this turn. The session state is
// left as it was, so the user can simply retry.
func (h *ChatHandler) turnError(w http.ResponseWriter, message string, err error, status string, start time.Time) {
	h.logger.Error("chat: turn failed", "error", err)
	h.metrics.ObserveTurn(h.engineName, "", status, time.Since(start).Seconds())
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":   message,
		"details": err.Error(),
	})
}

// History returns the persisted transcript for the session.
// GET /ai/history
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.transcript == nil {
		writeJSON(w, http.StatusOK, map[string]any{"messages": []any{}})
		return
	}
	identity, _ := middleware.IdentityFromContext(r.Context())
	key := sessionKey(r, identity.UserID)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.transcript.List(r.Context(), key, limit)
	if err != nil {
		h.logger.Error("chat: history list failed", "error", err)
		jsonError(w, "no pude cargar el historial", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []dialogue.TranscriptEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": entries})
}

// ClearHistory wipes the transcript and the live session.
// DELETE /ai/history
func (h *ChatHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	key := sessionKey(r, identity.UserID)

	if err := h.sessions.Delete(r.Context(), key); err != nil {
		h.logger.Warn("chat: session delete failed", "error", err, "session", key)
	}

	var deleted int64
	if h.transcript != nil {
		var err error
		deleted, err = h.transcript.Clear(r.Context(), key)
		if err != nil {
			h.logger.Error("chat: history clear failed", "error", err)
			jsonError(w, "no pude borrar el historial", http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

// sessionKey picks the most specific stable identifier available: the
// authenticated user, the front-end session header, the caller IP (set by
// chi's RealIP middleware), or a shared anonymous bucket.
func sessionKey(r *http.Request, userID string) string {
	if userID != "" {
		return userID
	}
	if sid := strings.TrimSpace(r.Header.Get("X-Session-ID")); sid != "" {
		return sid
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "anonymous"
}
