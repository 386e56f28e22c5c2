package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/auth"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/catalog"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/pkg/logging"
)

// CacheRebuilder refreshes the catalog snapshot. Satisfied by catalog.Cache.
type CacheRebuilder interface {
	Rebuild(ctx context.Context, repo catalog.Source) (catalog.RebuildCounts, error)
}

// AuthEventLister reads the audit trail. Satisfied by auth.EventsRepository.
type AuthEventLister interface {
	List(ctx context.Context, limit int) ([]auth.Event, error)
}

// AdminHandler serves the operational endpoints.
type AdminHandler struct {
	cache   CacheRebuilder
	repo    catalog.Source
	events  AuthEventLister
	cronKey string
	logger  *logging.Logger
}

// NewAdminHandler creates the handler. cache may be nil when Redis is not
// configured, in which case rebuilds report a conflict.
func NewAdminHandler(cache CacheRebuilder, repo catalog.Source, events AuthEventLister, cronKey string, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{cache: cache, repo: repo, events: events, cronKey: cronKey, logger: logger}
}

// RebuildCache refreshes the Redis catalog snapshot from Postgres.
// POST /admin/rebuild-cache, guarded by X-Cron-Key.
func (h *AdminHandler) RebuildCache(w http.ResponseWriter, r *http.Request) {
	if h.cronKey == "" {
		jsonError(w, "cron key not configured", http.StatusUnauthorized)
		return
	}
	provided := r.Header.Get("X-Cron-Key")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.cronKey)) != 1 {
		jsonError(w, "invalid cron key", http.StatusUnauthorized)
		return
	}
	if h.cache == nil {
		jsonError(w, "cache not configured", http.StatusConflict)
		return
	}

	counts, err := h.cache.Rebuild(r.Context(), h.repo)
	if err != nil {
		h.logger.Error("admin: cache rebuild failed", "error", err)
		jsonError(w, "rebuild failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info("admin: cache rebuilt",
		"clientes", counts.Clients, "servicios", counts.Services, "preguntas", counts.Questions)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"clientes":  counts.Clients,
		"servicios": counts.Services,
		"preguntas": counts.Questions,
	})
}

// AuthEvents lists the most recent auth audit events.
// GET /admin/auth-events?limit=N (admin JWT enforced by middleware).
func (h *AdminHandler) AuthEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []any{}})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.events.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("admin: auth events list failed", "error", err)
		jsonError(w, "failed to list auth events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []auth.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
