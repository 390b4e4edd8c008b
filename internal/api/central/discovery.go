package central

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/api/apiutil"
	"github.com/confide-gg/confide/internal/apperr"
)

// handleDiscoveryServers handles GET /api/discovery/servers: the full
// active, discoverable server list, unauthenticated (§4.14 treats server
// discovery as public metadata, never gated behind a session).
func (h *handler) handleDiscoveryServers(w http.ResponseWriter, r *http.Request) {
	servers, err := h.d.Store.ActiveServers(r.Context(), time.Now())
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, servers)
}

// handleDiscoverySearch handles GET /api/discovery/search?q=: a Meilisearch
// typeahead over display_name/description/domain, falling back to a plain
// active-server list when no search backend is configured.
func (h *handler) handleDiscoverySearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if h.d.Search == nil {
		h.handleDiscoveryServers(w, r)
		return
	}

	limit := int64(20)
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	ids, err := h.d.Search.Search(r.Context(), query, limit)
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}

	servers := make([]any, 0, len(ids))
	for _, rawID := range ids {
		id, err := uuid.Parse(rawID)
		if err != nil {
			continue
		}
		server, appErr := h.d.Store.ServerByID(r.Context(), id)
		if appErr != nil {
			continue
		}
		servers = append(servers, server)
	}
	apiutil.WriteJSON(w, http.StatusOK, servers)
}

// handleDiscoveryActive handles GET /api/discovery/active: used by
// community servers themselves to check peer liveness, distinct from the
// human-facing /servers listing only in intent.
func (h *handler) handleDiscoveryActive(w http.ResponseWriter, r *http.Request) {
	servers, err := h.d.Store.ActiveServers(r.Context(), time.Now())
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, servers)
}
