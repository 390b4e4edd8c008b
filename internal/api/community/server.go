package community

import (
	"net/http"

	"github.com/confide-gg/confide/internal/api/apiutil"
	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/models"
)

// handleGetServer handles GET /api/server: public-ish server metadata, for
// a client's "about this server" panel.
func (h *handler) handleGetServer(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.d.Store.Identity(r.Context())
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, id)
}

type updateServerRequest struct {
	Description    *string `json:"description,omitempty"`
	IsDiscoverable *bool   `json:"is_discoverable,omitempty"`
}

// handleUpdateServer handles PATCH /api/server: requires PermManageServer.
func (h *handler) handleUpdateServer(w http.ResponseWriter, r *http.Request) {
	if appErr := h.requirePermission(r, models.PermManageServer); appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	var req updateServerRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}

	id, appErr := h.d.Store.Identity(r.Context())
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	if req.Description != nil {
		id.Description = req.Description
	}
	if req.IsDiscoverable != nil {
		id.IsDiscoverable = *req.IsDiscoverable
	}
	if err := h.d.Store.UpdateServerMeta(r.Context(), id.ID, id.Description, id.IsDiscoverable); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, id)
}
