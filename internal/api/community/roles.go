package community

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/api/apiutil"
	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/models"
)

// handleListRoles handles GET /api/roles.
func (h *handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.d.Store.ListRoles(r.Context())
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, roles)
}

type createRoleRequest struct {
	Name        string  `json:"name"`
	Permissions int64   `json:"permissions"`
	Color       *string `json:"color,omitempty"`
	Position    int32   `json:"position"`
}

// handleCreateRole handles POST /api/roles: requires PermManageRoles.
func (h *handler) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	if appErr := h.requirePermission(r, models.PermManageRoles); appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	var req createRoleRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}
	if appErr := apiutil.ValidateStringLength("name", req.Name, 1, 100); appErr != nil {
		h.writeErr(w, appErr)
		return
	}

	role := &models.Role{
		ID:          uuid.New(),
		Name:        req.Name,
		Permissions: req.Permissions,
		Color:       req.Color,
		Position:    req.Position,
		CreatedAt:   time.Now(),
	}
	if err := h.d.Store.CreateRole(r.Context(), role); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteJSON(w, http.StatusCreated, role)
}

type updateRoleRequest struct {
	Name        string  `json:"name"`
	Permissions int64   `json:"permissions"`
	Color       *string `json:"color,omitempty"`
	Position    int32   `json:"position"`
}

// handleUpdateRole handles PATCH /api/roles/{id}: requires PermManageRoles.
func (h *handler) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	if appErr := h.requirePermission(r, models.PermManageRoles); appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	roleID, appErr := pathUUID(r, "roleID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	var req updateRoleRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}

	role := &models.Role{ID: roleID, Name: req.Name, Permissions: req.Permissions, Color: req.Color, Position: req.Position}
	if appErr := h.d.Store.UpdateRole(r.Context(), role); appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, role)
}

// handleDeleteRole handles DELETE /api/roles/{id}: requires PermManageRoles.
func (h *handler) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	if appErr := h.requirePermission(r, models.PermManageRoles); appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	roleID, appErr := pathUUID(r, "roleID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	if err := h.d.Store.DeleteRole(r.Context(), roleID); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteNoContent(w)
}
