package community

import (
	"net/http"

	"github.com/confide-gg/confide/internal/api/apiutil"
	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/gateway"
	"github.com/confide-gg/confide/internal/models"
)

// handleListMembers handles GET /api/members.
func (h *handler) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.d.Store.ListMembers(r.Context())
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, members)
}

// handleKickMember handles DELETE /api/members/{id}: requires PermKickMembers.
func (h *handler) handleKickMember(w http.ResponseWriter, r *http.Request) {
	if appErr := h.requirePermission(r, models.PermKickMembers); appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	memberID, appErr := pathUUID(r, "memberID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	if err := h.d.Store.RemoveMember(r.Context(), memberID); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}

	h.d.Dispatcher.ToUser(memberID, gateway.EventMemberLeft, map[string]any{"member_id": memberID})
	apiutil.WriteNoContent(w)
}

// handleAssignRole handles PUT /api/members/{id}/roles/{role_id}: requires
// PermManageRoles.
func (h *handler) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	if appErr := h.requirePermission(r, models.PermManageRoles); appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	memberID, appErr := pathUUID(r, "memberID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	roleID, appErr := pathUUID(r, "roleID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	if err := h.d.Store.AssignRole(r.Context(), memberID, roleID); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}

	h.d.Dispatcher.ToUser(memberID, gateway.EventRoleUpdated, map[string]any{"role_id": roleID, "assigned": true})
	apiutil.WriteNoContent(w)
}

// handleUnassignRole handles DELETE /api/members/{id}/roles/{role_id}:
// requires PermManageRoles.
func (h *handler) handleUnassignRole(w http.ResponseWriter, r *http.Request) {
	if appErr := h.requirePermission(r, models.PermManageRoles); appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	memberID, appErr := pathUUID(r, "memberID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	roleID, appErr := pathUUID(r, "roleID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	if err := h.d.Store.UnassignRole(r.Context(), memberID, roleID); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}

	h.d.Dispatcher.ToUser(memberID, gateway.EventRoleUpdated, map[string]any{"role_id": roleID, "assigned": false})
	apiutil.WriteNoContent(w)
}
