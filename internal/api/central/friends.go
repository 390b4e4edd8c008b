package central

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/api/apiutil"
	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/gateway"
)

// handleListFriends handles GET /api/friends.
func (h *handler) handleListFriends(w http.ResponseWriter, r *http.Request) {
	ids, err := h.d.Store.Friends(r.Context(), identity(r).SubjectID)
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, ids)
}

// handleFriendRequest handles POST /api/friends/{user_id}/request.
func (h *handler) handleFriendRequest(w http.ResponseWriter, r *http.Request) {
	toID, appErr := pathUUID(r, "userID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	self := identity(r).SubjectID
	if toID == self {
		h.writeErr(w, apperr.BadRequest("cannot friend yourself"))
		return
	}

	if appErr := h.d.Store.CreateFriendRequest(r.Context(), uuid.New(), self, toID, time.Now()); appErr != nil {
		h.writeErr(w, appErr)
		return
	}

	h.d.Dispatcher.ToUser(toID, gateway.EventFriendRequest, map[string]any{
		"from_user_id": self,
	})
	apiutil.WriteNoContent(w)
}

// handleFriendAccept handles POST /api/friends/{user_id}/accept: the caller
// accepts a pending request sent by user_id.
func (h *handler) handleFriendAccept(w http.ResponseWriter, r *http.Request) {
	fromID, appErr := pathUUID(r, "userID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	self := identity(r).SubjectID

	if appErr := h.d.Store.AcceptFriendRequest(r.Context(), fromID, self, time.Now()); appErr != nil {
		h.writeErr(w, appErr)
		return
	}

	h.d.Dispatcher.ToUser(fromID, gateway.EventFriendAccepted, map[string]any{
		"user_id": self,
	})
	apiutil.WriteNoContent(w)
}
