package central

import (
	"net/http"

	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/gateway"

	"github.com/confide-gg/confide/internal/api/apiutil"
)

type callTokenRequest struct {
	CanPublish   bool `json:"can_publish"`
	CanSubscribe bool `json:"can_subscribe"`
}

type callTokenResponse struct {
	Token string `json:"token"`
}

// handleIssueCallToken handles POST /api/conversations/{conversationID}/call/token:
// admits the caller to that conversation's LiveKit room (§4.12), rejecting
// once the room is already at relay.MaxCallParticipants. Relay is optional —
// a deployment without LiveKit configured simply has no voice/video calling.
func (h *handler) handleIssueCallToken(w http.ResponseWriter, r *http.Request) {
	if h.d.Relay == nil {
		h.writeErr(w, apperr.ServiceUnavailable("calling is not configured on this server"))
		return
	}
	conversationID, appErr := pathUUID(r, "conversationID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	self := identity(r).SubjectID

	var req callTokenRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}
	if !req.CanPublish && !req.CanSubscribe {
		req.CanSubscribe = true
	}

	token, appErr := h.d.Relay.IssueToken(conversationID.String(), self.String(), req.CanPublish, req.CanSubscribe)
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}

	h.d.Dispatcher.ToConversation(conversationID, gateway.EventCallOffer, map[string]any{
		"conversation_id": conversationID,
		"user_id":         self,
	}, &self)
	apiutil.WriteJSON(w, http.StatusOK, callTokenResponse{Token: token})
}

// handleLeaveCall handles POST /api/conversations/{conversationID}/call/leave:
// frees the caller's relay occupancy seat and fans out call_leave.
func (h *handler) handleLeaveCall(w http.ResponseWriter, r *http.Request) {
	if h.d.Relay == nil {
		h.writeErr(w, apperr.ServiceUnavailable("calling is not configured on this server"))
		return
	}
	conversationID, appErr := pathUUID(r, "conversationID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	self := identity(r).SubjectID

	h.d.Relay.Release(conversationID.String(), self.String())
	h.d.Dispatcher.ToConversation(conversationID, gateway.EventCallLeave, map[string]any{
		"conversation_id": conversationID,
		"user_id":         self,
	}, &self)
	apiutil.WriteNoContent(w)
}
