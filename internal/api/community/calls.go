package community

import (
	"net/http"

	"github.com/confide-gg/confide/internal/api/apiutil"
	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/gateway"
	"github.com/confide-gg/confide/internal/models"
	"github.com/confide-gg/confide/internal/permissions"
)

type callTokenRequest struct {
	CanPublish   bool `json:"can_publish"`
	CanSubscribe bool `json:"can_subscribe"`
}

type callTokenResponse struct {
	Token string `json:"token"`
}

// handleIssueCallToken handles POST /api/channels/{id}/call/token: admits
// the caller to that channel's LiveKit room, gated the same way sending a
// message is — viewing the channel is not enough, the caller must be able
// to speak into it.
func (h *handler) handleIssueCallToken(w http.ResponseWriter, r *http.Request) {
	if h.d.Relay == nil {
		h.writeErr(w, apperr.ServiceUnavailable("calling is not configured on this server"))
		return
	}
	channelID, appErr := pathUUID(r, "channelID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	perms, appErr := h.channelPermissions(r, channelID)
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	if !permissions.Has(perms, models.PermSendMessages) {
		h.writeErr(w, apperr.Forbidden())
		return
	}

	var req callTokenRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}
	if !req.CanPublish && !req.CanSubscribe {
		req.CanSubscribe = true
	}

	self := identity(r).SubjectID
	token, appErr := h.d.Relay.IssueToken(channelID.String(), self.String(), req.CanPublish, req.CanSubscribe)
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}

	h.d.Dispatcher.ToConversation(channelID, gateway.EventCallOffer, map[string]any{
		"channel_id": channelID,
		"user_id":    self,
	}, &self)
	apiutil.WriteJSON(w, http.StatusOK, callTokenResponse{Token: token})
}

// handleLeaveCall handles POST /api/channels/{id}/call/leave.
func (h *handler) handleLeaveCall(w http.ResponseWriter, r *http.Request) {
	if h.d.Relay == nil {
		h.writeErr(w, apperr.ServiceUnavailable("calling is not configured on this server"))
		return
	}
	channelID, appErr := pathUUID(r, "channelID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	self := identity(r).SubjectID

	h.d.Relay.Release(channelID.String(), self.String())
	h.d.Dispatcher.ToConversation(channelID, gateway.EventCallLeave, map[string]any{
		"channel_id": channelID,
		"user_id":    self,
	}, &self)
	apiutil.WriteNoContent(w)
}
