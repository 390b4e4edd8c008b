package community

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/api/apiutil"
	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/gateway"
	"github.com/confide-gg/confide/internal/models"
	"github.com/confide-gg/confide/internal/permissions"
)

// handleListChannelMessages handles GET /api/channels/{id}/messages?limit&before.
func (h *handler) handleListChannelMessages(w http.ResponseWriter, r *http.Request) {
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
	if !permissions.CanView(perms) || !permissions.Has(perms, models.PermReadMessages) {
		h.writeErr(w, apperr.Forbidden())
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	var before *time.Time
	if v := r.URL.Query().Get("before"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			before = &t
		}
	}

	msgs, err := h.d.Store.ChannelMessages(r.Context(), channelID, before, limit)
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, msgs)
}

type sendChannelMessageRequest struct {
	EncryptedContent []byte     `json:"encrypted_content"`
	Signature        []byte     `json:"signature"`
	ReplyToID        *uuid.UUID `json:"reply_to_id,omitempty"`
}

// handleSendChannelMessage handles POST /api/channels/{id}/messages.
func (h *handler) handleSendChannelMessage(w http.ResponseWriter, r *http.Request) {
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

	var req sendChannelMessageRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}

	self := identity(r).SubjectID
	msg := &models.Message{
		ID:               uuid.New(),
		ConversationID:   channelID,
		SenderID:         self,
		EncryptedContent: req.EncryptedContent,
		Signature:        req.Signature,
		ReplyToID:        req.ReplyToID,
		Type:             models.MessageText,
		CreatedAt:        time.Now(),
	}
	if err := msg.Validate(); err != nil {
		h.writeErr(w, apperr.BadRequest(err.Error()))
		return
	}
	if err := h.d.Store.InsertChannelMessage(r.Context(), msg); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}

	h.d.Dispatcher.ToConversation(channelID, gateway.EventNewMessage, map[string]any{"message": msg}, &self)
	apiutil.WriteJSON(w, http.StatusCreated, msg)
}

type editChannelMessageRequest struct {
	EncryptedContent []byte `json:"encrypted_content"`
	Signature        []byte `json:"signature"`
}

// handleEditChannelMessage handles PATCH /api/channels/{id}/messages/{message_id}.
func (h *handler) handleEditChannelMessage(w http.ResponseWriter, r *http.Request) {
	channelID, appErr := pathUUID(r, "channelID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	msgID, appErr := pathUUID(r, "messageID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	var req editChannelMessageRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}

	self := identity(r).SubjectID
	now := time.Now()
	if err := h.d.Store.EditChannelMessage(r.Context(), msgID, self, req.EncryptedContent, req.Signature, now); err != nil {
		h.writeErr(w, err)
		return
	}

	h.d.Dispatcher.ToConversation(channelID, gateway.EventMessageEdited, map[string]any{
		"message_id": msgID, "edited_at": now,
	}, &self)
	apiutil.WriteNoContent(w)
}

// handleDeleteChannelMessage handles DELETE /api/channels/{id}/messages/{message_id}.
func (h *handler) handleDeleteChannelMessage(w http.ResponseWriter, r *http.Request) {
	channelID, appErr := pathUUID(r, "channelID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	msgID, appErr := pathUUID(r, "messageID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	self := identity(r).SubjectID

	perms, permErr := h.channelPermissions(r, channelID)
	if permErr != nil {
		h.writeErr(w, permErr)
		return
	}
	if err := h.d.Store.DeleteChannelMessage(r.Context(), msgID, self, permissions.Has(perms, models.PermManageMessages)); err != nil {
		h.writeErr(w, err)
		return
	}

	h.d.Dispatcher.ToConversation(channelID, gateway.EventMessageDeleted, map[string]any{
		"message_id": msgID,
	}, &self)
	apiutil.WriteNoContent(w)
}
