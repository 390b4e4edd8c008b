package central

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/api/apiutil"
	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/cache"
	"github.com/confide-gg/confide/internal/gateway"
	"github.com/confide-gg/confide/internal/models"
	"github.com/confide-gg/confide/internal/notifications"
)

// handleListConversations handles GET /api/conversations.
func (h *handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.d.Store.ConversationsForUser(r.Context(), identity(r).SubjectID)
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, convs)
}

type createConversationRequest struct {
	MemberIDs         []uuid.UUID `json:"member_ids"`
	EncryptedMetadata []byte      `json:"encrypted_metadata"`
}

// handleCreateConversation handles POST /api/conversations, used for group
// conversations; DMs go through handleCreateDM instead so the dm_pairs
// uniqueness invariant always holds.
func (h *handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}
	self := identity(r).SubjectID
	members := req.MemberIDs
	found := false
	for _, id := range members {
		if id == self {
			found = true
			break
		}
	}
	if !found {
		members = append(members, self)
	}

	conv := &models.Conversation{
		ID:                uuid.New(),
		Type:              models.ConversationGroup,
		EncryptedMetadata: req.EncryptedMetadata,
		CreatedAt:         time.Now(),
	}
	if err := h.d.Store.CreateConversation(r.Context(), conv, members); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteJSON(w, http.StatusCreated, conv)
}

// handleCreateDM handles POST /api/conversations/dm/{user_id}. The DM pair
// is protected both by an advisory Redis lock (cache.LockDMPair) and by the
// dm_pairs unique index the store enforces underneath it — see DESIGN.md's
// resolution of the TOCTOU open question.
func (h *handler) handleCreateDM(w http.ResponseWriter, r *http.Request) {
	otherID, appErr := pathUUID(r, "userID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	self := identity(r).SubjectID
	if otherID == self {
		h.writeErr(w, apperr.BadRequest("cannot DM yourself"))
		return
	}

	release, err := h.d.Cache.LockDMPair(r.Context(), self, otherID)
	if err != nil {
		if errors.Is(err, cache.ErrDMPairLocked) {
			h.writeErr(w, apperr.Conflict("direct conversation creation already in progress, retry"))
			return
		}
		h.writeErr(w, apperr.ServiceUnavailable(""))
		return
	}
	defer release()

	conv, err := h.d.Store.FindOrCreateDM(r.Context(), self, otherID, time.Now())
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, conv)
}

// handleConversationMembers handles GET /api/conversations/{id}/members.
func (h *handler) handleConversationMembers(w http.ResponseWriter, r *http.Request) {
	convID, appErr := pathUUID(r, "conversationID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	if appErr := h.requireMember(r, convID); appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	ids, err := h.d.Store.ConversationMemberIDs(r.Context(), convID)
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, ids)
}

// handleListMessages handles GET /api/conversations/{id}/messages?limit&before.
func (h *handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	convID, appErr := pathUUID(r, "conversationID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	if appErr := h.requireMember(r, convID); appErr != nil {
		h.writeErr(w, appErr)
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

	msgs, err := h.d.Store.MessagesSince(r.Context(), convID, before, limit)
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, msgs)
}

type sendMessageRequest struct {
	EncryptedContent []byte     `json:"encrypted_content"`
	Signature        []byte     `json:"signature"`
	ReplyToID        *uuid.UUID `json:"reply_to_id,omitempty"`
	RatchetChainID   *uuid.UUID `json:"ratchet_chain_id,omitempty"`
	RatchetIteration *int64     `json:"ratchet_iteration,omitempty"`
}

// handleSendMessage handles POST /api/conversations/{id}/messages: persists
// the message then fans it out over the realtime path (§4.10) and, for
// members with no live connection, via Web Push (best-effort).
func (h *handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	convID, appErr := pathUUID(r, "conversationID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	self := identity(r).SubjectID
	if appErr := h.requireMember(r, convID); appErr != nil {
		h.writeErr(w, appErr)
		return
	}

	var req sendMessageRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}

	msg := &models.Message{
		ID:               uuid.New(),
		ConversationID:   convID,
		SenderID:         self,
		EncryptedContent: req.EncryptedContent,
		Signature:        req.Signature,
		ReplyToID:        req.ReplyToID,
		RatchetChainID:   req.RatchetChainID,
		RatchetIteration: req.RatchetIteration,
		Type:             models.MessageText,
		CreatedAt:        time.Now(),
	}
	if err := msg.Validate(); err != nil {
		h.writeErr(w, apperr.BadRequest(err.Error()))
		return
	}
	if err := h.d.Store.InsertMessage(r.Context(), msg); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}

	h.d.Dispatcher.ToConversation(convID, gateway.EventNewMessage, map[string]any{
		"message": msg,
	}, &self)

	h.notifyOffline(r, convID, msg)

	apiutil.WriteJSON(w, http.StatusCreated, msg)
}

// notifyOffline pushes a wakeup notification to every member of convID
// other than the sender who has no live connection registered in this
// node's SubscriptionManager; Pusher fans out to every subscription such a
// member has registered and is best-effort.
func (h *handler) notifyOffline(r *http.Request, convID uuid.UUID, msg *models.Message) {
	if h.d.Push == nil {
		return
	}
	memberIDs, err := h.d.Store.ConversationMemberIDs(r.Context(), convID)
	if err != nil {
		return
	}
	for _, memberID := range memberIDs {
		if memberID == msg.SenderID || h.d.Subs.IsOnline(memberID) {
			continue
		}
		subs, err := h.d.Store.PushSubscriptionsForUser(r.Context(), memberID)
		if err != nil || len(subs) == 0 {
			continue
		}
		h.d.Push.NotifyNewMessage(r.Context(), subs, notifications.Payload{
			ConversationID: convID.String(),
			MessageID:      msg.ID.String(),
		})
	}
}

type editMessageRequest struct {
	EncryptedContent []byte `json:"encrypted_content"`
	Signature        []byte `json:"signature"`
}

// handleEditMessage handles PATCH /api/conversations/{id}/messages/{message_id}.
func (h *handler) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	convID, appErr := pathUUID(r, "conversationID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	msgID, appErr := pathUUID(r, "messageID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	var req editMessageRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}

	self := identity(r).SubjectID
	now := time.Now()
	if appErr := h.d.Store.EditMessage(r.Context(), msgID, self, req.EncryptedContent, req.Signature, now); appErr != nil {
		h.writeErr(w, appErr)
		return
	}

	h.d.Dispatcher.ToConversation(convID, gateway.EventMessageEdited, map[string]any{
		"message_id": msgID, "edited_at": now,
	}, &self)
	apiutil.WriteNoContent(w)
}

// handleDeleteMessage handles DELETE /api/conversations/{id}/messages/{message_id}.
func (h *handler) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	convID, appErr := pathUUID(r, "conversationID")
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
	if appErr := h.d.Store.DeleteMessage(r.Context(), msgID, self); appErr != nil {
		h.writeErr(w, appErr)
		return
	}

	h.d.Dispatcher.ToConversation(convID, gateway.EventMessageDeleted, map[string]any{
		"message_id": msgID,
	}, &self)
	apiutil.WriteNoContent(w)
}

// requireMember rejects with 403 if the caller isn't a member of convID,
// gating every conversation-scoped read/write the way §4.1's access model
// requires before any encrypted payload is ever returned.
func (h *handler) requireMember(r *http.Request, convID uuid.UUID) *apperr.Error {
	ok, err := h.d.Store.IsConversationMember(r.Context(), convID, identity(r).SubjectID)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return apperr.Forbidden()
	}
	return nil
}
