package central

import (
	"net/http"

	"github.com/confide-gg/confide/internal/api/apiutil"
	"github.com/confide-gg/confide/internal/apperr"
)

// handleGetSelfProfile handles GET /api/profiles/me.
func (h *handler) handleGetSelfProfile(w http.ResponseWriter, r *http.Request) {
	user, appErr := h.d.Store.UserByID(r.Context(), identity(r).SubjectID)
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, user)
}

type updateProfileRequest struct {
	KEMPublicKey        []byte `json:"kem_public_key"`
	KEMEncryptedPrivate []byte `json:"kem_encrypted_private"`
}

// handleUpdateSelfProfile handles PUT /api/profiles/me. The only mutable
// server-visible profile field is the KEM keypair, which a client rotates
// on its own schedule; username and DSA identity key are permanent once
// registered.
func (h *handler) handleUpdateSelfProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}
	if appErr := apiutil.RequireNonEmpty("kem_public_key", string(req.KEMPublicKey)); appErr != nil {
		h.writeErr(w, appErr)
		return
	}

	self := identity(r).SubjectID
	if err := h.d.Store.UpdateKEMKeys(r.Context(), self, req.KEMPublicKey, req.KEMEncryptedPrivate); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}

	user, appErr := h.d.Store.UserByID(r.Context(), self)
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, user.Public())
}

// handleGetProfile handles GET /api/profiles/{user_id}: another user's
// public profile, as exposed to friends/conversation partners.
func (h *handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, appErr := pathUUID(r, "userID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	user, appErr := h.d.Store.UserByID(r.Context(), userID)
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, user.Public())
}
