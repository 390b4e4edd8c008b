package central

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/api/apiutil"
	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/gateway"
	"github.com/confide-gg/confide/internal/models"
)

const pendingKeyExchangeTTL = 7 * 24 * time.Hour

type uploadPrekeysRequest struct {
	SignedPrekey    []byte                  `json:"signed_prekey"`
	SignedPrekeySig []byte                  `json:"signed_prekey_signature"`
	SignedPrekeyID  int32                   `json:"signed_prekey_id"`
	OneTimePrekeys  []oneTimePrekeyUpload   `json:"one_time_prekeys"`
}

type oneTimePrekeyUpload struct {
	KeyID     int32  `json:"key_id"`
	PublicKey []byte `json:"public_key"`
}

// handleUploadPrekeys handles POST /api/keys/prekeys: replaces the signed
// prekey and tops up the one-time prekey pool, matching the client-driven
// rotation schedule §3 describes.
func (h *handler) handleUploadPrekeys(w http.ResponseWriter, r *http.Request) {
	var req uploadPrekeysRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}
	self := identity(r).SubjectID
	now := time.Now()

	if err := h.d.Store.UpsertUserPrekeys(r.Context(), &models.UserPrekeys{
		UserID:          self,
		SignedPrekey:    req.SignedPrekey,
		SignedPrekeySig: req.SignedPrekeySig,
		SignedPrekeyID:  req.SignedPrekeyID,
		UpdatedAt:       now,
	}); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}

	if len(req.OneTimePrekeys) > 0 {
		keys := make([]models.OneTimePrekey, len(req.OneTimePrekeys))
		for i, k := range req.OneTimePrekeys {
			keys[i] = models.OneTimePrekey{
				ID:        uuid.New(),
				UserID:    self,
				KeyID:     k.KeyID,
				PublicKey: k.PublicKey,
				CreatedAt: now,
			}
		}
		if err := h.d.Store.InsertOneTimePrekeys(r.Context(), keys); err != nil {
			h.writeErr(w, apperr.Internal(err))
			return
		}
	}

	apiutil.WriteNoContent(w)
}

// handleClaimPrekeys handles POST /api/keys/prekeys/claim/{user_id}: claims
// one one-time prekey (if any remain) to start a new ratchet session with
// user_id.
func (h *handler) handleClaimPrekeys(w http.ResponseWriter, r *http.Request) {
	userID, appErr := pathUUID(r, "userID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	bundle, appErr := h.d.Store.ClaimPrekeyBundle(r.Context(), userID)
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, bundle)
}

type sendKeyExchangeRequest struct {
	Ciphertext []byte `json:"ciphertext"`
}

// handleSendKeyExchange handles POST /api/keys/exchange/{user_id}: an
// asynchronous ratchet handshake message, delivered live if the recipient
// is connected and always persisted so a later poll (handleDrainKeyExchanges)
// picks it up too.
func (h *handler) handleSendKeyExchange(w http.ResponseWriter, r *http.Request) {
	toID, appErr := pathUUID(r, "userID")
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	var req sendKeyExchangeRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}
	if appErr := apiutil.RequireNonEmpty("ciphertext", string(req.Ciphertext)); appErr != nil {
		h.writeErr(w, appErr)
		return
	}

	self := identity(r).SubjectID
	now := time.Now()
	exchange := &models.PendingKeyExchange{
		ID:         uuid.New(),
		FromUserID: self,
		ToUserID:   toID,
		Ciphertext: req.Ciphertext,
		CreatedAt:  now,
		ExpiresAt:  now.Add(pendingKeyExchangeTTL),
	}
	if err := h.d.Store.InsertPendingKeyExchange(r.Context(), exchange); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}

	h.d.Dispatcher.ToUser(toID, gateway.EventKeyExchange, map[string]any{
		"from_user_id": self,
		"ciphertext":   req.Ciphertext,
	})
	apiutil.WriteNoContent(w)
}

// handleDrainKeyExchanges handles GET /api/keys/exchange/pending: delivers
// (and deletes) every pending handshake addressed to the caller — used on
// reconnect to pick up anything missed while offline.
func (h *handler) handleDrainKeyExchanges(w http.ResponseWriter, r *http.Request) {
	exchanges, err := h.d.Store.DrainPendingKeyExchanges(r.Context(), identity(r).SubjectID, time.Now())
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, exchanges)
}
