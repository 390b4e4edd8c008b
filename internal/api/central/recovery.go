package central

import (
	"net/http"

	"github.com/confide-gg/confide/internal/api/apiutil"
	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/signature"
)

type recoverySetupRequest struct {
	RecoveryBlob []byte `json:"recovery_blob"`
}

// handleRecoverySetup handles POST /api/recovery/setup: the client uploads
// an opaque blob (its identity keys re-encrypted under a recovery phrase)
// that the server stores and later hands back verbatim on reset — it is
// never decrypted or inspected here.
func (h *handler) handleRecoverySetup(w http.ResponseWriter, r *http.Request) {
	var req recoverySetupRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}
	if appErr := apiutil.RequireNonEmpty("recovery_blob", string(req.RecoveryBlob)); appErr != nil {
		h.writeErr(w, appErr)
		return
	}

	if err := h.d.Store.SetRecoveryBlob(r.Context(), identity(r).SubjectID, req.RecoveryBlob); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteNoContent(w)
}

// handleRecoveryStatus handles GET /api/recovery/status.
func (h *handler) handleRecoveryStatus(w http.ResponseWriter, r *http.Request) {
	user, appErr := h.d.Store.UserByID(r.Context(), identity(r).SubjectID)
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]bool{"recovery_set": user.RecoverySet})
}

// handleRecoveryData handles POST /api/recovery/data: returns the caller's
// own stored recovery blob, e.g. to let a client re-verify it decrypts
// locally before relying on it.
func (h *handler) handleRecoveryData(w http.ResponseWriter, r *http.Request) {
	user, appErr := h.d.Store.UserByID(r.Context(), identity(r).SubjectID)
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	if !user.RecoverySet {
		h.writeErr(w, apperr.NotFound("recovery blob"))
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string][]byte{"recovery_blob": user.RecoveryBlob})
}

type recoveryResetRequest struct {
	Username  string `json:"username"`
	ProofSig  []byte `json:"proof_signature"`
	NewToken  bool   `json:"issue_session"`
}

// handleRecoveryReset handles POST /api/recovery/reset. The caller proves
// ownership of the account's DSA identity key (already recovered locally
// from the blob) by signing PasswordResetProofMessage(user_id); on success
// every existing session for the account is revoked and, optionally, a
// fresh one is issued, mirroring a password reset's blast radius.
func (h *handler) handleRecoveryReset(w http.ResponseWriter, r *http.Request) {
	var req recoveryResetRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}

	user, appErr := h.d.Store.UserByUsername(r.Context(), req.Username)
	if appErr != nil {
		h.writeErr(w, apperr.InvalidCredentials())
		return
	}
	if !user.RecoverySet {
		h.writeErr(w, apperr.InvalidCredentials())
		return
	}

	msg := signature.PasswordResetProofMessage(user.ID.String())
	if !signature.Verify(user.DSAPublicKey, msg, req.ProofSig) {
		h.writeErr(w, apperr.InvalidCredentials())
		return
	}

	if err := h.d.Store.DeleteSessionsForUser(r.Context(), user.ID); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}

	resp := map[string]any{"user": user.Public()}
	if req.NewToken {
		token, session, err := h.newSession(r, user.ID)
		if err != nil {
			h.writeErr(w, apperr.Internal(err))
			return
		}
		if err := h.d.Store.CreateSession(r.Context(), session); err != nil {
			h.writeErr(w, apperr.Internal(err))
			return
		}
		resp["token"] = token
	}

	apiutil.WriteJSON(w, http.StatusOK, resp)
}
