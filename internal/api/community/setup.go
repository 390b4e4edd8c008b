package community

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/api/apiutil"
	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/models"
)

type setupStatusResponse struct {
	ServerName string `json:"server_name"`
	Claimed    bool   `json:"claimed"`
	Registered bool   `json:"registered"`
}

// handleSetupStatus handles GET /api/setup/status: lets an installer's
// first-run UI know whether the claim step still needs to run.
func (h *handler) handleSetupStatus(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.d.Store.Identity(r.Context())
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, setupStatusResponse{
		ServerName: id.ServerName,
		Claimed:    id.Claimed(),
		Registered: id.Registered(),
	})
}

type setupClaimRequest struct {
	SetupToken      string    `json:"setup_token"`
	CentralUserID   uuid.UUID `json:"central_user_id"`
	FederationToken string    `json:"federation_token"`
	Password        string    `json:"password"`
}

// handleSetupClaim handles POST /api/setup/claim: the operator proves
// possession of the one-time setup token printed to the console at first
// boot, and proves they are the claimed Central user by presenting a
// federation join token (the same handshake a regular member uses), then
// sets a local password for future dashboard logins.
func (h *handler) handleSetupClaim(w http.ResponseWriter, r *http.Request) {
	var req setupClaimRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}
	if appErr := apiutil.ValidateStringLength("password", req.Password, 8, 256); appErr != nil {
		h.writeErr(w, appErr)
		return
	}

	id, appErr := h.d.Store.Identity(r.Context())
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	if id.Claimed() {
		h.writeErr(w, apperr.Conflict("server already claimed"))
		return
	}

	rawSetupToken, err := hex.DecodeString(req.SetupToken)
	if err != nil {
		h.writeErr(w, apperr.InvalidCredentials())
		return
	}
	sum := sha256.Sum256(rawSetupToken)
	if subtle.ConstantTimeCompare(sum[:], id.SetupTokenHash) != 1 {
		h.writeErr(w, apperr.InvalidCredentials())
		return
	}

	userInfo, err := h.d.FedClient.VerifyToken(r.Context(), id.ID, req.FederationToken, req.CentralUserID)
	if err != nil {
		h.writeErr(w, apperr.BadGateway(""))
		return
	}
	if userInfo == nil {
		h.writeErr(w, apperr.InvalidCredentials())
		return
	}

	passwordHash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	if err := h.d.Store.ClaimIdentity(r.Context(), id.ID, userInfo.UserID, passwordHash); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}

	member, appErr := h.d.Store.MemberByCentralUserID(r.Context(), userInfo.UserID)
	if appErr != nil && appErr.Status != http.StatusNotFound {
		h.writeErr(w, appErr)
		return
	}
	if member == nil {
		member = &models.Member{
			ID:            uuid.New(),
			CentralUserID: userInfo.UserID,
			Username:      userInfo.Username,
			KEMPublicKey:  userInfo.KEMPublicKey,
			DSAPublicKey:  userInfo.DSAPublicKey,
			JoinedAt:      time.Now(),
		}
		if err := h.d.Store.CreateMember(r.Context(), member); err != nil {
			h.writeErr(w, apperr.Internal(err))
			return
		}
	}

	token, session, err := newSession(member.ID)
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	if err := h.d.Store.CreateSession(r.Context(), session); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]any{
		"token":  token,
		"member": member,
	})
}
