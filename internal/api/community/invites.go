package community

import (
	"crypto/rand"
	"encoding/base32"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/api/apiutil"
	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/models"
)

// inviteCodeEncoding renders an invite code as readable, unpadded base32
// over the Crockford alphabet, which leaves out I, L, O and U so no letter
// can be misread as 0 or 1.
var inviteCodeEncoding = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

func generateInviteCode() (string, error) {
	raw := make([]byte, 6)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return strings.ToLower(inviteCodeEncoding.EncodeToString(raw)), nil
}

type createInviteRequest struct {
	MaxUses   *int32     `json:"max_uses,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// handleCreateInvite handles POST /api/invites: requires PermCreateInvite.
func (h *handler) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	if appErr := h.requirePermission(r, models.PermCreateInvite); appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	var req createInviteRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}

	code, err := generateInviteCode()
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	inv := &models.Invite{
		ID:        uuid.New(),
		Code:      code,
		CreatedBy: identity(r).SubjectID,
		MaxUses:   req.MaxUses,
		ExpiresAt: req.ExpiresAt,
		CreatedAt: time.Now(),
	}
	if err := h.d.Store.CreateInvite(r.Context(), inv); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteJSON(w, http.StatusCreated, inv)
}

// handleGetInvite handles GET /api/invites/{code}: lets a would-be joiner
// preview an invite (uses remaining, expiry) before redeeming it.
func (h *handler) handleGetInvite(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	inv, appErr := h.d.Store.InviteByCode(r.Context(), code)
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, inv)
}

// handleRedeemInvite handles POST /api/invites/{code}/redeem: atomically
// consumes one use. The caller must already hold a valid community session
// (established via handleLogin against a federation token) — invites gate
// membership visibility, not identity verification, which federation
// already covers.
func (h *handler) handleRedeemInvite(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if appErr := h.d.Store.RedeemInvite(r.Context(), code, time.Now()); appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	apiutil.WriteNoContent(w)
}
