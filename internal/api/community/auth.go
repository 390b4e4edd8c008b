package community

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/api/apiutil"
	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/authgate"
	"github.com/confide-gg/confide/internal/models"
)

// sessionTTL matches the central server's session lifetime; community
// sessions are independent of a user's central session but share the same
// bearer-token shape.
const sessionTTL = 30 * 24 * time.Hour

func newSession(subjectID uuid.UUID) (rawToken string, session *models.Session, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("generating session token: %w", err)
	}
	now := time.Now()
	session = &models.Session{
		ID:        uuid.New(),
		SubjectID: subjectID,
		TokenHash: authgate.HashToken(raw),
		ExpiresAt: now.Add(sessionTTL),
		CreatedAt: now,
	}
	return hex.EncodeToString(raw), session, nil
}

type loginRequest struct {
	CentralUserID   uuid.UUID `json:"central_user_id"`
	FederationToken string    `json:"federation_token"`
}

// handleLogin handles POST /api/auth/login: a member (or first-time
// joiner) redeems a federation token issued by Central to establish a
// local session, creating a Member row on first contact.
func (h *handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}

	id, appErr := h.d.Store.Identity(r.Context())
	if appErr != nil {
		h.writeErr(w, appErr)
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

// handleLogout handles POST /api/auth/logout.
func (h *handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.d.Store.DeleteSession(r.Context(), identity(r).SessionID); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteNoContent(w)
}

// handleMe handles GET /api/auth/me.
func (h *handler) handleMe(w http.ResponseWriter, r *http.Request) {
	member, appErr := h.d.Store.MemberByID(r.Context(), identity(r).SubjectID)
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, member)
}
