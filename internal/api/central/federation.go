package central

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/api/apiutil"
	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/models"
	"github.com/confide-gg/confide/internal/search"
	"github.com/confide-gg/confide/internal/signature"
)

type issueFederationTokenRequest struct {
	ServerID string `json:"server_id"`
}

// handleIssueFederationToken handles POST /api/federation/token: a logged-in
// user asks Central for a single-use token to hand to a community server so
// it can join without ever seeing the user's password.
func (h *handler) handleIssueFederationToken(w http.ResponseWriter, r *http.Request) {
	var req issueFederationTokenRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}
	serverID, err := uuid.Parse(req.ServerID)
	if err != nil {
		h.writeErr(w, apperr.BadRequest("invalid server_id"))
		return
	}

	token, appErr := h.d.Verifier.Issue(r.Context(), serverID, identity(r).SubjectID, time.Now())
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]string{"token": token})
}

type verifyTokenRequest struct {
	ServerID uuid.UUID `json:"server_id"`
	Token    string    `json:"token"`
	UserID   uuid.UUID `json:"user_id"`
}

type verifyTokenResponse struct {
	Valid    bool                       `json:"valid"`
	UserInfo *models.FederationUserInfo `json:"user_info,omitempty"`
}

// handleVerifyToken handles POST /api/federation/verify-token: a community
// server redeems a single-use join token. Any failure reason (expired,
// already used, never issued) is reported identically so a hostile
// community server learns nothing from the distinction.
func (h *handler) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	var req verifyTokenRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}

	valid, appErr := h.d.Verifier.VerifyAndConsume(r.Context(), req.ServerID, req.Token, req.UserID, time.Now())
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	if !valid {
		apiutil.WriteJSON(w, http.StatusOK, verifyTokenResponse{Valid: false})
		return
	}

	user, userErr := h.d.Store.UserByID(r.Context(), req.UserID)
	if userErr != nil {
		apiutil.WriteJSON(w, http.StatusOK, verifyTokenResponse{Valid: false})
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, verifyTokenResponse{
		Valid: true,
		UserInfo: &models.FederationUserInfo{
			UserID:       user.ID,
			Username:     user.Username,
			KEMPublicKey: user.KEMPublicKey,
			DSAPublicKey: user.DSAPublicKey,
		},
	})
}

// handleHeartbeat handles POST /api/federation/heartbeat: a community
// server reports its current member count, signed by its own DSA identity
// key so Central can refuse a heartbeat spoofed by anyone else.
func (h *handler) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req models.HeartbeatRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}

	server, appErr := h.d.Store.ServerByID(r.Context(), req.ServerID)
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	if !signature.Verify(server.DSAPublicKey, req.SignedBytes(), req.Signature) {
		h.writeErr(w, apperr.InvalidCredentials())
		return
	}

	now := time.Now()
	if err := h.d.Store.UpdateHeartbeat(r.Context(), req.ServerID, req.MemberCount, now); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}

	if h.d.Search != nil {
		desc := ""
		if server.Description != nil {
			desc = *server.Description
		}
		_ = h.d.Search.UpsertServer(r.Context(), search.ServerDocument{
			ID:          server.ID.String(),
			DisplayName: server.DisplayName,
			Description: desc,
			Domain:      server.Domain,
			MemberCount: req.MemberCount,
		})
	}

	apiutil.WriteNoContent(w)
}

type registerServerRequest struct {
	ID             uuid.UUID `json:"id"`
	DSAPublicKey   []byte    `json:"dsa_public_key"`
	Domain         string    `json:"domain"`
	DisplayName    string    `json:"display_name"`
	Description    *string   `json:"description,omitempty"`
	IconURL        *string   `json:"icon_url,omitempty"`
	OwnerID        uuid.UUID `json:"owner_id"`
	IsDiscoverable bool      `json:"is_discoverable"`
}

// handleRegisterServer handles POST /api/federation/register: a brand-new
// community server announces itself to Central's discovery index.
func (h *handler) handleRegisterServer(w http.ResponseWriter, r *http.Request) {
	var req registerServerRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}
	if appErr := apiutil.RequireNonEmpty("domain", req.Domain); appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	if appErr := apiutil.RequireNonEmpty("display_name", req.DisplayName); appErr != nil {
		h.writeErr(w, appErr)
		return
	}

	now := time.Now()
	server := &models.RegisteredServer{
		ID:             req.ID,
		DSAPublicKey:   req.DSAPublicKey,
		Domain:         req.Domain,
		DisplayName:    req.DisplayName,
		Description:    req.Description,
		IconURL:        req.IconURL,
		OwnerID:        req.OwnerID,
		IsDiscoverable: req.IsDiscoverable,
		LastHeartbeat:  now,
		CreatedAt:      now,
	}
	if err := h.d.Store.RegisterServer(r.Context(), server); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}

	if h.d.Search != nil && req.IsDiscoverable {
		desc := ""
		if req.Description != nil {
			desc = *req.Description
		}
		_ = h.d.Search.UpsertServer(r.Context(), search.ServerDocument{
			ID:          server.ID.String(),
			DisplayName: server.DisplayName,
			Description: desc,
			Domain:      server.Domain,
		})
	}

	apiutil.WriteJSON(w, http.StatusCreated, server)
}
