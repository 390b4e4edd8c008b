package central

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/api/apiutil"
	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/authgate"
	"github.com/confide-gg/confide/internal/models"
)

const sessionDuration = 720 * time.Hour

type registerRequest struct {
	Username            string `json:"username"`
	Password            string `json:"password"`
	KEMPublicKey        []byte `json:"kem_public_key"`
	KEMEncryptedPrivate []byte `json:"kem_encrypted_private"`
	DSAPublicKey        []byte `json:"dsa_public_key"`
	DSAEncryptedPrivate []byte `json:"dsa_encrypted_private"`
	KeySalt             []byte `json:"key_salt"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string             `json:"token"`
	User  models.PublicUser  `json:"user"`
}

// handleRegister handles POST /api/auth/register. The client generates its
// own KEM/DSA keypairs and uploads only public keys plus private keys it has
// already encrypted under a key derived from the user's password — the
// server never sees plaintext key material, matching the zero-knowledge
// boundary §4.1 describes for every other payload.
func (h *handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}
	if appErr := apiutil.ValidateStringLength("username", req.Username, 3, 32); appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	if appErr := apiutil.ValidateStringLength("password", req.Password, 8, 256); appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	if appErr := apiutil.RequireNonEmpty("kem_public_key", string(req.KEMPublicKey)); appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	if appErr := apiutil.RequireNonEmpty("dsa_public_key", string(req.DSAPublicKey)); appErr != nil {
		h.writeErr(w, appErr)
		return
	}

	hash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}

	if _, appErr := h.d.Store.UserByUsername(r.Context(), req.Username); appErr == nil {
		h.writeErr(w, apperr.Conflict("username already taken"))
		return
	} else if appErr.Status != http.StatusNotFound {
		h.writeErr(w, appErr)
		return
	}

	user := &models.User{
		ID:                  uuid.New(),
		Username:            req.Username,
		PasswordHash:        hash,
		KEMPublicKey:        req.KEMPublicKey,
		KEMEncryptedPrivate: req.KEMEncryptedPrivate,
		DSAPublicKey:        req.DSAPublicKey,
		DSAEncryptedPrivate: req.DSAEncryptedPrivate,
		KeySalt:             req.KeySalt,
		CreatedAt:           time.Now(),
	}
	if err := h.d.Store.CreateUser(r.Context(), user); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}

	token, session, err := h.newSession(r, user.ID)
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	if err := h.d.Store.CreateSession(r.Context(), session); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, authResponse{Token: token, User: user.Public()})
}

// handleLogin handles POST /api/auth/login.
func (h *handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !apiutil.DecodeJSON(w, h.d.Logger, r, &req) {
		return
	}

	user, appErr := h.d.Store.UserByUsername(r.Context(), req.Username)
	if appErr != nil {
		if appErr.Status == http.StatusNotFound {
			h.writeErr(w, apperr.InvalidCredentials())
			return
		}
		h.writeErr(w, appErr)
		return
	}

	match, err := argon2id.ComparePasswordAndHash(req.Password, user.PasswordHash)
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	if !match {
		h.writeErr(w, apperr.InvalidCredentials())
		return
	}

	token, session, err := h.newSession(r, user.ID)
	if err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	if err := h.d.Store.CreateSession(r.Context(), session); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, authResponse{Token: token, User: user.Public()})
}

// handleLogout handles POST /api/auth/logout.
func (h *handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := h.d.Store.DeleteSession(r.Context(), id.SessionID); err != nil {
		h.writeErr(w, apperr.Internal(err))
		return
	}
	apiutil.WriteNoContent(w)
}

// handleMe handles GET /api/auth/me.
func (h *handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, appErr := h.d.Store.UserByID(r.Context(), identity(r).SubjectID)
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, user)
}

// handleKeys handles GET /api/auth/keys: the caller's own public key
// material, used by clients re-deriving local state after a reinstall.
func (h *handler) handleKeys(w http.ResponseWriter, r *http.Request) {
	user, appErr := h.d.Store.UserByID(r.Context(), identity(r).SubjectID)
	if appErr != nil {
		h.writeErr(w, appErr)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, user.Public())
}

// newSession mints a fresh random session token, hashing the raw token
// bytes directly (never the hex string) per authgate.HashToken's contract.
func (h *handler) newSession(r *http.Request, subjectID uuid.UUID) (string, *models.Session, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", nil, err
	}
	now := time.Now()
	session := &models.Session{
		ID:        uuid.New(),
		SubjectID: subjectID,
		TokenHash: authgate.HashToken(tokenBytes),
		ExpiresAt: now.Add(sessionDuration),
		CreatedAt: now,
	}
	return hex.EncodeToString(tokenBytes), session, nil
}
