// Package authgate implements §4.6's bearer-token authentication check:
// extract the hex token from the Authorization header (or a WebSocket
// upgrade's ?token= query parameter), hash it, and look up the still-valid
// session. Grounded on the original's axum FromRequestParts extractor
// (apps/central/src/api/middleware.rs, apps/server/src/api/middleware.rs),
// reshaped into a plain function plus net/http middleware the way the
// teacher wires its own auth checks into chi.
package authgate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/models"
)

// SessionStore is the subset of persistence authgate needs. Implemented by
// the store package against Postgres.
type SessionStore interface {
	SessionByTokenHash(ctx context.Context, tokenHash []byte) (*models.Session, error)
}

// Identity is what a successful gate check resolves to: the session plus
// the subject it authenticates (a Central user or a community member,
// depending on which node is asking).
type Identity struct {
	SessionID uuid.UUID
	SubjectID uuid.UUID
}

// Authenticate extracts and verifies a bearer token from an HTTP request,
// checking the Authorization header first and falling back to the ?token=
// query parameter so a WebSocket upgrade (which cannot set arbitrary
// headers from a browser) can authenticate too.
func Authenticate(ctx context.Context, store SessionStore, r *http.Request, now time.Time) (*Identity, *apperr.Error) {
	token, ok := extractToken(r)
	if !ok {
		return nil, apperr.Unauthorized()
	}
	return authenticateToken(ctx, store, token, now)
}

func authenticateToken(ctx context.Context, store SessionStore, token string, now time.Time) (*Identity, *apperr.Error) {
	tokenBytes, err := hex.DecodeString(token)
	if err != nil {
		return nil, apperr.Unauthorized()
	}
	sum := sha256.Sum256(tokenBytes)

	session, err := store.SessionByTokenHash(ctx, sum[:])
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if session == nil {
		return nil, apperr.Unauthorized()
	}
	if !session.Valid(now) {
		return nil, apperr.Unauthorized()
	}

	return &Identity{SessionID: session.ID, SubjectID: session.SubjectID}, nil
}

func extractToken(r *http.Request) (string, bool) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(auth, prefix) {
			return strings.TrimPrefix(auth, prefix), true
		}
		return "", false
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}

// HashToken computes the SHA-256 hash a session's token_hash column stores,
// exposed for the login/session-creation path that mints the raw token.
func HashToken(rawToken []byte) []byte {
	sum := sha256.Sum256(rawToken)
	return sum[:]
}

type contextKey int

const identityContextKey contextKey = iota

// Middleware authenticates every request and stores the resolved Identity
// in the request context, rejecting with 401 on failure. Routes that must
// stay anonymous (login, setup, federation heartbeat) should not be mounted
// under this middleware.
func Middleware(store SessionStore, writeErr func(http.ResponseWriter, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, appErr := Authenticate(r.Context(), store, r, time.Now())
			if appErr != nil {
				writeErr(w, appErr)
				return
			}
			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext retrieves the Identity a Middleware call stored.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	return id, ok
}
