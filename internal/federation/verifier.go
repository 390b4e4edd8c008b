package federation

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/models"
)

// tokenTTL is how long an issued join token remains redeemable before a
// community server must ask for a fresh one.
const tokenTTL = 5 * time.Minute

// TokenStore is the subset of persistence FederationVerifier needs.
// VerifyAndConsume must delete the token row as part of the same lookup
// (or within the same transaction) so concurrent verification attempts
// can never both succeed — the single-use guarantee this whole package
// exists for.
type TokenStore interface {
	InsertFederationToken(ctx context.Context, token *models.FederationToken) error
	ConsumeFederationToken(ctx context.Context, tokenHash []byte, serverID, userID uuid.UUID) (*models.FederationToken, error)
}

// Verifier is Central's side of the join-token handshake: it mints
// single-use tokens and verifies (destructively) that a presented token
// hash matches one it issued for that exact server/user pair and has not
// expired.
type Verifier struct {
	store TokenStore
}

func NewVerifier(store TokenStore) *Verifier {
	return &Verifier{store: store}
}

// Issue mints a fresh random token for (serverID, userID), persists its
// hash, and returns the raw hex token to hand to the client — the token
// itself is never stored, only its SHA-256 hash, so a database read alone
// cannot forge a valid token.
func (v *Verifier) Issue(ctx context.Context, serverID, userID uuid.UUID, now time.Time) (string, *apperr.Error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", apperr.Internal(fmt.Errorf("generating federation token: %w", err))
	}
	token := hex.EncodeToString(raw)
	sum := sha256.Sum256(raw)

	err := v.store.InsertFederationToken(ctx, &models.FederationToken{
		ID:        uuid.New(),
		ServerID:  serverID,
		UserID:    userID,
		TokenHash: sum[:],
		CreatedAt: now,
		ExpiresAt: now.Add(tokenTTL),
	})
	if err != nil {
		return "", apperr.Internal(err)
	}
	return token, nil
}

// VerifyAndConsume checks tokenHex against the stored hash for
// (serverID, userID) and atomically deletes it. Fails closed: any
// ambiguity (not found, expired, store error) is reported the same way —
// the caller must not distinguish "token never existed" from "token
// already used" from "token expired" to an untrusted community server.
func (v *Verifier) VerifyAndConsume(ctx context.Context, serverID uuid.UUID, tokenHex string, userID uuid.UUID, now time.Time) (bool, *apperr.Error) {
	tokenBytes, err := hex.DecodeString(tokenHex)
	if err != nil {
		return false, nil
	}
	sum := sha256.Sum256(tokenBytes)

	tok, err := v.store.ConsumeFederationToken(ctx, sum[:], serverID, userID)
	if err != nil {
		return false, apperr.Internal(err)
	}
	if tok == nil {
		return false, nil
	}
	if tok.Expired(now) {
		return false, nil
	}
	return true, nil
}
