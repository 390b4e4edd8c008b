package federation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/models"
)

type fakeTokenStore struct {
	tokens map[string]*models.FederationToken
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: make(map[string]*models.FederationToken)}
}

func (f *fakeTokenStore) InsertFederationToken(ctx context.Context, token *models.FederationToken) error {
	f.tokens[string(token.TokenHash)] = token
	return nil
}

func (f *fakeTokenStore) ConsumeFederationToken(ctx context.Context, tokenHash []byte, serverID, userID uuid.UUID) (*models.FederationToken, error) {
	tok, ok := f.tokens[string(tokenHash)]
	if !ok || tok.ServerID != serverID || tok.UserID != userID {
		return nil, nil
	}
	delete(f.tokens, string(tokenHash))
	return tok, nil
}

func TestVerifier_IssueThenVerifySucceedsOnce(t *testing.T) {
	store := newFakeTokenStore()
	v := NewVerifier(store)
	now := time.Now()
	serverID, userID := uuid.New(), uuid.New()

	token, appErr := v.Issue(context.Background(), serverID, userID, now)
	if appErr != nil {
		t.Fatalf("Issue: %v", appErr)
	}

	ok, appErr := v.VerifyAndConsume(context.Background(), serverID, token, userID, now)
	if appErr != nil {
		t.Fatalf("VerifyAndConsume: %v", appErr)
	}
	if !ok {
		t.Fatal("expected first verification to succeed")
	}

	ok, appErr = v.VerifyAndConsume(context.Background(), serverID, token, userID, now)
	if appErr != nil {
		t.Fatalf("VerifyAndConsume (second): %v", appErr)
	}
	if ok {
		t.Fatal("a token must not verify a second time")
	}
}

func TestVerifier_VerifyFailsForWrongServer(t *testing.T) {
	store := newFakeTokenStore()
	v := NewVerifier(store)
	now := time.Now()
	serverID, userID := uuid.New(), uuid.New()

	token, appErr := v.Issue(context.Background(), serverID, userID, now)
	if appErr != nil {
		t.Fatalf("Issue: %v", appErr)
	}

	ok, appErr := v.VerifyAndConsume(context.Background(), uuid.New(), token, userID, now)
	if appErr != nil {
		t.Fatalf("VerifyAndConsume: %v", appErr)
	}
	if ok {
		t.Fatal("token issued for a different server must not verify")
	}
}

func TestVerifier_VerifyFailsWhenExpired(t *testing.T) {
	store := newFakeTokenStore()
	v := NewVerifier(store)
	now := time.Now()
	serverID, userID := uuid.New(), uuid.New()

	token, appErr := v.Issue(context.Background(), serverID, userID, now)
	if appErr != nil {
		t.Fatalf("Issue: %v", appErr)
	}

	later := now.Add(tokenTTL + time.Minute)
	ok, appErr := v.VerifyAndConsume(context.Background(), serverID, token, userID, later)
	if appErr != nil {
		t.Fatalf("VerifyAndConsume: %v", appErr)
	}
	if ok {
		t.Fatal("expired token must not verify")
	}
}

func TestVerifier_VerifyRejectsMalformedToken(t *testing.T) {
	store := newFakeTokenStore()
	v := NewVerifier(store)
	now := time.Now()

	ok, appErr := v.VerifyAndConsume(context.Background(), uuid.New(), "not-hex!!", uuid.New(), now)
	if appErr != nil {
		t.Fatalf("VerifyAndConsume: %v", appErr)
	}
	if ok {
		t.Fatal("malformed token must never verify")
	}
}

func TestSignedHeartbeatBytes_IsDeterministic(t *testing.T) {
	serverID := uuid.New()
	a := signedHeartbeatBytes(serverID, 10, 1700000000)
	b := signedHeartbeatBytes(serverID, 10, 1700000000)
	if string(a) != string(b) {
		t.Error("signedHeartbeatBytes must be deterministic for the same inputs")
	}

	c := signedHeartbeatBytes(serverID, 11, 1700000000)
	if string(a) == string(c) {
		t.Error("signedHeartbeatBytes must vary with member_count")
	}
}

func TestValidateFederationDomain_RejectsLocalhost(t *testing.T) {
	if err := ValidateFederationDomain("localhost"); err == nil {
		t.Error("expected localhost to be rejected")
	}
}

func TestValidateFederationDomain_RejectsDotInternal(t *testing.T) {
	if err := ValidateFederationDomain("service.internal"); err == nil {
		t.Error("expected .internal domains to be rejected")
	}
}
