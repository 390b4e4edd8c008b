package authgate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/models"
)

type fakeStore struct {
	session *models.Session
	err     error
}

func (f *fakeStore) SessionByTokenHash(ctx context.Context, tokenHash []byte) (*models.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.session == nil {
		return nil, nil
	}
	want := sha256.Sum256(mustHexDecode(rawTestToken))
	if hex.EncodeToString(tokenHash) != hex.EncodeToString(want[:]) {
		return nil, nil
	}
	return f.session, nil
}

const rawTestToken = "aabbccddeeff00112233445566778899"

func mustHexDecode(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	_, appErr := Authenticate(context.Background(), &fakeStore{}, r, time.Now())
	if appErr == nil || appErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", appErr)
	}
}

func TestAuthenticate_MalformedBearer(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	r.Header.Set("Authorization", "not-bearer-at-all")
	_, appErr := Authenticate(context.Background(), &fakeStore{}, r, time.Now())
	if appErr == nil || appErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", appErr)
	}
}

func TestAuthenticate_NonHexToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	r.Header.Set("Authorization", "Bearer not-hex!!")
	_, appErr := Authenticate(context.Background(), &fakeStore{}, r, time.Now())
	if appErr == nil || appErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", appErr)
	}
}

func TestAuthenticate_UnknownSession(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	r.Header.Set("Authorization", "Bearer "+rawTestToken)
	_, appErr := Authenticate(context.Background(), &fakeStore{}, r, time.Now())
	if appErr == nil || appErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown session, got %v", appErr)
	}
}

func TestAuthenticate_ExpiredSession(t *testing.T) {
	now := time.Now()
	session := &models.Session{
		ID:        uuid.New(),
		SubjectID: uuid.New(),
		ExpiresAt: now.Add(-time.Minute),
	}
	r := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	r.Header.Set("Authorization", "Bearer "+rawTestToken)

	_, appErr := Authenticate(context.Background(), &fakeStore{session: session}, r, now)
	if appErr == nil || appErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired session, got %v", appErr)
	}
}

func TestAuthenticate_ValidSessionFromHeader(t *testing.T) {
	now := time.Now()
	subjectID := uuid.New()
	session := &models.Session{
		ID:        uuid.New(),
		SubjectID: subjectID,
		ExpiresAt: now.Add(time.Hour),
	}
	r := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	r.Header.Set("Authorization", "Bearer "+rawTestToken)

	identity, appErr := Authenticate(context.Background(), &fakeStore{session: session}, r, now)
	if appErr != nil {
		t.Fatalf("unexpected error: %v", appErr)
	}
	if identity.SubjectID != subjectID {
		t.Errorf("SubjectID = %v, want %v", identity.SubjectID, subjectID)
	}
}

func TestAuthenticate_ValidSessionFromQueryParam(t *testing.T) {
	now := time.Now()
	subjectID := uuid.New()
	session := &models.Session{
		ID:        uuid.New(),
		SubjectID: subjectID,
		ExpiresAt: now.Add(time.Hour),
	}
	r := httptest.NewRequest(http.MethodGet, "/ws?token="+rawTestToken, nil)

	identity, appErr := Authenticate(context.Background(), &fakeStore{session: session}, r, now)
	if appErr != nil {
		t.Fatalf("unexpected error: %v", appErr)
	}
	if identity.SubjectID != subjectID {
		t.Errorf("SubjectID = %v, want %v", identity.SubjectID, subjectID)
	}
}

func TestAuthenticate_StoreFailureWrapsAsInternal(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	r.Header.Set("Authorization", "Bearer "+rawTestToken)

	_, appErr := Authenticate(context.Background(), &fakeStore{err: context.DeadlineExceeded}, r, time.Now())
	if appErr == nil || appErr.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %v", appErr)
	}
	if _, ok := apperr.As(appErr); !ok {
		t.Fatal("expected an *apperr.Error")
	}
}
