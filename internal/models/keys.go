package models

import (
	"time"

	"github.com/google/uuid"
)

// OneTimePrekey is a single-use KEM prekey a client uploads in batches.
// Claiming one (via POST /api/keys/prekeys/claim/{userID}) removes it from the pool;
// the server never learns whether a claimed prekey was ever used for a real
// handshake, only that it was handed out once.
type OneTimePrekey struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	KeyID     int32     `json:"key_id"`
	PublicKey []byte    `json:"public_key"`
	Claimed   bool      `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// UserPrekeys is the signed-prekey half of a prekey bundle; rotated by the
// client periodically and re-signed with the user's DSA key so recipients
// can verify provenance without trusting the server.
type UserPrekeys struct {
	UserID             uuid.UUID `json:"user_id"`
	SignedPrekey       []byte    `json:"signed_prekey"`
	SignedPrekeySig    []byte    `json:"signed_prekey_signature"`
	SignedPrekeyID     int32     `json:"signed_prekey_id"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// PreKeyBundle is what POST /api/keys/prekeys/claim/{userID} returns: the recipient's
// identity/signed prekey plus (if any remain) one freshly claimed one-time
// prekey.
type PreKeyBundle struct {
	UserID          uuid.UUID      `json:"user_id"`
	IdentityKey     []byte         `json:"identity_key"`
	SignedPrekey    []byte         `json:"signed_prekey"`
	SignedPrekeySig []byte         `json:"signed_prekey_signature"`
	SignedPrekeyID  int32          `json:"signed_prekey_id"`
	OneTimePrekey   *OneTimePrekeyInfo `json:"one_time_prekey,omitempty"`
}

// OneTimePrekeyInfo is the claimed one-time prekey half of a bundle, or nil
// if the pool was empty (forward secrecy degrades gracefully to
// signed-prekey-only, matching the original semantics).
type OneTimePrekeyInfo struct {
	KeyID     int32  `json:"key_id"`
	PublicKey []byte `json:"public_key"`
}

// PendingKeyExchange is an asynchronously delivered ratchet handshake: sender
// uploads it, recipient fetches it with GET /api/keys/exchange/pending and it
// is deleted once delivered.
type PendingKeyExchange struct {
	ID          uuid.UUID `json:"id"`
	FromUserID  uuid.UUID `json:"from_user_id"`
	ToUserID    uuid.UUID `json:"to_user_id"`
	Ciphertext  []byte    `json:"ciphertext"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (p PendingKeyExchange) Expired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}

// RatchetSession tracks the opaque per-conversation ratchet state a client
// checkpoints so it can resume a session after reinstall; the server stores
// and returns the blob unmodified.
type RatchetSession struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	Envelope       []byte    `json:"envelope"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SenderKeyBundle distributes a group-call sender key to one recipient,
// encrypted point-to-point by the client before upload.
type SenderKeyBundle struct {
	ID             uuid.UUID `json:"id"`
	CallID         uuid.UUID `json:"call_id"`
	FromUserID     uuid.UUID `json:"from_user_id"`
	ToUserID       uuid.UUID `json:"to_user_id"`
	EncryptedKey   []byte    `json:"encrypted_key"`
	CreatedAt      time.Time `json:"created_at"`
}
