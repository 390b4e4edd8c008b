// Package models defines the shared data types routed by both Central and the
// community server. Every byte-slice field here is opaque ciphertext, a
// signature, or public key material from the server's point of view; nothing
// in this package is ever decrypted or inspected beyond length checks.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a Central identity. Password and private-key material never leave
// the process unencrypted; KEM/DSA private keys are stored pre-encrypted by
// the client and are opaque here.
type User struct {
	ID                 uuid.UUID `json:"id"`
	Username            string    `json:"username"`
	PasswordHash        string    `json:"-"`
	KEMPublicKey        []byte    `json:"kem_public_key"`
	KEMEncryptedPrivate []byte    `json:"-"`
	DSAPublicKey        []byte    `json:"dsa_public_key"`
	DSAEncryptedPrivate []byte    `json:"-"`
	KeySalt             []byte    `json:"-"`
	RecoveryBlob        []byte    `json:"-"`
	RecoverySet         bool      `json:"recovery_set"`
	CreatedAt           time.Time `json:"created_at"`
}

// PublicUser is the subset of User safe to hand to other parties (other
// members, federated servers, friends).
type PublicUser struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	KEMPublicKey []byte    `json:"kem_public_key"`
	DSAPublicKey []byte    `json:"dsa_public_key"`
}

func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, KEMPublicKey: u.KEMPublicKey, DSAPublicKey: u.DSAPublicKey}
}

// Session backs both Central (user_id) and community (member_id) login
// sessions. SubjectID holds the user id or the member id depending on which
// store created it.
type Session struct {
	ID        uuid.UUID `json:"id"`
	SubjectID uuid.UUID `json:"subject_id"` // user_id on Central, member_id on community
	TokenHash []byte    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Valid reports whether the session has not yet expired. A session is valid
// iff expires_at > now, per the invariant in the data model.
func (s Session) Valid(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// ConversationType enumerates the three conversation shapes shared by Central
// (dm, group) and the community server (channel).
type ConversationType string

const (
	ConversationDM      ConversationType = "dm"
	ConversationGroup   ConversationType = "group"
	ConversationChannel ConversationType = "channel"
)

// Conversation is a routing envelope around opaque encrypted metadata.
type Conversation struct {
	ID                 uuid.UUID        `json:"id"`
	Type               ConversationType `json:"conversation_type"`
	EncryptedMetadata  []byte           `json:"encrypted_metadata,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}

// ConversationMember is unique on (conversation_id, user_id).
type ConversationMember struct {
	ConversationID      uuid.UUID `json:"conversation_id"`
	UserID              uuid.UUID `json:"user_id"`
	EncryptedSenderKey  []byte    `json:"encrypted_sender_key"`
	EncryptedRole       []byte    `json:"encrypted_role"`
	JoinedAt            time.Time `json:"joined_at"`
}

// MessageType enumerates the wire-visible message kinds, including the
// call-lifecycle markers the original client renders inline in a thread.
type MessageType string

const (
	MessageText        MessageType = "text"
	MessageCallEnded   MessageType = "call_ended"
	MessageCallMissed  MessageType = "call_missed"
	MessageCallRejected MessageType = "call_rejected"
)

// Size bounds from the data model (§3): encrypted_content and signature are
// bounded to keep the wire protocol's abuse surface predictable without the
// server ever looking inside either.
const (
	MaxEncryptedContentBytes = 256 * 1024
	MaxSignatureBytes        = 8 * 1024
)

// Message is the parallel shape shared by Central (conversation_id) and the
// community server (channel_id) — both map onto ConversationID here; there
// is no separate ChannelID field.
type Message struct {
	ID               uuid.UUID    `json:"id"`
	ConversationID   uuid.UUID    `json:"conversation_id"`
	SenderID         uuid.UUID    `json:"sender_id"`
	EncryptedContent []byte       `json:"encrypted_content"`
	Signature        []byte       `json:"signature"`
	ReplyToID        *uuid.UUID   `json:"reply_to_id,omitempty"`
	ExpiresAt        *time.Time   `json:"expires_at,omitempty"`
	RatchetChainID   *uuid.UUID   `json:"ratchet_chain_id,omitempty"`
	RatchetIteration *int64       `json:"ratchet_iteration,omitempty"`
	EditedAt         *time.Time   `json:"edited_at,omitempty"`
	Type             MessageType  `json:"message_type"`
	CallID           *uuid.UUID   `json:"call_id,omitempty"`
	DurationSeconds  *int64       `json:"duration_seconds,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Validate enforces the size bounds from §3 of the spec.
func (m Message) Validate() error {
	if n := len(m.EncryptedContent); n == 0 || n > MaxEncryptedContentBytes {
		return errInvalidSize("encrypted_content", n, MaxEncryptedContentBytes)
	}
	if n := len(m.Signature); n == 0 || n > MaxSignatureBytes {
		return errInvalidSize("signature", n, MaxSignatureBytes)
	}
	return nil
}

type sizeError struct {
	field string
	got   int
	max   int
}

func (e *sizeError) Error() string {
	return "invalid size for " + e.field
}

func errInvalidSize(field string, got, max int) error {
	return &sizeError{field: field, got: got, max: max}
}

// PresenceStatus enumerates the runtime-only (never persisted) statuses.
type PresenceStatus string

const (
	PresenceOnline    PresenceStatus = "online"
	PresenceAway      PresenceStatus = "away"
	PresenceDND       PresenceStatus = "dnd"
	PresenceInvisible PresenceStatus = "invisible"
	PresenceOffline   PresenceStatus = "offline"
)

// PresenceInfo is held only in the in-process SubscriptionManager, never in
// the database.
type PresenceInfo struct {
	Status       PresenceStatus `json:"status"`
	CustomStatus *string        `json:"custom_status,omitempty"`
}

// PublicActivity collapses "invisible" and "offline" to the same absence of
// activity, per the design note preserving the original behavior verbatim.
func (p PresenceInfo) PublicActivity() *PresenceInfo {
	if p.Status == PresenceInvisible || p.Status == PresenceOffline {
		return nil
	}
	return &p
}
