package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// RegisteredServer is a community server known to Central's discovery index.
type RegisteredServer struct {
	ID             uuid.UUID `json:"id"`
	DSAPublicKey   []byte    `json:"dsa_public_key"`
	Domain         string    `json:"domain"`
	DisplayName    string    `json:"display_name"`
	Description    *string   `json:"description,omitempty"`
	IconURL        *string   `json:"icon_url,omitempty"`
	MemberCount    int32     `json:"member_count"`
	OwnerID        uuid.UUID `json:"owner_id"`
	IsDiscoverable bool      `json:"is_discoverable"`
	LastHeartbeat  time.Time `json:"last_heartbeat"`
	CreatedAt      time.Time `json:"created_at"`
}

// InactiveAfter is the §4.14 staleness window: a server with no heartbeat in
// this long is filtered out of "active" discovery results.
const InactiveAfter = 10 * time.Minute

// Active reports whether the server's last heartbeat is recent enough to be
// surfaced by GET /discovery/active.
func (s RegisteredServer) Active(now time.Time) bool {
	return now.Sub(s.LastHeartbeat) < InactiveAfter
}

// FederationToken is a single-use, short-lived credential Central issues so a
// community server can accept a user without ever holding their password.
// Single-use is enforced by deleting the row on first successful verify.
type FederationToken struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	ServerID  uuid.UUID `json:"server_id"`
	TokenHash []byte    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (t FederationToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// FederationUserInfo is what Central hands back to a community server on a
// successful token verification — enough public key material to create or
// refresh a Member row, nothing else.
type FederationUserInfo struct {
	UserID       uuid.UUID `json:"user_id"`
	Username     string    `json:"username"`
	KEMPublicKey []byte    `json:"kem_public_key"`
	DSAPublicKey []byte    `json:"dsa_public_key"`
}

// HeartbeatRequest is the signed body a community server POSTs to Central
// every heartbeat interval.
type HeartbeatRequest struct {
	ServerID    uuid.UUID `json:"server_id"`
	MemberCount int32     `json:"member_count"`
	Timestamp   int64     `json:"timestamp"`
	Signature   []byte    `json:"signature"`
}

// SignedBytes returns the exact byte sequence the signature in this
// heartbeat must cover: "<server_id>:<member_count>:<timestamp>".
func (h HeartbeatRequest) SignedBytes() []byte {
	return signedHeartbeatBytes(h.ServerID, h.MemberCount, h.Timestamp)
}

func signedHeartbeatBytes(serverID uuid.UUID, memberCount int32, timestamp int64) []byte {
	return []byte(serverID.String() + ":" + strconv.FormatInt(int64(memberCount), 10) + ":" + strconv.FormatInt(timestamp, 10))
}
