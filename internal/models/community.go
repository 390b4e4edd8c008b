package models

import (
	"time"

	"github.com/google/uuid"
)

// ServerIdentity is the community server's singleton identity row. The DSA
// private key is AES-GCM encrypted at rest with the node-wide key loaded from
// DSA_ENCRYPTION_KEY (see internal/signature).
type ServerIdentity struct {
	ID                     uuid.UUID  `json:"id"`
	ServerName             string     `json:"server_name"`
	DSAPublicKey           []byte     `json:"dsa_public_key"`
	DSAPrivateKeyEncrypted []byte     `json:"-"`
	CentralRegistrationID  *uuid.UUID `json:"central_registration_id,omitempty"`
	OwnerUserID            *uuid.UUID `json:"owner_user_id,omitempty"`
	SetupTokenHash         []byte     `json:"-"`
	PasswordHash           *string    `json:"-"`
	Description            *string    `json:"description,omitempty"`
	IsDiscoverable         bool       `json:"is_discoverable"`
	CreatedAt              time.Time  `json:"created_at"`
}

// Claimed reports whether an owner has completed the setup/claim flow.
func (s ServerIdentity) Claimed() bool { return s.OwnerUserID != nil }

// Registered reports whether this server has self-registered with Central.
func (s ServerIdentity) Registered() bool { return s.CentralRegistrationID != nil }

// Member is a community-server-local projection of a Central user, snapshotted
// at join time and never updated except by re-federating.
type Member struct {
	ID             uuid.UUID `json:"id"`
	CentralUserID  uuid.UUID `json:"central_user_id"`
	Username       string    `json:"username"`
	KEMPublicKey   []byte    `json:"kem_public_key"`
	DSAPublicKey   []byte    `json:"dsa_public_key"`
	JoinedAt       time.Time `json:"joined_at"`
}

// Role permission bits, ported 1:1 from the original server's permission
// model (apps/server/src/models/role.rs): a flat i64 bitmask rather than the
// two-tier guild/channel split the teacher's own permissions package uses.
const (
	PermNone            int64 = 0
	PermCreateInvite     int64 = 1 << 0
	PermKickMembers      int64 = 1 << 1
	PermBanMembers       int64 = 1 << 2
	PermManageChannels   int64 = 1 << 3
	PermManageServer     int64 = 1 << 4
	PermReadMessages     int64 = 1 << 5
	PermSendMessages     int64 = 1 << 6
	PermManageMessages   int64 = 1 << 7
	PermMentionEveryone  int64 = 1 << 8
	PermAdministrator    int64 = 1 << 9
	PermManageRoles      int64 = 1 << 10
	PermViewChannels     int64 = 1 << 11

	PermDefaultMember = PermReadMessages | PermSendMessages | PermViewChannels
)

// Role is a named permission bundle, ordered by Position for display and
// precedence.
type Role struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Permissions int64     `json:"permissions"`
	Color       *string   `json:"color,omitempty"`
	Position    int32     `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
}

// Category groups text channels for display.
type Category struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Position  int32     `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// Channel is a text channel within an optional category.
type Channel struct {
	ID          uuid.UUID  `json:"id"`
	CategoryID  *uuid.UUID `json:"category_id,omitempty"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	Position    int32      `json:"position"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ChannelPermissionOverride layers allow/deny bits over a role or a specific
// member for one channel.
type ChannelPermissionOverride struct {
	ID              uuid.UUID  `json:"id"`
	ChannelID       uuid.UUID  `json:"channel_id"`
	RoleID          *uuid.UUID `json:"role_id,omitempty"`
	MemberID        *uuid.UUID `json:"member_id,omitempty"`
	AllowPermissions int64     `json:"allow_permissions"`
	DenyPermissions  int64     `json:"deny_permissions"`
	CreatedAt        time.Time `json:"created_at"`
}

// Invite is a redeemable join code, optionally capped by uses or expiry.
type Invite struct {
	ID        uuid.UUID  `json:"id"`
	Code      string     `json:"code"`
	CreatedBy uuid.UUID  `json:"created_by"`
	MaxUses   *int32     `json:"max_uses,omitempty"`
	Uses      int32      `json:"uses"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
