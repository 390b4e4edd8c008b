// Package permissions computes effective permission bitmasks for community
// server members. The bit layout and base resolution (owner bypass, OR
// role permissions together, administrator short-circuits, default member
// floor) are ported 1:1 from the original server's flat i64 model
// (apps/server/src/models/role.rs, apps/server/src/db/roles.rs); the
// per-channel allow/deny override layer generalizes the teacher's own
// richer two-tier permission pipeline (the teacher's internal/permissions
// package) down onto that flatter base model rather than discarding it.
package permissions

import (
	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/models"
)

// Member is the subset of server-membership state permission resolution
// needs.
type Member struct {
	ID      uuid.UUID
	IsOwner bool
}

// Effective computes member's server-wide permission bitmask: owner gets
// every bit regardless of role assignment; otherwise every assigned role's
// permissions are OR'd together and the default-member floor is always
// present, matching get_member_permissions_uncached.
func Effective(member Member, roles []models.Role) int64 {
	if member.IsOwner {
		return -1 // all bits set
	}

	perms := models.PermDefaultMember
	for _, r := range roles {
		perms |= r.Permissions
	}
	return perms
}

// Has reports whether perms grants required, with the administrator bit
// short-circuiting every other check (apps/server/src/models/role.rs
// has_permission).
func Has(perms int64, required int64) bool {
	if perms&models.PermAdministrator != 0 {
		return true
	}
	return perms&required != 0
}

// WithChannelOverrides layers a channel's allow/deny overrides on top of a
// member's server-wide permissions: @everyone override first, then any
// role-targeted override the member holds, then a member-targeted override,
// each later layer taking precedence — the same allow-then-deny-then-next-layer
// order the teacher's CalculatePermissions uses for its channel step.
// everyoneRoleID identifies the implicit @everyone pseudo-role, whose
// override (if any) must appear in overrides with RoleID set to it.
func WithChannelOverrides(base int64, member Member, memberRoleIDs []uuid.UUID, everyoneRoleID uuid.UUID, overrides []models.ChannelPermissionOverride) int64 {
	if base == -1 {
		return base // owner already has every bit
	}

	perms := base

	apply := func(o models.ChannelPermissionOverride) {
		perms &^= o.DenyPermissions
		perms |= o.AllowPermissions
	}

	for _, o := range overrides {
		if o.RoleID != nil && *o.RoleID == everyoneRoleID {
			apply(o)
		}
	}
	for _, o := range overrides {
		if o.RoleID == nil {
			continue
		}
		for _, rid := range memberRoleIDs {
			if *o.RoleID == rid && *o.RoleID != everyoneRoleID {
				apply(o)
			}
		}
	}
	for _, o := range overrides {
		if o.MemberID != nil && *o.MemberID == member.ID {
			apply(o)
		}
	}

	return perms
}

// CanView is the gate WSCore and channel-listing handlers apply: a member
// must hold PermViewChannels (after channel overrides) to see a channel
// exists at all, independent of read/send access.
func CanView(effectiveChannelPerms int64) bool {
	return Has(effectiveChannelPerms, models.PermViewChannels)
}
