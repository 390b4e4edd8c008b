package permissions

import (
	"testing"

	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/models"
)

func TestEffective_OwnerGetsAll(t *testing.T) {
	member := Member{ID: uuid.New(), IsOwner: true}
	got := Effective(member, []models.Role{{Permissions: models.PermReadMessages}})
	if got != -1 {
		t.Errorf("owner should get every bit, got 0x%X", got)
	}
}

func TestEffective_DefaultMemberFloor(t *testing.T) {
	member := Member{ID: uuid.New()}
	got := Effective(member, nil)
	if got != models.PermDefaultMember {
		t.Errorf("member with no roles should get the default floor, got 0x%X want 0x%X", got, models.PermDefaultMember)
	}
}

func TestEffective_RolesAreORed(t *testing.T) {
	member := Member{ID: uuid.New()}
	roles := []models.Role{
		{Permissions: models.PermManageChannels},
		{Permissions: models.PermKickMembers},
	}
	got := Effective(member, roles)
	want := models.PermDefaultMember | models.PermManageChannels | models.PermKickMembers
	if got != want {
		t.Errorf("Effective() = 0x%X, want 0x%X", got, want)
	}
}

func TestHas(t *testing.T) {
	tests := []struct {
		name   string
		perms  int64
		want   int64
		expect bool
	}{
		{"has single", models.PermSendMessages, models.PermSendMessages, true},
		{"missing", models.PermSendMessages, models.PermManageServer, false},
		{"administrator bypasses everything", models.PermAdministrator, models.PermBanMembers, true},
		{"zero perms", 0, models.PermSendMessages, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Has(tc.perms, tc.want); got != tc.expect {
				t.Errorf("Has(0x%X, 0x%X) = %v, want %v", tc.perms, tc.want, got, tc.expect)
			}
		})
	}
}

func TestWithChannelOverrides_OwnerUnaffected(t *testing.T) {
	member := Member{ID: uuid.New(), IsOwner: true}
	everyone := uuid.New()
	overrides := []models.ChannelPermissionOverride{
		{RoleID: &everyone, DenyPermissions: models.PermViewChannels},
	}
	got := WithChannelOverrides(-1, member, nil, everyone, overrides)
	if got != -1 {
		t.Errorf("owner's bitmask should never be narrowed by overrides, got 0x%X", got)
	}
}

func TestWithChannelOverrides_EveryoneDenyHidesChannel(t *testing.T) {
	member := Member{ID: uuid.New()}
	everyone := uuid.New()
	base := models.PermDefaultMember
	overrides := []models.ChannelPermissionOverride{
		{RoleID: &everyone, DenyPermissions: models.PermViewChannels},
	}

	got := WithChannelOverrides(base, member, nil, everyone, overrides)
	if CanView(got) {
		t.Error("an @everyone deny override should remove view access")
	}
}

func TestWithChannelOverrides_RoleAllowRestoresAccess(t *testing.T) {
	member := Member{ID: uuid.New()}
	everyone := uuid.New()
	modRole := uuid.New()
	base := models.PermDefaultMember

	overrides := []models.ChannelPermissionOverride{
		{RoleID: &everyone, DenyPermissions: models.PermViewChannels},
		{RoleID: &modRole, AllowPermissions: models.PermViewChannels},
	}

	got := WithChannelOverrides(base, member, []uuid.UUID{modRole}, everyone, overrides)
	if !CanView(got) {
		t.Error("a role-targeted allow override should restore view access over the @everyone deny")
	}
}

func TestWithChannelOverrides_MemberOverrideWinsLast(t *testing.T) {
	member := Member{ID: uuid.New()}
	everyone := uuid.New()
	modRole := uuid.New()
	base := models.PermDefaultMember

	overrides := []models.ChannelPermissionOverride{
		{RoleID: &modRole, AllowPermissions: models.PermViewChannels},
		{MemberID: &member.ID, DenyPermissions: models.PermViewChannels},
	}

	got := WithChannelOverrides(base, member, []uuid.UUID{modRole}, everyone, overrides)
	if CanView(got) {
		t.Error("a member-targeted deny override should win over an earlier role allow")
	}
}
