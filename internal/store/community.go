package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/models"
)

// -- sessions (community logins, keyed by member id) -----------------------
// SessionByTokenHash implements authgate.SessionStore.

func (s *Community) SessionByTokenHash(ctx context.Context, tokenHash []byte) (*models.Session, error) {
	var sess models.Session
	err := s.pool.QueryRow(ctx, `
		SELECT id, subject_id, token_hash, expires_at, created_at
		FROM sessions WHERE token_hash = $1`, tokenHash).Scan(
		&sess.ID, &sess.SubjectID, &sess.TokenHash, &sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

func (s *Community) CreateSession(ctx context.Context, sess *models.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, subject_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`, sess.ID, sess.SubjectID, sess.TokenHash, sess.ExpiresAt, sess.CreatedAt)
	return err
}

func (s *Community) DeleteSession(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// -- server identity --------------------------------------------------------

func (s *Community) Identity(ctx context.Context) (*models.ServerIdentity, *apperr.Error) {
	var id models.ServerIdentity
	err := s.pool.QueryRow(ctx, `
		SELECT id, server_name, dsa_public_key, dsa_private_key_encrypted, central_registration_id,
			owner_user_id, setup_token_hash, password_hash, description, is_discoverable, created_at
		FROM server_identity LIMIT 1`).Scan(
		&id.ID, &id.ServerName, &id.DSAPublicKey, &id.DSAPrivateKeyEncrypted, &id.CentralRegistrationID,
		&id.OwnerUserID, &id.SetupTokenHash, &id.PasswordHash, &id.Description, &id.IsDiscoverable, &id.CreatedAt)
	if err != nil {
		return nil, notFound(err, "server identity")
	}
	return &id, nil
}

func (s *Community) CreateIdentity(ctx context.Context, id *models.ServerIdentity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO server_identity (id, server_name, dsa_public_key, dsa_private_key_encrypted,
			setup_token_hash, is_discoverable, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id.ID, id.ServerName, id.DSAPublicKey, id.DSAPrivateKeyEncrypted,
		id.SetupTokenHash, id.IsDiscoverable, id.CreatedAt)
	return err
}

func (s *Community) ClaimIdentity(ctx context.Context, id, ownerUserID uuid.UUID, passwordHash string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE server_identity SET owner_user_id = $2, password_hash = $3, setup_token_hash = NULL
		WHERE id = $1`, id, ownerUserID, passwordHash)
	return err
}

func (s *Community) SetCentralRegistration(ctx context.Context, id, registrationID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE server_identity SET central_registration_id = $2 WHERE id = $1`, id, registrationID)
	return err
}

// UpdateServerMeta changes the owner-editable display fields on the
// server's identity row; server_name and the DSA keypair are fixed once
// created.
func (s *Community) UpdateServerMeta(ctx context.Context, id uuid.UUID, description *string, isDiscoverable bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE server_identity SET description = $2, is_discoverable = $3 WHERE id = $1`,
		id, description, isDiscoverable)
	return err
}

// -- members ------------------------------------------------------------------

func (s *Community) CreateMember(ctx context.Context, m *models.Member) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO members (id, central_user_id, username, kem_public_key, dsa_public_key, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (central_user_id) DO NOTHING`,
		m.ID, m.CentralUserID, m.Username, m.KEMPublicKey, m.DSAPublicKey, m.JoinedAt)
	return err
}

func (s *Community) MemberByCentralUserID(ctx context.Context, centralUserID uuid.UUID) (*models.Member, *apperr.Error) {
	var m models.Member
	err := s.pool.QueryRow(ctx, `
		SELECT id, central_user_id, username, kem_public_key, dsa_public_key, joined_at
		FROM members WHERE central_user_id = $1`, centralUserID).Scan(
		&m.ID, &m.CentralUserID, &m.Username, &m.KEMPublicKey, &m.DSAPublicKey, &m.JoinedAt)
	if err != nil {
		return nil, notFound(err, "member")
	}
	return &m, nil
}

func (s *Community) MemberByID(ctx context.Context, id uuid.UUID) (*models.Member, *apperr.Error) {
	var m models.Member
	err := s.pool.QueryRow(ctx, `
		SELECT id, central_user_id, username, kem_public_key, dsa_public_key, joined_at
		FROM members WHERE id = $1`, id).Scan(
		&m.ID, &m.CentralUserID, &m.Username, &m.KEMPublicKey, &m.DSAPublicKey, &m.JoinedAt)
	if err != nil {
		return nil, notFound(err, "member")
	}
	return &m, nil
}

func (s *Community) ListMembers(ctx context.Context) ([]models.Member, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, central_user_id, username, kem_public_key, dsa_public_key, joined_at
		FROM members ORDER BY joined_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ID, &m.CentralUserID, &m.Username, &m.KEMPublicKey, &m.DSAPublicKey, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Community) RemoveMember(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM members WHERE id = $1`, id)
	return err
}

// MemberRoleIDs returns the role ids assigned to memberID, input for
// permissions.Effective/WithChannelOverrides.
func (s *Community) MemberRoleIDs(ctx context.Context, memberID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT role_id FROM member_roles WHERE member_id = $1`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Community) AssignRole(ctx context.Context, memberID, roleID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO member_roles (member_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, memberID, roleID)
	return err
}

func (s *Community) UnassignRole(ctx context.Context, memberID, roleID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM member_roles WHERE member_id = $1 AND role_id = $2`, memberID, roleID)
	return err
}

// -- roles --------------------------------------------------------------------

func (s *Community) CreateRole(ctx context.Context, r *models.Role) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO roles (id, name, permissions, color, position, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, r.ID, r.Name, r.Permissions, r.Color, r.Position, r.CreatedAt)
	return err
}

func (s *Community) UpdateRole(ctx context.Context, r *models.Role) *apperr.Error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE roles SET name = $2, permissions = $3, color = $4, position = $5 WHERE id = $1`,
		r.ID, r.Name, r.Permissions, r.Color, r.Position)
	if err != nil {
		return apperr.Internal(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("role")
	}
	return nil
}

func (s *Community) DeleteRole(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	return err
}

func (s *Community) ListRoles(ctx context.Context) ([]models.Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, permissions, color, position, created_at FROM roles ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Role
	for rows.Next() {
		var r models.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Permissions, &r.Color, &r.Position, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Community) RolesByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT id, name, permissions, color, position, created_at FROM roles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Role
	for rows.Next() {
		var r models.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Permissions, &r.Color, &r.Position, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// -- categories & channels ------------------------------------------------------

func (s *Community) CreateCategory(ctx context.Context, c *models.Category) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO categories (id, name, position, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Position, c.CreatedAt)
	return err
}

func (s *Community) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, position, created_at FROM categories ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Position, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Community) CreateChannel(ctx context.Context, ch *models.Channel) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO channels (id, category_id, name, description, position, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, ch.ID, ch.CategoryID, ch.Name, ch.Description, ch.Position, ch.CreatedAt)
	return err
}

func (s *Community) ChannelByID(ctx context.Context, id uuid.UUID) (*models.Channel, *apperr.Error) {
	var ch models.Channel
	err := s.pool.QueryRow(ctx, `
		SELECT id, category_id, name, description, position, created_at FROM channels WHERE id = $1`, id).
		Scan(&ch.ID, &ch.CategoryID, &ch.Name, &ch.Description, &ch.Position, &ch.CreatedAt)
	if err != nil {
		return nil, notFound(err, "channel")
	}
	return &ch, nil
}

func (s *Community) ListChannels(ctx context.Context) ([]models.Channel, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, category_id, name, description, position, created_at FROM channels ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Channel
	for rows.Next() {
		var ch models.Channel
		if err := rows.Scan(&ch.ID, &ch.CategoryID, &ch.Name, &ch.Description, &ch.Position, &ch.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *Community) DeleteChannel(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	return err
}

func (s *Community) ChannelOverrides(ctx context.Context, channelID uuid.UUID) ([]models.ChannelPermissionOverride, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, channel_id, role_id, member_id, allow_permissions, deny_permissions, created_at
		FROM channel_permission_overrides WHERE channel_id = $1`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChannelPermissionOverride
	for rows.Next() {
		var o models.ChannelPermissionOverride
		if err := rows.Scan(&o.ID, &o.ChannelID, &o.RoleID, &o.MemberID, &o.AllowPermissions, &o.DenyPermissions, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Community) UpsertChannelOverride(ctx context.Context, o *models.ChannelPermissionOverride) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO channel_permission_overrides (id, channel_id, role_id, member_id, allow_permissions, deny_permissions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.ChannelID, o.RoleID, o.MemberID, o.AllowPermissions, o.DenyPermissions, o.CreatedAt)
	return err
}

// -- invites ------------------------------------------------------------------

func (s *Community) CreateInvite(ctx context.Context, inv *models.Invite) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO invites (id, code, created_by, max_uses, uses, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inv.ID, inv.Code, inv.CreatedBy, inv.MaxUses, inv.Uses, inv.ExpiresAt, inv.CreatedAt)
	return err
}

func (s *Community) InviteByCode(ctx context.Context, code string) (*models.Invite, *apperr.Error) {
	var inv models.Invite
	err := s.pool.QueryRow(ctx, `
		SELECT id, code, created_by, max_uses, uses, expires_at, created_at FROM invites WHERE code = $1`, code).
		Scan(&inv.ID, &inv.Code, &inv.CreatedBy, &inv.MaxUses, &inv.Uses, &inv.ExpiresAt, &inv.CreatedAt)
	if err != nil {
		return nil, notFound(err, "invite")
	}
	return &inv, nil
}

// RedeemInvite atomically increments an invite's use counter, rejecting
// the redemption if it is already at max_uses or past expiry.
func (s *Community) RedeemInvite(ctx context.Context, code string, now time.Time) *apperr.Error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE invites SET uses = uses + 1
		WHERE code = $1 AND (expires_at IS NULL OR expires_at > $2) AND (max_uses IS NULL OR uses < max_uses)`,
		code, now)
	if err != nil {
		return apperr.Internal(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("invite")
	}
	return nil
}

// -- channel messages -----------------------------------------------------------
// Channels reuse the shared conversations/messages tables: a channel's id
// doubles as its conversation_id, so internal/store's Central message
// helpers and the community server's handlers share one schema shape.

func (s *Community) InsertChannelMessage(ctx context.Context, m *models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, encrypted_content, signature,
			reply_to_id, message_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.ConversationID, m.SenderID, m.EncryptedContent, m.Signature, m.ReplyToID, m.Type, m.CreatedAt)
	return err
}

// EditChannelMessage updates a channel message's ciphertext; only the
// original sender may edit, same as Central's conversation messages.
func (s *Community) EditChannelMessage(ctx context.Context, id, senderID uuid.UUID, encryptedContent, signature []byte, now time.Time) *apperr.Error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET encrypted_content = $3, signature = $4, edited_at = $5
		WHERE id = $1 AND sender_id = $2`, id, senderID, encryptedContent, signature, now)
	if err != nil {
		return apperr.Internal(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("message")
	}
	return nil
}

// DeleteChannelMessage removes a channel message. A caller holding
// PermManageMessages may delete anyone's message; otherwise only the
// sender may delete their own, the moderator bypass Central's DM/group
// conversations have no equivalent for.
func (s *Community) DeleteChannelMessage(ctx context.Context, id, senderID uuid.UUID, moderator bool) *apperr.Error {
	var tag pgconn.CommandTag
	var err error
	if moderator {
		tag, err = s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	} else {
		tag, err = s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1 AND sender_id = $2`, id, senderID)
	}
	if err != nil {
		return apperr.Internal(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("message")
	}
	return nil
}

func (s *Community) ChannelMessages(ctx context.Context, channelID uuid.UUID, before *time.Time, limit int) ([]models.Message, error) {
	cutoff := time.Now()
	if before != nil {
		cutoff = *before
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, encrypted_content, signature, reply_to_id,
			expires_at, ratchet_chain_id, ratchet_iteration, edited_at, message_type,
			call_id, duration_seconds, created_at
		FROM messages WHERE conversation_id = $1 AND created_at < $2
		ORDER BY created_at DESC LIMIT $3`, channelID, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}
