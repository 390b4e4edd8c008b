package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/confide-gg/confide/internal/apperr"
	"github.com/confide-gg/confide/internal/models"
)

// -- users --------------------------------------------------------------

func (c *Central) CreateUser(ctx context.Context, u *models.User) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, kem_public_key, kem_encrypted_private,
			dsa_public_key, dsa_encrypted_private, key_salt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Username, u.PasswordHash, u.KEMPublicKey, u.KEMEncryptedPrivate,
		u.DSAPublicKey, u.DSAEncryptedPrivate, u.KeySalt, u.CreatedAt)
	return err
}

func (c *Central) UserByUsername(ctx context.Context, username string) (*models.User, *apperr.Error) {
	var u models.User
	err := c.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, kem_public_key, kem_encrypted_private,
			dsa_public_key, dsa_encrypted_private, key_salt, recovery_blob, created_at
		FROM users WHERE username = $1`, username).Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.KEMPublicKey, &u.KEMEncryptedPrivate,
		&u.DSAPublicKey, &u.DSAEncryptedPrivate, &u.KeySalt, &u.RecoveryBlob, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err, "user")
	}
	u.RecoverySet = u.RecoveryBlob != nil
	return &u, nil
}

func (c *Central) UserByID(ctx context.Context, id uuid.UUID) (*models.User, *apperr.Error) {
	var u models.User
	err := c.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, kem_public_key, kem_encrypted_private,
			dsa_public_key, dsa_encrypted_private, key_salt, recovery_blob, created_at
		FROM users WHERE id = $1`, id).Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.KEMPublicKey, &u.KEMEncryptedPrivate,
		&u.DSAPublicKey, &u.DSAEncryptedPrivate, &u.KeySalt, &u.RecoveryBlob, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err, "user")
	}
	u.RecoverySet = u.RecoveryBlob != nil
	return &u, nil
}

func (c *Central) SetRecoveryBlob(ctx context.Context, userID uuid.UUID, blob []byte) error {
	_, err := c.pool.Exec(ctx, `UPDATE users SET recovery_blob = $2 WHERE id = $1`, userID, blob)
	return err
}

// UpdateKEMKeys rotates a user's KEM keypair; the DSA identity key and
// username are permanent once registered and have no corresponding update.
func (c *Central) UpdateKEMKeys(ctx context.Context, userID uuid.UUID, kemPublicKey, kemEncryptedPrivate []byte) error {
	_, err := c.pool.Exec(ctx, `
		UPDATE users SET kem_public_key = $2, kem_encrypted_private = $3 WHERE id = $1`,
		userID, kemPublicKey, kemEncryptedPrivate)
	return err
}

// -- sessions -------------------------------------------------------------
// SessionByTokenHash implements authgate.SessionStore.

func (c *Central) SessionByTokenHash(ctx context.Context, tokenHash []byte) (*models.Session, error) {
	var s models.Session
	err := c.pool.QueryRow(ctx, `
		SELECT id, subject_id, token_hash, expires_at, created_at
		FROM sessions WHERE token_hash = $1`, tokenHash).Scan(
		&s.ID, &s.SubjectID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (c *Central) CreateSession(ctx context.Context, s *models.Session) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO sessions (id, subject_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`, s.ID, s.SubjectID, s.TokenHash, s.ExpiresAt, s.CreatedAt)
	return err
}

func (c *Central) DeleteSession(ctx context.Context, id uuid.UUID) error {
	_, err := c.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (c *Central) DeleteSessionsForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := c.pool.Exec(ctx, `DELETE FROM sessions WHERE subject_id = $1`, userID)
	return err
}

// -- federation -----------------------------------------------------------
// InsertFederationToken/ConsumeFederationToken implement federation.TokenStore.

func (c *Central) InsertFederationToken(ctx context.Context, t *models.FederationToken) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO federation_tokens (id, user_id, server_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, t.ID, t.UserID, t.ServerID, t.TokenHash, t.ExpiresAt, t.CreatedAt)
	return err
}

// ConsumeFederationToken deletes the matching row in the same statement
// that reads it, so two concurrent verification attempts can never both
// see a row — the single-use guarantee internal/federation.Verifier relies on.
func (c *Central) ConsumeFederationToken(ctx context.Context, tokenHash []byte, serverID, userID uuid.UUID) (*models.FederationToken, error) {
	var t models.FederationToken
	err := c.pool.QueryRow(ctx, `
		DELETE FROM federation_tokens
		WHERE token_hash = $1 AND server_id = $2 AND user_id = $3
		RETURNING id, user_id, server_id, token_hash, expires_at, created_at`,
		tokenHash, serverID, userID).Scan(
		&t.ID, &t.UserID, &t.ServerID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (c *Central) RegisterServer(ctx context.Context, s *models.RegisteredServer) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO registered_servers (id, dsa_public_key, domain, display_name, description,
			icon_url, member_count, owner_id, is_discoverable, last_heartbeat, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (domain) DO UPDATE SET
			dsa_public_key = EXCLUDED.dsa_public_key,
			display_name = EXCLUDED.display_name,
			owner_id = EXCLUDED.owner_id`,
		s.ID, s.DSAPublicKey, s.Domain, s.DisplayName, s.Description,
		s.IconURL, s.MemberCount, s.OwnerID, s.IsDiscoverable, s.LastHeartbeat, s.CreatedAt)
	return err
}

func (c *Central) UpdateHeartbeat(ctx context.Context, serverID uuid.UUID, memberCount int32, now time.Time) error {
	_, err := c.pool.Exec(ctx, `
		UPDATE registered_servers SET member_count = $2, last_heartbeat = $3 WHERE id = $1`,
		serverID, memberCount, now)
	return err
}

func (c *Central) ServerByID(ctx context.Context, id uuid.UUID) (*models.RegisteredServer, *apperr.Error) {
	var s models.RegisteredServer
	err := c.pool.QueryRow(ctx, `
		SELECT id, dsa_public_key, domain, display_name, description, icon_url, member_count,
			owner_id, is_discoverable, last_heartbeat, created_at
		FROM registered_servers WHERE id = $1`, id).Scan(
		&s.ID, &s.DSAPublicKey, &s.Domain, &s.DisplayName, &s.Description, &s.IconURL,
		&s.MemberCount, &s.OwnerID, &s.IsDiscoverable, &s.LastHeartbeat, &s.CreatedAt)
	if err != nil {
		return nil, notFound(err, "registered server")
	}
	return &s, nil
}

// ActiveServers lists discoverable servers whose heartbeat is fresh enough
// per models.RegisteredServer.Active / models.InactiveAfter (§4.14).
func (c *Central) ActiveServers(ctx context.Context, now time.Time) ([]models.RegisteredServer, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, dsa_public_key, domain, display_name, description, icon_url, member_count,
			owner_id, is_discoverable, last_heartbeat, created_at
		FROM registered_servers
		WHERE is_discoverable AND last_heartbeat > $1
		ORDER BY member_count DESC`, now.Add(-models.InactiveAfter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RegisteredServer
	for rows.Next() {
		var s models.RegisteredServer
		if err := rows.Scan(&s.ID, &s.DSAPublicKey, &s.Domain, &s.DisplayName, &s.Description,
			&s.IconURL, &s.MemberCount, &s.OwnerID, &s.IsDiscoverable, &s.LastHeartbeat, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// -- conversations & messages ----------------------------------------------

func (c *Central) CreateConversation(ctx context.Context, conv *models.Conversation, memberIDs []uuid.UUID) error {
	return withTx(ctx, c.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO conversations (id, conversation_type, encrypted_metadata, created_at)
			VALUES ($1, $2, $3, $4)`, conv.ID, conv.Type, conv.EncryptedMetadata, conv.CreatedAt); err != nil {
			return err
		}
		for _, uid := range memberIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO conversation_members (conversation_id, user_id, joined_at)
				VALUES ($1, $2, $3)`, conv.ID, uid, conv.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindOrCreateDM returns the existing DM conversation for the pair if one
// exists, else creates one. userA/userB are normalized to (low, high) so
// the dm_pairs unique index is the source of truth, backstopping the
// advisory lock in internal/cache.LockDMPair against the TOCTOU window
// between the app-level check and the insert (see DESIGN.md).
func (c *Central) FindOrCreateDM(ctx context.Context, userA, userB uuid.UUID, now time.Time) (*models.Conversation, error) {
	low, high := userA, userB
	if low.String() > high.String() {
		low, high = high, low
	}

	var convID uuid.UUID
	err := c.pool.QueryRow(ctx, `SELECT conversation_id FROM dm_pairs WHERE user_low = $1 AND user_high = $2`, low, high).Scan(&convID)
	if err == nil {
		return c.ConversationByID(ctx, convID)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	conv := &models.Conversation{ID: uuid.New(), Type: models.ConversationDM, CreatedAt: now}
	err = withTx(ctx, c.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO conversations (id, conversation_type, created_at) VALUES ($1, $2, $3)`,
			conv.ID, conv.Type, conv.CreatedAt); err != nil {
			return err
		}
		for _, uid := range []uuid.UUID{userA, userB} {
			if _, err := tx.Exec(ctx, `
				INSERT INTO conversation_members (conversation_id, user_id, joined_at)
				VALUES ($1, $2, $3)`, conv.ID, uid, now); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO dm_pairs (user_low, user_high, conversation_id) VALUES ($1, $2, $3)
			ON CONFLICT (user_low, user_high) DO NOTHING`, low, high, conv.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (c *Central) ConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := c.pool.QueryRow(ctx, `
		SELECT id, conversation_type, encrypted_metadata, created_at FROM conversations WHERE id = $1`, id).
		Scan(&conv.ID, &conv.Type, &conv.EncryptedMetadata, &conv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *Central) ConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT c.id, c.conversation_type, c.encrypted_metadata, c.created_at
		FROM conversations c
		JOIN conversation_members m ON m.conversation_id = c.id
		WHERE m.user_id = $1
		ORDER BY c.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.Type, &conv.EncryptedMetadata, &conv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func (c *Central) ConversationMemberIDs(ctx context.Context, convID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := c.pool.Query(ctx, `SELECT user_id FROM conversation_members WHERE conversation_id = $1`, convID)
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

func (c *Central) IsConversationMember(ctx context.Context, convID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM conversation_members WHERE conversation_id = $1 AND user_id = $2)`,
		convID, userID).Scan(&exists)
	return exists, err
}

func (c *Central) InsertMessage(ctx context.Context, m *models.Message) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, encrypted_content, signature,
			reply_to_id, expires_at, ratchet_chain_id, ratchet_iteration, message_type,
			call_id, duration_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		m.ID, m.ConversationID, m.SenderID, m.EncryptedContent, m.Signature,
		m.ReplyToID, m.ExpiresAt, m.RatchetChainID, m.RatchetIteration, m.Type,
		m.CallID, m.DurationSeconds, m.CreatedAt)
	return err
}

func (c *Central) MessagesSince(ctx context.Context, convID uuid.UUID, before *time.Time, limit int) ([]models.Message, error) {
	cutoff := time.Now()
	if before != nil {
		cutoff = *before
	}
	rows, err := c.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, encrypted_content, signature, reply_to_id,
			expires_at, ratchet_chain_id, ratchet_iteration, edited_at, message_type,
			call_id, duration_seconds, created_at
		FROM messages
		WHERE conversation_id = $1 AND created_at < $2
		ORDER BY created_at DESC LIMIT $3`, convID, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (c *Central) EditMessage(ctx context.Context, id, senderID uuid.UUID, encryptedContent, signature []byte, now time.Time) *apperr.Error {
	tag, err := c.pool.Exec(ctx, `
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

func (c *Central) DeleteMessage(ctx context.Context, id, senderID uuid.UUID) *apperr.Error {
	tag, err := c.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1 AND sender_id = $2`, id, senderID)
	if err != nil {
		return apperr.Internal(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("message")
	}
	return nil
}

func scanMessages(rows pgx.Rows) ([]models.Message, error) {
	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.EncryptedContent, &m.Signature,
			&m.ReplyToID, &m.ExpiresAt, &m.RatchetChainID, &m.RatchetIteration, &m.EditedAt, &m.Type,
			&m.CallID, &m.DurationSeconds, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// -- friendships ------------------------------------------------------------

func (c *Central) CreateFriendRequest(ctx context.Context, id, fromUserID, toUserID uuid.UUID, now time.Time) *apperr.Error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO friend_requests (id, from_user_id, to_user_id, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (from_user_id, to_user_id) DO NOTHING`, id, fromUserID, toUserID, now)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// AcceptFriendRequest consumes the pending request and records the
// friendship in one transaction.
func (c *Central) AcceptFriendRequest(ctx context.Context, fromUserID, toUserID uuid.UUID, now time.Time) *apperr.Error {
	low, high := fromUserID, toUserID
	if low.String() > high.String() {
		low, high = high, low
	}
	err := withTx(ctx, c.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM friend_requests WHERE from_user_id = $1 AND to_user_id = $2`, fromUserID, toUserID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO friendships (user_low, user_high, created_at) VALUES ($1, $2, $3)
			ON CONFLICT (user_low, user_high) DO NOTHING`, low, high, now)
		return err
	})
	if err != nil {
		return notFound(err, "friend request")
	}
	return nil
}

func (c *Central) Friends(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT CASE WHEN user_low = $1 THEN user_high ELSE user_low END
		FROM friendships WHERE user_low = $1 OR user_high = $1`, userID)
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

// -- prekeys & ratchet state --------------------------------------------------

func (c *Central) UpsertUserPrekeys(ctx context.Context, p *models.UserPrekeys) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO user_prekeys (user_id, signed_prekey, signed_prekey_sig, signed_prekey_id, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			signed_prekey = EXCLUDED.signed_prekey,
			signed_prekey_sig = EXCLUDED.signed_prekey_sig,
			signed_prekey_id = EXCLUDED.signed_prekey_id,
			updated_at = EXCLUDED.updated_at`,
		p.UserID, p.SignedPrekey, p.SignedPrekeySig, p.SignedPrekeyID, p.UpdatedAt)
	return err
}

func (c *Central) InsertOneTimePrekeys(ctx context.Context, keys []models.OneTimePrekey) error {
	return withTx(ctx, c.pool, func(tx pgx.Tx) error {
		for _, k := range keys {
			if _, err := tx.Exec(ctx, `
				INSERT INTO one_time_prekeys (id, user_id, key_id, public_key, created_at)
				VALUES ($1, $2, $3, $4, $5)`, k.ID, k.UserID, k.KeyID, k.PublicKey, k.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClaimPrekeyBundle atomically claims (and marks used) one one-time prekey
// for userID alongside their current signed prekey, degrading gracefully
// to a signed-prekey-only bundle when the one-time pool is empty.
func (c *Central) ClaimPrekeyBundle(ctx context.Context, userID uuid.UUID) (*models.PreKeyBundle, *apperr.Error) {
	var bundle models.PreKeyBundle
	bundle.UserID = userID

	err := c.pool.QueryRow(ctx, `
		SELECT dsa_public_key FROM users WHERE id = $1`, userID).Scan(&bundle.IdentityKey)
	if err != nil {
		return nil, notFound(err, "user")
	}

	err = c.pool.QueryRow(ctx, `
		SELECT signed_prekey, signed_prekey_sig, signed_prekey_id FROM user_prekeys WHERE user_id = $1`, userID).
		Scan(&bundle.SignedPrekey, &bundle.SignedPrekeySig, &bundle.SignedPrekeyID)
	if err != nil {
		return nil, notFound(err, "prekeys")
	}

	var otp models.OneTimePrekeyInfo
	var otpID uuid.UUID
	err = c.pool.QueryRow(ctx, `
		UPDATE one_time_prekeys SET claimed = true
		WHERE id = (
			SELECT id FROM one_time_prekeys WHERE user_id = $1 AND NOT claimed
			ORDER BY created_at LIMIT 1 FOR UPDATE SKIP LOCKED
		)
		RETURNING id, key_id, public_key`, userID).Scan(&otpID, &otp.KeyID, &otp.PublicKey)
	if err == nil {
		bundle.OneTimePrekey = &otp
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Internal(err)
	}

	return &bundle, nil
}

func (c *Central) InsertPendingKeyExchange(ctx context.Context, p *models.PendingKeyExchange) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO pending_key_exchanges (id, from_user_id, to_user_id, ciphertext, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, p.ID, p.FromUserID, p.ToUserID, p.Ciphertext, p.CreatedAt, p.ExpiresAt)
	return err
}

// DrainPendingKeyExchanges deletes and returns every non-expired pending
// exchange addressed to userID, the asynchronous-delivery pattern from §3.
func (c *Central) DrainPendingKeyExchanges(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.PendingKeyExchange, error) {
	rows, err := c.pool.Query(ctx, `
		DELETE FROM pending_key_exchanges WHERE to_user_id = $1 AND expires_at > $2
		RETURNING id, from_user_id, to_user_id, ciphertext, created_at, expires_at`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PendingKeyExchange
	for rows.Next() {
		var p models.PendingKeyExchange
		if err := rows.Scan(&p.ID, &p.FromUserID, &p.ToUserID, &p.Ciphertext, &p.CreatedAt, &p.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *Central) SaveRatchetSession(ctx context.Context, r *models.RatchetSession) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO ratchet_sessions (conversation_id, user_id, envelope, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (conversation_id, user_id) DO UPDATE SET
			envelope = EXCLUDED.envelope, updated_at = EXCLUDED.updated_at`,
		r.ConversationID, r.UserID, r.Envelope, r.UpdatedAt)
	return err
}

func (c *Central) RatchetSession(ctx context.Context, convID, userID uuid.UUID) (*models.RatchetSession, *apperr.Error) {
	var r models.RatchetSession
	err := c.pool.QueryRow(ctx, `
		SELECT conversation_id, user_id, envelope, updated_at
		FROM ratchet_sessions WHERE conversation_id = $1 AND user_id = $2`, convID, userID).
		Scan(&r.ConversationID, &r.UserID, &r.Envelope, &r.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "ratchet session")
	}
	return &r, nil
}

func (c *Central) InsertSenderKeyBundle(ctx context.Context, b *models.SenderKeyBundle) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO sender_key_bundles (id, call_id, from_user_id, to_user_id, encrypted_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, b.ID, b.CallID, b.FromUserID, b.ToUserID, b.EncryptedKey, b.CreatedAt)
	return err
}

// DrainSenderKeyBundles deletes and returns every sender key bundle
// addressed to userID for callID.
func (c *Central) DrainSenderKeyBundles(ctx context.Context, callID, userID uuid.UUID) ([]models.SenderKeyBundle, error) {
	rows, err := c.pool.Query(ctx, `
		DELETE FROM sender_key_bundles WHERE call_id = $1 AND to_user_id = $2
		RETURNING id, call_id, from_user_id, to_user_id, encrypted_key, created_at`, callID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SenderKeyBundle
	for rows.Next() {
		var b models.SenderKeyBundle
		if err := rows.Scan(&b.ID, &b.CallID, &b.FromUserID, &b.ToUserID, &b.EncryptedKey, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// -- push subscriptions -------------------------------------------------------

func (c *Central) UpsertPushSubscription(ctx context.Context, id, userID uuid.UUID, endpoint, p256dh, auth string, now time.Time) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh_key, auth_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, endpoint) DO UPDATE SET p256dh_key = EXCLUDED.p256dh_key, auth_key = EXCLUDED.auth_key`,
		id, userID, endpoint, p256dh, auth, now)
	return err
}

type PushSubscription struct {
	Endpoint string
	P256dh   string
	Auth     string
}

func (c *Central) PushSubscriptionsForUser(ctx context.Context, userID uuid.UUID) ([]PushSubscription, error) {
	rows, err := c.pool.Query(ctx, `SELECT endpoint, p256dh_key, auth_key FROM push_subscriptions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PushSubscription
	for rows.Next() {
		var s PushSubscription
		if err := rows.Scan(&s.Endpoint, &s.P256dh, &s.Auth); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *Central) DeletePushSubscription(ctx context.Context, userID uuid.UUID, endpoint string) error {
	_, err := c.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2`, userID, endpoint)
	return err
}
