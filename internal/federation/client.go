// Package federation implements the two halves of §4.7/§4.8: a community
// server's FederationClient (signs and sends heartbeats, verifies
// single-use join tokens against Central) and Central's FederationVerifier
// (issues and verifies-then-deletes those tokens). Grounded on
// apps/server/src/federation/{heartbeat,identity}.rs for the client side,
// generalized into a testable HTTP client the way the teacher's own
// internal/federation/federation.go wraps outbound federation calls in a
// net/http.Client with domain validation against SSRF.
package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/signature"
)

// Client is a community server's handle onto Central's federation API.
// NewClient validates centralURL's hostname with ValidateFederationDomain
// so a misconfigured federation.central_url can't be turned into an SSRF
// vector; httpClient keeps Go's default redirect policy (up to 10
// redirects), and redirect targets are not re-validated.
type Client struct {
	centralURL string
	httpClient *http.Client
}

func NewClient(centralURL string) (*Client, error) {
	trimmed := strings.TrimSuffix(centralURL, "/")
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parsing central url: %w", err)
	}
	if err := ValidateFederationDomain(parsed.Hostname()); err != nil {
		return nil, fmt.Errorf("central url rejected: %w", err)
	}

	return &Client{
		centralURL: trimmed,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type heartbeatWireRequest struct {
	ServerID    uuid.UUID `json:"server_id"`
	MemberCount int32     `json:"member_count"`
	Timestamp   int64     `json:"timestamp"`
	Signature   []byte    `json:"signature"`
}

// SendHeartbeat signs {server_id, member_count, timestamp} with the
// server's DSA private key and POSTs it to Central. The private key is
// decrypted just-in-time from encryptedPrivateKey using the node's real
// DSA_ENCRYPTION_KEY — never a zero key, which was the original's bug
// (apps/server/src/federation/heartbeat.rs).
func (c *Client) SendHeartbeat(ctx context.Context, serverID uuid.UUID, memberCount int32, dsaEncryptionKey, encryptedPrivateKey []byte, now time.Time) error {
	privateKey, err := signature.DecryptPrivateKey(dsaEncryptionKey, encryptedPrivateKey)
	if err != nil {
		return fmt.Errorf("decrypting dsa private key: %w", err)
	}

	timestamp := now.Unix()
	message := signedHeartbeatBytes(serverID, memberCount, timestamp)
	kp := &signature.KeyPair{Private: privateKey}
	sig := kp.Sign(message)

	body, err := json.Marshal(heartbeatWireRequest{
		ServerID:    serverID,
		MemberCount: memberCount,
		Timestamp:   timestamp,
		Signature:   sig,
	})
	if err != nil {
		return fmt.Errorf("encoding heartbeat: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.centralURL+"/federation/heartbeat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building heartbeat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending heartbeat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("central returned %d for heartbeat", resp.StatusCode)
	}
	return nil
}

func signedHeartbeatBytes(serverID uuid.UUID, memberCount int32, timestamp int64) []byte {
	return []byte(serverID.String() + ":" + strconv.FormatInt(int64(memberCount), 10) + ":" + strconv.FormatInt(timestamp, 10))
}

type verifyTokenWireRequest struct {
	ServerID uuid.UUID `json:"server_id"`
	Token    string    `json:"token"`
	UserID   uuid.UUID `json:"user_id"`
}

// UserInfo is what Central hands back once a join token verifies: enough
// of the user's public identity for the community server to mint a local
// Member row.
type UserInfo struct {
	UserID       uuid.UUID `json:"user_id"`
	Username     string    `json:"username"`
	KEMPublicKey []byte    `json:"kem_public_key"`
	DSAPublicKey []byte    `json:"dsa_public_key"`
}

type verifyTokenWireResponse struct {
	Valid    bool      `json:"valid"`
	UserInfo *UserInfo `json:"user_info"`
}

// VerifyToken asks Central to verify (and consume) a single-use federation
// token. A nil, nil return means the token was invalid, expired, or
// already used — none of which are distinguishable to the community
// server by design (§4.8: "verification failures never leak why").
func (c *Client) VerifyToken(ctx context.Context, serverID uuid.UUID, token string, userID uuid.UUID) (*UserInfo, error) {
	body, err := json.Marshal(verifyTokenWireRequest{
		ServerID: serverID,
		Token:    token,
		UserID:   userID,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.centralURL+"/federation/verify-token", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contacting central: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("central returned %d for token verification", resp.StatusCode)
	}

	var result verifyTokenWireResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding verify response: %w", err)
	}
	if !result.Valid {
		return nil, nil
	}
	return result.UserInfo, nil
}
