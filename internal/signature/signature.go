// Package signature implements the DSA (ed25519) signing and verification
// operations SignatureVerifier needs (§4.11): password-reset proof
// messages, message-send signatures, and federation heartbeat signatures.
// It also owns encrypting a community server's DSA private key at rest,
// fixing the bug in the original heartbeat service, which hardcoded a
// zero encryption key (apps/server/src/federation/heartbeat.rs) instead of
// loading DSA_ENCRYPTION_KEY — see the §9 design note on this.
package signature

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
)

// KeyPair is a DSA identity: an ed25519 public/private pair.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh DSA identity, used at server-claim time
// and at user registration.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating dsa keypair: %w", err)
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// Sign produces a detached signature over message.
func (k *KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(k.Private, message)
}

// Verify checks a detached signature against a raw ed25519 public key.
func Verify(publicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}

// PasswordResetProofMessage builds the literal message a password-reset
// proof signature must cover: "password_reset:<user_id>", verified against
// the user's OLD DSA key per §4.11's second policy.
func PasswordResetProofMessage(userID string) []byte {
	return []byte("password_reset:" + userID)
}

// EncryptPrivateKey seals a DSA private key with AES-GCM under key (the
// node-wide 32-byte DSA_ENCRYPTION_KEY), so ServerIdentity.dsa_private_key_encrypted
// never holds plaintext key material.
func EncryptPrivateKey(key []byte, private ed25519.PrivateKey) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, private, nil), nil
}

// DecryptPrivateKey reverses EncryptPrivateKey.
func DecryptPrivateKey(key []byte, ciphertext []byte) (ed25519.PrivateKey, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting dsa private key: %w", err)
	}
	return ed25519.PrivateKey(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("DSA_ENCRYPTION_KEY must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("building aes cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
