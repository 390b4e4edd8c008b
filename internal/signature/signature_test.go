package signature

import (
	"bytes"
	"testing"
)

func TestSignAndVerify_RoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	message := []byte("server-id:42:1700000000")
	sig := kp.Sign(message)

	if !Verify(kp.Public, message, sig) {
		t.Error("expected signature to verify")
	}
}

func TestVerify_RejectsTamperedMessage(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	sig := kp.Sign([]byte("original"))

	if Verify(kp.Public, []byte("tampered"), sig) {
		t.Error("expected signature to fail against a different message")
	}
}

func TestVerify_RejectsWrongKeyLength(t *testing.T) {
	if Verify([]byte{1, 2, 3}, []byte("hi"), []byte("sig")) {
		t.Error("expected Verify to reject a malformed public key")
	}
}

func TestPasswordResetProofMessage(t *testing.T) {
	got := PasswordResetProofMessage("user-123")
	want := []byte("password_reset:user-123")
	if !bytes.Equal(got, want) {
		t.Errorf("PasswordResetProofMessage() = %q, want %q", got, want)
	}
}

func TestEncryptDecryptPrivateKey_RoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	key := bytes.Repeat([]byte{0x42}, 32)

	ciphertext, err := EncryptPrivateKey(key, kp.Private)
	if err != nil {
		t.Fatalf("EncryptPrivateKey: %v", err)
	}
	if bytes.Contains(ciphertext, kp.Private) {
		t.Error("ciphertext must not contain the plaintext private key")
	}

	decrypted, err := DecryptPrivateKey(key, ciphertext)
	if err != nil {
		t.Fatalf("DecryptPrivateKey: %v", err)
	}
	if !bytes.Equal(decrypted, kp.Private) {
		t.Error("decrypted private key does not match original")
	}
}

func TestDecryptPrivateKey_WrongKeyFails(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	key := bytes.Repeat([]byte{0x42}, 32)
	wrongKey := bytes.Repeat([]byte{0x24}, 32)

	ciphertext, err := EncryptPrivateKey(key, kp.Private)
	if err != nil {
		t.Fatalf("EncryptPrivateKey: %v", err)
	}

	if _, err := DecryptPrivateKey(wrongKey, ciphertext); err == nil {
		t.Error("expected decryption with the wrong key to fail")
	}
}

func TestEncryptPrivateKey_RejectsShortKey(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if _, err := EncryptPrivateKey([]byte("too-short"), kp.Private); err == nil {
		t.Error("expected a non-32-byte key to be rejected")
	}
}
