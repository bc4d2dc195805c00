package utils

import "testing"

// TestEncryptDecryptRoundTrip verifies that encrypted data decrypts back
// to the original with the same key
func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := "sk-very-secret-api-key"
	key := "config-secret"

	encrypted, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if encrypted == plaintext {
		t.Fatal("ciphertext should differ from plaintext")
	}

	decrypted, err := Decrypt(encrypted, key)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if decrypted != plaintext {
		t.Fatalf("round trip mismatch: got %q", decrypted)
	}
}

// TestDecryptWrongKey verifies that the wrong key fails cleanly
func TestDecryptWrongKey(t *testing.T) {
	encrypted, err := Encrypt("secret", "right-key")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if _, err := Decrypt(encrypted, "wrong-key"); err == nil {
		t.Fatal("decrypting with the wrong key should fail")
	}
}

// TestNewSessionID verifies session IDs are unique and well formed
func TestNewSessionID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewSessionID()
		if err != nil {
			t.Fatalf("NewSessionID failed: %v", err)
		}
		if len(id) != 32 {
			t.Fatalf("session ID should be 32 hex chars, got %d: %s", len(id), id)
		}
		if seen[id] {
			t.Fatalf("duplicate session ID: %s", id)
		}
		seen[id] = true
	}
}
