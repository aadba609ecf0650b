package security

import "testing"

func TestNewEncryptorNilOnEmptyKey(t *testing.T) {
	if NewEncryptor("") != nil {
		t.Error("expected a nil Encryptor for an empty key")
	}
}

func TestNilEncryptorIsANoOp(t *testing.T) {
	var e *Encryptor
	if e.Enabled() {
		t.Error("expected a nil Encryptor to report Enabled() == false")
	}
	data := []byte("export bundle contents")
	out, err := e.Encrypt(data)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if string(out) != string(data) {
		t.Error("expected a nil Encryptor to return the data unchanged")
	}
	back, err := e.Decrypt(out)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if string(back) != string(data) {
		t.Error("expected a nil Encryptor to decrypt as a no-op too")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	e := NewEncryptor("a deployment secret")
	if !e.Enabled() {
		t.Fatal("expected a non-empty key to produce an enabled Encryptor")
	}

	plaintext := []byte(`{"subject_email":"jane@example.com"}`)
	ciphertext, err := e.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if string(ciphertext) == string(plaintext) {
		t.Error("expected ciphertext to differ from plaintext")
	}

	decrypted, err := e.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if string(decrypted) != string(plaintext) {
		t.Errorf("expected round-tripped plaintext to match, got %q", decrypted)
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	e := NewEncryptor("a deployment secret")
	plaintext := []byte("same input")

	a, err := e.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	b, err := e.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if string(a) == string(b) {
		t.Error("expected two encryptions of the same plaintext to differ (random nonce per call)")
	}
}

func TestDecryptRejectsTruncatedCiphertext(t *testing.T) {
	e := NewEncryptor("a deployment secret")
	if _, err := e.Decrypt([]byte("short")); err == nil {
		t.Fatal("expected an error decrypting a ciphertext shorter than the nonce size")
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	a := NewEncryptor("key one")
	b := NewEncryptor("key two")

	ciphertext, err := a.Encrypt([]byte("secret payload"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if _, err := b.Decrypt(ciphertext); err == nil {
		t.Fatal("expected decryption under a different key to fail")
	}
}
