package cryptox

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestDeriveWrapKey_Deterministic(t *testing.T) {
	passphrase := []byte("secret-passphrase")
	salt := []byte("fixed-salt-16byte")

	key1 := DeriveWrapKey(passphrase, salt)
	key2 := DeriveWrapKey(passphrase, salt)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}
	if len(key1) != 32 {
		t.Errorf("expected 32-byte key, got %d", len(key1))
	}
}

func TestDeriveWrapKey_DifferentSalts(t *testing.T) {
	passphrase := []byte("secret-passphrase")

	key1 := DeriveWrapKey(passphrase, []byte("salt-1"))
	key2 := DeriveWrapKey(passphrase, []byte("salt-2"))

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestSealOpenKey_RoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0xAB}, 32)
	passphrase := []byte("correct horse")

	sealed, err := SealKey(key, passphrase)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	got, err := OpenKey(sealed, passphrase)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Errorf("round-trip mismatch: got %x want %x", got, key)
	}
}

func TestSealKey_FreshSaltAndNonce(t *testing.T) {
	key := bytes.Repeat([]byte{0x01}, 32)
	passphrase := []byte("p")

	a, err := SealKey(key, passphrase)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	b, err := SealKey(key, passphrase)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if bytes.Equal(a.Salt, b.Salt) {
		t.Errorf("expected fresh salt per envelope")
	}
	if bytes.Equal(a.Nonce, b.Nonce) {
		t.Errorf("expected fresh nonce per envelope")
	}
}

func TestOpenKey_WrongPassphraseFails(t *testing.T) {
	key := bytes.Repeat([]byte{0xCD}, 32)

	sealed, err := SealKey(key, []byte("right"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if _, err := OpenKey(sealed, []byte("wrong")); err == nil {
		t.Errorf("expected error for wrong passphrase")
	}
}

func TestOpenKey_TamperedCiphertextFails(t *testing.T) {
	key := bytes.Repeat([]byte{0xEF}, 32)
	passphrase := []byte("p")

	sealed, err := SealKey(key, passphrase)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	sealed.Ciphertext[0] ^= 0xFF

	if _, err := OpenKey(sealed, passphrase); err == nil {
		t.Errorf("expected error for tampered ciphertext")
	}
}

func TestOpenKey_RejectsUnknownVersionAndKDF(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	passphrase := []byte("p")

	sealed, err := SealKey(key, passphrase)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	v := *sealed
	v.Version = 99
	if _, err := OpenKey(&v, passphrase); err == nil {
		t.Errorf("expected error for unknown version")
	}

	k := *sealed
	k.KDF = "pbkdf2"
	if _, err := OpenKey(&k, passphrase); err == nil {
		t.Errorf("expected error for unknown kdf")
	}
}

func TestSealedKey_JSONRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x22}, 32)
	passphrase := []byte("p")

	sealed, err := SealKey(key, passphrase)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	data, err := json.Marshal(sealed)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded SealedKey
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, err := OpenKey(&decoded, passphrase)
	if err != nil {
		t.Fatalf("open after json round-trip: %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Errorf("round-trip mismatch")
	}
}
