// Package cryptox wraps key material for export: the raw file-encryption key
// is sealed with AES-GCM under a passphrase-derived wrap key so it can leave
// the machine as a small portable envelope.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/dmitrijs2005/securedrive/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	// EnvelopeVersion is bumped on incompatible envelope layout changes.
	EnvelopeVersion = 1

	kdfName   = "argon2id"
	saltSize  = 16
	nonceSize = 12
)

// SealedKey is the portable key-export envelope. Byte fields are base64
// encoded by encoding/json when the envelope is written to disk.
type SealedKey struct {
	Version    int    `json:"version"`
	KDF        string `json:"kdf"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// DeriveWrapKey stretches a passphrase into a 32-byte AES key using
// argon2id with a per-envelope salt.
func DeriveWrapKey(passphrase []byte, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

// SealKey encrypts key under the given passphrase and returns the envelope.
// A fresh salt and nonce are generated per call.
func SealKey(key, passphrase []byte) (*SealedKey, error) {
	salt, err := common.GenerateRandByteArray(saltSize)
	if err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	nonce, err := common.GenerateRandByteArray(nonceSize)
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	wrapKey := DeriveWrapKey(passphrase, salt)
	defer common.WipeByteArray(wrapKey)

	block, err := aes.NewCipher(wrapKey)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, err
	}

	return &SealedKey{
		Version:    EnvelopeVersion,
		KDF:        kdfName,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aesgcm.Seal(nil, nonce, key, nil),
	}, nil
}

// OpenKey decrypts the envelope and returns the raw key. A wrong passphrase
// and a tampered envelope are indistinguishable; both fail authentication.
func OpenKey(sk *SealedKey, passphrase []byte) ([]byte, error) {
	if sk.Version != EnvelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", sk.Version)
	}
	if sk.KDF != kdfName {
		return nil, fmt.Errorf("unsupported kdf %q", sk.KDF)
	}
	if len(sk.Nonce) != nonceSize {
		return nil, fmt.Errorf("invalid nonce length %d", len(sk.Nonce))
	}

	wrapKey := DeriveWrapKey(passphrase, sk.Salt)
	defer common.WipeByteArray(wrapKey)

	block, err := aes.NewCipher(wrapKey)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, err
	}

	key, err := aesgcm.Open(nil, sk.Nonce, sk.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open key envelope: wrong passphrase or corrupt file: %w", err)
	}
	return key, nil
}
