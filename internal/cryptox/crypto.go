// Package cryptox implements the content codec and key derivation for the
// SecureText vault: PBKDF2 password-based keys and AES-256-GCM sealing of
// opaque byte payloads.
//
// Sealed blobs use a single-buffer layout, nonce || ciphertext, so the
// persisted and transmitted format needs no metadata side channel.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/akulikov/securetext/internal/common"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	// NonceSize is the GCM nonce length prepended to every sealed blob.
	NonceSize = 12

	// gcmTagSize is the GCM authentication tag length.
	gcmTagSize = 16

	// MinBlobSize is the smallest possible valid sealed blob: a nonce plus
	// the tag of an empty plaintext. Anything shorter cannot authenticate.
	MinBlobSize = NonceSize + gcmTagSize

	// kdfIterations is fixed; changing it invalidates every derived key.
	kdfIterations = 150_000
)

// Purpose salts. Distinct salts keep the admin key, user key, and vault
// metadata key independent even when derived from the same password.
const (
	SaltAdminKey  = "securetext/admin-key"
	SaltUserKey   = "securetext/user-key"
	SaltVaultMeta = "securetext/vault-meta"
)

// DeriveKey derives a 32-byte key from a password and purpose salt using
// PBKDF2-SHA256 with a fixed iteration count. Pure function of its inputs.
func DeriveKey(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, kdfIterations, KeySize, sha256.New)
}

// GenerateFileKey returns a fresh random symmetric key for content
// encryption. The File Key is never derived from a password.
func GenerateFileKey() ([]byte, error) {
	return common.GenerateRandByteArray(KeySize)
}

// Seal encrypts and authenticates plaintext under key with a fresh random
// nonce and returns nonce || ciphertext as one opaque blob.
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce, err := common.GenerateRandByteArray(NonceSize)
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	// Seal appends to nonce, producing the single-blob layout directly.
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open authenticates and decrypts a blob produced by Seal. It fails closed:
// tampering, a wrong key, or truncation all yield common.ErrDecryptFailed,
// never partial plaintext.
func Open(key, blob []byte) ([]byte, error) {
	if len(blob) < MinBlobSize {
		return nil, fmt.Errorf("%w: blob too short (%d bytes)", common.ErrDecryptFailed, len(blob))
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, blob[:NonceSize], blob[NonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptFailed, err)
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}
