// Package crypto provides AES-256-GCM authenticated encryption for admin TOTP secrets
// stored in the admins table. A leaked database dump must not yield working second
// factors, and GCM's authentication tag stops a tampered secret from being accepted.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrKeyLengthInvalid is returned when a master key is not exactly 32 bytes (required for AES-256).
	ErrKeyLengthInvalid = errors.New("crypto: key must be exactly 32 bytes for AES-256")
	// ErrCiphertextCorrupted is returned when the ciphertext fails base64 decoding or is too short to contain a valid nonce.
	ErrCiphertextCorrupted = errors.New("crypto: ciphertext is corrupted or tampered")
	// ErrDecryptionFailed is returned when AES-GCM authentication or decryption fails.
	ErrDecryptionFailed = errors.New("crypto: decryption operation failed")
	// ErrSaltTooShort is returned when the provided salt is fewer than 16 bytes.
	ErrSaltTooShort = errors.New("crypto: salt must be at least 16 bytes")
	// ErrKeyMissing is returned when no key material is configured.
	ErrKeyMissing = errors.New("crypto: key material is empty")
)

// passphraseSalt is the PBKDF2 salt used when the configured key is a passphrase rather
// than raw key bytes. It is fixed so every replica derives the same key.
var passphraseSalt = []byte("stagehand-admin-totp-secret-v1")

// SecretCipher encrypts and decrypts secrets held at rest
type SecretCipher struct {
	masterKey []byte
}

// NewSecretCipher creates a cipher with a 32-byte master key
func NewSecretCipher(masterKey []byte) (*SecretCipher, error) {
	if len(masterKey) != 32 {
		return nil, ErrKeyLengthInvalid
	}
	keyCopy := make([]byte, 32)
	copy(keyCopy, masterKey)
	return &SecretCipher{masterKey: keyCopy}, nil
}

// DeriveSecretCipher creates a cipher by deriving a key from a passphrase
func DeriveSecretCipher(passphrase string, salt []byte, iterations int) (*SecretCipher, error) {
	if len(salt) < 16 {
		return nil, ErrSaltTooShort
	}
	if iterations < 10000 {
		iterations = 100000
	}
	derivedKey := pbkdf2.Key([]byte(passphrase), salt, iterations, 32, sha256.New)
	return NewSecretCipher(derivedKey)
}

// CipherFromKeyMaterial builds a cipher from an operator-supplied value. Exactly 32 raw
// bytes or a standard base64 encoding of 32 bytes is used directly; anything else is
// treated as a passphrase and stretched with PBKDF2.
func CipherFromKeyMaterial(material string) (*SecretCipher, error) {
	if material == "" {
		return nil, ErrKeyMissing
	}
	if len(material) == 32 {
		return NewSecretCipher([]byte(material))
	}
	if raw, err := base64.StdEncoding.DecodeString(material); err == nil && len(raw) == 32 {
		return NewSecretCipher(raw)
	}
	return DeriveSecretCipher(material, passphraseSalt, 0)
}

func (sc *SecretCipher) aead() (cipher.AEAD, error) {
	blockCipher, err := aes.NewCipher(sc.masterKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(blockCipher)
}

// Seal encrypts plaintext and returns a base64-encoded ciphertext
func (sc *SecretCipher) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	aead, err := sc.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a base64-encoded ciphertext and returns the plaintext
func (sc *SecretCipher) Open(encodedCiphertext string) (string, error) {
	if encodedCiphertext == "" {
		return "", nil
	}

	ciphertext, err := base64.URLEncoding.DecodeString(encodedCiphertext)
	if err != nil {
		return "", ErrCiphertextCorrupted
	}

	aead, err := sc.aead()
	if err != nil {
		return "", err
	}

	nonceLen := aead.NonceSize()
	if len(ciphertext) < nonceLen {
		return "", ErrCiphertextCorrupted
	}

	plaintext, err := aead.Open(nil, ciphertext[:nonceLen], ciphertext[nonceLen:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// GenerateKey creates a cryptographically secure random 32-byte key
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
