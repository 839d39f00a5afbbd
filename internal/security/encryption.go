package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// Envelope is the on-disk blob format for encrypted license material.
// It carries enough to detect tampering before decryption is trusted:
// the scrypt salt, GCM nonce, ciphertext (auth tag included), and an
// integrity digest over all of them.
type Envelope struct {
	Version    uint8  `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
	Integrity  []byte `json:"integrity"`
}

const (
	envelopeVersion = 1

	// scrypt parameters, OWASP recommended minimums
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32 // AES-256

	saltSize  = 32
	nonceSize = 12
)

// ErrTampered is returned when an envelope fails its integrity check
var ErrTampered = errors.New("integrity verification failed, possible tampering")

// EncryptEnvelope encrypts plaintext under the machine secret using
// AES-256-GCM with an scrypt-derived key.
func EncryptEnvelope(plaintext []byte, secret string) (*Envelope, error) {
	if len(plaintext) == 0 {
		return nil, errors.New("plaintext cannot be empty")
	}
	if len(secret) < 16 {
		return nil, errors.New("secret must be at least 16 characters")
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := deriveKey(secret, salt)
	if err != nil {
		return nil, err
	}
	defer wipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	return &Envelope{
		Version:    envelopeVersion,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		Integrity:  integrityDigest(ciphertext, salt, nonce),
	}, nil
}

// DecryptEnvelope verifies integrity and decrypts an envelope. It fails
// closed: any structural, integrity, or decryption failure yields an
// error and no partial plaintext.
func DecryptEnvelope(env *Envelope, secret string) ([]byte, error) {
	if env == nil {
		return nil, errors.New("envelope cannot be nil")
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	if len(env.Salt) != saltSize || len(env.Nonce) != nonceSize {
		return nil, ErrTampered
	}

	expected := integrityDigest(env.Ciphertext, env.Salt, env.Nonce)
	if subtle.ConstantTimeCompare(env.Integrity, expected) != 1 {
		return nil, ErrTampered
	}

	key, err := deriveKey(secret, env.Salt)
	if err != nil {
		return nil, err
	}
	defer wipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrTampered
	}

	return plaintext, nil
}

// SecureCompare performs constant-time comparison to prevent timing attacks
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

func deriveKey(secret string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(secret), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// integrityDigest creates the tamper-detection hash over an envelope
func integrityDigest(ciphertext, salt, nonce []byte) []byte {
	h := sha256.New()
	h.Write([]byte("DLENS-INTEGRITY-V1")) // domain separator
	h.Write(ciphertext)
	h.Write(salt)
	h.Write(nonce)
	return h.Sum(nil)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
