// Package vault encrypts MFA shared secrets and hashes backup codes.
//
// Secrets are sealed with AES-256-GCM under a key derived from a master key;
// the master key itself is never used as a cipher key. Backup codes are
// low-entropy one-time values and get an adaptive bcrypt hash instead.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinMasterKeyLength is the boot guard: construction fails below it so
	// a weak key surfaces at startup, never at request time.
	MinMasterKeyLength = 32

	blobVersion1  = 0x01
	gcmNonceBytes = 12
)

var (
	// ErrMasterKey reports a missing or too-short master key.
	ErrMasterKey = errors.New("vault: master key missing or below minimum length")
	// ErrDecrypt reports a tampered, truncated, or foreign blob. Decrypt
	// fails closed; it never returns a wrong-but-plausible plaintext.
	ErrDecrypt = errors.New("vault: decrypt failed")
)

// Vault seals and opens secrets and hashes backup codes. It is immutable
// after New and safe for concurrent use.
type Vault struct {
	key        [32]byte
	bcryptCost int
}

// New derives the AES key from masterKey with SHA-256 and validates the
// bcrypt cost. It returns ErrMasterKey when the key is absent or short.
func New(masterKey string, bcryptCost int) (*Vault, error) {
	if len(masterKey) < MinMasterKeyLength {
		return nil, ErrMasterKey
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("vault: bcrypt cost %d out of range", bcryptCost)
	}
	v := &Vault{bcryptCost: bcryptCost}
	v.key = sha256.Sum256([]byte(masterKey))
	return v, nil
}

// Encrypt seals plaintext with a fresh random nonce. The returned blob is
// opaque: version byte, nonce, then ciphertext+tag.
func (v *Vault) Encrypt(plaintext string) ([]byte, error) {
	aead, err := v.aead()
	if err != nil {
		return nil, err
	}

	blob := make([]byte, 1+gcmNonceBytes, 1+gcmNonceBytes+len(plaintext)+aead.Overhead())
	blob[0] = blobVersion1
	if _, err := io.ReadFull(rand.Reader, blob[1:1+gcmNonceBytes]); err != nil {
		return nil, err
	}
	return aead.Seal(blob, blob[1:1+gcmNonceBytes], []byte(plaintext), nil), nil
}

// Decrypt opens a blob produced by Encrypt. Any format mismatch or
// authentication failure yields ErrDecrypt.
func (v *Vault) Decrypt(blob []byte) (string, error) {
	if len(blob) < 1+gcmNonceBytes+1 || blob[0] != blobVersion1 {
		return "", ErrDecrypt
	}
	aead, err := v.aead()
	if err != nil {
		return "", err
	}
	plaintext, err := aead.Open(nil, blob[1:1+gcmNonceBytes], blob[1+gcmNonceBytes:], nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

// HashBackupCode produces an adaptive bcrypt hash of a single-use code.
func (v *Vault) HashBackupCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), v.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyBackupCode reports whether code matches hash, using bcrypt's own
// constant-time comparison.
func (v *Vault) VerifyBackupCode(code, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}

func (v *Vault) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
