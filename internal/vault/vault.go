// Package vault encrypts provider API keys at rest with AES-256-GCM and checks their format.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/and161185/prompt-enhancer/internal/errs"
	"github.com/and161185/prompt-enhancer/internal/model"
	"golang.org/x/crypto/hkdf"
)

// Params
const (
	MasterKeyHexLen = 64
	KeyLen          = 32
	IVLen           = 16
	TagLen          = 16

	hkdfInfo = "credential-vault/v1"
)

// Sealed is the hex-encoded output of Encrypt.
type Sealed struct {
	Ciphertext string
	IV         string
	AuthTag    string
}

// Cipher seals and opens credentials with a key derived from the process master key.
type Cipher struct {
	aead cipher.AEAD
}

// New derives the data key from a 64-hex-character master key. It fails with
// errs.ErrConfiguration when the key is missing or malformed.
func New(masterKeyHex string) (*Cipher, error) {
	masterKeyHex = strings.TrimSpace(masterKeyHex)
	if masterKeyHex == "" {
		return nil, errs.Configurationf("encryption master key is not set")
	}
	if len(masterKeyHex) != MasterKeyHexLen {
		return nil, errs.Configurationf("encryption master key must be %d hex characters", MasterKeyHexLen)
	}
	master, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, errs.Configurationf("encryption master key is not valid hex")
	}

	key, err := deriveKey(master)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, IVLen)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// deriveKey expands the master key via HKDF-SHA256.
func deriveKey(master []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, []byte(hkdfInfo))
	key := make([]byte, KeyLen)
	_, err := r.Read(key)
	return key, err
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Encrypt seals plaintext under a fresh random IV.
func (c *Cipher) Encrypt(plaintext string) (Sealed, error) {
	iv, err := RandBytes(IVLen)
	if err != nil {
		return Sealed{}, err
	}
	out := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := out[:len(out)-TagLen], out[len(out)-TagLen:]
	return Sealed{
		Ciphertext: hex.EncodeToString(ct),
		IV:         hex.EncodeToString(iv),
		AuthTag:    hex.EncodeToString(tag),
	}, nil
}

// Decrypt opens a sealed credential. Any tampering or malformed input yields errs.ErrDecryption.
func (c *Cipher) Decrypt(s Sealed) (string, error) {
	ct, err := hex.DecodeString(s.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %v", errs.ErrDecryption, err)
	}
	iv, err := hex.DecodeString(s.IV)
	if err != nil || len(iv) != IVLen {
		return "", fmt.Errorf("%w: iv", errs.ErrDecryption)
	}
	tag, err := hex.DecodeString(s.AuthTag)
	if err != nil || len(tag) != TagLen {
		return "", fmt.Errorf("%w: auth tag", errs.ErrDecryption)
	}

	buf := make([]byte, 0, len(ct)+len(tag))
	buf = append(buf, ct...)
	buf = append(buf, tag...)
	pt, err := c.aead.Open(nil, iv, buf, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrDecryption, err)
	}
	return string(pt), nil
}

// SealedFrom extracts the sealed parts of a stored credential slot.
func SealedFrom(c model.EncryptedCredential) Sealed {
	return Sealed{Ciphertext: c.Ciphertext, IV: c.IV, AuthTag: c.AuthTag}
}

// Equal compares two plaintext keys in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
