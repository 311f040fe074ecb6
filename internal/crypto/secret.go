// Package crypto seals integration credentials at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	SecretVersion   = "v1"
	SecretAlgorithm = "aes-256-gcm"

	ivSize  = 12
	tagSize = 16
)

var (
	// ErrInvalidKey is returned when the encryption key is empty.
	ErrInvalidKey = errors.New("invalid encryption key: must not be empty")
	// ErrDecryptionFailed is returned when a secret cannot be opened with the configured key.
	ErrDecryptionFailed = errors.New("decryption failed: invalid secret or wrong key")
)

// EncryptedSecret is the stored form of a credential. All byte fields are
// standard base64.
type EncryptedSecret struct {
	Version   string `json:"version"`
	Algorithm string `json:"algorithm"`
	IV        string `json:"iv"`
	Tag       string `json:"tag"`
	Data      string `json:"data"`
}

// Cipher encrypts and decrypts EncryptedSecret values with AES-256-GCM.
type Cipher struct {
	gcm cipher.AEAD
}

// NewCipher builds a Cipher from a key string. A base64 value that decodes
// to exactly 32 bytes is used as-is; anything else is hashed with SHA-256.
func NewCipher(keyInput string) (*Cipher, error) {
	if keyInput == "" {
		return nil, ErrInvalidKey
	}

	var key []byte
	decoded, err := base64.StdEncoding.DecodeString(keyInput)
	if err == nil && len(decoded) == 32 {
		key = decoded
	} else {
		hash := sha256.Sum256([]byte(keyInput))
		key = hash[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Cipher{gcm: gcm}, nil
}

func (c *Cipher) Encrypt(plaintext string) (*EncryptedSecret, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	sealed := c.gcm.Seal(nil, iv, []byte(plaintext), nil)
	data, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return &EncryptedSecret{
		Version:   SecretVersion,
		Algorithm: SecretAlgorithm,
		IV:        base64.StdEncoding.EncodeToString(iv),
		Tag:       base64.StdEncoding.EncodeToString(tag),
		Data:      base64.StdEncoding.EncodeToString(data),
	}, nil
}

func (c *Cipher) Decrypt(s *EncryptedSecret) (string, error) {
	if s == nil {
		return "", fmt.Errorf("%w: empty secret", ErrDecryptionFailed)
	}
	if s.Algorithm != SecretAlgorithm {
		return "", fmt.Errorf("%w: unsupported algorithm %q", ErrDecryptionFailed, s.Algorithm)
	}

	iv, err := base64.StdEncoding.DecodeString(s.IV)
	if err != nil || len(iv) != ivSize {
		return "", fmt.Errorf("%w: bad iv", ErrDecryptionFailed)
	}
	tag, err := base64.StdEncoding.DecodeString(s.Tag)
	if err != nil || len(tag) != tagSize {
		return "", fmt.Errorf("%w: bad tag", ErrDecryptionFailed)
	}
	data, err := base64.StdEncoding.DecodeString(s.Data)
	if err != nil {
		return "", fmt.Errorf("%w: bad data", ErrDecryptionFailed)
	}

	plaintext, err := c.gcm.Open(nil, iv, append(data, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}
	return string(plaintext), nil
}
