package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// gcmMagic prefixes envelopes written by EncryptGCM.
const gcmMagic = "GCM3NCR0"

const (
	saltSize        = 16
	nonceSize       = 12
	tagSize         = 16
	pbkdf2Iteration = 100000
)

// EncryptGCM seals data with a key derived from password.
// Format: magic(8) + salt(16) + nonce(12) + encrypted_data + auth_tag(16)
func EncryptGCM(data []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(gcmMagic)+saltSize+nonceSize+len(data)+tagSize)
	out = append(out, gcmMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

// DecryptGCM opens an envelope produced by EncryptGCM.
func DecryptGCM(encryptedData []byte, password string) ([]byte, error) {
	if len(encryptedData) < len(gcmMagic)+saltSize+nonceSize+tagSize {
		return nil, fmt.Errorf("GCM data too short: %d bytes", len(encryptedData))
	}
	if string(encryptedData[:len(gcmMagic)]) != gcmMagic {
		return nil, fmt.Errorf("unknown encryption format")
	}

	salt := encryptedData[8:24]
	nonce := encryptedData[24:36]
	encryptedWithTag := encryptedData[36:]

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, encryptedWithTag, nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plaintext, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iteration, 32, sha256.New)
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
