// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	credentialEncryptionSalt = "riqo-ingest-destination-credentials"
	credentialEncryptionInfo = "destination-credential-v1"
	aesKeySize               = 32
	gcmNonceSize             = 12
)

var (
	// ErrEmptySecret is returned when no encryption secret is configured.
	ErrEmptySecret = errors.New("credential encryption secret cannot be empty")

	// ErrEmptyPlaintext is returned when attempting to encrypt empty data.
	ErrEmptyPlaintext = errors.New("plaintext cannot be empty")

	// ErrEmptyCiphertext is returned when attempting to decrypt empty data.
	ErrEmptyCiphertext = errors.New("ciphertext cannot be empty")

	// ErrDecryptionFailed covers tampered data and a changed secret.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or authentication tag")

	// ErrInvalidCiphertext is returned for non-base64 input.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")

	// ErrCiphertextTooShort is returned when data cannot hold nonce and tag.
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// CredentialEncryptor seals tenant destination credentials (service and anon
// keys) with AES-256-GCM. The key is derived from the configured secret with
// HKDF-SHA256, so rotating the secret makes stored credentials unreadable.
type CredentialEncryptor struct {
	aead cipher.AEAD
}

// NewCredentialEncryptor derives the AES key from secret.
func NewCredentialEncryptor(secret string) (*CredentialEncryptor, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key, err := deriveKey(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &CredentialEncryptor{aead: gcm}, nil
}

// Encrypt returns base64(nonce || ciphertext || tag).
func (e *CredentialEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (e *CredentialEncryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", ErrEmptyCiphertext
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed: %s", ErrInvalidCiphertext, err.Error())
	}

	if len(data) < gcmNonceSize+1+e.aead.Overhead() {
		return "", ErrCiphertextTooShort
	}

	plaintext, err := e.aead.Open(nil, data[:gcmNonceSize], data[gcmNonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// EncryptOptional encrypts value, passing the empty string through. Tenant
// credentials are optional per tier, so absence must survive a round trip.
func (e *CredentialEncryptor) EncryptOptional(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	return e.Encrypt(value)
}

// DecryptOptional is the inverse of EncryptOptional.
func (e *CredentialEncryptor) DecryptOptional(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	return e.Decrypt(value)
}

// MaskCredential renders a credential for logs and API responses ("****...abc1").
func MaskCredential(credential string) string {
	if credential == "" {
		return ""
	}
	if len(credential) <= 4 {
		return "****"
	}
	return "****..." + credential[len(credential)-4:]
}

func deriveKey(secret string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(secret), []byte(credentialEncryptionSalt), []byte(credentialEncryptionInfo))
	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to read HKDF output: %w", err)
	}
	return key, nil
}

// ValidateEncryptionSetup performs a round trip at startup.
func (e *CredentialEncryptor) ValidateEncryptionSetup() error {
	const probe = "encryption-validation-test"

	encrypted, err := e.Encrypt(probe)
	if err != nil {
		return fmt.Errorf("encryption test failed: %w", err)
	}
	decrypted, err := e.Decrypt(encrypted)
	if err != nil {
		return fmt.Errorf("decryption test failed: %w", err)
	}
	if decrypted != probe {
		return errors.New("round-trip validation failed: data mismatch")
	}
	return nil
}
