// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package storage

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Encryption errors.
var (
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

const keyDerivationContext = "steambridge-credential-encryption"

// sealedFields are the credential entries encrypted at rest.
var sealedFields = []string{"refresh_token"}

// CredentialEncryptor seals sensitive credential fields with
// XChaCha20-Poly1305 under a key derived from a master key with HKDF.
// A nil encryptor passes values through unchanged.
type CredentialEncryptor struct {
	aead cipher.AEAD
}

// NewCredentialEncryptor decodes a base64 master key. An empty key disables
// encryption and returns nil.
func NewCredentialEncryptor(masterKey string) (*CredentialEncryptor, error) {
	if masterKey == "" {
		return nil, nil
	}

	secret, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	if len(secret) < 16 {
		return nil, errors.New("master key must be at least 16 bytes")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyDerivationContext)), key); err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return &CredentialEncryptor{aead: aead}, nil
}

// Encrypt returns base64(nonce || ciphertext). Empty strings stay empty.
func (e *CredentialEncryptor) Encrypt(plaintext string) (string, error) {
	if e == nil || plaintext == "" {
		return plaintext, nil
	}

	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (e *CredentialEncryptor) Decrypt(ciphertext string) (string, error) {
	if e == nil || ciphertext == "" {
		return ciphertext, nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrInvalidCiphertext)
	}
	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize+e.aead.Overhead()+1 {
		return "", fmt.Errorf("%w: data too short", ErrInvalidCiphertext)
	}

	plaintext, err := e.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDecryptionFailed, err.Error())
	}
	return string(plaintext), nil
}

// sealCredentials returns a copy of creds with sensitive fields encrypted.
func (e *CredentialEncryptor) sealCredentials(creds map[string]string) (map[string]string, error) {
	return e.transform(creds, e.Encrypt)
}

// openCredentials returns a copy of creds with sensitive fields decrypted.
func (e *CredentialEncryptor) openCredentials(creds map[string]string) (map[string]string, error) {
	return e.transform(creds, e.Decrypt)
}

func (e *CredentialEncryptor) transform(creds map[string]string, fn func(string) (string, error)) (map[string]string, error) {
	if e == nil || creds == nil {
		return creds, nil
	}
	out := make(map[string]string, len(creds))
	for k, v := range creds {
		out[k] = v
	}
	for _, field := range sealedFields {
		v, ok := out[field]
		if !ok {
			continue
		}
		converted, err := fn(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		out[field] = converted
	}
	return out, nil
}
