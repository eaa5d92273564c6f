// Package vault encrypts tenant secrets at rest in the control-plane store.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/smallbiznis/tenantgate/internal/config"
	"golang.org/x/crypto/hkdf"
)

const (
	envelopePrefix = "v1:"
	keyInfo        = "tenantgate/vault/v1"
)

var (
	ErrCrypto           = errors.New("crypto_failure")
	ErrMissingMasterKey = errors.New("vault_master_key_required")
)

// CryptoError reports ciphertext that cannot be opened. It is never retried.
type CryptoError struct {
	Op     string
	Reason string
	Err    error
}

func (e *CryptoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vault %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("vault %s: %s", e.Op, e.Reason)
}

func (e *CryptoError) Unwrap() error { return e.Err }

func (e *CryptoError) Is(target error) bool { return target == ErrCrypto }

// Cipher is what the directory and resolver need from the vault.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type Vault struct {
	aead cipher.AEAD
}

func New(cfg config.Config) (*Vault, error) {
	return NewWithKey(cfg.VaultMasterKey)
}

// NewWithKey derives the AES-256 key from the master secret with HKDF-SHA256.
func NewWithKey(masterKey string) (*Vault, error) {
	masterKey = strings.TrimSpace(masterKey)
	if masterKey == "" {
		return nil, ErrMissingMasterKey
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(masterKey), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive vault key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Vault{aead: aead}, nil
}

func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", &CryptoError{Op: "encrypt", Reason: "nonce generation failed", Err: err}
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return envelopePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an envelope produced by Encrypt. Empty input yields "" so
// optional secrets can be stored as empty columns.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	if !strings.HasPrefix(ciphertext, envelopePrefix) {
		return "", &CryptoError{Op: "decrypt", Reason: "unknown envelope version"}
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext[len(envelopePrefix):])
	if err != nil {
		return "", &CryptoError{Op: "decrypt", Reason: "malformed encoding", Err: err}
	}

	nonceSize := v.aead.NonceSize()
	if len(raw) < nonceSize+v.aead.Overhead() {
		return "", &CryptoError{Op: "decrypt", Reason: "payload too short"}
	}

	plain, err := v.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", &CryptoError{Op: "decrypt", Reason: "authentication failed", Err: err}
	}
	return string(plain), nil
}
