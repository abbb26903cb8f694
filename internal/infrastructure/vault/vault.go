// Package vault implements credential encryption at rest with AES-256-GCM.
// The data key is derived from a configured master key via scrypt; when no
// master key is configured outside production, a random throwaway key is
// generated so development instances still encrypt, at the cost of losing
// connections on restart.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/scrypt"

	"github.com/omnihub/backend/internal/domain/security"
)

const (
	keySize   = 32 // AES-256
	nonceSize = 12

	// scrypt parameters, interactive-login strength. Derivation runs once
	// at startup, not per operation.
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// Vault encrypts credential maps with a single process-lifetime data key.
type Vault struct {
	aead cipher.AEAD
}

var _ security.Vault = (*Vault)(nil)

// New derives the data key from masterKey and salt. An empty masterKey
// produces a generated ephemeral key and a WARN, since every stored
// ciphertext becomes undecryptable after restart. Production config
// validation rejects the empty key before this runs.
func New(masterKey, salt string, log *zap.Logger) (*Vault, error) {
	var key []byte
	if masterKey == "" {
		key = make([]byte, keySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("vault: generate ephemeral key: %w", err)
		}
		log.Warn("no vault key configured, using generated ephemeral key; stored credentials will not survive restart")
	} else {
		derived, err := scrypt.Key([]byte(masterKey), []byte(salt), scryptN, scryptR, scryptP, keySize)
		if err != nil {
			return nil, fmt.Errorf("vault: derive key: %w", err)
		}
		key = derived
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: init gcm: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt serializes the secret map and seals it. Output layout is
// nonce || ciphertext || tag, nonce freshly random per call.
func (v *Vault) Encrypt(secrets map[string]string) ([]byte, error) {
	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return nil, fmt.Errorf("vault: marshal secrets: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 0, nonceSize+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// Decrypt opens a ciphertext produced by Encrypt. Any authentication
// failure, truncation or key mismatch returns ErrCiphertextCorrupt with
// no partial plaintext.
func (v *Vault) Decrypt(ciphertext []byte) (map[string]string, error) {
	if len(ciphertext) < nonceSize+v.aead.Overhead() {
		return nil, security.ErrCiphertextCorrupt
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, security.ErrCiphertextCorrupt
	}

	var secrets map[string]string
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("%w: %v", security.ErrCiphertextCorrupt, err)
	}
	return secrets, nil
}
