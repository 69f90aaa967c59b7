// Package secret encrypts upstream API keys at rest with a passphrase-derived
// AES-256-GCM key.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"github.com/sftdash/tornpanel/internal/domain/port/driven"
)

const (
	saltSize = 16
	// nonceSize matches cipher.NewGCM's standard nonce length.
	nonceSize = 12
	keySize   = 32

	// MinIterations is the lowest PBKDF2 work factor the codec accepts.
	MinIterations = 100_000

	// maxDerivedKeys bounds the derived-key memo; it is cleared when full.
	maxDerivedKeys = 256
)

// ErrDecrypt is returned when a blob is malformed or fails authentication,
// which includes decrypting with the wrong passphrase.
var ErrDecrypt = errors.New("decrypt credential secret")

// Codec encrypts and decrypts credential secrets. The packed blob layout is
// base64url(salt[16] || nonce[12] || ciphertext || tag), without padding.
// A Codec is safe for concurrent use.
type Codec struct {
	iterations int
	rand       io.Reader

	mu      sync.Mutex
	derived map[string][]byte
}

// NewCodec creates a Codec using the given PBKDF2 iteration count. Values
// below MinIterations are raised to MinIterations.
func NewCodec(iterations int) *Codec {
	if iterations < MinIterations {
		iterations = MinIterations
	}
	return &Codec{
		iterations: iterations,
		rand:       rand.Reader,
		derived:    make(map[string][]byte),
	}
}

// Encrypt seals plaintext under a key derived from passphrase. Every call
// draws a fresh salt and nonce.
func (c *Codec) Encrypt(plaintext, passphrase string) (string, error) {
	if passphrase == "" {
		return "", driven.ErrConfigMissing
	}

	packed := make([]byte, saltSize+nonceSize, saltSize+nonceSize+len(plaintext)+16)
	if _, err := io.ReadFull(c.rand, packed); err != nil {
		return "", fmt.Errorf("read salt and nonce: %w", err)
	}
	salt, nonce := packed[:saltSize], packed[saltSize:]

	gcm, err := c.aead(passphrase, salt)
	if err != nil {
		return "", err
	}

	packed = gcm.Seal(packed, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(packed), nil
}

// Decrypt opens a packed blob produced by Encrypt. Any failure other than a
// missing passphrase wraps ErrDecrypt.
func (c *Codec) Decrypt(blob, passphrase string) (string, error) {
	if passphrase == "" {
		return "", driven.ErrConfigMissing
	}

	packed, err := decodeBase64URL(blob)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode: %v", ErrDecrypt, err)
	}
	if len(packed) < saltSize+nonceSize+1 {
		return "", fmt.Errorf("%w: blob too short (%d bytes)", ErrDecrypt, len(packed))
	}

	salt := packed[:saltSize]
	nonce := packed[saltSize : saltSize+nonceSize]
	ciphertext := packed[saltSize+nonceSize:]

	gcm, err := c.aead(passphrase, salt)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plaintext), nil
}

// aead builds the GCM cipher for a passphrase and salt.
func (c *Codec) aead(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}

// deriveKey runs PBKDF2-HMAC-SHA256, memoizing by (passphrase, salt) since
// the broker decrypts the same few pool rows on every request.
func (c *Codec) deriveKey(passphrase string, salt []byte) []byte {
	id := sha256.Sum256(append([]byte(passphrase+"\x00"), salt...))
	memoKey := string(id[:])

	c.mu.Lock()
	if key, ok := c.derived[memoKey]; ok {
		c.mu.Unlock()
		return key
	}
	c.mu.Unlock()

	key := pbkdf2.Key([]byte(passphrase), salt, c.iterations, keySize, sha256.New)

	c.mu.Lock()
	if len(c.derived) >= maxDerivedKeys {
		clear(c.derived)
	}
	c.derived[memoKey] = key
	c.mu.Unlock()

	return key
}

// decodeBase64URL accepts padded and unpadded base64url input.
func decodeBase64URL(s string) ([]byte, error) {
	if n := len(s) % 4; n != 0 {
		return base64.RawURLEncoding.DecodeString(s)
	}
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}
