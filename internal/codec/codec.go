package codec

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
)

// Codec converts between in-memory plaintext and the stored column form.
// The session engine only ever sees decoded plaintext; the stored form lives
// in ordinary text columns so encrypted and legacy-plaintext rows can coexist.
type Codec interface {
	Encode(plain string) (string, error)
	Decode(stored string) (string, error)
}

// encPrefix marks encrypted stored values. Values without the prefix are
// treated as legacy plaintext and passed through on decode.
const encPrefix = "enc:v1:"

var ErrCiphertextInvalid = errors.New("codec: ciphertext invalid")

// Noop stores plaintext as-is. Used when no encryption key is configured.
type Noop struct{}

func (Noop) Encode(plain string) (string, error)  { return plain, nil }
func (Noop) Decode(stored string) (string, error) { return stored, nil }

// AESGCM encrypts stored text with AES-256-GCM under a key derived from the
// configured secret. Decode passes unprefixed values through unchanged for
// backward compatibility with rows written before encryption was enabled.
type AESGCM struct {
	aead cipher.AEAD
}

func NewAESGCM(secret string) (*AESGCM, error) {
	if secret == "" {
		return nil, errors.New("codec: empty secret")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("codec: cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("codec: gcm init: %w", err)
	}
	return &AESGCM{aead: aead}, nil
}

func (c *AESGCM) Encode(plain string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("codec: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *AESGCM) Decode(stored string) (string, error) {
	if !strings.HasPrefix(stored, encPrefix) {
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encPrefix))
	if err != nil {
		return "", ErrCiphertextInvalid
	}
	if len(raw) < c.aead.NonceSize() {
		return "", ErrCiphertextInvalid
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrCiphertextInvalid
	}
	return string(plain), nil
}
