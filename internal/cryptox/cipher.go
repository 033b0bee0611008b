// Package cryptox holds the stateless crypto primitives of the gateway:
// merchant-secret encryption at rest, HMAC request signing, browser
// fingerprinting and password hashing. Every type here is safe for
// concurrent use.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/paygate/internal/common"
)

const (
	KeySize   = 32
	NonceSize = 12
	TagSize   = 16
)

// SecretCipher encrypts merchant API secrets with AES-256-GCM.
//
// Blobs are three base64 fields joined by ':' in the order nonce, ciphertext,
// tag. A fresh random nonce is drawn for every Encrypt call.
type SecretCipher struct {
	aead cipher.AEAD
}

// NewSecretCipher binds the cipher to key, which must be exactly 32 bytes.
func NewSecretCipher(key []byte) (*SecretCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", common.ErrInvalidKeyLength, len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfiguration, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfiguration, err)
	}
	return &SecretCipher{aead: aead}, nil
}

// NewSecretCipherFromBase64 decodes a standard base64 key, as stored in config.
func NewSecretCipherFromBase64(encoded string) (*SecretCipher, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: encryption key is not valid base64", common.ErrInvalidKeyLength)
	}
	defer common.WipeByteArray(key)
	return NewSecretCipher(key)
}

func (c *SecretCipher) Encrypt(plaintext []byte) (string, error) {
	nonce := common.GenerateRandByteArray(NonceSize)

	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	ct, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	enc := base64.StdEncoding
	return enc.EncodeToString(nonce) + ":" + enc.EncodeToString(ct) + ":" + enc.EncodeToString(tag), nil
}

func (c *SecretCipher) Decrypt(blob string) ([]byte, error) {
	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 fields, got %d", common.ErrMalformedCiphertext, len(parts))
	}

	enc := base64.StdEncoding
	nonce, err := enc.DecodeString(parts[0])
	if err != nil || len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: bad nonce", common.ErrMalformedCiphertext)
	}
	ct, err := enc.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext", common.ErrMalformedCiphertext)
	}
	tag, err := enc.DecodeString(parts[2])
	if err != nil || len(tag) != TagSize {
		return nil, fmt.Errorf("%w: bad tag", common.ErrMalformedCiphertext)
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, common.ErrCiphertextTampered
	}
	return plaintext, nil
}
