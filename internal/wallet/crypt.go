package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"io"

	botderr "github.com/inky-tools/inkybot/internal/errors"
)

// Cipher encrypts private keys at rest with AES-256-GCM. The nonce is
// generated per seal and prepended to the ciphertext.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher accepts the 32-byte master key as hex or standard base64.
func NewCipher(encoded string) (*Cipher, error) {
	key, err := decodeKey(encoded)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, botderr.Wrap(botderr.KindInternal, "init key cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, botderr.Wrap(botderr.KindInternal, "init key cipher", err)
	}
	return &Cipher{aead: aead}, nil
}

func decodeKey(encoded string) ([]byte, error) {
	if key, err := hex.DecodeString(encoded); err == nil && len(key) == 32 {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(key) == 32 {
		return key, nil
	}
	return nil, botderr.New(botderr.KindUsage, "encryption key must decode to 32 bytes (hex or base64)")
}

func (c *Cipher) Seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, botderr.Wrap(botderr.KindInternal, "generate nonce", err)
	}
	return c.aead.Seal(nonce, nonce, plain, nil), nil
}

func (c *Cipher) Open(blob []byte) ([]byte, error) {
	if len(blob) < c.aead.NonceSize() {
		return nil, botderr.New(botderr.KindInternal, "ciphertext shorter than nonce")
	}
	nonce, sealed := blob[:c.aead.NonceSize()], blob[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, botderr.Wrap(botderr.KindInternal, "decrypt wallet key", err)
	}
	return plain, nil
}
