package encryption

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the length of a room key
	KeySize = chacha20poly1305.KeySize
	// IVSize is the length of a room IV
	IVSize = chacha20poly1305.NonceSizeX
)

// Cipher seals message bodies with XChaCha20-Poly1305
// TECHNICAL DISCOVERY: Every Seal draws a fresh random nonce that is stored in
// front of the ciphertext; the room IV is bound as associated data, so opening
// with the wrong key or the wrong IV fails authentication
type Cipher struct{}

// NewCipher creates a cipher
func NewCipher() *Cipher {
	return &Cipher{}
}

// GenerateKeyMaterial returns a random 32-byte key and 24-byte IV
func (c *Cipher) GenerateKeyMaterial() ([]byte, []byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("generate iv: %w", err)
	}
	return key, iv, nil
}

// Seal encrypts plaintext, returning nonce||ciphertext
func (c *Cipher) Seal(plaintext string, key, iv []byte) ([]byte, error) {
	aead, err := newAEAD(key, iv)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, []byte(plaintext), iv), nil
}

// Open decrypts a body produced by Seal
func (c *Cipher) Open(ciphertext, key, iv []byte) (string, error) {
	aead, err := newAEAD(key, iv)
	if err != nil {
		return "", err
	}

	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return "", ErrCiphertextTooShort
	}
	nonce, body := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, body, iv)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return string(plaintext), nil
}

func newAEAD(key, iv []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	if len(iv) != IVSize {
		return nil, ErrInvalidIV
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return aead, nil
}
