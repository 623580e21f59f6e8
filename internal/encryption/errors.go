package encryption

import "errors"

// Cipher errors
var (
	ErrInvalidKey         = errors.New("invalid key length")
	ErrInvalidIV          = errors.New("invalid iv length")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrDecryptFailed      = errors.New("decryption failed")
)
