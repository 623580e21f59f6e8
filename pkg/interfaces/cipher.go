package interfaces

// Cipher seals and opens stored message bodies with per-room key material
type Cipher interface {
	// GenerateKeyMaterial returns a fresh key and IV for a new room
	GenerateKeyMaterial() (key, iv []byte, err error)

	// Seal encrypts plaintext for storage
	Seal(plaintext string, key, iv []byte) ([]byte, error)

	// Open decrypts a stored body; a wrong key or IV must fail
	Open(ciphertext, key, iv []byte) (string, error)
}
