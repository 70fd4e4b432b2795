// Package crypto encrypts OAuth refresh tokens at rest with caller-provisioned key material.
//
// Ciphertext is AES-256-CBC under the caller IV, authenticated with HMAC-SHA256
// (encrypt-then-MAC). Both sub-keys are derived from the caller key with HKDF so the
// same key is never used for two primitives.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the required size for AES-256 keys (32 bytes)
	KeySize = 32
	// IVSize is the AES block size used as the CBC initialization vector (16 bytes)
	IVSize = aes.BlockSize

	tagSize = sha256.Size
)

var (
	ErrInvalidKey       = errors.New("encryption key must be 32 bytes of hex")
	ErrInvalidIV        = errors.New("encryption IV must be 16 bytes of hex")
	ErrDecryptionFailed = errors.New("decryption failed: authentication error")
)

var (
	encInfo = []byte("opdscatalog refresh-token encryption")
	macInfo = []byte("opdscatalog refresh-token authentication")
)

// Vault encrypts and decrypts secrets. It holds no key material; every call
// supplies its own key and IV because catalog sources may be provisioned differently.
type Vault struct{}

// NewVault creates a Vault.
func NewVault() *Vault {
	return &Vault{}
}

// Encrypt encrypts plaintext and returns hex(ciphertext || tag).
func (v *Vault) Encrypt(plaintext, keyHex, ivHex string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	encKey, macKey, iv, err := deriveKeys(keyHex, ivHex)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out := append(ciphertext, computeTag(macKey, iv, ciphertext)...)
	return hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Any malformed input, wrong key or tampering
// yields ErrDecryptionFailed.
func (v *Vault) Decrypt(ciphertextHex, keyHex, ivHex string) (string, error) {
	if ciphertextHex == "" {
		return "", nil
	}

	encKey, macKey, iv, err := deriveKeys(keyHex, ivHex)
	if err != nil {
		return "", err
	}

	raw, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	if len(raw) < aes.BlockSize+tagSize || (len(raw)-tagSize)%aes.BlockSize != 0 {
		return "", ErrDecryptionFailed
	}

	ciphertext, tag := raw[:len(raw)-tagSize], raw[len(raw)-tagSize:]
	if !hmac.Equal(tag, computeTag(macKey, iv, ciphertext)) {
		return "", ErrDecryptionFailed
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(unpadded), nil
}

// ValidateKeyPair checks key and IV without encrypting anything.
func ValidateKeyPair(keyHex, ivHex string) error {
	_, _, _, err := deriveKeys(keyHex, ivHex)
	return err
}

// Fingerprint returns a short, non-reversible identifier of a key/IV pair so
// stored ciphertext can be matched to the material that produced it.
func Fingerprint(keyHex, ivHex string) string {
	sum := sha256.Sum256([]byte(keyHex + ":" + ivHex))
	return hex.EncodeToString(sum[:8])
}

func deriveKeys(keyHex, ivHex string) (encKey, macKey, iv []byte, err error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) != KeySize {
		return nil, nil, nil, ErrInvalidKey
	}
	iv, err = hex.DecodeString(ivHex)
	if err != nil || len(iv) != IVSize {
		return nil, nil, nil, ErrInvalidIV
	}

	encKey = make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, encInfo), encKey); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	macKey = make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, macInfo), macKey); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to derive authentication key: %w", err)
	}
	return encKey, macKey, iv, nil
}

func computeTag(macKey, iv, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, macKey)
	mac.Write(iv)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padding size")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}

// GenerateKeyPair generates a random AES-256 key and CBC IV, hex-encoded.
func GenerateKeyPair() (keyHex, ivHex string, err error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", "", fmt.Errorf("failed to generate key: %w", err)
	}
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", "", fmt.Errorf("failed to generate IV: %w", err)
	}
	return hex.EncodeToString(key), hex.EncodeToString(iv), nil
}
