package crypto

import (
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const hkdfInfoMessageKey = "aim/securecore/message-key/v1|"

// Encrypt seals plaintext under a key derived from secret, binding ad.
// Output layout: nonce || ciphertext || tag.
func Encrypt(plaintext []byte, secret *SharedSecret, ad []byte) ([]byte, error) {
	if secret == nil || secret.secret == nil {
		return nil, ErrKeyDestroyed
	}
	key, err := deriveMessageKey(secret)
	if err != nil {
		return nil, err
	}
	defer Wipe(key)

	aead, err := secret.suite.newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if err := readRandom(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, ad), nil
}

// Decrypt opens a value produced by Encrypt. Every failure is ErrAuthenticationFailed.
func Decrypt(ciphertext []byte, secret *SharedSecret, ad []byte) ([]byte, error) {
	if secret == nil || secret.secret == nil {
		return nil, ErrAuthenticationFailed
	}
	key, err := deriveMessageKey(secret)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	defer Wipe(key)

	aead, err := secret.suite.newAEAD(key)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrAuthenticationFailed
	}
	nonce := ciphertext[:aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, ciphertext[aead.NonceSize():], ad)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

func deriveMessageKey(secret *SharedSecret) ([]byte, error) {
	info := append([]byte(hkdfInfoMessageKey), secret.suite.String()...)
	reader := hkdf.New(secret.suite.hash(), secret.secret, secret.salt, info)
	key := make([]byte, aeadKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		Wipe(key)
		return nil, fmt.Errorf("failed to derive message key: %w", err)
	}
	return key, nil
}
