package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"

	"github.com/cloudflare/circl/dh/x448"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

// Suite identifies the key agreement, KDF and AEAD combination of a message.
// The numeric value travels in every envelope.
type Suite uint8

const (
	// SuiteX25519XChaCha20 is X25519 + HKDF-SHA256 + XChaCha20-Poly1305.
	SuiteX25519XChaCha20 Suite = 1
	// SuiteX448AESGCM is X448 + HKDF-SHA512 + AES-256-GCM.
	SuiteX448AESGCM Suite = 2

	// DefaultSuite is used when configuration does not name one.
	DefaultSuite = SuiteX25519XChaCha20
)

const (
	aeadKeySize = 32

	x25519KeySize = curve25519.PointSize
	x448KeySize   = x448.Size
)

var suiteNames = map[Suite]string{
	SuiteX25519XChaCha20: "x25519-xchacha20poly1305",
	SuiteX448AESGCM:      "x448-aes256gcm",
}

// ParseSuite resolves a configured suite name.
func ParseSuite(name string) (Suite, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultSuite, nil
	}
	for s, n := range suiteNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSuite, name)
}

func (s Suite) String() string {
	if n, ok := suiteNames[s]; ok {
		return n
	}
	return fmt.Sprintf("suite(%d)", uint8(s))
}

// Valid reports whether this build implements s.
func (s Suite) Valid() bool {
	_, ok := suiteNames[s]
	return ok
}

// KeySize is the length of both public and private keys of the suite.
func (s Suite) KeySize() int {
	switch s {
	case SuiteX25519XChaCha20:
		return x25519KeySize
	case SuiteX448AESGCM:
		return x448KeySize
	default:
		return 0
	}
}

// Overhead is the number of bytes Encrypt adds to a plaintext.
func (s Suite) Overhead() int {
	switch s {
	case SuiteX25519XChaCha20:
		return chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
	case SuiteX448AESGCM:
		return 12 + 16
	default:
		return 0
	}
}

func (s Suite) hash() func() hash.Hash {
	if s == SuiteX448AESGCM {
		return sha512.New
	}
	return sha256.New
}

func (s Suite) newAEAD(key []byte) (cipher.AEAD, error) {
	switch s {
	case SuiteX25519XChaCha20:
		return chacha20poly1305.NewX(key)
	case SuiteX448AESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownSuite, uint8(s))
	}
}

// publicFromPrivate computes the public key for priv. priv length must already be checked.
func (s Suite) publicFromPrivate(priv []byte) ([]byte, error) {
	switch s {
	case SuiteX25519XChaCha20:
		return curve25519.X25519(priv, curve25519.Basepoint)
	case SuiteX448AESGCM:
		var sk, pk x448.Key
		copy(sk[:], priv)
		defer Wipe(sk[:])
		x448.KeyGen(&pk, &sk)
		return append([]byte(nil), pk[:]...), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownSuite, uint8(s))
	}
}

// agree runs the raw Diffie-Hellman function. Low-order peer points fail.
func (s Suite) agree(priv, pub []byte) ([]byte, error) {
	switch s {
	case SuiteX25519XChaCha20:
		out, err := curve25519.X25519(priv, pub)
		if err != nil {
			return nil, ErrInvalidPeerKey
		}
		return out, nil
	case SuiteX448AESGCM:
		var sk, pk, shared x448.Key
		copy(sk[:], priv)
		copy(pk[:], pub)
		defer Wipe(sk[:])
		if !x448.Shared(&shared, &sk, &pk) {
			Wipe(shared[:])
			return nil, ErrInvalidPeerKey
		}
		out := append([]byte(nil), shared[:]...)
		Wipe(shared[:])
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownSuite, uint8(s))
	}
}
