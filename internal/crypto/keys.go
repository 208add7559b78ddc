package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
)

// KeyMaterial is an asymmetric key pair of one suite. The private half is owned
// by the value: it lives on its own memory-locked page where the platform
// allows, is never printed and is overwritten by Zeroize.
type KeyMaterial struct {
	suite  Suite
	public []byte

	mu      sync.Mutex
	private []byte
	page    []byte
}

// GenerateIdentityKeyPair creates a fresh key pair from the secure random source.
func GenerateIdentityKeyPair(suite Suite) (*KeyMaterial, error) {
	if !suite.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSuite, uint8(suite))
	}
	priv, page := allocLocked(suite.KeySize())
	if err := readRandom(priv); err != nil {
		release(priv, page)
		return nil, err
	}
	km, err := newKeyMaterial(suite, priv, page)
	if err != nil {
		release(priv, page)
		return nil, err
	}
	return km, nil
}

// KeyMaterialFromPrivate rebuilds a key pair from private key bytes.
// The input is copied; the caller keeps ownership of priv.
func KeyMaterialFromPrivate(suite Suite, priv []byte) (*KeyMaterial, error) {
	if !suite.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSuite, uint8(suite))
	}
	if len(priv) != suite.KeySize() {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidPrivateKey, len(priv), suite.KeySize())
	}
	owned, page := allocLocked(len(priv))
	copy(owned, priv)
	km, err := newKeyMaterial(suite, owned, page)
	if err != nil {
		release(owned, page)
		return nil, err
	}
	return km, nil
}

func newKeyMaterial(suite Suite, priv, page []byte) (*KeyMaterial, error) {
	pub, err := suite.publicFromPrivate(priv)
	if err != nil {
		return nil, err
	}
	if isZero(pub) {
		return nil, ErrInvalidPrivateKey
	}
	return &KeyMaterial{suite: suite, public: pub, private: priv, page: page}, nil
}

func release(priv, page []byte) {
	Wipe(priv)
	unlockPage(page)
}

// Suite returns the suite the pair belongs to.
func (k *KeyMaterial) Suite() Suite {
	return k.suite
}

// PublicKey returns a copy of the public key.
func (k *KeyMaterial) PublicKey() []byte {
	return append([]byte(nil), k.public...)
}

// PrivateKey returns the private key buffer owned by k, or nil after Zeroize.
// Callers must not modify or retain it past Zeroize.
func (k *KeyMaterial) PrivateKey() []byte {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.private
}

// Locked reports whether the private key memory is pinned against swapping.
func (k *KeyMaterial) Locked() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.page != nil
}

// Destroyed reports whether Zeroize has run.
func (k *KeyMaterial) Destroyed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.private == nil
}

// Zeroize overwrites the private key and releases it. Safe to call repeatedly.
func (k *KeyMaterial) Zeroize() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.private == nil {
		return
	}
	release(k.private, k.page)
	k.private = nil
	k.page = nil
}

// SharedSecret runs key agreement between k's private key and theirPublic.
func (k *KeyMaterial) SharedSecret(theirPublic []byte) (*SharedSecret, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.private == nil {
		return nil, ErrKeyDestroyed
	}
	return deriveSharedSecret(k.suite, k.private, k.public, theirPublic)
}

// Fingerprint is a short, non-secret identifier of the public key.
func (k *KeyMaterial) Fingerprint() string {
	sum := sha256.Sum256(k.public)
	return hex.EncodeToString(sum[:8])
}

func (k *KeyMaterial) String() string {
	return fmt.Sprintf("KeyMaterial{suite=%s public=%s}", k.suite, k.Fingerprint())
}

// GoString keeps %#v from dumping struct fields.
func (k *KeyMaterial) GoString() string {
	return k.String()
}

// Format covers every fmt verb so the private key never reaches output.
func (k *KeyMaterial) Format(f fmt.State, _ rune) {
	_, _ = fmt.Fprint(f, k.String())
}

// LogValue implements slog.LogValuer.
func (k *KeyMaterial) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("suite", k.suite.String()),
		slog.String("public_fp", k.Fingerprint()),
	)
}

// ValidatePublicKey checks that pub is a usable public key of suite.
func ValidatePublicKey(suite Suite, pub []byte) error {
	if !suite.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownSuite, uint8(suite))
	}
	if len(pub) != suite.KeySize() {
		return fmt.Errorf("%w: got %d bytes, want %d for %s", ErrInvalidPeerKey, len(pub), suite.KeySize(), suite)
	}
	if isZero(pub) {
		return fmt.Errorf("%w: degenerate point", ErrInvalidPeerKey)
	}
	return nil
}

func isZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return acc == 0
}
