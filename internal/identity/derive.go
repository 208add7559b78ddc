package identity

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"aim-chat/securecore/internal/crypto"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"
)

const (
	recoveryEntropyBits = 256
	hkdfInfoPrefix      = "aim/securecore/identity/"
)

var (
	ErrInvalidMnemonic  = errors.New("invalid mnemonic")
	ErrMnemonicRequired = errors.New("mnemonic is required")
)

// NewRecoveryPhrase returns a fresh 24-word bip39 mnemonic drawn from the
// engine's random source.
func NewRecoveryPhrase() (string, error) {
	entropy := make([]byte, recoveryEntropyBits/8)
	defer crypto.Wipe(entropy)
	if _, err := io.ReadFull(crypto.RandReader(), entropy); err != nil {
		return "", fmt.Errorf("%w: %v", crypto.ErrEntropyUnavailable, err)
	}
	return bip39.NewMnemonic(entropy)
}

// FromRecoveryPhrase deterministically rebuilds the identity key pair of suite
// from mnemonic. The same phrase yields unrelated keys for different suites.
func FromRecoveryPhrase(suite crypto.Suite, mnemonic, passphrase string) (*crypto.KeyMaterial, error) {
	mnemonic = normalizeMnemonic(mnemonic)
	if mnemonic == "" {
		return nil, ErrMnemonicRequired
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	if !suite.Valid() {
		return nil, fmt.Errorf("%w: %d", crypto.ErrUnknownSuite, uint8(suite))
	}

	seed := bip39.NewSeed(mnemonic, passphrase)
	defer crypto.Wipe(seed)
	priv, err := hkdfExpand(seed, hkdfInfoPrefix+suite.String(), suite.KeySize())
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(priv)
	return crypto.KeyMaterialFromPrivate(suite, priv)
}

func hkdfExpand(seed []byte, info string, outLen int) ([]byte, error) {
	reader := hkdf.New(sha512New, seed, nil, []byte(info))
	out := make([]byte, outLen)
	if _, err := io.ReadFull(reader, out); err != nil {
		crypto.Wipe(out)
		return nil, err
	}
	return out, nil
}

func normalizeMnemonic(mnemonic string) string {
	return strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
}
