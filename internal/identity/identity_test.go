package identity

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"aim-chat/securecore/internal/crypto"

	"github.com/tyler-smith/go-bip39"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestRecoveryPhraseRebuildsSameIdentity(t *testing.T) {
	phrase, err := NewRecoveryPhrase()
	if err != nil {
		t.Fatalf("new phrase failed: %v", err)
	}
	if !bip39.IsMnemonicValid(phrase) || len(strings.Fields(phrase)) != 24 {
		t.Fatalf("unexpected phrase %q", phrase)
	}

	for _, suite := range []crypto.Suite{crypto.SuiteX25519XChaCha20, crypto.SuiteX448AESGCM} {
		k1, err := FromRecoveryPhrase(suite, phrase, "")
		if err != nil {
			t.Fatalf("%s: derive 1 failed: %v", suite, err)
		}
		k2, err := FromRecoveryPhrase(suite, "  "+strings.ToUpper(phrase)+"\n", "")
		if err != nil {
			t.Fatalf("%s: derive 2 failed: %v", suite, err)
		}
		if !bytes.Equal(k1.PublicKey(), k2.PublicKey()) {
			t.Fatalf("%s: same phrase must rebuild the same key", suite)
		}
		withPass, err := FromRecoveryPhrase(suite, phrase, "extra")
		if err != nil {
			t.Fatalf("%s: derive with passphrase failed: %v", suite, err)
		}
		if bytes.Equal(k1.PublicKey(), withPass.PublicKey()) {
			t.Fatalf("%s: passphrase must change the key", suite)
		}
	}
}

func TestRecoveryPhraseInvalidInputs(t *testing.T) {
	if _, err := FromRecoveryPhrase(crypto.DefaultSuite, "   ", ""); !errors.Is(err, ErrMnemonicRequired) {
		t.Fatalf("expected ErrMnemonicRequired, got %v", err)
	}
	if _, err := FromRecoveryPhrase(crypto.DefaultSuite, "not a real mnemonic at all", ""); !errors.Is(err, ErrInvalidMnemonic) {
		t.Fatalf("expected ErrInvalidMnemonic, got %v", err)
	}
	phrase, _ := NewRecoveryPhrase()
	if _, err := FromRecoveryPhrase(crypto.Suite(9), phrase, ""); !errors.Is(err, crypto.ErrUnknownSuite) {
		t.Fatalf("expected ErrUnknownSuite, got %v", err)
	}
}

func TestNewRecoveryPhraseEntropyUnavailable(t *testing.T) {
	restore := crypto.SetRandReaderForTesting(failingReader{})
	defer restore()
	if _, err := NewRecoveryPhrase(); !errors.Is(err, crypto.ErrEntropyUnavailable) {
		t.Fatalf("expected ErrEntropyUnavailable, got %v", err)
	}
}

func TestFingerprint(t *testing.T) {
	a, _ := crypto.GenerateIdentityKeyPair(crypto.DefaultSuite)
	b, _ := crypto.GenerateIdentityKeyPair(crypto.DefaultSuite)

	fa, err := Fingerprint(crypto.DefaultSuite, a.PublicKey())
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	if !strings.HasPrefix(fa, "aim1") || len(fa) < 40 {
		t.Fatalf("unexpected fingerprint %q", fa)
	}
	again, _ := Fingerprint(crypto.DefaultSuite, a.PublicKey())
	fb, _ := Fingerprint(crypto.DefaultSuite, b.PublicKey())
	if fa != again || fa == fb {
		t.Fatal("fingerprint must be stable and distinct per key")
	}
	if _, err := Fingerprint(crypto.DefaultSuite, []byte{1}); !errors.Is(err, crypto.ErrInvalidPeerKey) {
		t.Fatalf("expected ErrInvalidPeerKey, got %v", err)
	}

	sn := SafetyNumber(fa)
	for _, block := range strings.Fields(sn) {
		if len(block) > 5 {
			t.Fatalf("block %q longer than five characters", block)
		}
	}
	if strings.ReplaceAll(sn, " ", "") != strings.TrimPrefix(fa, "aim1") {
		t.Fatal("safety number must only regroup the fingerprint")
	}
}
