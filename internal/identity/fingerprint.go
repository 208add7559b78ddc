package identity

import (
	"crypto/sha512"
	"strings"

	"aim-chat/securecore/internal/crypto"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const fingerprintPrefix = "aim1"

var sha512New = sha512.New

// Fingerprint is the human-comparable identifier of a public key. Two users
// compare fingerprints out of band to detect a substituted key.
func Fingerprint(suite crypto.Suite, publicKey []byte) (string, error) {
	if err := crypto.ValidatePublicKey(suite, publicKey); err != nil {
		return "", err
	}
	buf := make([]byte, 0, 1+len(publicKey))
	buf = append(buf, byte(suite))
	buf = append(buf, publicKey...)
	h := blake2b.Sum256(buf)
	return fingerprintPrefix + base58.Encode(h[:]), nil
}

// SafetyNumber groups a fingerprint into blocks of five for reading aloud.
func SafetyNumber(fingerprint string) string {
	body := strings.TrimPrefix(fingerprint, fingerprintPrefix)
	var b strings.Builder
	for i, r := range body {
		if i > 0 && i%5 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
