package crypto

import (
	"encoding/binary"
	"errors"

	"aim-chat/securecore/pkg/models"
)

const adDomain = "aim/securecore/envelope-ad/v1"

// AssociatedData is the canonical byte string authenticated alongside the
// ciphertext: every envelope field except the ciphertext itself.
func AssociatedData(env *models.EncryptedEnvelope) []byte {
	b := make([]byte, 0, len(adDomain)+len(env.MessageID)+len(env.EphemeralPublicKey)+32)
	b = append(b, adDomain...)
	b = append(b, env.Version, env.Suite)
	b = binary.BigEndian.AppendUint16(b, uint16(len(env.MessageID)))
	b = append(b, env.MessageID...)
	b = binary.BigEndian.AppendUint64(b, uint64(env.CreatedAt.UnixNano()))
	if env.ExpiresAt.IsZero() {
		b = append(b, 0)
	} else {
		b = append(b, 1)
		b = binary.BigEndian.AppendUint64(b, uint64(env.ExpiresAt.UnixNano()))
	}
	b = binary.BigEndian.AppendUint16(b, uint16(len(env.EphemeralPublicKey)))
	return append(b, env.EphemeralPublicKey...)
}

// SealForRecipient encrypts plaintext for recipientPublic with a one-time key pair.
// The ephemeral public key is passed to ad so it can be bound into the associated
// data. The ephemeral private key and the shared secret are wiped before return
// on every path.
func SealForRecipient(suite Suite, recipientPublic, plaintext []byte, ad func(ephemeralPublic []byte) []byte) (ephemeralPublic, ciphertext []byte, err error) {
	if err := ValidatePublicKey(suite, recipientPublic); err != nil {
		return nil, nil, err
	}
	ephemeral, err := GenerateIdentityKeyPair(suite)
	if err != nil {
		return nil, nil, err
	}
	secret, err := ephemeral.SharedSecret(recipientPublic)
	ephemeralPublic = ephemeral.PublicKey()
	ephemeral.Zeroize()
	if err != nil {
		return nil, nil, err
	}
	defer secret.Wipe()

	ciphertext, err = Encrypt(plaintext, secret, ad(ephemeralPublic))
	if err != nil {
		return nil, nil, err
	}
	return ephemeralPublic, ciphertext, nil
}

// OpenFromSender decrypts a message addressed to ourPrivate. Problems with the
// sender-supplied ephemeral key are reported as ErrAuthenticationFailed, like any
// other tampering.
func OpenFromSender(suite Suite, ourPrivate, ephemeralPublic, ciphertext, ad []byte) ([]byte, error) {
	secret, err := DeriveSharedSecret(suite, ourPrivate, ephemeralPublic)
	if err != nil {
		if errors.Is(err, ErrInvalidPrivateKey) || errors.Is(err, ErrUnknownSuite) {
			return nil, err
		}
		return nil, ErrAuthenticationFailed
	}
	defer secret.Wipe()
	return Decrypt(ciphertext, secret, ad)
}
