package crypto

import (
	"bytes"
	"fmt"
)

// SharedSecret is the output of one key agreement together with the transcript
// (both public keys) that the KDF binds into the message key.
type SharedSecret struct {
	suite  Suite
	secret []byte
	salt   []byte
}

// DeriveSharedSecret performs key agreement between ourPrivate and theirPublic.
func DeriveSharedSecret(suite Suite, ourPrivate, theirPublic []byte) (*SharedSecret, error) {
	if !suite.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSuite, uint8(suite))
	}
	if len(ourPrivate) != suite.KeySize() {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidPrivateKey, len(ourPrivate), suite.KeySize())
	}
	ourPublic, err := suite.publicFromPrivate(ourPrivate)
	if err != nil {
		return nil, err
	}
	return deriveSharedSecret(suite, ourPrivate, ourPublic, theirPublic)
}

func deriveSharedSecret(suite Suite, ourPrivate, ourPublic, theirPublic []byte) (*SharedSecret, error) {
	if err := ValidatePublicKey(suite, theirPublic); err != nil {
		return nil, err
	}
	secret, err := suite.agree(ourPrivate, theirPublic)
	if err != nil {
		return nil, err
	}
	return &SharedSecret{
		suite:  suite,
		secret: secret,
		salt:   transcriptSalt(ourPublic, theirPublic),
	}, nil
}

// Suite returns the suite the secret was agreed under.
func (s *SharedSecret) Suite() Suite {
	return s.suite
}

// Wipe overwrites the secret. Safe to call on nil and more than once.
func (s *SharedSecret) Wipe() {
	if s == nil {
		return
	}
	Wipe(s.secret)
	s.secret = nil
}

// transcriptSalt orders the two public keys so that sender and recipient
// derive the same salt without knowing which side they are on.
func transcriptSalt(a, b []byte) []byte {
	if bytes.Compare(a, b) > 0 {
		a, b = b, a
	}
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
