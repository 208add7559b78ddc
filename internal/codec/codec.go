// Package codec frames EncryptedEnvelope values for transport. The relay and
// the directory service treat the result as an opaque, self-describing blob.
package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"aim-chat/securecore/pkg/models"

	"github.com/fxamacker/cbor/v2"
)

const (
	// FormatVersion is the framing version written after the magic bytes.
	FormatVersion uint8 = 1

	maxMessageIDLen   = 128
	maxPublicKeyLen   = 128
	maxCiphertextLen  = 16 << 20
	maxEncodedEnvelop = maxCiphertextLen + 1024
)

var magic = []byte("AIMX")

var (
	// ErrMalformedEnvelope is returned for any input that is not a well-formed envelope.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrTombstoned is returned when encoding an envelope whose content was destroyed.
	ErrTombstoned = errors.New("envelope content destroyed")
)

// wireEnvelope is the CBOR body. Integer keys keep the encoding compact and
// the Core Deterministic Encoding makes it canonical.
type wireEnvelope struct {
	Version   uint8  `cbor:"1,keyasint"`
	Suite     uint8  `cbor:"2,keyasint"`
	MessageID string `cbor:"3,keyasint"`
	Ephemeral []byte `cbor:"4,keyasint"`
	Cipher    []byte `cbor:"5,keyasint"`
	CreatedAt int64  `cbor:"6,keyasint"`
	ExpiresAt int64  `cbor:"7,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels:   4,
		MaxArrayElements:  16,
		MaxMapPairs:       16,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: cbor dec mode: %v", err))
	}
}

// Encode serialises env. The output depends only on env.
func Encode(env *models.EncryptedEnvelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil envelope", ErrMalformedEnvelope)
	}
	if env.Expired {
		return nil, ErrTombstoned
	}
	if err := Validate(env); err != nil {
		return nil, err
	}
	w := wireEnvelope{
		Version:   env.Version,
		Suite:     env.Suite,
		MessageID: env.MessageID,
		Ephemeral: env.EphemeralPublicKey,
		Cipher:    env.Ciphertext,
		CreatedAt: env.CreatedAt.UnixNano(),
	}
	if !env.ExpiresAt.IsZero() {
		w.ExpiresAt = env.ExpiresAt.UnixNano()
	}
	body, err := encMode.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	out := make([]byte, 0, len(magic)+1+len(body))
	out = append(out, magic...)
	out = append(out, FormatVersion)
	return append(out, body...), nil
}

// Decode parses data produced by Encode. It never panics; every failure wraps
// ErrMalformedEnvelope.
func Decode(data []byte) (*models.EncryptedEnvelope, error) {
	w, err := decodeWire(data)
	if err != nil {
		return nil, err
	}
	env := &models.EncryptedEnvelope{
		Version:            w.Version,
		Suite:              w.Suite,
		MessageID:          w.MessageID,
		EphemeralPublicKey: w.Ephemeral,
		Ciphertext:         w.Cipher,
		CreatedAt:          fromUnixNano(w.CreatedAt),
	}
	if w.ExpiresAt != 0 {
		env.ExpiresAt = fromUnixNano(w.ExpiresAt)
	}
	if err := Validate(env); err != nil {
		return nil, err
	}
	return env, nil
}

// Validate checks the structural invariants shared by Encode and Decode.
func Validate(env *models.EncryptedEnvelope) error {
	switch {
	case env.Version != models.EnvelopeVersion:
		return fmt.Errorf("%w: unsupported envelope version %d", ErrMalformedEnvelope, env.Version)
	case env.Suite == 0:
		return fmt.Errorf("%w: missing suite", ErrMalformedEnvelope)
	case env.MessageID == "" || len(env.MessageID) > maxMessageIDLen:
		return fmt.Errorf("%w: invalid message id", ErrMalformedEnvelope)
	case len(env.EphemeralPublicKey) == 0 || len(env.EphemeralPublicKey) > maxPublicKeyLen:
		return fmt.Errorf("%w: invalid ephemeral key", ErrMalformedEnvelope)
	case len(env.Ciphertext) == 0 || len(env.Ciphertext) > maxCiphertextLen:
		return fmt.Errorf("%w: invalid ciphertext", ErrMalformedEnvelope)
	case env.CreatedAt.IsZero():
		return fmt.Errorf("%w: missing created_at", ErrMalformedEnvelope)
	case !models.TimestampInRange(env.CreatedAt):
		return fmt.Errorf("%w: created_at timestamp out of range", ErrMalformedEnvelope)
	case !env.ExpiresAt.IsZero() && !models.TimestampInRange(env.ExpiresAt):
		return fmt.Errorf("%w: expires_at timestamp out of range", ErrMalformedEnvelope)
	case !env.ExpiresAt.IsZero() && !env.ExpiresAt.After(env.CreatedAt):
		return fmt.Errorf("%w: expires_at must be after created_at", ErrMalformedEnvelope)
	}
	return nil
}

// EncodeString armors Encode output as unpadded URL-safe base64.
func EncodeString(env *models.EncryptedEnvelope) (string, error) {
	raw, err := Encode(env)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeString reverses EncodeString.
func DecodeString(s string) (*models.EncryptedEnvelope, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: armor: %v", ErrMalformedEnvelope, err)
	}
	return Decode(raw)
}

func decodeWire(data []byte) (wireEnvelope, error) {
	var w wireEnvelope
	if len(data) < len(magic)+1 || !bytes.Equal(data[:len(magic)], magic) {
		return w, fmt.Errorf("%w: missing format tag", ErrMalformedEnvelope)
	}
	if len(data) > maxEncodedEnvelop {
		return w, fmt.Errorf("%w: envelope too large", ErrMalformedEnvelope)
	}
	if v := data[len(magic)]; v != FormatVersion {
		return w, fmt.Errorf("%w: unknown format version %d", ErrMalformedEnvelope, v)
	}
	if err := decMode.Unmarshal(data[len(magic)+1:], &w); err != nil {
		return w, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return w, nil
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
