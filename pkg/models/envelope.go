package models

import (
	"math"
	"time"
)

// EnvelopeVersion is the current wire format version of EncryptedEnvelope.
const EnvelopeVersion uint8 = 1

// Envelope timestamps travel as Unix nanoseconds after the epoch.
var (
	MinTimestamp = time.Unix(0, 1).UTC()
	MaxTimestamp = time.Unix(0, math.MaxInt64).UTC()
)

// TimestampInRange reports whether t survives the Unix nanosecond encoding.
func TimestampInRange(t time.Time) bool {
	return !t.Before(MinTimestamp) && !t.After(MaxTimestamp)
}

// EncryptedEnvelope is one encrypted point-to-point message as it travels
// between devices. Everything except Expired is covered by the wire format.
type EncryptedEnvelope struct {
	Version            uint8     `json:"version"`
	Suite              uint8     `json:"suite"`
	MessageID          string    `json:"message_id"`
	EphemeralPublicKey []byte    `json:"ephemeral_public_key"`
	Ciphertext         []byte    `json:"ciphertext"`
	CreatedAt          time.Time `json:"created_at"`
	ExpiresAt          time.Time `json:"expires_at,omitempty"`

	// Expired is local state: set once the content has been destroyed.
	Expired bool `json:"-"`
}

// SelfDestructing reports whether the envelope carries an expiration deadline.
func (e *EncryptedEnvelope) SelfDestructing() bool {
	return e != nil && !e.ExpiresAt.IsZero()
}

// ExpiredAt reports whether the envelope must be treated as destroyed at now.
// A deadline equal to now counts as elapsed.
func (e *EncryptedEnvelope) ExpiredAt(now time.Time) bool {
	if e == nil || e.Expired {
		return true
	}
	if e.ExpiresAt.IsZero() {
		return false
	}
	return !now.Round(0).Before(e.ExpiresAt.Round(0))
}

// Remaining returns the countdown until expiration, clamped at zero.
// Envelopes without a deadline return zero and false.
func (e *EncryptedEnvelope) Remaining(now time.Time) (time.Duration, bool) {
	if !e.SelfDestructing() {
		return 0, false
	}
	left := e.ExpiresAt.Round(0).Sub(now.Round(0))
	if left < 0 || e.Expired {
		left = 0
	}
	return left, true
}

// Tombstone overwrites the encrypted content in place and marks the envelope expired.
func (e *EncryptedEnvelope) Tombstone() {
	if e == nil {
		return
	}
	for i := range e.Ciphertext {
		e.Ciphertext[i] = 0
	}
	for i := range e.EphemeralPublicKey {
		e.EphemeralPublicKey[i] = 0
	}
	e.Ciphertext = nil
	e.EphemeralPublicKey = nil
	e.Expired = true
}

// Clone returns a deep copy that shares no byte slices with e.
func (e *EncryptedEnvelope) Clone() *EncryptedEnvelope {
	if e == nil {
		return nil
	}
	out := *e
	out.EphemeralPublicKey = append([]byte(nil), e.EphemeralPublicKey...)
	out.Ciphertext = append([]byte(nil), e.Ciphertext...)
	return &out
}
