package models

import (
	"testing"
	"time"
)

func sample() *EncryptedEnvelope {
	created := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)
	return &EncryptedEnvelope{
		Version:            EnvelopeVersion,
		Suite:              1,
		MessageID:          "m1",
		EphemeralPublicKey: []byte{1, 2, 3},
		Ciphertext:         []byte{4, 5, 6},
		CreatedAt:          created,
		ExpiresAt:          created.Add(time.Minute),
	}
}

func TestExpiredAtBoundary(t *testing.T) {
	env := sample()
	if env.ExpiredAt(env.ExpiresAt.Add(-time.Nanosecond)) {
		t.Fatal("must not be expired before the deadline")
	}
	if !env.ExpiredAt(env.ExpiresAt) {
		t.Fatal("deadline itself counts as expired")
	}
	env.ExpiresAt = time.Time{}
	if env.ExpiredAt(env.CreatedAt.Add(100 * time.Hour)) {
		t.Fatal("envelope without deadline never expires by time")
	}
	var missing *EncryptedEnvelope
	if !missing.ExpiredAt(time.Now()) {
		t.Fatal("nil envelope is treated as expired")
	}
}

func TestExpiredAtIgnoresMonotonicReading(t *testing.T) {
	now := time.Now()
	env := sample()
	env.ExpiresAt = now.Round(0).Add(time.Second)
	if env.ExpiredAt(now) {
		t.Fatal("monotonic clock reading must not affect the comparison")
	}
}

func TestRemaining(t *testing.T) {
	env := sample()
	if left, ok := env.Remaining(env.CreatedAt.Add(20 * time.Second)); !ok || left != 40*time.Second {
		t.Fatalf("unexpected remaining %s %v", left, ok)
	}
	if left, ok := env.Remaining(env.ExpiresAt.Add(time.Hour)); !ok || left != 0 {
		t.Fatalf("remaining must clamp at zero, got %s", left)
	}
	env.ExpiresAt = time.Time{}
	if _, ok := env.Remaining(env.CreatedAt); ok {
		t.Fatal("non self-destructing envelope has no countdown")
	}
}

func TestTombstoneOverwritesContent(t *testing.T) {
	env := sample()
	ct := env.Ciphertext
	eph := env.EphemeralPublicKey
	env.Tombstone()
	for _, b := range append(append([]byte(nil), ct...), eph...) {
		if b != 0 {
			t.Fatal("content bytes must be overwritten")
		}
	}
	if !env.Expired || env.Ciphertext != nil || env.EphemeralPublicKey != nil {
		t.Fatalf("unexpected tombstone state %+v", env)
	}
	if env.MessageID != "m1" {
		t.Fatal("tombstone keeps the id")
	}
}

func TestCloneSharesNoBytes(t *testing.T) {
	env := sample()
	c := env.Clone()
	c.Ciphertext[0] = 99
	c.EphemeralPublicKey[0] = 99
	if env.Ciphertext[0] == 99 || env.EphemeralPublicKey[0] == 99 {
		t.Fatal("clone must deep copy byte slices")
	}
	if (*EncryptedEnvelope)(nil).Clone() != nil {
		t.Fatal("clone of nil is nil")
	}
}
