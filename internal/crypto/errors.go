package crypto

import "errors"

var (
	// ErrEntropyUnavailable is returned when the platform cannot supply secure randomness.
	ErrEntropyUnavailable = errors.New("secure randomness unavailable")

	// ErrInvalidPeerKey is returned for a malformed, degenerate or foreign-suite public key.
	ErrInvalidPeerKey = errors.New("invalid peer key")

	// ErrInvalidPrivateKey is returned when local private key bytes do not fit the suite.
	ErrInvalidPrivateKey = errors.New("invalid private key")

	// ErrAuthenticationFailed is the only error Decrypt reports. It deliberately carries
	// no detail about whether the key, the tag or the associated data was wrong.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrUnknownSuite is returned for suite identifiers this build does not implement.
	ErrUnknownSuite = errors.New("unknown crypto suite")

	// ErrKeyDestroyed is returned when a zeroized KeyMaterial is used.
	ErrKeyDestroyed = errors.New("key material destroyed")
)
