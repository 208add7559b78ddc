// Package crypto holds the message encryption primitives: identity and
// ephemeral key pairs, key agreement, key derivation and authenticated
// encryption. It performs no I/O and keeps no state beyond the random source.
//
// Two suites are implemented:
//
//   - x25519-xchacha20poly1305: X25519, HKDF-SHA256, XChaCha20-Poly1305 (default)
//   - x448-aes256gcm: X448, HKDF-SHA512, AES-256-GCM
//
// Every message uses a fresh ephemeral key pair whose private half is wiped as
// soon as the shared secret exists. The HKDF salt binds both public keys, and the
// envelope metadata is authenticated as associated data, so any change to the
// message id, timestamps or ephemeral key makes decryption fail.
package crypto
