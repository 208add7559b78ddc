// Package privacylog keeps key material and message content out of logs.
package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const redactedValue = "[REDACTED]"

var (
	// Per-process salt: fingerprints correlate within one run only.
	processSalt = randomSalt()

	linkableIDKeys = map[string]struct{}{
		"message_id":   {},
		"recipient_id": {},
		"sender_id":    {},
		"peer_key":     {},
		"public_key":   {},
		"ephemeral":    {},
	}
	secretKeyParts = []string{
		"private", "secret", "plaintext", "mnemonic", "phrase",
		"seed", "token", "password", "passphrase", "shared",
	}
)

// Handler wraps another slog.Handler and rewrites attributes before they are emitted.
type Handler struct {
	next slog.Handler
}

func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &Handler{next: next}
}

// NewLogger builds the process logger. format is "json" or "text"; unknown
// levels fall back to info.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var base slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		base = slog.NewJSONHandler(w, opts)
	} else {
		base = slog.NewTextHandler(w, opts)
	}
	return slog.New(WrapHandler(base))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(SanitizeAttr(attr))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{next: h.next.WithAttrs(sanitizeAttrs(attrs))}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name)}
}

// SanitizeAttr redacts secret-bearing keys, replaces linkable identifiers
// with a salted fingerprint and never lets raw byte slices through.
func SanitizeAttr(attr slog.Attr) slog.Attr {
	key := strings.TrimSpace(attr.Key)
	lower := strings.ToLower(key)
	value := attr.Value.Resolve()

	switch {
	case isSecretKey(lower):
		return slog.String(key, redactedValue)
	case isLinkableKey(lower):
		return slog.String(fingerprintKeyName(key), Fingerprint(valueString(value)))
	case value.Kind() == slog.KindGroup:
		return slog.Attr{Key: key, Value: slog.GroupValue(sanitizeAttrs(value.Group())...)}
	case value.Kind() == slog.KindAny:
		if b, ok := value.Any().([]byte); ok {
			return slog.String(key, fmt.Sprintf("[%d bytes]", len(b)))
		}
	}
	return slog.Attr{Key: key, Value: value}
}

// Fingerprint returns a short salted digest of value, stable for the life of the process.
func Fingerprint(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(processSalt + "|" + trimmed))
	return "fp_" + hex.EncodeToString(sum[:8])
}

func sanitizeAttrs(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, SanitizeAttr(attr))
	}
	return out
}

func isLinkableKey(key string) bool {
	_, ok := linkableIDKeys[key]
	return ok
}

func isSecretKey(key string) bool {
	for _, part := range secretKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

func fingerprintKeyName(key string) string {
	if strings.HasSuffix(strings.ToLower(key), "_fp") {
		return key
	}
	return key + "_fp"
}

func valueString(v slog.Value) string {
	if v.Kind() == slog.KindAny {
		if b, ok := v.Any().([]byte); ok {
			return hex.EncodeToString(b)
		}
	}
	return v.String()
}

func randomSalt() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "securecore"
	}
	return hex.EncodeToString(buf)
}
