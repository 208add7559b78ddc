package session

import (
	"fmt"
	"log/slog"
	"time"

	"aim-chat/securecore/internal/expiry"

	"github.com/prometheus/client_golang/prometheus"
)

// SendOptions controls self-destruction of an outgoing message.
// ExpirationMinutes is only meaningful together with SelfDestruct.
type SendOptions struct {
	SelfDestruct      bool
	ExpirationMinutes int
}

// Validate rejects option combinations that would otherwise be silently
// reinterpreted. maxMinutes <= 0 disables the upper bound.
func (o SendOptions) Validate(maxMinutes int) error {
	switch {
	case o.SelfDestruct && o.ExpirationMinutes <= 0:
		return fmt.Errorf("%w: self-destruct needs a positive expiration, got %d", ErrInvalidExpiration, o.ExpirationMinutes)
	case !o.SelfDestruct && o.ExpirationMinutes != 0:
		return fmt.Errorf("%w: expiration set without self-destruct", ErrInvalidExpiration)
	case maxMinutes > 0 && o.ExpirationMinutes > maxMinutes:
		return fmt.Errorf("%w: %d minutes exceeds the maximum of %d", ErrInvalidExpiration, o.ExpirationMinutes, maxMinutes)
	}
	return nil
}

func (o SendOptions) lifetime() time.Duration {
	return time.Duration(o.ExpirationMinutes) * time.Minute
}

// DestroyHook is told when a message's content has been destroyed, so the
// host can drop any copies it holds. Hooks must not block for long.
type DestroyHook func(messageID string)

// Option configures a SecureSession.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	now        func() time.Time
	scheduler  *expiry.Scheduler
	phrase     string
	passphrase string
	hooks      []DestroyHook
	registerer prometheus.Registerer
}

// WithLogger sets the logger. It should already redact secrets, as privacylog does.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock sets the wall clock used for timestamps and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithScheduler makes the session register destructions on s instead of an
// internal scheduler. The caller drives and closes s.
func WithScheduler(s *expiry.Scheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// WithRecoveryPhrase derives the identity from a bip39 mnemonic instead of fresh randomness.
func WithRecoveryPhrase(mnemonic, passphrase string) Option {
	return func(o *options) {
		o.phrase = mnemonic
		o.passphrase = passphrase
	}
}

// WithDestroyHook adds a hook run once per destroyed message. Nil hooks are ignored.
func WithDestroyHook(hook DestroyHook) Option {
	return func(o *options) {
		if hook != nil {
			o.hooks = append(o.hooks, hook)
		}
	}
}

// WithMetricsRegisterer registers the internal scheduler's collectors on reg.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}
