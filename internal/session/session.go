// Package session is the entry point of the messaging core: it owns the
// device identity, seals and opens envelopes and destroys self-destructing
// messages on schedule.
package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"aim-chat/securecore/internal/config"
	"aim-chat/securecore/internal/crypto"
	"aim-chat/securecore/internal/expiry"
	"aim-chat/securecore/internal/identity"
	"aim-chat/securecore/internal/platform/privacylog"
	"aim-chat/securecore/internal/platform/ratelimiter"
	"aim-chat/securecore/pkg/models"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// SecureSession owns one device identity and the destruction schedule of
// the messages it sends and receives. It is safe for concurrent use.
type SecureSession struct {
	cfg        config.Config
	logger     *slog.Logger
	now        func() time.Time
	phrase     string
	passphrase string
	hooks      []DestroyHook
	limiter    *ratelimiter.MapLimiter

	scheduler     *expiry.Scheduler
	ownsScheduler bool
	stopScheduler context.CancelFunc
	schedulerDone chan struct{}

	mu       sync.Mutex
	identity *crypto.KeyMaterial
	local    map[string]*models.EncryptedEnvelope
	closed   bool
}

// New builds a session from cfg. Unless WithScheduler is given, the session
// runs its own expiration scheduler until Close.
func New(cfg config.Config, opts ...Option) (*SecureSession, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.logger == nil {
		o.logger = privacylog.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	}

	s := &SecureSession{
		cfg:        cfg,
		logger:     o.logger,
		now:        o.now,
		phrase:     o.phrase,
		passphrase: o.passphrase,
		hooks:      o.hooks,
		limiter:    ratelimiter.New(cfg.FailureRPS, cfg.FailureBurst, cfg.FailureIdleTTL),
		scheduler:  o.scheduler,
		local:      make(map[string]*models.EncryptedEnvelope),
	}

	if s.scheduler == nil {
		metrics, err := expiry.NewMetrics(o.registerer)
		if err != nil {
			return nil, fmt.Errorf("register expiry metrics: %w", err)
		}
		s.scheduler = expiry.New(
			expiry.WithClock(o.now),
			expiry.WithLogger(o.logger.With("component", "expiry")),
			expiry.WithMetrics(metrics),
			expiry.WithResumeCheckInterval(cfg.ResumeCheckInterval),
		)
		s.ownsScheduler = true

		ctx, cancel := context.WithCancel(context.Background())
		s.stopScheduler = cancel
		s.schedulerDone = make(chan struct{})
		go func() {
			defer close(s.schedulerDone)
			_ = s.scheduler.Run(ctx)
		}()
	}
	return s, nil
}

// Initialize returns the device identity, creating it on first use. Later
// calls return the same key material. A failed attempt is not remembered.
func (s *SecureSession) Initialize() (*crypto.KeyMaterial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.identity != nil {
		return s.identity, nil
	}

	var (
		km  *crypto.KeyMaterial
		err error
	)
	if s.phrase != "" {
		km, err = identity.FromRecoveryPhrase(s.cfg.Suite, s.phrase, s.passphrase)
	} else {
		km, err = crypto.GenerateIdentityKeyPair(s.cfg.Suite)
	}
	if err != nil {
		return nil, err
	}
	s.identity = km
	s.logger.Info("identity ready", "suite", km.Suite().String(), "memory_locked", km.Locked())
	return km, nil
}

// EncryptForRecipient seals plaintext for the holder of recipientPublicKey.
// Every call uses a fresh ephemeral key and message id. A self-destructing
// message is registered for destruction before it is returned.
func (s *SecureSession) EncryptForRecipient(plaintext string, recipientPublicKey []byte, opts SendOptions) (*models.EncryptedEnvelope, error) {
	if err := opts.Validate(s.cfg.MaxExpirationMinutes()); err != nil {
		return nil, err
	}
	if plaintext == "" {
		return nil, ErrEmptyPlaintext
	}
	suite := s.cfg.Suite
	if err := crypto.ValidatePublicKey(suite, recipientPublicKey); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, ErrClosed
	}

	id, err := uuid.NewRandomFromReader(crypto.RandReader())
	if err != nil {
		return nil, fmt.Errorf("%w: message id: %v", crypto.ErrEntropyUnavailable, err)
	}
	createdAt := s.now().UTC().Round(0)
	env := &models.EncryptedEnvelope{
		Version:   models.EnvelopeVersion,
		Suite:     uint8(suite),
		MessageID: id.String(),
		CreatedAt: createdAt,
	}
	if opts.SelfDestruct {
		env.ExpiresAt = createdAt.Add(opts.lifetime())
	}

	msg := []byte(plaintext)
	defer crypto.Wipe(msg)
	ephemeralPublic, ciphertext, err := crypto.SealForRecipient(suite, recipientPublicKey, msg, func(eph []byte) []byte {
		env.EphemeralPublicKey = eph
		return crypto.AssociatedData(env)
	})
	if err != nil {
		return nil, err
	}
	env.EphemeralPublicKey = ephemeralPublic
	env.Ciphertext = ciphertext

	if env.SelfDestructing() {
		s.mu.Lock()
		s.local[env.MessageID] = env.Clone()
		s.mu.Unlock()
		if err := s.scheduler.Schedule(env.MessageID, env.ExpiresAt, s.destroy); err != nil {
			s.forget(env.MessageID)
			return nil, err
		}
	}
	s.logger.Debug("message sealed",
		"message_id", env.MessageID,
		"self_destruct", opts.SelfDestruct,
		"expires_in", opts.lifetime().String(),
	)
	return env, nil
}

// DecryptIncoming opens env with ourPrivateKey. Expired or destroyed envelopes
// are refused before any cryptography runs.
func (s *SecureSession) DecryptIncoming(env *models.EncryptedEnvelope, ourPrivateKey []byte) (string, error) {
	if s.isClosed() {
		return "", ErrClosed
	}
	now := s.now()
	if env.ExpiredAt(now) {
		return "", ErrMessageExpired
	}
	suite := s.cfg.Suite
	if crypto.Suite(env.Suite) != suite {
		return "", crypto.ErrAuthenticationFailed
	}
	ad := crypto.AssociatedData(env)
	key := failureKey(ad, env.Ciphertext)
	if !s.limiter.Allow(key, now) {
		s.logger.Warn("decrypt throttled", "message_id", env.MessageID)
		return "", crypto.ErrAuthenticationFailed
	}

	plaintext, err := crypto.OpenFromSender(suite, ourPrivateKey, env.EphemeralPublicKey, env.Ciphertext, ad)
	if err != nil {
		if errors.Is(err, crypto.ErrInvalidPrivateKey) {
			return "", fmt.Errorf("%w: %w", crypto.ErrInvalidPeerKey, err)
		}
		s.limiter.Spend(key, now)
		s.logger.Debug("decrypt failed", "message_id", env.MessageID)
		return "", crypto.ErrAuthenticationFailed
	}
	defer crypto.Wipe(plaintext)
	s.limiter.Reset(key)
	return string(plaintext), nil
}

// failureKey identifies the exact envelope bytes. Copies that share a message
// id but differ anywhere else get separate failure budgets.
func failureKey(ad, ciphertext []byte) string {
	h, _ := blake2b.New256(nil)
	h.Write(ad)
	h.Write(ciphertext)
	return hex.EncodeToString(h.Sum(nil))
}

// ScheduleDestruction registers a received message for destruction at
// expiresAt. Destroy hooks run when it fires.
func (s *SecureSession) ScheduleDestruction(messageID string, expiresAt time.Time) error {
	if expiresAt.IsZero() {
		return fmt.Errorf("%w: missing deadline", ErrInvalidExpiration)
	}
	if s.isClosed() {
		return ErrClosed
	}
	if err := s.scheduler.Schedule(messageID, expiresAt, s.destroy); err != nil {
		return err
	}
	s.logger.Debug("destruction scheduled", "message_id", messageID)
	return nil
}

// CancelDestruction withdraws a pending destruction. It reports false when
// nothing was pending, including when the message was already destroyed.
func (s *SecureSession) CancelDestruction(messageID string) bool {
	cancelled := s.scheduler.Cancel(messageID)
	if cancelled {
		s.forget(messageID)
	}
	return cancelled
}

// LocalCopy returns the session's copy of a self-destructing message it sent.
// After destruction the copy is a tombstone.
func (s *SecureSession) LocalCopy(messageID string) (*models.EncryptedEnvelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, ok := s.local[messageID]
	if !ok {
		return nil, false
	}
	return env.Clone(), true
}

// Fingerprint returns the safety fingerprint of the identity public key.
func (s *SecureSession) Fingerprint() (string, error) {
	s.mu.Lock()
	km := s.identity
	s.mu.Unlock()
	if km == nil {
		return "", ErrNotInitialized
	}
	return identity.Fingerprint(km.Suite(), km.PublicKey())
}

// Close stops the internal scheduler, zeroizes the identity and tombstones
// local copies. Destructions still pending on an internal scheduler run
// early, so destroy hooks see every scheduled message exactly once.
func (s *SecureSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.ownsScheduler {
		s.stopScheduler()
		<-s.schedulerDone
		for _, id := range s.scheduler.Close() {
			_ = s.destroy(id)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, env := range s.local {
		env.Tombstone()
		delete(s.local, id)
	}
	if s.identity != nil {
		s.identity.Zeroize()
		s.identity = nil
	}
	return nil
}

func (s *SecureSession) destroy(messageID string) error {
	s.mu.Lock()
	if env, ok := s.local[messageID]; ok {
		env.Tombstone()
	}
	hooks := s.hooks
	s.mu.Unlock()

	for _, hook := range hooks {
		hook(messageID)
	}
	s.logger.Info("message destroyed", "message_id", messageID)
	return nil
}

func (s *SecureSession) forget(messageID string) {
	s.mu.Lock()
	delete(s.local, messageID)
	s.mu.Unlock()
}

func (s *SecureSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
