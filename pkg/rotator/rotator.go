// Package rotator maintains the signing-key lifecycle: it guarantees an
// active, not-soon-expiring signing key always exists for token issuance
// while never invalidating keys that relying parties may still be using
// for verification.
package rotator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tavernkeep/identity/pkg/signingkey"
)

// Defaults for the rotation schedule. The check interval is independent
// of key expiry: each wake-up decides whether rotation is needed.
const (
	DefaultInterval         = 7 * 24 * time.Hour
	DefaultRenewalLookahead = 10 * 24 * time.Hour

	maxAttempts = 5
)

// Service is the background key rotator. One Service runs one rotation
// loop; checks run to completion before the loop sleeps again, so
// rotation attempts never overlap.
type Service struct {
	keys signingkey.KeyRepository

	interval      time.Duration
	lookahead     time.Duration
	keyLifetime   time.Duration
	keyBits       int
	retryInterval time.Duration
}

// Option configures a rotator Service
type Option func(*Service)

// WithInterval sets how often the rotation check wakes up
func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		s.interval = interval
	}
}

// WithRenewalLookahead sets how close to expiry the active key may get
// before it is replaced
func WithRenewalLookahead(lookahead time.Duration) Option {
	return func(s *Service) {
		s.lookahead = lookahead
	}
}

// WithKeyLifetime sets the validity window of newly generated keys
func WithKeyLifetime(lifetime time.Duration) Option {
	return func(s *Service) {
		s.keyLifetime = lifetime
	}
}

// WithKeyBits sets the RSA modulus size of newly generated keys
func WithKeyBits(bits int) Option {
	return func(s *Service) {
		s.keyBits = bits
	}
}

// WithRetryInterval sets the base delay of the storage retry policy
func WithRetryInterval(interval time.Duration) Option {
	return func(s *Service) {
		s.retryInterval = interval
	}
}

// NewService creates a key rotator over the given repository
func NewService(keys signingkey.KeyRepository, options ...Option) *Service {
	s := &Service{
		keys:          keys,
		interval:      DefaultInterval,
		lookahead:     DefaultRenewalLookahead,
		keyLifetime:   signingkey.DefaultKeyLifetime,
		keyBits:       signingkey.DefaultKeyBits,
		retryInterval: 2 * time.Second,
	}

	for _, option := range options {
		option(s)
	}

	return s
}

// Start runs the rotation loop until the context is cancelled. An
// immediate check runs first so a freshly deployed service gets its
// initial key without waiting out the interval. A failed attempt is
// logged and retried on the next tick; it never stops the loop.
//
// Cancellation interrupts the sleep between checks, not an in-flight
// rotation: a check that has started runs to completion so the store is
// never left mid-handover.
func (s *Service) Start(ctx context.Context) {
	slog.Info("Starting key rotation loop",
		"interval", s.interval,
		"lookahead", s.lookahead,
		"keyLifetime", s.keyLifetime)

	s.runCheck(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Key rotation loop stopped")
			return
		case <-ticker.C:
			s.runCheck(ctx)
		}
	}
}

func (s *Service) runCheck(ctx context.Context) {
	if err := s.CheckAndRotate(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.Error("Key rotation attempt failed, will retry on next tick", "err", err)
	}
}

// CheckAndRotate performs one rotation check: if no active key exists,
// or the active key expires within the renewal lookahead, a replacement
// is generated and the old key retired. Storage interaction is wrapped
// in an exponential-backoff retry policy (up to 5 attempts, jittered)
// to absorb transient failures; the backoff sleep is cancellable.
func (s *Service) CheckAndRotate(ctx context.Context) error {
	operation := func() error {
		return s.checkAndRotateOnce(ctx)
	}

	return backoff.Retry(operation, backoff.WithContext(s.newBackOff(), ctx))
}

func (s *Service) checkAndRotateOnce(ctx context.Context) error {
	active, err := s.keys.GetActiveKey(ctx)
	if err != nil && !errors.Is(err, signingkey.ErrNoActiveKey) {
		return fmt.Errorf("failed to read active key: %w", err)
	}

	now := time.Now().UTC()

	if active != nil && !s.withinRenewalWindow(active, now) {
		// Healthy key; nothing to insert. Still sweep up any stale
		// active key left behind by an interrupted handover.
		return s.retireStaleKeys(ctx, active.Kid)
	}

	return s.rotate(ctx, active, now)
}

// rotate inserts a replacement key and only then retires the previous
// one. The ordering is the concurrency-safety mechanism: a concurrent
// issuance request always observes either the old or the new key as
// active, never neither.
func (s *Service) rotate(ctx context.Context, previous *signingkey.SigningKey, now time.Time) error {
	newKey, err := signingkey.Generate(s.keyBits, s.keyLifetime)
	if err != nil {
		return fmt.Errorf("failed to generate replacement key: %w", err)
	}
	newKey.Active = true

	if err := s.keys.AddKey(ctx, newKey); err != nil {
		return fmt.Errorf("failed to store replacement key: %w", err)
	}

	if previous != nil {
		if err := s.keys.DeactivateKey(ctx, previous.Kid); err != nil {
			return fmt.Errorf("failed to retire key %s: %w", previous.Kid, err)
		}
		slog.Info("Rotated signing key",
			"newKid", newKey.Kid,
			"retiredKid", previous.Kid,
			"expiresAt", newKey.ExpiresAt)
	} else {
		slog.Info("Created initial signing key",
			"kid", newKey.Kid,
			"expiresAt", newKey.ExpiresAt)
	}

	return nil
}

// retireStaleKeys deactivates every active key other than the current
// one. Such keys can exist when a previous handover was interrupted
// between insert and deactivate.
func (s *Service) retireStaleKeys(ctx context.Context, currentKid string) error {
	keys, err := s.keys.GetVerificationKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	for _, key := range keys {
		if key.Active && key.Kid != currentKid {
			slog.Warn("Retiring stale active signing key", "kid", key.Kid)
			if err := s.keys.DeactivateKey(ctx, key.Kid); err != nil {
				return fmt.Errorf("failed to retire stale key %s: %w", key.Kid, err)
			}
		}
	}

	return nil
}

func (s *Service) withinRenewalWindow(key *signingkey.SigningKey, now time.Time) bool {
	return key.ExpiresAt.Before(now.Add(s.lookahead))
}

func (s *Service) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0.05
	b.MaxInterval = 16 * s.retryInterval
	b.MaxElapsedTime = 0

	return backoff.WithMaxRetries(b, maxAttempts-1)
}
