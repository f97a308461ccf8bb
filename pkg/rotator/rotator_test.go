package rotator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tavernkeep/identity/pkg/signingkey"
)

const testKeyBits = 512

// recordingRepository wraps a repository and records write operations,
// optionally failing the first N AddKey calls.
type recordingRepository struct {
	signingkey.KeyRepository

	mu          sync.Mutex
	ops         []string
	addFailures int
	addAttempts int
}

func (r *recordingRepository) AddKey(ctx context.Context, key *signingkey.SigningKey) error {
	r.mu.Lock()
	r.addAttempts++
	fail := r.addAttempts <= r.addFailures
	if !fail {
		r.ops = append(r.ops, "add")
	}
	r.mu.Unlock()

	if fail {
		return errors.New("connection reset")
	}
	return r.KeyRepository.AddKey(ctx, key)
}

func (r *recordingRepository) DeactivateKey(ctx context.Context, kid string) error {
	r.mu.Lock()
	r.ops = append(r.ops, "deactivate")
	r.mu.Unlock()
	return r.KeyRepository.DeactivateKey(ctx, kid)
}

func seedActiveKey(t *testing.T, repo signingkey.KeyRepository, lifetime time.Duration) *signingkey.SigningKey {
	t.Helper()
	key, err := signingkey.Generate(testKeyBits, lifetime)
	require.NoError(t, err)
	key.Active = true
	require.NoError(t, repo.AddKey(context.Background(), key))
	return key
}

func TestCheckAndRotate(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesInitialKeyWhenStoreIsEmpty", func(t *testing.T) {
		repo := signingkey.NewInMemoryKeyRepository()
		service := NewService(repo, WithKeyBits(testKeyBits), WithKeyLifetime(30*24*time.Hour))

		require.NoError(t, service.CheckAndRotate(ctx))

		active, err := repo.GetActiveKey(ctx)
		require.NoError(t, err)
		assert.True(t, active.Active)
		assert.WithinDuration(t, time.Now().UTC().Add(30*24*time.Hour), active.ExpiresAt, time.Minute)

		keys, err := repo.GetVerificationKeys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, 1)
	})

	t.Run("NoOpWhenActiveKeyIsHealthy", func(t *testing.T) {
		repo := signingkey.NewInMemoryKeyRepository()
		seeded := seedActiveKey(t, repo, 30*24*time.Hour)

		service := NewService(repo, WithKeyBits(testKeyBits))
		require.NoError(t, service.CheckAndRotate(ctx))

		active, err := repo.GetActiveKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, seeded.Kid, active.Kid)

		keys, err := repo.GetVerificationKeys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, 1)
	})

	t.Run("RotatesWhenActiveKeyNearsExpiry", func(t *testing.T) {
		repo := signingkey.NewInMemoryKeyRepository()
		old := seedActiveKey(t, repo, 5*24*time.Hour)

		service := NewService(repo, WithKeyBits(testKeyBits))
		require.NoError(t, service.CheckAndRotate(ctx))

		active, err := repo.GetActiveKey(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, old.Kid, active.Kid)

		// The retired key stays verifiable until it expires.
		retired, err := repo.GetKeyByKid(ctx, old.Kid)
		require.NoError(t, err)
		assert.False(t, retired.Active)

		keys, err := repo.GetVerificationKeys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, 2)
	})

	t.Run("InsertsReplacementBeforeRetiringOldKey", func(t *testing.T) {
		inner := signingkey.NewInMemoryKeyRepository()
		seedActiveKey(t, inner, 5*24*time.Hour)
		repo := &recordingRepository{KeyRepository: inner}

		service := NewService(repo, WithKeyBits(testKeyBits))
		require.NoError(t, service.CheckAndRotate(ctx))

		assert.Equal(t, []string{"add", "deactivate"}, repo.ops)
	})

	t.Run("RetriesTransientStorageFailures", func(t *testing.T) {
		inner := signingkey.NewInMemoryKeyRepository()
		repo := &recordingRepository{KeyRepository: inner, addFailures: 2}

		service := NewService(repo,
			WithKeyBits(testKeyBits),
			WithRetryInterval(time.Millisecond))
		require.NoError(t, service.CheckAndRotate(ctx))

		assert.Equal(t, 3, repo.addAttempts)

		_, err := inner.GetActiveKey(ctx)
		assert.NoError(t, err)
	})

	t.Run("GivesUpAfterExhaustingRetries", func(t *testing.T) {
		inner := signingkey.NewInMemoryKeyRepository()
		repo := &recordingRepository{KeyRepository: inner, addFailures: 100}

		service := NewService(repo,
			WithKeyBits(testKeyBits),
			WithRetryInterval(time.Millisecond))
		err := service.CheckAndRotate(ctx)

		require.Error(t, err)
		assert.Equal(t, 5, repo.addAttempts)

		_, err = inner.GetActiveKey(ctx)
		assert.ErrorIs(t, err, signingkey.ErrNoActiveKey)
	})

	t.Run("RetiresStaleActiveKeyFromInterruptedHandover", func(t *testing.T) {
		repo := signingkey.NewInMemoryKeyRepository()
		stale := seedActiveKey(t, repo, 30*24*time.Hour)
		time.Sleep(5 * time.Millisecond)
		current := seedActiveKey(t, repo, 60*24*time.Hour)

		service := NewService(repo, WithKeyBits(testKeyBits))
		require.NoError(t, service.CheckAndRotate(ctx))

		active, err := repo.GetActiveKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, current.Kid, active.Kid)

		staleKey, err := repo.GetKeyByKid(ctx, stale.Kid)
		require.NoError(t, err)
		assert.False(t, staleKey.Active)
	})
}

func TestStart(t *testing.T) {
	t.Run("RunsPeriodicChecksUntilCancelled", func(t *testing.T) {
		repo := signingkey.NewInMemoryKeyRepository()
		service := NewService(repo,
			WithKeyBits(testKeyBits),
			WithInterval(10*time.Millisecond))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			service.Start(ctx)
			close(done)
		}()

		// The startup check creates the initial key without waiting
		// out the interval.
		assert.Eventually(t, func() bool {
			_, err := repo.GetActiveKey(context.Background())
			return err == nil
		}, time.Second, 5*time.Millisecond)

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("rotation loop did not stop after cancellation")
		}
	})
}
