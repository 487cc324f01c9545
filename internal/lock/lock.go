package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sniperthink/chatqueue/internal/storage"
	"github.com/sniperthink/chatqueue/pkg/log"
)

// ErrNotHeld is returned by Release and Extend when the lock is absent or
// held under a different token.
var ErrNotHeld = errors.New("lock: not held by this token")

// Manager acquires short-lived advisory locks in the key-value store. Each
// acquisition writes a random token under the resource key with SetNX, so
// only the holder of the token can release or extend.
type Manager struct {
	store  storage.KeyValueStore
	logger *log.Logger

	// RetryDelay is the pause between contended acquisition attempts.
	RetryDelay time.Duration
}

// NewManager creates a lock manager over kv.
func NewManager(kv storage.KeyValueStore, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Manager{
		store:      kv,
		logger:     logger.Named("lock"),
		RetryDelay: 50 * time.Millisecond,
	}
}

func lockKey(resource string) string { return "cq/lock/" + resource }

// Acquire tries to take the lock on resource, retrying up to maxRetries
// times on contention. On success it returns the holder token. If the lock
// stays contended it returns the empty string and no error, since contention
// is an expected outcome rather than a failure. Store errors are returned
// as errors.
func (m *Manager) Acquire(ctx context.Context, resource string, ttl time.Duration, maxRetries int) (string, error) {
	if resource == "" {
		return "", errors.New("lock: resource is required")
	}
	token := uuid.NewString()

	for attempt := 0; ; attempt++ {
		ok, err := m.store.SetNX(ctx, lockKey(resource), []byte(token), ttl)
		if err != nil {
			return "", fmt.Errorf("acquire %s: %w", resource, err)
		}
		if ok {
			return token, nil
		}
		if attempt >= maxRetries {
			m.logger.Debug("lock contended, giving up",
				zap.String("resource", resource), zap.Int("attempts", attempt+1))
			return "", nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.RetryDelay):
		}
	}
}

// Release frees the lock if token still holds it. Returns ErrNotHeld when
// the lock expired or was taken over by another holder.
func (m *Manager) Release(ctx context.Context, resource, token string) error {
	if err := m.check(ctx, resource, token); err != nil {
		return err
	}
	return m.store.Delete(ctx, lockKey(resource))
}

// Extend pushes the lock's expiry out to ttl from now, if token still holds
// it.
func (m *Manager) Extend(ctx context.Context, resource, token string, ttl time.Duration) error {
	if err := m.check(ctx, resource, token); err != nil {
		return err
	}
	return m.store.Expire(ctx, lockKey(resource), ttl)
}

func (m *Manager) check(ctx context.Context, resource, token string) error {
	held, err := m.store.Get(ctx, lockKey(resource))
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotHeld
	}
	if err != nil {
		return fmt.Errorf("read lock %s: %w", resource, err)
	}
	if string(held) != token {
		return ErrNotHeld
	}
	return nil
}
