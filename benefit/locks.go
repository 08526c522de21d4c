package benefit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// =============================================================================
// KEYED LOCKS - Per-entity serialization with bounded acquisition
// =============================================================================

// KeyedLocks serializes mutating operations per key (subscription id,
// project id, employee id). Acquisition is bounded: a wait longer than
// AcquireTimeout surfaces as ErrTimeout instead of hanging.
type KeyedLocks struct {
	mu             sync.Mutex
	sems           map[string]chan struct{}
	AcquireTimeout time.Duration
}

func NewKeyedLocks(timeout time.Duration) *KeyedLocks {
	return &KeyedLocks{
		sems:           make(map[string]chan struct{}),
		AcquireTimeout: timeout,
	}
}

// Acquire takes the lock for key, returning a release func.
func (kl *KeyedLocks) Acquire(ctx context.Context, key string) (func(), error) {
	kl.mu.Lock()
	sem, ok := kl.sems[key]
	if !ok {
		sem = make(chan struct{}, 1)
		kl.sems[key] = sem
	}
	kl.mu.Unlock()

	timer := time.NewTimer(kl.AcquireTimeout)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-timer.C:
		return nil, &TimeoutError{Op: "lock acquisition", Key: key}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AcquireAll takes the locks for every key in a canonical order so that
// multi-subscription operations cannot deadlock each other. Keys must be
// pre-sorted by the caller.
func (kl *KeyedLocks) AcquireAll(ctx context.Context, keys []string) (func(), error) {
	releases := make([]func(), 0, len(keys))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, key := range keys {
		rel, err := kl.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, rel)
	}
	return releaseAll, nil
}

// RetryOnConflict runs fn, retrying exactly once if it fails with
// ErrConflict. A second conflict is surfaced to the caller.
func RetryOnConflict(fn func() error) error {
	err := fn()
	if err != nil && errors.Is(err, ErrConflict) {
		err = fn()
	}
	return err
}
