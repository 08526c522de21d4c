package benefit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/benefit-engine/benefit"
)

// =============================================================================
// KEYED LOCKS
// =============================================================================

func TestKeyedLocks_SecondAcquirerTimesOut(t *testing.T) {
	// GIVEN: one holder of a key
	// WHEN: a second caller tries the same key with a short timeout
	// THEN: it gets ErrTimeout instead of hanging

	locks := benefit.NewKeyedLocks(50 * time.Millisecond)

	release, err := locks.Acquire(context.Background(), "subscription:s1")
	require.NoError(t, err)

	_, err = locks.Acquire(context.Background(), "subscription:s1")
	require.ErrorIs(t, err, benefit.ErrTimeout)

	var timeoutErr *benefit.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "subscription:s1", timeoutErr.Key)

	// Releasing frees the key for the next acquirer.
	release()
	release2, err := locks.Acquire(context.Background(), "subscription:s1")
	require.NoError(t, err)
	release2()
}

func TestKeyedLocks_DistinctKeysDoNotBlock(t *testing.T) {
	locks := benefit.NewKeyedLocks(50 * time.Millisecond)

	r1, err := locks.Acquire(context.Background(), "project:p1")
	require.NoError(t, err)
	defer r1()

	r2, err := locks.Acquire(context.Background(), "project:p2")
	require.NoError(t, err)
	r2()
}

func TestKeyedLocks_SerializesCriticalSections(t *testing.T) {
	// GIVEN: many goroutines incrementing under the same key
	// WHEN: each read-modify-writes a shared counter inside the lock
	// THEN: no increment is lost

	locks := benefit.NewKeyedLocks(2 * time.Second)

	const workers = 20
	counter := 0
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			release, err := locks.Acquire(context.Background(), "employee:e1")
			if err != nil {
				return
			}
			defer release()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
}

func TestKeyedLocks_AcquireAllReleasesOnPartialFailure(t *testing.T) {
	// GIVEN: the second of two keys is already held
	// WHEN: AcquireAll fails on it
	// THEN: the first key is released, not leaked

	locks := benefit.NewKeyedLocks(50 * time.Millisecond)

	hold, err := locks.Acquire(context.Background(), "subscription:s2")
	require.NoError(t, err)
	defer hold()

	_, err = locks.AcquireAll(context.Background(), []string{"subscription:s1", "subscription:s2"})
	require.ErrorIs(t, err, benefit.ErrTimeout)

	release, err := locks.Acquire(context.Background(), "subscription:s1")
	require.NoError(t, err, "first key must be free again after the failed batch")
	release()
}

// =============================================================================
// CONFLICT RETRY
// =============================================================================

func TestRetryOnConflict_RetriesOnceThenSucceeds(t *testing.T) {
	calls := 0
	err := benefit.RetryOnConflict(func() error {
		calls++
		if calls == 1 {
			return &benefit.ConflictError{Kind: "subscription", ID: "s1"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryOnConflict_PersistentConflictSurfaces(t *testing.T) {
	calls := 0
	err := benefit.RetryOnConflict(func() error {
		calls++
		return &benefit.ConflictError{Kind: "subscription", ID: "s1"}
	})
	require.ErrorIs(t, err, benefit.ErrConflict)
	assert.Equal(t, 2, calls, "exactly one retry")
}

func TestRetryOnConflict_OtherErrorsNotRetried(t *testing.T) {
	calls := 0
	err := benefit.RetryOnConflict(func() error {
		calls++
		return &benefit.NotFoundError{Kind: "subscription", ID: "s1"}
	})
	require.ErrorIs(t, err, benefit.ErrNotFound)
	assert.Equal(t, 1, calls)
}
