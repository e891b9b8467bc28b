// Property-based tests for per-session lock serialization.
package lock

import (
	"sync"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"
)

// TestConcurrentCommitSerializationProperty checks that concurrent
// read-modify-write updates under the same session lock always match the
// sequential result.
func TestConcurrentCommitSerializationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sessionID := rapid.Int64Range(1, 1000000).Draw(t, "sessionID")
		numOps := rapid.IntRange(2, 20).Draw(t, "numOps")

		amounts := make([]float64, numOps)
		expected := 0.0
		for i := 0; i < numOps; i++ {
			amounts[i] = float64(rapid.IntRange(-500, 500).Draw(t, "amount"))
			expected += amounts[i]
		}

		sl := NewSessionLock()
		total := 0.0

		var wg sync.WaitGroup
		wg.Add(numOps)
		for _, amount := range amounts {
			go func(a float64) {
				defer wg.Done()
				sl.Lock(sessionID)
				defer sl.Unlock(sessionID)
				total += a
			}(amount)
		}
		wg.Wait()

		if total != expected {
			t.Fatalf("total mismatch under lock: expected %v, got %v", expected, total)
		}
	})
}

// TestWithLockSerializationProperty checks the WithLock wrapper the same way.
func TestWithLockSerializationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sessionID := rapid.Int64Range(1, 1000000).Draw(t, "sessionID")
		numOps := rapid.IntRange(5, 30).Draw(t, "numOps")
		perOp := float64(rapid.IntRange(1, 100).Draw(t, "perOp"))

		sl := NewSessionLock()
		total := 0.0

		var wg sync.WaitGroup
		wg.Add(numOps)
		for i := 0; i < numOps; i++ {
			go func() {
				defer wg.Done()
				_ = sl.WithLock(sessionID, func() error {
					total += perOp
					return nil
				})
			}()
		}
		wg.Wait()

		if total != float64(numOps)*perOp {
			t.Fatalf("total mismatch with WithLock: expected %v, got %v", float64(numOps)*perOp, total)
		}
	})
}

// TestIndependentSessionLocksProperty checks that locks for different sessions
// do not interfere with each other's serialization.
func TestIndependentSessionLocksProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numSessions := rapid.IntRange(2, 10).Draw(t, "numSessions")
		opsPerSession := rapid.IntRange(5, 20).Draw(t, "opsPerSession")

		sl := NewSessionLock()
		totals := make([]float64, numSessions)

		var wg sync.WaitGroup
		wg.Add(numSessions * opsPerSession)
		for s := 0; s < numSessions; s++ {
			for i := 0; i < opsPerSession; i++ {
				go func(idx int) {
					defer wg.Done()
					id := int64(idx + 1)
					sl.Lock(id)
					defer sl.Unlock(id)
					totals[idx] += 10
				}(s)
			}
		}
		wg.Wait()

		for s := 0; s < numSessions; s++ {
			if totals[s] != float64(opsPerSession)*10 {
				t.Fatalf("session %d total mismatch: expected %v, got %v",
					s+1, float64(opsPerSession)*10, totals[s])
			}
		}
	})
}

// TestTryLockRejectsConcurrentSubmissionsProperty checks that TryLock admits
// at least one contender and leaves the lock free afterwards.
func TestTryLockRejectsConcurrentSubmissionsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sessionID := rapid.Int64Range(1, 1000000).Draw(t, "sessionID")
		numAttempts := rapid.IntRange(5, 20).Draw(t, "numAttempts")

		sl := NewSessionLock()

		var successCount atomic.Int32
		var wg sync.WaitGroup
		wg.Add(numAttempts)
		startCh := make(chan struct{})

		for i := 0; i < numAttempts; i++ {
			go func() {
				defer wg.Done()
				<-startCh
				if sl.TryLock(sessionID) {
					successCount.Add(1)
					sl.Unlock(sessionID)
				}
			}()
		}
		close(startCh)
		wg.Wait()

		if successCount.Load() < 1 {
			t.Fatalf("at least one TryLock should succeed, got %d", successCount.Load())
		}
		if !sl.TryLock(sessionID) {
			t.Fatal("lock should be available after all attempts complete")
		}
		sl.Unlock(sessionID)
	})
}
