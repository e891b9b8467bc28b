// Package lock provides per-session locking so that concurrent round
// submissions for the same session are serialized.
package lock

import "sync"

// SessionLock provides a mutex per session ID. Locks are created lazily and
// kept for the life of the process; the number of concurrent sessions is
// small.
type SessionLock struct {
	locks sync.Map // map[int64]*sync.Mutex
}

// NewSessionLock creates a new SessionLock instance.
func NewSessionLock() *SessionLock {
	return &SessionLock{}
}

func (sl *SessionLock) getLock(sessionID int64) *sync.Mutex {
	if v, ok := sl.locks.Load(sessionID); ok {
		return v.(*sync.Mutex)
	}
	actual, _ := sl.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// Lock acquires the lock for a session.
func (sl *SessionLock) Lock(sessionID int64) {
	sl.getLock(sessionID).Lock()
}

// Unlock releases the lock for a session.
func (sl *SessionLock) Unlock(sessionID int64) {
	sl.getLock(sessionID).Unlock()
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired.
func (sl *SessionLock) TryLock(sessionID int64) bool {
	return sl.getLock(sessionID).TryLock()
}

// WithLock executes fn while holding the session's lock.
func (sl *SessionLock) WithLock(sessionID int64, fn func() error) error {
	sl.Lock(sessionID)
	defer sl.Unlock(sessionID)
	return fn()
}
